// Package badger provides a persistent namespace store backed by
// BadgerDB, an embedded key-value store with WAL-based crash recovery.
//
// Storage model: namespaced key prefixes keep the data types apart and
// make range scans cheap.
//
//	node:<workspace>:<id>           -> JSON-encoded Node (including deleted)
//	path:<workspace>:<path>#<type>  -> node id (live nodes only)
//	child:<workspace>:<parent>:<id> -> "" (live nodes only)
//
// The path index carries the node type as a suffix so a file and a
// folder may share a virtual path; the suffix position keeps descendant
// prefix scans over <path> working unchanged.
//
// Subtree moves rewrite every affected row inside a single Badger
// transaction, so readers never observe a half-moved tree.
package badger

import (
	"context"
	"encoding/json"
	"path"
	"sort"
	"strings"
	"time"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/omnidrive/omnidrive/internal/logger"
	"github.com/omnidrive/omnidrive/pkg/namespace"
)

type Store struct {
	db *badger.DB
}

// Options configures the Badger namespace store.
type Options struct {
	// Dir is the database directory. Created if missing.
	Dir string

	// InMemory runs Badger without disk persistence (tests).
	InMemory bool
}

// NewStore opens (or creates) the database.
func NewStore(opts Options) (*Store, error) {
	badgerOpts := badger.DefaultOptions(opts.Dir).
		WithInMemory(opts.InMemory).
		WithLogger(nil)
	if opts.InMemory {
		badgerOpts = badgerOpts.WithDir("").WithValueDir("")
	}

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, err
	}
	logger.Debug("namespace store opened at %s", opts.Dir)
	return &Store{db: db}, nil
}

func nodeKey(workspaceID, id string) []byte {
	return []byte("node:" + workspaceID + ":" + id)
}

func pathKey(workspaceID, virtualPath string, nodeType namespace.NodeType) []byte {
	return []byte("path:" + workspaceID + ":" + virtualPath + "#" + string(nodeType))
}

func childKey(workspaceID, parentID, id string) []byte {
	return []byte("child:" + workspaceID + ":" + parentID + ":" + id)
}

func putNode(txn *badger.Txn, node *namespace.Node) error {
	raw, err := json.Marshal(node)
	if err != nil {
		return err
	}
	return txn.Set(nodeKey(node.WorkspaceID, node.ID), raw)
}

func getNode(txn *badger.Txn, workspaceID, id string) (*namespace.Node, error) {
	item, err := txn.Get(nodeKey(workspaceID, id))
	if err == badger.ErrKeyNotFound {
		return nil, namespace.ErrNodeNotFound
	} else if err != nil {
		return nil, err
	}

	var node namespace.Node
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &node)
	}); err != nil {
		return nil, err
	}
	return &node, nil
}

// indexNode writes (or removes, for deleted nodes) the secondary keys.
func indexNode(txn *badger.Txn, node *namespace.Node) error {
	if node.Deleted {
		if err := txn.Delete(pathKey(node.WorkspaceID, node.VirtualPath, node.Type)); err != nil {
			return err
		}
		return txn.Delete(childKey(node.WorkspaceID, node.ParentID, node.ID))
	}
	if err := txn.Set(pathKey(node.WorkspaceID, node.VirtualPath, node.Type), []byte(node.ID)); err != nil {
		return err
	}
	return txn.Set(childKey(node.WorkspaceID, node.ParentID, node.ID), nil)
}

func (s *Store) CreateNode(ctx context.Context, node *namespace.Node) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(pathKey(node.WorkspaceID, node.VirtualPath, node.Type)); err == nil {
			return &namespace.ConflictError{Path: path.Dir(node.VirtualPath), Name: node.Name}
		} else if err != badger.ErrKeyNotFound {
			return err
		}
		if err := putNode(txn, node); err != nil {
			return err
		}
		return indexNode(txn, node)
	})
}

func (s *Store) GetNode(ctx context.Context, workspaceID, id string) (*namespace.Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var node *namespace.Node
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		node, err = getNode(txn, workspaceID, id)
		return err
	})
	return node, err
}

func (s *Store) GetNodeByPath(ctx context.Context, workspaceID, virtualPath string, nodeType namespace.NodeType) (*namespace.Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var node *namespace.Node
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(pathKey(workspaceID, virtualPath, nodeType))
		if err == badger.ErrKeyNotFound {
			return namespace.ErrNodeNotFound
		} else if err != nil {
			return err
		}

		var id string
		if err := item.Value(func(val []byte) error {
			id = string(val)
			return nil
		}); err != nil {
			return err
		}

		node, err = getNode(txn, workspaceID, id)
		return err
	})
	return node, err
}

func (s *Store) ListChildren(ctx context.Context, workspaceID, parentID string) ([]*namespace.Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var children []*namespace.Node
	err := s.db.View(func(txn *badger.Txn) error {
		prefix := []byte("child:" + workspaceID + ":" + parentID + ":")
		it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix})
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			id := strings.TrimPrefix(string(it.Item().Key()), string(prefix))
			node, err := getNode(txn, workspaceID, id)
			if err != nil {
				return err
			}
			children = append(children, node)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(children, func(i, j int) bool { return children[i].Name < children[j].Name })
	return children, nil
}

func (s *Store) UpdateNode(ctx context.Context, node *namespace.Node) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		current, err := getNode(txn, node.WorkspaceID, node.ID)
		if err != nil {
			return err
		}
		// Structural fields must go through UpdatePathAndDescendants.
		node.VirtualPath = current.VirtualPath
		node.ParentID = current.ParentID
		node.Name = current.Name
		return putNode(txn, node)
	})
}

func (s *Store) UpdatePathAndDescendants(ctx context.Context, workspaceID, id, newParentID, newName, newPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		node, err := getNode(txn, workspaceID, id)
		if err != nil {
			return err
		}
		if node.Deleted {
			return namespace.ErrNodeNotFound
		}

		now := time.Now()
		oldPrefix := node.VirtualPath + "/"
		newPrefix := newPath + "/"

		// Collect descendants by scanning the path index under the old
		// prefix, then rewrite each row inside this same transaction.
		var descendantIDs []string
		it := txn.NewIterator(badger.IteratorOptions{
			Prefix: []byte("path:" + workspaceID + ":" + oldPrefix),
		})
		for it.Rewind(); it.Valid(); it.Next() {
			var descID string
			if err := it.Item().Value(func(val []byte) error {
				descID = string(val)
				return nil
			}); err != nil {
				it.Close()
				return err
			}
			descendantIDs = append(descendantIDs, descID)
		}
		it.Close()

		for _, descID := range descendantIDs {
			desc, err := getNode(txn, workspaceID, descID)
			if err != nil {
				return err
			}
			if err := txn.Delete(pathKey(workspaceID, desc.VirtualPath, desc.Type)); err != nil {
				return err
			}
			desc.VirtualPath = newPrefix + strings.TrimPrefix(desc.VirtualPath, oldPrefix)
			desc.UpdatedAt = now
			if err := putNode(txn, desc); err != nil {
				return err
			}
			if err := txn.Set(pathKey(workspaceID, desc.VirtualPath, desc.Type), []byte(desc.ID)); err != nil {
				return err
			}
		}

		if err := txn.Delete(pathKey(workspaceID, node.VirtualPath, node.Type)); err != nil {
			return err
		}
		if err := txn.Delete(childKey(workspaceID, node.ParentID, node.ID)); err != nil {
			return err
		}

		node.ParentID = newParentID
		node.Name = newName
		node.VirtualPath = newPath
		node.UpdatedAt = now

		if err := putNode(txn, node); err != nil {
			return err
		}
		return indexNode(txn, node)
	})
}

func (s *Store) SoftDelete(ctx context.Context, workspaceID, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		node, err := getNode(txn, workspaceID, id)
		if err != nil {
			return err
		}

		now := time.Now()
		markDeleted := func(n *namespace.Node) error {
			n.Deleted = true
			n.UpdatedAt = now
			if err := putNode(txn, n); err != nil {
				return err
			}
			return indexNode(txn, n)
		}

		var descendantIDs []string
		it := txn.NewIterator(badger.IteratorOptions{
			Prefix: []byte("path:" + workspaceID + ":" + node.VirtualPath + "/"),
		})
		for it.Rewind(); it.Valid(); it.Next() {
			var descID string
			if err := it.Item().Value(func(val []byte) error {
				descID = string(val)
				return nil
			}); err != nil {
				it.Close()
				return err
			}
			descendantIDs = append(descendantIDs, descID)
		}
		it.Close()

		for _, descID := range descendantIDs {
			desc, err := getNode(txn, workspaceID, descID)
			if err != nil {
				return err
			}
			if err := markDeleted(desc); err != nil {
				return err
			}
		}
		return markDeleted(node)
	})
}

func (s *Store) Close() error {
	return s.db.Close()
}
