// Package memory provides an in-memory namespace store for development
// and tests. All data is lost on restart.
package memory

import (
	"context"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/omnidrive/omnidrive/pkg/namespace"
)

// Store keeps the whole tree in maps guarded by one read-write mutex.
// Coarse locking is plenty here: the Manager already serializes structural
// mutations, so the store only needs to protect individual calls.
type Store struct {
	mu    sync.RWMutex
	nodes map[string]*namespace.Node // workspaceID/nodeID -> node
}

func NewStore() *Store {
	return &Store{nodes: make(map[string]*namespace.Node)}
}

func nodeKey(workspaceID, id string) string {
	return workspaceID + "/" + id
}

func (s *Store) CreateNode(ctx context.Context, node *namespace.Node) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, n := range s.nodes {
		if n.WorkspaceID == node.WorkspaceID && !n.Deleted &&
			n.VirtualPath == node.VirtualPath && n.Type == node.Type {
			return &namespace.ConflictError{Path: path.Dir(node.VirtualPath), Name: node.Name}
		}
	}

	clone := *node
	s.nodes[nodeKey(node.WorkspaceID, node.ID)] = &clone
	return nil
}

func (s *Store) GetNode(ctx context.Context, workspaceID, id string) (*namespace.Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	n, ok := s.nodes[nodeKey(workspaceID, id)]
	if !ok {
		return nil, namespace.ErrNodeNotFound
	}
	clone := *n
	return &clone, nil
}

func (s *Store) GetNodeByPath(ctx context.Context, workspaceID, virtualPath string, nodeType namespace.NodeType) (*namespace.Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, n := range s.nodes {
		if n.WorkspaceID == workspaceID && !n.Deleted &&
			n.VirtualPath == virtualPath && n.Type == nodeType {
			clone := *n
			return &clone, nil
		}
	}
	return nil, namespace.ErrNodeNotFound
}

func (s *Store) ListChildren(ctx context.Context, workspaceID, parentID string) ([]*namespace.Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var children []*namespace.Node
	for _, n := range s.nodes {
		if n.WorkspaceID == workspaceID && !n.Deleted && n.ParentID == parentID {
			clone := *n
			children = append(children, &clone)
		}
	}
	sort.Slice(children, func(i, j int) bool { return children[i].Name < children[j].Name })
	return children, nil
}

func (s *Store) UpdateNode(ctx context.Context, node *namespace.Node) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := nodeKey(node.WorkspaceID, node.ID)
	if _, ok := s.nodes[key]; !ok {
		return namespace.ErrNodeNotFound
	}
	clone := *node
	s.nodes[key] = &clone
	return nil
}

// UpdatePathAndDescendants rewrites the subtree under one lock, which
// makes the operation atomic by construction.
func (s *Store) UpdatePathAndDescendants(ctx context.Context, workspaceID, id, newParentID, newName, newPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	node, ok := s.nodes[nodeKey(workspaceID, id)]
	if !ok || node.Deleted {
		return namespace.ErrNodeNotFound
	}

	oldPrefix := node.VirtualPath + "/"
	newPrefix := newPath + "/"
	now := time.Now()

	for _, n := range s.nodes {
		if n.WorkspaceID != workspaceID || n.Deleted {
			continue
		}
		if strings.HasPrefix(n.VirtualPath, oldPrefix) {
			n.VirtualPath = newPrefix + strings.TrimPrefix(n.VirtualPath, oldPrefix)
			n.UpdatedAt = now
		}
	}

	node.ParentID = newParentID
	node.Name = newName
	node.VirtualPath = newPath
	node.UpdatedAt = now
	return nil
}

func (s *Store) SoftDelete(ctx context.Context, workspaceID, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	node, ok := s.nodes[nodeKey(workspaceID, id)]
	if !ok {
		return namespace.ErrNodeNotFound
	}

	prefix := node.VirtualPath + "/"
	now := time.Now()
	for _, n := range s.nodes {
		if n.WorkspaceID == workspaceID && strings.HasPrefix(n.VirtualPath, prefix) {
			n.Deleted = true
			n.UpdatedAt = now
		}
	}
	node.Deleted = true
	node.UpdatedAt = now
	return nil
}

func (s *Store) Close() error {
	return nil
}
