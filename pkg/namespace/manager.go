package namespace

import (
	"context"
	"fmt"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/omnidrive/omnidrive/internal/logger"
	"github.com/omnidrive/omnidrive/pkg/provider"
)

// AdapterResolver resolves a provider configuration id to a connected
// adapter. The returned adapter is owned by the caller, who must run its
// Cleanup (use provider.WithAdapter).
type AdapterResolver interface {
	Resolve(ctx context.Context, workspaceID, providerID string) (provider.Adapter, error)
}

// Manager executes structural operations on the virtual tree.
//
// Structural mutations (create, move, rename, delete) are serialized by a
// single mutex: subtree path rewrites touch an unbounded set of rows, and
// two overlapping moves could otherwise interleave their conflict checks
// with each other's rewrites. Reads (List, Stat) go straight to the store.
//
// When syncRemote is set, structural changes are pushed to the owning
// backend BEFORE the local tree is updated. The ordering is deliberate: a
// failed backend call leaves both views untouched, whereas a failed local
// update after a successful backend call is surfaced as a
// *FatalInconsistencyError for manual reconciliation.
type Manager struct {
	mu         sync.Mutex
	store      Store
	resolver   AdapterResolver
	syncRemote bool
}

// NewManager creates a namespace manager. resolver may be nil when
// syncRemote is false.
func NewManager(store Store, resolver AdapterResolver, syncRemote bool) *Manager {
	return &Manager{store: store, resolver: resolver, syncRemote: syncRemote}
}

// SanitizeName normalizes a user-supplied node name. Path separators are
// replaced with underscores so a name can never change tree depth.
func SanitizeName(name string) (string, error) {
	name = strings.TrimSpace(name)
	name = strings.ReplaceAll(name, "/", "_")
	name = strings.ReplaceAll(name, "\\", "_")
	if name == "" || name == "." || name == ".." {
		return "", &ValidationError{Message: fmt.Sprintf("invalid node name %q", name)}
	}
	return name, nil
}

// Get fetches a live node by id.
func (m *Manager) Get(ctx context.Context, workspaceID, id string) (*Node, error) {
	return m.liveNode(ctx, workspaceID, id)
}

// Stat resolves a virtual path to its node. Uniqueness is scoped per
// node type, so a file is preferred when both a file and a folder
// occupy the path.
func (m *Manager) Stat(ctx context.Context, workspaceID, virtualPath string) (*Node, error) {
	cleaned := path.Clean("/" + virtualPath)
	node, err := m.store.GetNodeByPath(ctx, workspaceID, cleaned, NodeFile)
	if err == ErrNodeNotFound {
		return m.store.GetNodeByPath(ctx, workspaceID, cleaned, NodeFolder)
	}
	return node, err
}

// List returns the live children of a folder node id ("" for roots).
func (m *Manager) List(ctx context.Context, workspaceID, parentID string) ([]*Node, error) {
	return m.store.ListChildren(ctx, workspaceID, parentID)
}

// CreateFolder creates a folder node, optionally backed by a native
// container on the owning backend.
func (m *Manager) CreateFolder(ctx context.Context, workspaceID, parentID, name, providerID string) (*Node, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	name, err := SanitizeName(name)
	if err != nil {
		return nil, err
	}

	parentPath, parentRemoteID, err := m.parentContext(ctx, workspaceID, parentID, providerID)
	if err != nil {
		return nil, err
	}

	remoteID := ""
	if m.syncRemote && providerID != "" {
		remoteID, err = m.remoteCreateFolder(ctx, workspaceID, providerID, name, parentRemoteID)
		if err != nil {
			return nil, err
		}
	}

	now := time.Now()
	node := &Node{
		ID:          uuid.NewString(),
		WorkspaceID: workspaceID,
		Name:        name,
		Type:        NodeFolder,
		ProviderID:  providerID,
		RemoteID:    remoteID,
		VirtualPath: path.Join(parentPath, name),
		ParentID:    parentID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := m.store.CreateNode(ctx, node); err != nil {
		if remoteID != "" {
			return nil, &FatalInconsistencyError{
				NodeID: node.ID, ProviderID: providerID, RemoteID: remoteID,
				Op: "create_folder", Err: err,
			}
		}
		return nil, err
	}
	return node, nil
}

// Register inserts a file node for content that already lives on a
// backend (the upload pipeline's final step).
func (m *Manager) Register(ctx context.Context, node *Node) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	name, err := SanitizeName(node.Name)
	if err != nil {
		return err
	}
	node.Name = name

	parentPath := "/"
	if node.ParentID != "" {
		parent, err := m.store.GetNode(ctx, node.WorkspaceID, node.ParentID)
		if err != nil {
			return err
		}
		if !parent.IsFolder() || parent.Deleted {
			return &ValidationError{Message: "parent is not a live folder"}
		}
		parentPath = parent.VirtualPath
	}

	if node.ID == "" {
		node.ID = uuid.NewString()
	}
	node.VirtualPath = path.Join(parentPath, node.Name)
	now := time.Now()
	node.CreatedAt = now
	node.UpdatedAt = now

	return m.store.CreateNode(ctx, node)
}

// Rename changes a node's name in place.
func (m *Manager) Rename(ctx context.Context, workspaceID, id, newName string) (*Node, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	node, err := m.liveNode(ctx, workspaceID, id)
	if err != nil {
		return nil, err
	}
	return m.relocate(ctx, node, node.ParentID, newName)
}

// Move reparents a node (optionally renaming it in the same operation).
func (m *Manager) Move(ctx context.Context, workspaceID, id, newParentID, newName string) (*Node, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	node, err := m.liveNode(ctx, workspaceID, id)
	if err != nil {
		return nil, err
	}
	if newName == "" {
		newName = node.Name
	}
	return m.relocate(ctx, node, newParentID, newName)
}

// relocate performs the shared rename/move sequence. Caller holds m.mu.
//
// Order of checks matters: every validation runs before any side effect,
// so a rejected operation provably leaves both the tree and the backend
// untouched.
func (m *Manager) relocate(ctx context.Context, node *Node, newParentID, newName string) (*Node, error) {
	newName, err := SanitizeName(newName)
	if err != nil {
		return nil, err
	}

	parentPath := "/"
	parentRemoteID := ""
	if newParentID != "" {
		parent, err := m.store.GetNode(ctx, node.WorkspaceID, newParentID)
		if err != nil {
			return nil, err
		}
		if !parent.IsFolder() || parent.Deleted {
			return nil, &ValidationError{Message: "target parent is not a live folder"}
		}
		// A folder cannot move under itself or its own descendants.
		if parent.ID == node.ID || strings.HasPrefix(parent.VirtualPath+"/", node.VirtualPath+"/") {
			return nil, &ValidationError{Message: "cannot move a folder into itself"}
		}
		// Physical content cannot hop between backends via a move.
		if node.ProviderID != "" && parent.ProviderID != "" && parent.ProviderID != node.ProviderID {
			return nil, &ValidationError{Message: "cannot move across providers; copy instead"}
		}
		parentPath = parent.VirtualPath
		parentRemoteID = parent.RemoteID
	}

	newPath := path.Join(parentPath, newName)
	if newPath == node.VirtualPath {
		return node, nil
	}

	// Conflict check excludes the node itself so pure case/metadata
	// renames of the same entry pass. Only a node of the same type
	// conflicts.
	existing, err := m.store.GetNodeByPath(ctx, node.WorkspaceID, newPath, node.Type)
	if err == nil && existing.ID != node.ID {
		return nil, &ConflictError{Path: parentPath, Name: newName}
	} else if err != nil && err != ErrNodeNotFound {
		return nil, err
	}

	remoteSynced := false
	if m.syncRemote && node.ProviderID != "" && node.RemoteID != "" {
		if err := m.remoteMove(ctx, node, parentRemoteID, newName); err != nil {
			return nil, err
		}
		remoteSynced = true
	}

	if err := m.store.UpdatePathAndDescendants(ctx, node.WorkspaceID, node.ID, newParentID, newName, newPath); err != nil {
		if remoteSynced {
			return nil, &FatalInconsistencyError{
				NodeID: node.ID, ProviderID: node.ProviderID, RemoteID: node.RemoteID,
				Op: "move", Err: err,
			}
		}
		return nil, err
	}

	return m.store.GetNode(ctx, node.WorkspaceID, node.ID)
}

// Delete soft-deletes a node and its subtree, removing backend content
// first when sync is enabled.
func (m *Manager) Delete(ctx context.Context, workspaceID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	node, err := m.liveNode(ctx, workspaceID, id)
	if err != nil {
		return err
	}

	remoteSynced := false
	if m.syncRemote && node.ProviderID != "" && node.RemoteID != "" {
		err := m.withAdapter(ctx, workspaceID, node.ProviderID, func(a provider.Adapter) error {
			return a.Delete(ctx, node.RemoteID, node.IsFolder())
		})
		if err != nil {
			// Already-gone content is not a failure for delete.
			if !provider.IsCode(err, provider.CodeNotFound) {
				return err
			}
		}
		remoteSynced = true
	}

	if err := m.store.SoftDelete(ctx, workspaceID, id); err != nil {
		if remoteSynced {
			return &FatalInconsistencyError{
				NodeID: node.ID, ProviderID: node.ProviderID, RemoteID: node.RemoteID,
				Op: "delete", Err: err,
			}
		}
		return err
	}
	return nil
}

// SetStarred flips the star flag. Purely local.
func (m *Manager) SetStarred(ctx context.Context, workspaceID, id string, starred bool) (*Node, error) {
	node, err := m.liveNode(ctx, workspaceID, id)
	if err != nil {
		return nil, err
	}
	node.Starred = starred
	node.UpdatedAt = time.Now()
	if err := m.store.UpdateNode(ctx, node); err != nil {
		return nil, err
	}
	return node, nil
}

func (m *Manager) liveNode(ctx context.Context, workspaceID, id string) (*Node, error) {
	node, err := m.store.GetNode(ctx, workspaceID, id)
	if err != nil {
		return nil, err
	}
	if node.Deleted {
		return nil, ErrNodeNotFound
	}
	return node, nil
}

// parentContext resolves the path and backend container of a parent node.
func (m *Manager) parentContext(ctx context.Context, workspaceID, parentID, providerID string) (string, string, error) {
	if parentID == "" {
		return "/", "", nil
	}
	parent, err := m.store.GetNode(ctx, workspaceID, parentID)
	if err != nil {
		return "", "", err
	}
	if !parent.IsFolder() || parent.Deleted {
		return "", "", &ValidationError{Message: "parent is not a live folder"}
	}
	if providerID != "" && parent.ProviderID != "" && parent.ProviderID != providerID {
		return "", "", &ValidationError{Message: "folder provider must match its parent's provider"}
	}
	return parent.VirtualPath, parent.RemoteID, nil
}

func (m *Manager) remoteCreateFolder(ctx context.Context, workspaceID, providerID, name, parentRemoteID string) (string, error) {
	var remoteID string
	err := m.withAdapter(ctx, workspaceID, providerID, func(a provider.Adapter) error {
		id, err := a.CreateFolder(ctx, name, parentRemoteID)
		if err != nil {
			// Backends without native containers fall back to virtual-only
			// folders rather than failing the operation.
			if provider.IsCode(err, provider.CodeUnsupported) {
				logger.Debug("provider %s has no native folders, creating virtual-only", providerID)
				return nil
			}
			return err
		}
		remoteID = id
		return nil
	})
	return remoteID, err
}

func (m *Manager) remoteMove(ctx context.Context, node *Node, parentRemoteID, newName string) error {
	return m.withAdapter(ctx, node.WorkspaceID, node.ProviderID, func(a provider.Adapter) error {
		return a.Move(ctx, node.RemoteID, parentRemoteID, newName)
	})
}

func (m *Manager) withAdapter(ctx context.Context, workspaceID, providerID string, fn func(provider.Adapter) error) error {
	if m.resolver == nil {
		return &ValidationError{Message: "no adapter resolver configured"}
	}
	adapter, err := m.resolver.Resolve(ctx, workspaceID, providerID)
	if err != nil {
		return err
	}
	return provider.WithAdapter(ctx, adapter, fn)
}
