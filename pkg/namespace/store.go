package namespace

import "context"

// Store persists the virtual tree.
//
// Implementations must honor two structural guarantees the Manager builds
// on:
//
//  1. UpdatePathAndDescendants is atomic: either the node and every one of
//     its descendants carry their rewritten paths afterwards, or none do.
//  2. Soft-deleted nodes are excluded from GetNodeByPath, ListChildren,
//     and sibling conflict visibility, but remain fetchable by id.
type Store interface {
	// CreateNode inserts a node. Returns *ConflictError when a live node
	// of the same type already occupies the virtual path; a file and a
	// folder may legally share one.
	CreateNode(ctx context.Context, node *Node) error

	// GetNode fetches a node by id, including soft-deleted ones.
	GetNode(ctx context.Context, workspaceID, id string) (*Node, error)

	// GetNodeByPath resolves a virtual path to its live node of the
	// given type.
	GetNodeByPath(ctx context.Context, workspaceID, virtualPath string, nodeType NodeType) (*Node, error)

	// ListChildren returns the live children of a folder, sorted by name.
	// An empty parentID lists workspace roots.
	ListChildren(ctx context.Context, workspaceID, parentID string) ([]*Node, error)

	// UpdateNode persists mutated scalar fields (size, star flag, remote
	// id). It must not be used for structural changes.
	UpdateNode(ctx context.Context, node *Node) error

	// UpdatePathAndDescendants atomically reparents/renames a node and
	// rewrites the VirtualPath prefix of its whole subtree from oldPath to
	// newPath.
	UpdatePathAndDescendants(ctx context.Context, workspaceID, id, newParentID, newName, newPath string) error

	// SoftDelete marks the node and all of its descendants deleted.
	SoftDelete(ctx context.Context, workspaceID, id string) error

	// Close releases store resources.
	Close() error
}
