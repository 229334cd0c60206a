// Package namespace maintains the virtual file tree that unifies every
// configured storage backend behind a single path hierarchy.
//
// Nodes are the namespace's records: each one binds a virtual path to the
// backend that physically holds the content (ProviderID + RemoteID).
// Folders may exist purely virtually, with no backend counterpart at all.
// The namespace is the authoritative index; backends that cannot enumerate
// their own content (for example messaging-platform storage) are browsable
// only through it.
package namespace

import "time"

// NodeType discriminates files from folders.
type NodeType string

const (
	NodeFile   NodeType = "file"
	NodeFolder NodeType = "folder"
)

// Node is one entry in the virtual tree.
type Node struct {
	// ID is the node's stable identifier, unique within the workspace.
	ID string `json:"id"`

	// WorkspaceID scopes the node. All tree operations are confined to a
	// single workspace.
	WorkspaceID string `json:"workspace_id"`

	// Name is the display name, unique among siblings.
	Name string `json:"name"`

	Type NodeType `json:"type"`

	// ProviderID identifies the backend configuration holding the content.
	// Empty for purely virtual folders.
	ProviderID string `json:"provider_id,omitempty"`

	// RemoteID is the backend-native identifier of the content. Its format
	// is opaque to the namespace.
	RemoteID string `json:"remote_id,omitempty"`

	// VirtualPath is the absolute path of the node in the tree, always
	// "/"-separated and starting with "/".
	VirtualPath string `json:"virtual_path"`

	// ParentID is the containing folder's node id, empty for roots.
	ParentID string `json:"parent_id,omitempty"`

	Size     int64  `json:"size,omitempty"`
	MimeType string `json:"mime_type,omitempty"`

	Starred bool `json:"starred,omitempty"`

	// Deleted marks a soft-deleted node. Deleted nodes are invisible to
	// listings and conflict checks but retained for recovery.
	Deleted bool `json:"deleted,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsFolder reports whether the node can contain children.
func (n *Node) IsFolder() bool {
	return n.Type == NodeFolder
}
