package namespace

import (
	"errors"
	"fmt"
)

// ErrNodeNotFound is returned when a node id or virtual path resolves to
// nothing (or only to a soft-deleted node).
var ErrNodeNotFound = errors.New("namespace: node not found")

// ConflictError reports that a create, rename, or move would place two
// live siblings with the same name under one parent.
type ConflictError struct {
	Path string
	Name string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("namespace: %q already exists in %s", e.Name, e.Path)
}

// ValidationError reports a structurally invalid request: bad names,
// moving a folder into itself, crossing providers, and so on. The tree is
// guaranteed untouched when one is returned.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return "namespace: " + e.Message
}

// FatalInconsistencyError reports that a backend accepted a structural
// change but the local tree update then failed, leaving the two views
// divergent. There is no automatic compensation: the error carries enough
// detail for manual reconciliation and must be surfaced, never swallowed.
type FatalInconsistencyError struct {
	NodeID     string
	ProviderID string
	RemoteID   string
	Op         string
	Err        error
}

func (e *FatalInconsistencyError) Error() string {
	return fmt.Sprintf(
		"namespace: FATAL inconsistency on %s: backend %s applied %s for remote %s but the local tree update failed: %v",
		e.NodeID, e.ProviderID, e.Op, e.RemoteID, e.Err,
	)
}

func (e *FatalInconsistencyError) Unwrap() error {
	return e.Err
}
