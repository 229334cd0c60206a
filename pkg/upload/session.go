// Package upload implements resumable chunked uploads.
//
// Clients split a file into fixed-size chunks and push them in any order.
// The pipeline has two modes, chosen per session from the destination
// backend's capabilities:
//
//   - direct: the backend issues per-part upload URLs (multipart-capable
//     object storage); chunks bypass the server entirely and clients
//     confirm each part so completion can assemble them.
//   - relay: chunks land in a server-side spool file at their natural
//     offsets; once all chunks are present the file is forwarded to the
//     backend as one stream.
//
// Progress is split evenly between the two phases: receiving chunks maps
// to 0-50%, forwarding (or part confirmation) maps to 50-100%, so clients
// see motion during both halves of a relay upload.
package upload

import (
	"fmt"
	"time"

	"github.com/omnidrive/omnidrive/pkg/provider"
)

// Mode selects how chunks reach the backend.
type Mode string

const (
	ModeDirect Mode = "direct"
	ModeRelay  Mode = "relay"
)

// Status is an upload session's lifecycle state.
type Status string

const (
	// StatusPending - session record created, transfer mode not yet
	// settled.
	StatusPending Status = "pending"

	// StatusNegotiating - the orchestrator is provisioning the transfer
	// mode (opening a multipart upload or reserving spool space). Retried
	// sessions re-enter this state.
	StatusNegotiating Status = "negotiating"

	// StatusReceiving - at least one chunk received or confirmed.
	StatusReceiving Status = "receiving"

	// StatusAssembling - all chunks present; forwarding to the backend.
	StatusAssembling Status = "assembling"

	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// validTransitions encodes the session state machine. Every status
// change goes through Session.transition, so an illegal hop is a bug
// surfaced immediately rather than a silently corrupted session.
var validTransitions = map[Status][]Status{
	StatusPending:     {StatusNegotiating, StatusFailed, StatusCancelled},
	StatusNegotiating: {StatusReceiving, StatusAssembling, StatusFailed, StatusCancelled},
	StatusReceiving:   {StatusAssembling, StatusCompleted, StatusFailed, StatusCancelled},
	StatusAssembling:  {StatusCompleted, StatusFailed, StatusCancelled},
	StatusFailed:      {StatusNegotiating, StatusCancelled},
}

// Terminal reports whether no further transition except retry/cancel is
// possible.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Session tracks one chunked upload from initiation to completion.
type Session struct {
	ID          string `json:"id"`
	WorkspaceID string `json:"workspace_id"`

	FileName string `json:"file_name"`
	Size     int64  `json:"size"`
	MimeType string `json:"mime_type,omitempty"`

	ChunkSize   int64 `json:"chunk_size"`
	TotalChunks int   `json:"total_chunks"`

	// Received marks which chunk indexes have landed. Order does not
	// matter; chunks are written at offset index*ChunkSize.
	Received []bool `json:"received"`

	Mode       Mode   `json:"mode"`
	ProviderID string `json:"provider_id"`

	// ParentNodeID is the namespace folder the finished file registers
	// under.
	ParentNodeID string `json:"parent_node_id,omitempty"`

	// RemoteID is the backend destination (upload ticket id, possibly
	// provisional).
	RemoteID string `json:"remote_id,omitempty"`

	// Direct-mode multipart bookkeeping.
	UploadID       string                    `json:"upload_id,omitempty"`
	Parts          []provider.PartDescriptor `json:"parts,omitempty"`
	ConfirmedParts []provider.CompletedPart  `json:"confirmed_parts,omitempty"`

	Status   Status  `json:"status"`
	Progress float64 `json:"progress"`
	Error    string  `json:"error,omitempty"`

	// NodeID is the namespace node created on completion.
	NodeID string `json:"node_id,omitempty"`

	// SpoolPath is the relay staging file.
	SpoolPath string `json:"spool_path,omitempty"`

	// Attempts counts backend forwarding attempts across retries.
	Attempts int `json:"attempts"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// transition moves the session to a new status, enforcing the state
// machine.
func (s *Session) transition(to Status) error {
	if s.Status == to {
		return nil
	}
	for _, allowed := range validTransitions[s.Status] {
		if allowed == to {
			s.Status = to
			s.UpdatedAt = time.Now()
			return nil
		}
	}
	return fmt.Errorf("upload: illegal transition %s -> %s for session %s", s.Status, to, s.ID)
}

// receivedCount returns how many chunks have landed.
func (s *Session) receivedCount() int {
	n := 0
	for _, ok := range s.Received {
		if ok {
			n++
		}
	}
	return n
}

// allReceived reports whether every chunk is present.
func (s *Session) allReceived() bool {
	return s.receivedCount() == s.TotalChunks
}

// receiveProgress maps chunk arrival onto the 0-50% band.
func (s *Session) receiveProgress() float64 {
	if s.TotalChunks == 0 {
		return 0
	}
	return 50 * float64(s.receivedCount()) / float64(s.TotalChunks)
}

// chunkLength returns the expected byte length of one chunk; the final
// chunk may be short.
func (s *Session) chunkLength(index int) int64 {
	if index == s.TotalChunks-1 {
		if rem := s.Size % s.ChunkSize; rem != 0 {
			return rem
		}
	}
	return s.ChunkSize
}
