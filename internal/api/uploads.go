package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/omnidrive/omnidrive/pkg/upload"
)

type initiateUploadRequest struct {
	FileName     string `json:"file_name"`
	Size         int64  `json:"size"`
	MimeType     string `json:"mime_type"`
	ParentNodeID string `json:"parent_node_id"`
	ProviderID   string `json:"provider_id"`
	ChunkSize    int64  `json:"chunk_size"`
}

// InitiateUpload creates an upload session. The response tells the
// client which mode to use: direct sessions carry presigned part URLs to
// push chunks to, relay sessions take chunks at the chunk endpoint.
//
// POST /v1/uploads
func (h *Handler) InitiateUpload(w http.ResponseWriter, r *http.Request) {
	var req initiateUploadRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	session, err := h.orch.Initiate(r.Context(), upload.InitiateRequest{
		WorkspaceID:  h.workspaceID,
		FileName:     req.FileName,
		Size:         req.Size,
		MimeType:     req.MimeType,
		ParentNodeID: req.ParentNodeID,
		ProviderID:   req.ProviderID,
		ChunkSize:    req.ChunkSize,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, session)
}

// GetUpload returns a session's current state.
//
// GET /v1/uploads/{id}
func (h *Handler) GetUpload(w http.ResponseWriter, r *http.Request) {
	session, err := h.orch.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

// PutChunk receives one relayed chunk. Chunks may arrive in any order
// and are idempotent per index.
//
// PUT /v1/uploads/{id}/chunks/{index}
// Body: raw chunk bytes
func (h *Handler) PutChunk(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "chunk index must be an integer")
		return
	}

	session, err := h.orch.PutChunk(r.Context(), r.PathValue("id"), index, r.Body)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

type confirmPartRequest struct {
	ETag string `json:"etag"`
}

// ConfirmPart records a part the client pushed straight to the backend.
//
// POST /v1/uploads/{id}/parts/{number}
func (h *Handler) ConfirmPart(w http.ResponseWriter, r *http.Request) {
	number, err := strconv.Atoi(r.PathValue("number"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "part number must be an integer")
		return
	}

	var req confirmPartRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	session, err := h.orch.ConfirmPart(r.Context(), r.PathValue("id"), number, req.ETag)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

type failPartRequest struct {
	Message string `json:"message"`
}

// FailPart records a client-side failure pushing a part straight to the
// backend, moving the session to failed so it can be retried.
//
// POST /v1/uploads/{id}/parts/{number}/fail
func (h *Handler) FailPart(w http.ResponseWriter, r *http.Request) {
	number, err := strconv.Atoi(r.PathValue("number"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "part number must be an integer")
		return
	}

	var req failPartRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	session, err := h.orch.ReportPartFailure(r.Context(), r.PathValue("id"), number, req.Message)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

// CompleteUpload finalizes a direct-mode session.
//
// POST /v1/uploads/{id}/complete
func (h *Handler) CompleteUpload(w http.ResponseWriter, r *http.Request) {
	session, err := h.orch.CompleteDirect(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

// CancelUpload aborts a session. Idempotent.
//
// POST /v1/uploads/{id}/cancel
func (h *Handler) CancelUpload(w http.ResponseWriter, r *http.Request) {
	if err := h.orch.Cancel(r.Context(), r.PathValue("id")); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RetryUpload restarts a failed session.
//
// POST /v1/uploads/{id}/retry
func (h *Handler) RetryUpload(w http.ResponseWriter, r *http.Request) {
	session, err := h.orch.Retry(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

// UploadEvents streams a session's progress as server-sent events. The
// stream ends after the first terminal event.
//
// GET /v1/uploads/{id}/events
func (h *Handler) UploadEvents(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")

	// Subscribe before the initial snapshot so no event can slip between
	// the two.
	events, cancel := h.orch.Hub().Subscribe(sessionID)
	defer cancel()

	session, err := h.orch.Get(r.Context(), sessionID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	send := func(ev upload.Event) bool {
		data, err := json.Marshal(ev)
		if err != nil {
			return true
		}
		fmt.Fprintf(w, "event: progress\ndata: %s\n\n", data)
		flusher.Flush()
		return !ev.Status.Terminal()
	}

	// Initial snapshot so late subscribers see the current state.
	if !send(upload.Event{
		SessionID: session.ID,
		Status:    session.Status,
		Progress:  session.Progress,
		Error:     session.Error,
		NodeID:    session.NodeID,
	}) {
		return
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case ev := <-events:
			if !send(ev) {
				return
			}
		}
	}
}
