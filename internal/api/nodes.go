package api

import (
	"fmt"
	"io"
	"net/http"

	"github.com/omnidrive/omnidrive/internal/logger"
	"github.com/omnidrive/omnidrive/pkg/namespace"
	"github.com/omnidrive/omnidrive/pkg/provider"
)

// ListNodes returns the live children of a folder ("" lists roots).
//
// GET /v1/nodes?parent_id=...
func (h *Handler) ListNodes(w http.ResponseWriter, r *http.Request) {
	nodes, err := h.names.List(r.Context(), h.workspaceID, r.URL.Query().Get("parent_id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if nodes == nil {
		nodes = []*namespace.Node{}
	}
	writeJSON(w, http.StatusOK, nodes)
}

// StatNode resolves a virtual path.
//
// GET /v1/nodes/stat?path=/docs/report.pdf
func (h *Handler) StatNode(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		writeError(w, http.StatusBadRequest, "path query parameter is required")
		return
	}

	node, err := h.names.Stat(r.Context(), h.workspaceID, path)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, node)
}

type createFolderRequest struct {
	ParentID   string `json:"parent_id"`
	Name       string `json:"name"`
	ProviderID string `json:"provider_id"`
}

// CreateFolder creates a folder node, optionally backed by a native
// container on the given provider.
//
// POST /v1/folders
func (h *Handler) CreateFolder(w http.ResponseWriter, r *http.Request) {
	var req createFolderRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	node, err := h.names.CreateFolder(r.Context(), h.workspaceID, req.ParentID, req.Name, req.ProviderID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, node)
}

type renameRequest struct {
	Name string `json:"name"`
}

// RenameNode changes a node's name in place.
//
// POST /v1/nodes/{id}/rename
func (h *Handler) RenameNode(w http.ResponseWriter, r *http.Request) {
	var req renameRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	node, err := h.names.Rename(r.Context(), h.workspaceID, r.PathValue("id"), req.Name)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, node)
}

type moveRequest struct {
	ParentID string `json:"parent_id"`
	Name     string `json:"name"`
}

// MoveNode reparents a node, optionally renaming it in the same step.
//
// POST /v1/nodes/{id}/move
func (h *Handler) MoveNode(w http.ResponseWriter, r *http.Request) {
	var req moveRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	node, err := h.names.Move(r.Context(), h.workspaceID, r.PathValue("id"), req.ParentID, req.Name)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, node)
}

type starRequest struct {
	Starred bool `json:"starred"`
}

// StarNode flips the star flag.
//
// POST /v1/nodes/{id}/star
func (h *Handler) StarNode(w http.ResponseWriter, r *http.Request) {
	var req starRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	node, err := h.names.SetStarred(r.Context(), h.workspaceID, r.PathValue("id"), req.Starred)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, node)
}

// DeleteNode soft-deletes a node and its subtree.
//
// DELETE /v1/nodes/{id}
func (h *Handler) DeleteNode(w http.ResponseWriter, r *http.Request) {
	if err := h.names.Delete(r.Context(), h.workspaceID, r.PathValue("id")); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DownloadNode hands out the file's content. Backends that can mint
// shareable URLs get a redirect; everything else is streamed through the
// server so credentials never reach the client.
//
// GET /v1/nodes/{id}/download
func (h *Handler) DownloadNode(w http.ResponseWriter, r *http.Request) {
	node, err := h.names.Get(r.Context(), h.workspaceID, r.PathValue("id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if node.IsFolder() {
		writeError(w, http.StatusUnprocessableEntity, "folders cannot be downloaded")
		return
	}
	if node.ProviderID == "" || node.RemoteID == "" {
		writeError(w, http.StatusUnprocessableEntity, "node has no backend content")
		return
	}

	adapter, err := h.resolver.Resolve(r.Context(), h.workspaceID, node.ProviderID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	err = provider.WithAdapter(r.Context(), adapter, func(a provider.Adapter) error {
		ticket, err := a.RequestDownload(r.Context(), node.RemoteID)
		if err != nil {
			return err
		}
		if ticket != nil {
			http.Redirect(w, r, ticket.URL, http.StatusTemporaryRedirect)
			return nil
		}

		body, err := a.DownloadFile(r.Context(), node.RemoteID)
		if err != nil {
			return err
		}
		defer body.Close()

		if node.MimeType != "" {
			w.Header().Set("Content-Type", node.MimeType)
		} else {
			w.Header().Set("Content-Type", "application/octet-stream")
		}
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", node.Name))
		if node.Size > 0 {
			w.Header().Set("Content-Length", fmt.Sprintf("%d", node.Size))
		}

		if _, err := io.Copy(w, body); err != nil {
			// Headers are gone; all we can do is log the broken stream.
			logger.Warn("download of node %s aborted: %v", node.ID, err)
		}
		return nil
	})
	if err != nil {
		writeDomainError(w, err)
	}
}
