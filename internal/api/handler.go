// Package api exposes the HTTP surface: provider management, virtual
// tree operations, routing rules, and the chunked upload pipeline.
//
// Routing uses Go's method+path pattern syntax - no external router
// needed.
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/omnidrive/omnidrive/internal/logger"
	"github.com/omnidrive/omnidrive/pkg/namespace"
	"github.com/omnidrive/omnidrive/pkg/provider"
	"github.com/omnidrive/omnidrive/pkg/rules"
	"github.com/omnidrive/omnidrive/pkg/upload"
)

// Handler holds shared dependencies for all HTTP handlers.
type Handler struct {
	workspaceID string
	orch        *upload.Orchestrator
	names       *namespace.Manager
	ruleStore   rules.Store
	configs     provider.ConfigStore
	resolver    upload.AdapterResolver
}

// Options wires the handler's dependencies.
type Options struct {
	WorkspaceID  string
	Orchestrator *upload.Orchestrator
	Names        *namespace.Manager
	Rules        rules.Store
	Configs      provider.ConfigStore
	Resolver     upload.AdapterResolver

	// Metrics, when non-nil, is mounted at GET /metrics.
	Metrics http.Handler
}

// New registers all routes and returns the root http.Handler.
func New(opts Options) http.Handler {
	h := &Handler{
		workspaceID: opts.WorkspaceID,
		orch:        opts.Orchestrator,
		names:       opts.Names,
		ruleStore:   opts.Rules,
		configs:     opts.Configs,
		resolver:    opts.Resolver,
	}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if opts.Metrics != nil {
		mux.Handle("GET /metrics", opts.Metrics)
	}

	// Provider management
	mux.HandleFunc("GET /v1/providers/types", h.ListProviderTypes)
	mux.HandleFunc("GET /v1/providers", h.ListProviders)
	mux.HandleFunc("POST /v1/providers", h.CreateProvider)
	mux.HandleFunc("POST /v1/providers/{id}/test", h.TestProvider)
	mux.HandleFunc("GET /v1/providers/{id}/quota", h.ProviderQuota)
	mux.HandleFunc("POST /v1/providers/{id}/disable", h.DisableProvider)
	mux.HandleFunc("POST /v1/providers/{id}/enable", h.EnableProvider)
	mux.HandleFunc("DELETE /v1/providers/{id}", h.DeleteProvider)

	// Virtual tree
	mux.HandleFunc("GET /v1/nodes", h.ListNodes)
	mux.HandleFunc("GET /v1/nodes/stat", h.StatNode)
	mux.HandleFunc("POST /v1/folders", h.CreateFolder)
	mux.HandleFunc("POST /v1/nodes/{id}/rename", h.RenameNode)
	mux.HandleFunc("POST /v1/nodes/{id}/move", h.MoveNode)
	mux.HandleFunc("POST /v1/nodes/{id}/star", h.StarNode)
	mux.HandleFunc("DELETE /v1/nodes/{id}", h.DeleteNode)
	mux.HandleFunc("GET /v1/nodes/{id}/download", h.DownloadNode)

	// Routing rules
	mux.HandleFunc("GET /v1/rules", h.ListRules)
	mux.HandleFunc("POST /v1/rules", h.CreateRule)
	mux.HandleFunc("GET /v1/rules/{id}", h.GetRule)
	mux.HandleFunc("PUT /v1/rules/{id}", h.UpdateRule)
	mux.HandleFunc("DELETE /v1/rules/{id}", h.DeleteRule)

	// Chunked uploads
	mux.HandleFunc("POST /v1/uploads", h.InitiateUpload)
	mux.HandleFunc("GET /v1/uploads/{id}", h.GetUpload)
	mux.HandleFunc("PUT /v1/uploads/{id}/chunks/{index}", h.PutChunk)
	mux.HandleFunc("POST /v1/uploads/{id}/parts/{number}", h.ConfirmPart)
	mux.HandleFunc("POST /v1/uploads/{id}/parts/{number}/fail", h.FailPart)
	mux.HandleFunc("POST /v1/uploads/{id}/complete", h.CompleteUpload)
	mux.HandleFunc("POST /v1/uploads/{id}/cancel", h.CancelUpload)
	mux.HandleFunc("POST /v1/uploads/{id}/retry", h.RetryUpload)
	mux.HandleFunc("GET /v1/uploads/{id}/events", h.UploadEvents)

	return mux
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeDomainError maps domain errors onto HTTP statuses.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, namespace.ErrNodeNotFound),
		errors.Is(err, provider.ErrConfigNotFound),
		errors.Is(err, upload.ErrSessionNotFound),
		errors.Is(err, rules.ErrRuleNotFound):
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	var conflict *namespace.ConflictError
	if errors.As(err, &conflict) {
		writeError(w, http.StatusConflict, err.Error())
		return
	}

	var nsValidation *namespace.ValidationError
	var ruleValidation *rules.ValidationError
	if errors.As(err, &nsValidation) || errors.As(err, &ruleValidation) {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	var state *upload.StateError
	if errors.As(err, &state) {
		writeError(w, http.StatusConflict, err.Error())
		return
	}

	var fatal *namespace.FatalInconsistencyError
	if errors.As(err, &fatal) {
		// Divergent local/backend state needs operator attention; log it
		// loudly on top of surfacing it.
		logger.Error("%v", fatal)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	var backendErr *provider.Error
	if errors.As(err, &backendErr) {
		switch backendErr.Code {
		case provider.CodeConfig:
			writeError(w, http.StatusBadRequest, err.Error())
		case provider.CodeNotFound:
			writeError(w, http.StatusNotFound, err.Error())
		case provider.CodeUnsupported:
			writeError(w, http.StatusUnprocessableEntity, err.Error())
		case provider.CodeConflict:
			writeError(w, http.StatusConflict, err.Error())
		default:
			writeError(w, http.StatusBadGateway, err.Error())
		}
		return
	}

	logger.Error("unhandled API error: %v", err)
	writeError(w, http.StatusInternalServerError, "internal error")
}

// decodeJSON decodes a request body, rejecting unknown fields so typos in
// client payloads fail loudly.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
