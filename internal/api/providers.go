package api

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/omnidrive/omnidrive/pkg/provider"
	"github.com/omnidrive/omnidrive/pkg/provider/registry"
)

type providerTypeResponse struct {
	Type         string                 `json:"type"`
	Schema       []registry.ConfigField `json:"schema"`
	Capabilities provider.Capabilities  `json:"capabilities"`
}

// ListProviderTypes returns every registered backend type with its
// configuration schema, for building provider setup forms.
//
// GET /v1/providers/types
func (h *Handler) ListProviderTypes(w http.ResponseWriter, r *http.Request) {
	var out []providerTypeResponse
	for _, t := range registry.Types() {
		d, err := registry.Lookup(t)
		if err != nil {
			continue
		}
		out = append(out, providerTypeResponse{
			Type:         d.Type,
			Schema:       d.Schema,
			Capabilities: d.Capabilities,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

type providerResponse struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	Name       string         `json:"name"`
	Disabled   bool           `json:"disabled"`
	Options    map[string]any `json:"options"`
	CreatedAt  time.Time      `json:"created_at"`
	LastUsedAt *time.Time     `json:"last_used_at,omitempty"`
}

// redactOptions strips values of schema-sensitive fields before a config
// leaves the server.
func redactOptions(backendType string, options map[string]any) map[string]any {
	out := make(map[string]any, len(options))
	for k, v := range options {
		out[k] = v
	}

	d, err := registry.Lookup(backendType)
	if err != nil {
		return out
	}
	for _, field := range d.SensitiveFields() {
		if _, ok := out[field]; ok {
			out[field] = "********"
		}
	}
	return out
}

func toProviderResponse(cfg *provider.Config) providerResponse {
	resp := providerResponse{
		ID:        cfg.ID,
		Type:      cfg.Type,
		Name:      cfg.Name,
		Disabled:  cfg.Disabled,
		Options:   redactOptions(cfg.Type, cfg.Options),
		CreatedAt: cfg.CreatedAt,
	}
	if !cfg.LastUsedAt.IsZero() {
		t := cfg.LastUsedAt
		resp.LastUsedAt = &t
	}
	return resp
}

// ListProviders returns the workspace's configured backends with
// sensitive option values redacted.
//
// GET /v1/providers
func (h *Handler) ListProviders(w http.ResponseWriter, r *http.Request) {
	configs, err := h.configs.List(r.Context(), h.workspaceID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	out := make([]providerResponse, 0, len(configs))
	for _, cfg := range configs {
		out = append(out, toProviderResponse(cfg))
	}
	writeJSON(w, http.StatusOK, out)
}

type createProviderRequest struct {
	Type    string         `json:"type"`
	Name    string         `json:"name"`
	Options map[string]any `json:"options"`
}

// CreateProvider validates the options against the backend's schema,
// verifies connectivity, and stores the configuration.
//
// POST /v1/providers
func (h *Handler) CreateProvider(w http.ResponseWriter, r *http.Request) {
	var req createProviderRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	adapter, err := registry.NewAdapter(r.Context(), req.Type, req.Options)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	// A configuration that cannot connect is rejected outright rather
	// than stored broken.
	err = provider.WithAdapter(r.Context(), adapter, func(a provider.Adapter) error {
		ctx, cancel := context.WithTimeout(r.Context(), provider.ConnectTimeout)
		defer cancel()
		return a.TestConnection(ctx)
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	cfg := &provider.Config{
		ID:          uuid.NewString(),
		WorkspaceID: h.workspaceID,
		Type:        req.Type,
		Name:        req.Name,
		Options:     req.Options,
	}
	if err := h.configs.Create(r.Context(), cfg); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toProviderResponse(cfg))
}

// TestProvider re-checks connectivity of a stored configuration.
//
// POST /v1/providers/{id}/test
func (h *Handler) TestProvider(w http.ResponseWriter, r *http.Request) {
	adapter, err := h.resolver.Resolve(r.Context(), h.workspaceID, r.PathValue("id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	err = provider.WithAdapter(r.Context(), adapter, func(a provider.Adapter) error {
		ctx, cancel := context.WithTimeout(r.Context(), provider.ConnectTimeout)
		defer cancel()
		return a.TestConnection(ctx)
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type quotaResponse struct {
	Known      bool  `json:"known"`
	TotalBytes int64 `json:"total_bytes"`
	UsedBytes  int64 `json:"used_bytes"`
}

// ProviderQuota reports backend storage usage.
//
// GET /v1/providers/{id}/quota
func (h *Handler) ProviderQuota(w http.ResponseWriter, r *http.Request) {
	adapter, err := h.resolver.Resolve(r.Context(), h.workspaceID, r.PathValue("id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	var quota provider.Quota
	err = provider.WithAdapter(r.Context(), adapter, func(a provider.Adapter) error {
		var qErr error
		quota, qErr = a.GetQuota(r.Context())
		return qErr
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, quotaResponse{
		Known:      quota.Known(),
		TotalBytes: quota.TotalBytes,
		UsedBytes:  quota.UsedBytes,
	})
}

// DisableProvider takes a backend out of routing without removing it.
//
// POST /v1/providers/{id}/disable
func (h *Handler) DisableProvider(w http.ResponseWriter, r *http.Request) {
	h.setDisabled(w, r, true)
}

// EnableProvider re-admits a backend to routing.
//
// POST /v1/providers/{id}/enable
func (h *Handler) EnableProvider(w http.ResponseWriter, r *http.Request) {
	h.setDisabled(w, r, false)
}

func (h *Handler) setDisabled(w http.ResponseWriter, r *http.Request, disabled bool) {
	if err := h.configs.SetDisabled(r.Context(), h.workspaceID, r.PathValue("id"), disabled); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteProvider soft-deletes a configuration. Content already stored on
// the backend stays there; its nodes keep resolving until they are
// deleted themselves.
//
// DELETE /v1/providers/{id}
func (h *Handler) DeleteProvider(w http.ResponseWriter, r *http.Request) {
	if err := h.configs.SoftDelete(r.Context(), h.workspaceID, r.PathValue("id")); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
