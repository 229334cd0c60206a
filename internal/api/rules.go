package api

import (
	"net/http"

	"github.com/omnidrive/omnidrive/pkg/rules"
)

// ListRules returns the workspace's routing rules in evaluation order.
//
// GET /v1/rules
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	ruleSet, err := h.ruleStore.List(r.Context(), h.workspaceID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if ruleSet == nil {
		ruleSet = []*rules.Rule{}
	}
	writeJSON(w, http.StatusOK, ruleSet)
}

// CreateRule validates and stores a routing rule. A zero priority lands
// at the end of the evaluation order.
//
// POST /v1/rules
func (h *Handler) CreateRule(w http.ResponseWriter, r *http.Request) {
	var rule rules.Rule
	if err := decodeJSON(r, &rule); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	rule.WorkspaceID = h.workspaceID

	if err := h.ruleStore.Create(r.Context(), &rule); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rule)
}

// GetRule fetches one rule.
//
// GET /v1/rules/{id}
func (h *Handler) GetRule(w http.ResponseWriter, r *http.Request) {
	rule, err := h.ruleStore.Get(r.Context(), h.workspaceID, r.PathValue("id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

// UpdateRule replaces a rule.
//
// PUT /v1/rules/{id}
func (h *Handler) UpdateRule(w http.ResponseWriter, r *http.Request) {
	var rule rules.Rule
	if err := decodeJSON(r, &rule); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	rule.ID = r.PathValue("id")
	rule.WorkspaceID = h.workspaceID

	if err := h.ruleStore.Update(r.Context(), &rule); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

// DeleteRule removes a rule.
//
// DELETE /v1/rules/{id}
func (h *Handler) DeleteRule(w http.ResponseWriter, r *http.Request) {
	if err := h.ruleStore.Delete(r.Context(), h.workspaceID, r.PathValue("id")); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
