package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/omnidrive/omnidrive/pkg/namespace"
	nsmemory "github.com/omnidrive/omnidrive/pkg/namespace/memory"
	"github.com/omnidrive/omnidrive/pkg/provider"
	"github.com/omnidrive/omnidrive/pkg/rules"
	"github.com/omnidrive/omnidrive/pkg/upload"
)

func newTestServer(t *testing.T) http.Handler {
	t.Helper()

	configs := provider.NewMemoryConfigStore()
	ruleStore := rules.NewMemoryStore()
	ns := namespace.NewManager(nsmemory.NewStore(), nil, false)

	orch := upload.NewOrchestrator(upload.Options{
		Sessions: upload.NewMemorySessionStore(),
		Configs:  configs,
		Rules:    ruleStore,
		Resolver: nil,
		Names:    ns,
		SpoolDir: t.TempDir(),
	})

	return New(Options{
		WorkspaceID:  "ws-test",
		Orchestrator: orch,
		Names:        ns,
		Rules:        ruleStore,
		Configs:      configs,
	})
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	h := newTestServer(t)
	rec := doJSON(t, h, http.MethodGet, "/healthz", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestFolderLifecycle(t *testing.T) {
	h := newTestServer(t)

	rec := doJSON(t, h, http.MethodPost, "/v1/folders", map[string]string{"name": "docs"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create folder: status = %d, body = %s", rec.Code, rec.Body)
	}

	var folder namespace.Node
	if err := json.Unmarshal(rec.Body.Bytes(), &folder); err != nil {
		t.Fatal(err)
	}
	if folder.VirtualPath != "/docs" {
		t.Errorf("path = %q, want /docs", folder.VirtualPath)
	}

	// Sibling name conflict maps to 409.
	rec = doJSON(t, h, http.MethodPost, "/v1/folders", map[string]string{"name": "docs"})
	if rec.Code != http.StatusConflict {
		t.Errorf("duplicate folder: status = %d, want 409", rec.Code)
	}

	// Rename, then resolve the new path.
	rec = doJSON(t, h, http.MethodPost, "/v1/nodes/"+folder.ID+"/rename", map[string]string{"name": "papers"})
	if rec.Code != http.StatusOK {
		t.Fatalf("rename: status = %d, body = %s", rec.Code, rec.Body)
	}

	rec = doJSON(t, h, http.MethodGet, "/v1/nodes/stat?path=/papers", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("stat renamed folder: status = %d", rec.Code)
	}
	rec = doJSON(t, h, http.MethodGet, "/v1/nodes/stat?path=/docs", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("stat old path: status = %d, want 404", rec.Code)
	}

	// Delete, then the node is gone.
	rec = doJSON(t, h, http.MethodDelete, "/v1/nodes/"+folder.ID, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete: status = %d", rec.Code)
	}
	rec = doJSON(t, h, http.MethodGet, "/v1/nodes/stat?path=/papers", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("stat deleted folder: status = %d, want 404", rec.Code)
	}
}

func TestInvalidFolderNameRejected(t *testing.T) {
	h := newTestServer(t)

	rec := doJSON(t, h, http.MethodPost, "/v1/folders", map[string]string{"name": "  "})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("blank name: status = %d, want 422", rec.Code)
	}
}

func TestRuleCRUD(t *testing.T) {
	h := newTestServer(t)

	rule := map[string]any{
		"name":        "big files",
		"provider_id": "prov1",
		"active":      true,
		"groups": []map[string]any{
			{"conditions": []map[string]any{
				{"field": "size", "operator": "gt", "value": 1048576},
			}},
		},
	}

	rec := doJSON(t, h, http.MethodPost, "/v1/rules", rule)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create rule: status = %d, body = %s", rec.Code, rec.Body)
	}
	var created rules.Rule
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatal(err)
	}
	if created.Priority != 1 {
		t.Errorf("priority = %d, want 1", created.Priority)
	}

	rec = doJSON(t, h, http.MethodGet, "/v1/rules", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list rules: status = %d", rec.Code)
	}

	rec = doJSON(t, h, http.MethodDelete, "/v1/rules/"+created.ID, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete rule: status = %d", rec.Code)
	}
	rec = doJSON(t, h, http.MethodGet, "/v1/rules/"+created.ID, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("get deleted rule: status = %d, want 404", rec.Code)
	}
}

func TestInvalidRuleRejected(t *testing.T) {
	h := newTestServer(t)

	// Numeric operator on a string field fails save-time validation.
	rule := map[string]any{
		"name":        "broken",
		"provider_id": "prov1",
		"groups": []map[string]any{
			{"conditions": []map[string]any{
				{"field": "name", "operator": "gt", "value": "x"},
			}},
		},
	}

	rec := doJSON(t, h, http.MethodPost, "/v1/rules", rule)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("invalid rule: status = %d, want 422, body = %s", rec.Code, rec.Body)
	}
}

func TestUnknownUploadSession(t *testing.T) {
	h := newTestServer(t)

	rec := doJSON(t, h, http.MethodGet, "/v1/uploads/nope", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}

	rec = doJSON(t, h, http.MethodPost, "/v1/uploads/nope/cancel", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("cancel unknown: status = %d, want 404", rec.Code)
	}
}
