package webdav

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/omnidrive/omnidrive/pkg/provider"
)

func quotaServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "PROPFIND" {
			t.Errorf("method = %s, want PROPFIND", r.Method)
		}
		if got := r.Header.Get("Depth"); got != "0" {
			t.Errorf("Depth header = %q, want 0", got)
		}
		if user, pass, ok := r.BasicAuth(); !ok || user != "alice" || pass != "secret" {
			t.Errorf("basic auth = %q/%q (%v)", user, pass, ok)
		}
		w.Header().Set("Content-Type", "application/xml")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newQuotaAdapter(t *testing.T, url string) *Adapter {
	t.Helper()
	a, err := New(Config{URL: url, Username: "alice", Password: "secret"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return a
}

func TestGetQuotaReadsServerProperties(t *testing.T) {
	srv := quotaServer(t, http.StatusMultiStatus, `<?xml version="1.0"?>
<d:multistatus xmlns:d="DAV:">
  <d:response>
    <d:href>/</d:href>
    <d:propstat>
      <d:prop>
        <d:quota-available-bytes>9000</d:quota-available-bytes>
        <d:quota-used-bytes>1000</d:quota-used-bytes>
      </d:prop>
      <d:status>HTTP/1.1 200 OK</d:status>
    </d:propstat>
  </d:response>
</d:multistatus>`)

	quota, err := newQuotaAdapter(t, srv.URL).GetQuota(context.Background())
	if err != nil {
		t.Fatalf("GetQuota: %v", err)
	}
	if !quota.Known() {
		t.Fatal("quota should be known")
	}
	if quota.UsedBytes != 1000 {
		t.Errorf("UsedBytes = %d, want 1000", quota.UsedBytes)
	}
	if quota.TotalBytes != 10000 {
		t.Errorf("TotalBytes = %d, want 10000", quota.TotalBytes)
	}
}

func TestGetQuotaUnlimitedServer(t *testing.T) {
	// Nextcloud reports -3 for accounts without a quota limit.
	srv := quotaServer(t, http.StatusMultiStatus, `<?xml version="1.0"?>
<d:multistatus xmlns:d="DAV:">
  <d:response>
    <d:propstat>
      <d:prop>
        <d:quota-available-bytes>-3</d:quota-available-bytes>
        <d:quota-used-bytes>2048</d:quota-used-bytes>
      </d:prop>
      <d:status>HTTP/1.1 200 OK</d:status>
    </d:propstat>
  </d:response>
</d:multistatus>`)

	quota, err := newQuotaAdapter(t, srv.URL).GetQuota(context.Background())
	if err != nil {
		t.Fatalf("GetQuota: %v", err)
	}
	if quota.UsedBytes != 2048 {
		t.Errorf("UsedBytes = %d, want 2048", quota.UsedBytes)
	}
	if quota.TotalBytes != -1 {
		t.Errorf("TotalBytes = %d, want -1 (unlimited)", quota.TotalBytes)
	}
}

func TestGetQuotaWithoutServerSupport(t *testing.T) {
	srv := quotaServer(t, http.StatusNotFound, "not here")

	quota, err := newQuotaAdapter(t, srv.URL).GetQuota(context.Background())
	if err != nil {
		t.Fatalf("GetQuota: %v", err)
	}
	if quota != provider.UnknownQuota {
		t.Errorf("quota = %+v, want unknown", quota)
	}
}

func TestGetQuotaUnreachableServer(t *testing.T) {
	srv := quotaServer(t, http.StatusMultiStatus, "")
	url := srv.URL
	srv.Close()

	quota, err := newQuotaAdapter(t, url).GetQuota(context.Background())
	if err != nil {
		t.Fatalf("GetQuota: %v", err)
	}
	if quota != provider.UnknownQuota {
		t.Errorf("quota = %+v, want unknown", quota)
	}
}
