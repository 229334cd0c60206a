package upload

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/omnidrive/omnidrive/pkg/namespace"
	nsmemory "github.com/omnidrive/omnidrive/pkg/namespace/memory"
	"github.com/omnidrive/omnidrive/pkg/provider"
	"github.com/omnidrive/omnidrive/pkg/provider/registry"
	"github.com/omnidrive/omnidrive/pkg/rules"
)

const (
	testWorkspace = "ws-1"
	relayType     = "fakerelay"
	directType    = "fakedirect"
)

var registerFakes sync.Once

func registerFakeBackends() {
	registerFakes.Do(func() {
		factory := func(ctx context.Context, options map[string]any) (provider.Adapter, error) {
			return nil, errors.New("fake backends are resolved by the test resolver")
		}
		registry.Register(&registry.Descriptor{
			Type:    relayType,
			Factory: factory,
			Schema:  []registry.ConfigField{},
			Capabilities: provider.Capabilities{
				SupportsFolders: true,
				AuthType:        provider.AuthNone,
			},
		})
		registry.Register(&registry.Descriptor{
			Type:    directType,
			Factory: factory,
			Schema:  []registry.ConfigField{},
			Capabilities: provider.Capabilities{
				SupportsDirectUpload: true,
				SupportsFolders:      true,
				SupportsResume:       true,
				AuthType:             provider.AuthNone,
			},
		})
	})
}

// relayAdapter is a backend double for the relay path. It can be told to
// fail the first N forwarding attempts to exercise retry behavior.
type relayAdapter struct {
	mu        sync.Mutex
	failTimes int
	attempts  int
	content   []byte
	uploaded  string
}

func (f *relayAdapter) TestConnection(ctx context.Context) error { return nil }
func (f *relayAdapter) GetQuota(ctx context.Context) (provider.Quota, error) {
	return provider.UnknownQuota, nil
}
func (f *relayAdapter) RequestUpload(ctx context.Context, name, parentID string) (*provider.UploadTicket, error) {
	return &provider.UploadTicket{RemoteID: "ticket-" + name, Provisional: true}, nil
}

func (f *relayAdapter) UploadFile(ctx context.Context, remoteID string, body io.Reader, size int64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.attempts++
	if f.attempts <= f.failTimes {
		// Drain partially to simulate a connection dropping mid-stream.
		io.CopyN(io.Discard, body, size/2)
		return "", provider.NewError(relayType, "upload_file", remoteID, provider.CodeConnection, "connection reset", nil)
	}

	data, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	f.content = data
	f.uploaded = "perm-" + remoteID
	return f.uploaded, nil
}

func (f *relayAdapter) RequestDownload(ctx context.Context, remoteID string) (*provider.DownloadTicket, error) {
	return nil, nil
}
func (f *relayAdapter) DownloadFile(ctx context.Context, remoteID string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return io.NopCloser(bytes.NewReader(f.content)), nil
}
func (f *relayAdapter) CreateFolder(ctx context.Context, name, parentID string) (string, error) {
	return "folder-" + name, nil
}
func (f *relayAdapter) Delete(ctx context.Context, remoteID string, isFolder bool) error { return nil }
func (f *relayAdapter) Move(ctx context.Context, remoteID, newParentID, newName string) error {
	return nil
}
func (f *relayAdapter) Copy(ctx context.Context, remoteID, targetParentID, newName string) (string, error) {
	return "", errors.New("not implemented")
}
func (f *relayAdapter) List(ctx context.Context, folderID, pageToken string, limit int) (*provider.Listing, error) {
	return &provider.Listing{}, nil
}
func (f *relayAdapter) GetFileMetadata(ctx context.Context, remoteID string) (*provider.RemoteFile, error) {
	return &provider.RemoteFile{RemoteID: remoteID}, nil
}
func (f *relayAdapter) GetFolderMetadata(ctx context.Context, remoteID string) (*provider.RemoteFolder, error) {
	return &provider.RemoteFolder{RemoteID: remoteID}, nil
}
func (f *relayAdapter) GetAccountInfo(ctx context.Context) (*provider.AccountInfo, error) {
	return &provider.AccountInfo{ID: "fake"}, nil
}
func (f *relayAdapter) Cleanup(ctx context.Context) error { return nil }

func (f *relayAdapter) attemptCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attempts
}

func (f *relayAdapter) uploadedContent() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]byte(nil), f.content...)
}

// directAdapter doubles a multipart-capable backend.
type directAdapter struct {
	relayAdapter
	mu             sync.Mutex
	completedParts []provider.CompletedPart
	aborted        bool
}

func (f *directAdapter) BeginMultipart(ctx context.Context, name, parentID string, totalSize, partSize int64) (*provider.MultipartUpload, error) {
	partCount := int(totalSize / partSize)
	if totalSize%partSize != 0 || partCount == 0 {
		partCount++
	}
	parts := make([]provider.PartDescriptor, partCount)
	for i := range parts {
		parts[i] = provider.PartDescriptor{PartNumber: i + 1, URL: "https://backend.test/part"}
	}
	return &provider.MultipartUpload{RemoteID: "obj-" + name, UploadID: "mp-1", Parts: parts}, nil
}

func (f *directAdapter) CompleteMultipart(ctx context.Context, remoteID, uploadID string, parts []provider.CompletedPart) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completedParts = append([]provider.CompletedPart(nil), parts...)
	return nil
}

func (f *directAdapter) AbortMultipart(ctx context.Context, remoteID, uploadID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.aborted = true
	return nil
}

type stubResolver struct {
	adapter provider.Adapter
}

func (r *stubResolver) Resolve(ctx context.Context, workspaceID, providerID string) (provider.Adapter, error) {
	return r.adapter, nil
}

type harness struct {
	orch    *Orchestrator
	ns      *namespace.Manager
	configs *provider.MemoryConfigStore
	rules   *rules.MemoryStore
}

func newHarness(t *testing.T, backendType string, adapter provider.Adapter) *harness {
	t.Helper()
	registerFakeBackends()

	configs := provider.NewMemoryConfigStore()
	cfg := &provider.Config{
		ID:          "prov1",
		WorkspaceID: testWorkspace,
		Type:        backendType,
		Name:        "test backend",
		Options:     map[string]any{},
	}
	if err := configs.Create(context.Background(), cfg); err != nil {
		t.Fatal(err)
	}

	ruleStore := rules.NewMemoryStore()
	ns := namespace.NewManager(nsmemory.NewStore(), nil, false)

	orch := NewOrchestrator(Options{
		Sessions:       NewMemorySessionStore(),
		Configs:        configs,
		Rules:          ruleStore,
		Resolver:       &stubResolver{adapter: adapter},
		Names:          ns,
		SpoolDir:       t.TempDir(),
		ChunkSize:      4,
		ForwardBackoff: time.Millisecond,
	})
	return &harness{orch: orch, ns: ns, configs: configs, rules: ruleStore}
}

// waitTerminal blocks until the session emits a terminal event.
func waitTerminal(t *testing.T, events <-chan Event) Event {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev := <-events:
			if ev.Status.Terminal() {
				return ev
			}
		case <-deadline:
			t.Fatal("timed out waiting for a terminal upload event")
		}
	}
}

func chunksOf(data []byte, size int64) [][]byte {
	var chunks [][]byte
	for off := int64(0); off < int64(len(data)); off += size {
		end := off + size
		if end > int64(len(data)) {
			end = int64(len(data))
		}
		chunks = append(chunks, data[off:end])
	}
	return chunks
}

func TestRelayUploadOutOfOrderChunks(t *testing.T) {
	adapter := &relayAdapter{}
	h := newHarness(t, relayType, adapter)
	ctx := context.Background()

	payload := []byte("hello chunked world") // 19 bytes -> 5 chunks of 4
	session, err := h.orch.Initiate(ctx, InitiateRequest{
		WorkspaceID: testWorkspace,
		FileName:    "greeting.txt",
		Size:        int64(len(payload)),
		ProviderID:  "prov1",
	})
	if err != nil {
		t.Fatalf("Initiate: %v", err)
	}
	if session.Mode != ModeRelay {
		t.Fatalf("mode = %s, want relay", session.Mode)
	}
	if session.TotalChunks != 5 {
		t.Fatalf("total chunks = %d, want 5", session.TotalChunks)
	}

	events, cancelSub := h.orch.Hub().Subscribe(session.ID)
	defer cancelSub()

	chunks := chunksOf(payload, session.ChunkSize)
	for _, index := range []int{4, 1, 3, 0, 2} {
		if _, err := h.orch.PutChunk(ctx, session.ID, index, bytes.NewReader(chunks[index])); err != nil {
			t.Fatalf("PutChunk(%d): %v", index, err)
		}
	}

	ev := waitTerminal(t, events)
	if ev.Status != StatusCompleted {
		t.Fatalf("terminal status = %s (%s), want completed", ev.Status, ev.Error)
	}
	if !bytes.Equal(adapter.uploadedContent(), payload) {
		t.Errorf("backend received %q, want %q", adapter.uploadedContent(), payload)
	}

	// The finished file is registered in the tree under the durable id.
	node, err := h.ns.Stat(ctx, testWorkspace, "/greeting.txt")
	if err != nil {
		t.Fatalf("uploaded file missing from namespace: %v", err)
	}
	if node.RemoteID != "perm-ticket-greeting.txt" {
		t.Errorf("node remote id = %q, want the permanent id", node.RemoteID)
	}

	final, err := h.orch.Get(ctx, session.ID)
	if err != nil {
		t.Fatal(err)
	}
	if final.Progress != 100 {
		t.Errorf("final progress = %v, want 100", final.Progress)
	}
}

func TestRelayForwardRetriesThenSucceeds(t *testing.T) {
	adapter := &relayAdapter{failTimes: 2}
	h := newHarness(t, relayType, adapter)
	ctx := context.Background()

	payload := []byte("retry me")
	session, err := h.orch.Initiate(ctx, InitiateRequest{
		WorkspaceID: testWorkspace,
		FileName:    "flaky.bin",
		Size:        int64(len(payload)),
		ProviderID:  "prov1",
	})
	if err != nil {
		t.Fatal(err)
	}

	events, cancelSub := h.orch.Hub().Subscribe(session.ID)
	defer cancelSub()

	for i, chunk := range chunksOf(payload, session.ChunkSize) {
		if _, err := h.orch.PutChunk(ctx, session.ID, i, bytes.NewReader(chunk)); err != nil {
			t.Fatal(err)
		}
	}

	ev := waitTerminal(t, events)
	if ev.Status != StatusCompleted {
		t.Fatalf("terminal status = %s (%s), want completed after retries", ev.Status, ev.Error)
	}
	if got := adapter.attemptCount(); got != 3 {
		t.Errorf("forward attempts = %d, want 3", got)
	}
	if !bytes.Equal(adapter.uploadedContent(), payload) {
		t.Errorf("backend received %q, want %q", adapter.uploadedContent(), payload)
	}
}

func TestRelayForwardFailsAfterMaxAttemptsThenRetrySucceeds(t *testing.T) {
	adapter := &relayAdapter{failTimes: maxForwardAttempts}
	h := newHarness(t, relayType, adapter)
	ctx := context.Background()

	payload := []byte("stubborn")
	session, err := h.orch.Initiate(ctx, InitiateRequest{
		WorkspaceID: testWorkspace,
		FileName:    "stubborn.bin",
		Size:        int64(len(payload)),
		ProviderID:  "prov1",
	})
	if err != nil {
		t.Fatal(err)
	}

	events, cancelSub := h.orch.Hub().Subscribe(session.ID)
	defer cancelSub()

	for i, chunk := range chunksOf(payload, session.ChunkSize) {
		if _, err := h.orch.PutChunk(ctx, session.ID, i, bytes.NewReader(chunk)); err != nil {
			t.Fatal(err)
		}
	}

	ev := waitTerminal(t, events)
	if ev.Status != StatusFailed {
		t.Fatalf("terminal status = %s, want failed", ev.Status)
	}
	if ev.Error == "" {
		t.Error("failed event carries no error message")
	}

	// Retry re-forwards the staged file without re-receiving chunks.
	events2, cancelSub2 := h.orch.Hub().Subscribe(session.ID)
	defer cancelSub2()

	if _, err := h.orch.Retry(ctx, session.ID); err != nil {
		t.Fatalf("Retry: %v", err)
	}

	ev = waitTerminal(t, events2)
	if ev.Status != StatusCompleted {
		t.Fatalf("terminal status after retry = %s (%s), want completed", ev.Status, ev.Error)
	}
	if !bytes.Equal(adapter.uploadedContent(), payload) {
		t.Errorf("backend received %q, want %q", adapter.uploadedContent(), payload)
	}
}

func TestRetryRejectsNonFailedSessions(t *testing.T) {
	h := newHarness(t, relayType, &relayAdapter{})

	session, err := h.orch.Initiate(context.Background(), InitiateRequest{
		WorkspaceID: testWorkspace,
		FileName:    "fresh.bin",
		Size:        8,
		ProviderID:  "prov1",
	})
	if err != nil {
		t.Fatal(err)
	}

	_, err = h.orch.Retry(context.Background(), session.ID)
	var stateErr *StateError
	if !errors.As(err, &stateErr) {
		t.Fatalf("expected StateError retrying a session that has not failed, got %v", err)
	}
}

func TestCancelIsIdempotent(t *testing.T) {
	h := newHarness(t, relayType, &relayAdapter{})
	ctx := context.Background()

	session, err := h.orch.Initiate(ctx, InitiateRequest{
		WorkspaceID: testWorkspace,
		FileName:    "doomed.bin",
		Size:        8,
		ProviderID:  "prov1",
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := h.orch.Cancel(ctx, session.ID); err != nil {
		t.Fatalf("first Cancel: %v", err)
	}
	if err := h.orch.Cancel(ctx, session.ID); err != nil {
		t.Fatalf("second Cancel not idempotent: %v", err)
	}

	// Chunks after cancellation are rejected.
	_, err = h.orch.PutChunk(ctx, session.ID, 0, bytes.NewReader([]byte("data")))
	var stateErr *StateError
	if !errors.As(err, &stateErr) {
		t.Fatalf("expected StateError for chunk after cancel, got %v", err)
	}
}

func TestChunkIndexValidation(t *testing.T) {
	h := newHarness(t, relayType, &relayAdapter{})
	ctx := context.Background()

	session, err := h.orch.Initiate(ctx, InitiateRequest{
		WorkspaceID: testWorkspace,
		FileName:    "bounds.bin",
		Size:        8,
		ProviderID:  "prov1",
	})
	if err != nil {
		t.Fatal(err)
	}

	for _, index := range []int{-1, session.TotalChunks} {
		_, err := h.orch.PutChunk(ctx, session.ID, index, bytes.NewReader([]byte("data")))
		var stateErr *StateError
		if !errors.As(err, &stateErr) {
			t.Errorf("index %d: expected StateError, got %v", index, err)
		}
	}
}

func TestInitiateRoutesByRule(t *testing.T) {
	h := newHarness(t, relayType, &relayAdapter{})
	ctx := context.Background()

	err := h.rules.Create(ctx, &rules.Rule{
		WorkspaceID: testWorkspace,
		Name:        "text files",
		ProviderID:  "prov1",
		Active:      true,
		Groups: []rules.ConditionGroup{{Conditions: []rules.Condition{
			{Field: rules.FieldExtension, Operator: rules.OpEquals, Value: "txt"},
		}}},
	})
	if err != nil {
		t.Fatal(err)
	}

	session, err := h.orch.Initiate(ctx, InitiateRequest{
		WorkspaceID: testWorkspace,
		FileName:    "routed.txt",
		Size:        8,
	})
	if err != nil {
		t.Fatalf("Initiate via rule: %v", err)
	}
	if session.ProviderID != "prov1" {
		t.Errorf("routed to %q, want prov1", session.ProviderID)
	}

	// No rule match and no default provider: the upload is rejected.
	_, err = h.orch.Initiate(ctx, InitiateRequest{
		WorkspaceID: testWorkspace,
		FileName:    "unrouted.exe",
		Size:        8,
	})
	var stateErr *StateError
	if !errors.As(err, &stateErr) {
		t.Fatalf("expected StateError for unrouted upload, got %v", err)
	}
}

func TestRuleDestinationFolderBecomesParent(t *testing.T) {
	h := newHarness(t, relayType, &relayAdapter{})
	ctx := context.Background()

	scans, err := h.ns.CreateFolder(ctx, testWorkspace, "", "scans", "")
	if err != nil {
		t.Fatal(err)
	}
	inbox, err := h.ns.CreateFolder(ctx, testWorkspace, "", "inbox", "")
	if err != nil {
		t.Fatal(err)
	}

	err = h.rules.Create(ctx, &rules.Rule{
		WorkspaceID:         testWorkspace,
		Name:                "scans to their folder",
		ProviderID:          "prov1",
		DestinationFolderID: scans.ID,
		Active:              true,
		Groups: []rules.ConditionGroup{{Conditions: []rules.Condition{
			{Field: rules.FieldExtension, Operator: rules.OpEquals, Value: "png"},
		}}},
	})
	if err != nil {
		t.Fatal(err)
	}

	// Without an explicit parent, the matched rule's destination applies.
	session, err := h.orch.Initiate(ctx, InitiateRequest{
		WorkspaceID: testWorkspace,
		FileName:    "page1.png",
		Size:        8,
	})
	if err != nil {
		t.Fatalf("Initiate: %v", err)
	}
	if session.ParentNodeID != scans.ID {
		t.Errorf("parent = %q, want rule destination %q", session.ParentNodeID, scans.ID)
	}

	// An explicit parent in the request wins over the rule's destination.
	session, err = h.orch.Initiate(ctx, InitiateRequest{
		WorkspaceID:  testWorkspace,
		FileName:     "page2.png",
		Size:         8,
		ParentNodeID: inbox.ID,
	})
	if err != nil {
		t.Fatalf("Initiate with parent: %v", err)
	}
	if session.ParentNodeID != inbox.ID {
		t.Errorf("parent = %q, want requested %q", session.ParentNodeID, inbox.ID)
	}
}

func TestDirectUploadLifecycle(t *testing.T) {
	adapter := &directAdapter{}
	h := newHarness(t, directType, adapter)
	ctx := context.Background()

	session, err := h.orch.Initiate(ctx, InitiateRequest{
		WorkspaceID: testWorkspace,
		FileName:    "direct.bin",
		Size:        10, // 3 parts of chunk size 4
		ProviderID:  "prov1",
	})
	if err != nil {
		t.Fatal(err)
	}
	if session.Mode != ModeDirect {
		t.Fatalf("mode = %s, want direct", session.Mode)
	}
	if len(session.Parts) != 3 {
		t.Fatalf("presigned parts = %d, want 3", len(session.Parts))
	}

	// Completing before all parts are confirmed is rejected.
	if _, err := h.orch.CompleteDirect(ctx, session.ID); err == nil {
		t.Fatal("expected error completing with unconfirmed parts")
	}

	for part := 1; part <= 3; part++ {
		if _, err := h.orch.ConfirmPart(ctx, session.ID, part, "etag-x"); err != nil {
			t.Fatalf("ConfirmPart(%d): %v", part, err)
		}
	}

	done, err := h.orch.CompleteDirect(ctx, session.ID)
	if err != nil {
		t.Fatalf("CompleteDirect: %v", err)
	}
	if done.Status != StatusCompleted {
		t.Fatalf("status = %s, want completed", done.Status)
	}
	if len(adapter.completedParts) != 3 {
		t.Errorf("backend saw %d completed parts, want 3", len(adapter.completedParts))
	}

	if _, err := h.ns.Stat(ctx, testWorkspace, "/direct.bin"); err != nil {
		t.Errorf("direct upload missing from namespace: %v", err)
	}
}

func TestDirectCancelAbortsMultipart(t *testing.T) {
	adapter := &directAdapter{}
	h := newHarness(t, directType, adapter)
	ctx := context.Background()

	session, err := h.orch.Initiate(ctx, InitiateRequest{
		WorkspaceID: testWorkspace,
		FileName:    "aborted.bin",
		Size:        10,
		ProviderID:  "prov1",
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := h.orch.Cancel(ctx, session.ID); err != nil {
		t.Fatal(err)
	}
	if !adapter.aborted {
		t.Error("cancel did not abort the backend multipart upload")
	}
}

func TestDirectPartFailureIsRetryable(t *testing.T) {
	adapter := &directAdapter{}
	h := newHarness(t, directType, adapter)
	ctx := context.Background()

	session, err := h.orch.Initiate(ctx, InitiateRequest{
		WorkspaceID: testWorkspace,
		FileName:    "interrupted.bin",
		Size:        10,
		ProviderID:  "prov1",
	})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := h.orch.ConfirmPart(ctx, session.ID, 1, "etag-1"); err != nil {
		t.Fatal(err)
	}

	failed, err := h.orch.ReportPartFailure(ctx, session.ID, 2, "connection reset by peer")
	if err != nil {
		t.Fatalf("ReportPartFailure: %v", err)
	}
	if failed.Status != StatusFailed {
		t.Fatalf("status = %s, want failed", failed.Status)
	}
	if failed.Error == "" {
		t.Error("failed session carries no error message")
	}

	// The failed session can be retried; confirmed parts survive.
	retried, err := h.orch.Retry(ctx, session.ID)
	if err != nil {
		t.Fatalf("Retry after part failure: %v", err)
	}
	if retried.Status != StatusNegotiating {
		t.Errorf("status after retry = %s, want negotiating", retried.Status)
	}
	if len(retried.ConfirmedParts) != 1 {
		t.Errorf("confirmed parts after retry = %d, want 1", len(retried.ConfirmedParts))
	}

	for part := 2; part <= 3; part++ {
		if _, err := h.orch.ConfirmPart(ctx, session.ID, part, "etag-x"); err != nil {
			t.Fatalf("ConfirmPart(%d): %v", part, err)
		}
	}
	done, err := h.orch.CompleteDirect(ctx, session.ID)
	if err != nil {
		t.Fatalf("CompleteDirect: %v", err)
	}
	if done.Status != StatusCompleted {
		t.Fatalf("status = %s, want completed", done.Status)
	}
}

func TestPartFailureRejectedForRelaySessions(t *testing.T) {
	h := newHarness(t, relayType, &relayAdapter{})

	session, err := h.orch.Initiate(context.Background(), InitiateRequest{
		WorkspaceID: testWorkspace,
		FileName:    "relayed.bin",
		Size:        8,
		ProviderID:  "prov1",
	})
	if err != nil {
		t.Fatal(err)
	}

	_, err = h.orch.ReportPartFailure(context.Background(), session.ID, 1, "boom")
	var stateErr *StateError
	if !errors.As(err, &stateErr) {
		t.Fatalf("expected StateError for relay part failure report, got %v", err)
	}
}

func TestCancelAfterFailureEmitsSingleTerminalEvent(t *testing.T) {
	adapter := &directAdapter{}
	h := newHarness(t, directType, adapter)
	ctx := context.Background()

	session, err := h.orch.Initiate(ctx, InitiateRequest{
		WorkspaceID: testWorkspace,
		FileName:    "failed-then-cancelled.bin",
		Size:        10,
		ProviderID:  "prov1",
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := h.orch.ReportPartFailure(ctx, session.ID, 1, "gone"); err != nil {
		t.Fatal(err)
	}

	// The failed event was the session's terminal event; cancelling a
	// failed session must not emit a second one.
	events, cancelSub := h.orch.Hub().Subscribe(session.ID)
	defer cancelSub()

	if err := h.orch.Cancel(ctx, session.ID); err != nil {
		t.Fatalf("Cancel after failure: %v", err)
	}

	select {
	case ev := <-events:
		t.Fatalf("unexpected event after cancelling a failed session: %+v", ev)
	case <-time.After(100 * time.Millisecond):
	}

	got, err := h.orch.Get(ctx, session.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != StatusCancelled {
		t.Errorf("status = %s, want cancelled", got.Status)
	}
}

func TestSessionStateMachineRejectsIllegalHops(t *testing.T) {
	s := &Session{ID: "s1", Status: StatusCompleted}
	if err := s.transition(StatusReceiving); err == nil {
		t.Error("completed -> receiving should be rejected")
	}

	s = &Session{ID: "s2", Status: StatusCancelled}
	if err := s.transition(StatusAssembling); err == nil {
		t.Error("cancelled -> assembling should be rejected")
	}

	s = &Session{ID: "s3", Status: StatusFailed}
	if err := s.transition(StatusAssembling); err == nil {
		t.Error("failed -> assembling must pass through negotiating")
	}
	if err := s.transition(StatusNegotiating); err != nil {
		t.Errorf("failed -> negotiating (retry) should be allowed: %v", err)
	}
	if err := s.transition(StatusAssembling); err != nil {
		t.Errorf("negotiating -> assembling should be allowed: %v", err)
	}
}
