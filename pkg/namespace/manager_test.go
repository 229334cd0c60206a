package namespace_test

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/omnidrive/omnidrive/pkg/namespace"
	"github.com/omnidrive/omnidrive/pkg/namespace/memory"
	"github.com/omnidrive/omnidrive/pkg/provider"
)

const testWorkspace = "ws-1"

// fakeAdapter records backend calls so tests can assert sync ordering.
type fakeAdapter struct {
	moveErr    error
	moveCalls  int
	deleteErr  error
	folderErr  error
	nextFolder string
}

func (f *fakeAdapter) TestConnection(ctx context.Context) error { return nil }
func (f *fakeAdapter) GetQuota(ctx context.Context) (provider.Quota, error) {
	return provider.UnknownQuota, nil
}
func (f *fakeAdapter) RequestUpload(ctx context.Context, name, parentID string) (*provider.UploadTicket, error) {
	return &provider.UploadTicket{RemoteID: name}, nil
}
func (f *fakeAdapter) UploadFile(ctx context.Context, remoteID string, body io.Reader, size int64) (string, error) {
	return remoteID, nil
}
func (f *fakeAdapter) RequestDownload(ctx context.Context, remoteID string) (*provider.DownloadTicket, error) {
	return nil, nil
}
func (f *fakeAdapter) DownloadFile(ctx context.Context, remoteID string) (io.ReadCloser, error) {
	return nil, errors.New("not implemented")
}
func (f *fakeAdapter) CreateFolder(ctx context.Context, name, parentID string) (string, error) {
	if f.folderErr != nil {
		return "", f.folderErr
	}
	return f.nextFolder, nil
}
func (f *fakeAdapter) Delete(ctx context.Context, remoteID string, isFolder bool) error {
	return f.deleteErr
}
func (f *fakeAdapter) Move(ctx context.Context, remoteID, newParentID, newName string) error {
	f.moveCalls++
	return f.moveErr
}
func (f *fakeAdapter) Copy(ctx context.Context, remoteID, targetParentID, newName string) (string, error) {
	return "", errors.New("not implemented")
}
func (f *fakeAdapter) List(ctx context.Context, folderID, pageToken string, limit int) (*provider.Listing, error) {
	return &provider.Listing{}, nil
}
func (f *fakeAdapter) GetFileMetadata(ctx context.Context, remoteID string) (*provider.RemoteFile, error) {
	return &provider.RemoteFile{RemoteID: remoteID}, nil
}
func (f *fakeAdapter) GetFolderMetadata(ctx context.Context, remoteID string) (*provider.RemoteFolder, error) {
	return &provider.RemoteFolder{RemoteID: remoteID}, nil
}
func (f *fakeAdapter) GetAccountInfo(ctx context.Context) (*provider.AccountInfo, error) {
	return &provider.AccountInfo{ID: "fake"}, nil
}
func (f *fakeAdapter) Cleanup(ctx context.Context) error { return nil }

type fakeResolver struct {
	adapter provider.Adapter
}

func (r *fakeResolver) Resolve(ctx context.Context, workspaceID, providerID string) (provider.Adapter, error) {
	return r.adapter, nil
}

func newTestManager(t *testing.T, sync bool, adapter provider.Adapter) (*namespace.Manager, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	var resolver namespace.AdapterResolver
	if adapter != nil {
		resolver = &fakeResolver{adapter: adapter}
	}
	return namespace.NewManager(store, resolver, sync), store
}

func mustFolder(t *testing.T, m *namespace.Manager, parentID, name string) *namespace.Node {
	t.Helper()
	node, err := m.CreateFolder(context.Background(), testWorkspace, parentID, name, "")
	if err != nil {
		t.Fatalf("CreateFolder(%q): %v", name, err)
	}
	return node
}

func mustFile(t *testing.T, m *namespace.Manager, parentID, name string) *namespace.Node {
	t.Helper()
	node := &namespace.Node{
		WorkspaceID: testWorkspace,
		Name:        name,
		Type:        namespace.NodeFile,
		ParentID:    parentID,
	}
	if err := m.Register(context.Background(), node); err != nil {
		t.Fatalf("Register(%q): %v", name, err)
	}
	return node
}

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"report.pdf", "report.pdf", false},
		{"  spaced  ", "spaced", false},
		{"a/b", "a_b", false},
		{`a\b`, "a_b", false},
		{"../../etc", ".._.._etc", false},
		{"", "", true},
		{".", "", true},
		{"..", "", true},
		{"   ", "", true},
	}

	for _, tt := range tests {
		got, err := namespace.SanitizeName(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("SanitizeName(%q): expected error, got %q", tt.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("SanitizeName(%q): %v", tt.in, err)
		} else if got != tt.want {
			t.Errorf("SanitizeName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestMoveRewritesDescendantPaths(t *testing.T) {
	m, _ := newTestManager(t, false, nil)
	ctx := context.Background()

	docs := mustFolder(t, m, "", "docs")
	sub := mustFolder(t, m, docs.ID, "reports")
	file := mustFile(t, m, sub.ID, "q1.pdf")
	archive := mustFolder(t, m, "", "archive")

	moved, err := m.Move(ctx, testWorkspace, docs.ID, archive.ID, "")
	if err != nil {
		t.Fatalf("Move: %v", err)
	}
	if moved.VirtualPath != "/archive/docs" {
		t.Errorf("moved path = %q, want /archive/docs", moved.VirtualPath)
	}

	gotSub, err := m.Stat(ctx, testWorkspace, "/archive/docs/reports")
	if err != nil {
		t.Fatalf("descendant folder not found at new path: %v", err)
	}
	if gotSub.ID != sub.ID {
		t.Errorf("descendant id changed: %s != %s", gotSub.ID, sub.ID)
	}

	gotFile, err := m.Stat(ctx, testWorkspace, "/archive/docs/reports/q1.pdf")
	if err != nil {
		t.Fatalf("descendant file not found at new path: %v", err)
	}
	if gotFile.ID != file.ID {
		t.Errorf("file id changed: %s != %s", gotFile.ID, file.ID)
	}

	if _, err := m.Stat(ctx, testWorkspace, "/docs"); err != namespace.ErrNodeNotFound {
		t.Errorf("old path still resolves: err = %v", err)
	}
}

func TestRenameConflictLeavesTreeUnchanged(t *testing.T) {
	m, _ := newTestManager(t, false, nil)
	ctx := context.Background()

	mustFile(t, m, "", "a.txt")
	b := mustFile(t, m, "", "b.txt")

	_, err := m.Rename(ctx, testWorkspace, b.ID, "a.txt")
	var conflict *namespace.ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected ConflictError, got %v", err)
	}

	if _, err := m.Stat(ctx, testWorkspace, "/b.txt"); err != nil {
		t.Errorf("original path gone after failed rename: %v", err)
	}
}

func TestRenameOntoPathOfOtherTypeAllowed(t *testing.T) {
	m, _ := newTestManager(t, false, nil)
	ctx := context.Background()

	mustFolder(t, m, "", "docs")
	f := mustFile(t, m, "", "notes.txt")

	// Path uniqueness is scoped per node type, so a file may take the
	// name of an existing folder.
	got, err := m.Rename(ctx, testWorkspace, f.ID, "docs")
	if err != nil {
		t.Fatalf("Rename onto folder path: %v", err)
	}
	if got.VirtualPath != "/docs" {
		t.Errorf("renamed path = %q, want /docs", got.VirtualPath)
	}

	// A second folder renamed onto the same path still conflicts.
	d2 := mustFolder(t, m, "", "archive")
	_, err = m.Rename(ctx, testWorkspace, d2.ID, "docs")
	var conflict *namespace.ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected ConflictError, got %v", err)
	}
}

func TestRenameOntoItselfIsNoop(t *testing.T) {
	m, _ := newTestManager(t, false, nil)

	f := mustFile(t, m, "", "same.txt")
	got, err := m.Rename(context.Background(), testWorkspace, f.ID, "same.txt")
	if err != nil {
		t.Fatalf("Rename to same name: %v", err)
	}
	if got.VirtualPath != "/same.txt" {
		t.Errorf("path changed: %q", got.VirtualPath)
	}
}

func TestMoveIntoOwnDescendantRejected(t *testing.T) {
	m, _ := newTestManager(t, false, nil)

	parent := mustFolder(t, m, "", "parent")
	child := mustFolder(t, m, parent.ID, "child")

	_, err := m.Move(context.Background(), testWorkspace, parent.ID, child.ID, "")
	var verr *namespace.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}

	// Self-parenting is rejected too.
	if _, err := m.Move(context.Background(), testWorkspace, parent.ID, parent.ID, ""); err == nil {
		t.Fatal("expected error moving folder into itself")
	}
}

func TestMoveAcrossProvidersRejected(t *testing.T) {
	m, store := newTestManager(t, false, nil)
	ctx := context.Background()

	target := mustFolder(t, m, "", "target")
	target.ProviderID = "provider-b"
	if err := store.UpdateNode(ctx, target); err != nil {
		t.Fatal(err)
	}

	file := mustFile(t, m, "", "data.bin")
	file.ProviderID = "provider-a"
	file.RemoteID = "remote-1"
	if err := store.UpdateNode(ctx, file); err != nil {
		t.Fatal(err)
	}

	_, err := m.Move(ctx, testWorkspace, file.ID, target.ID, "")
	var verr *namespace.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestMoveSyncsBackendBeforeLocalUpdate(t *testing.T) {
	adapter := &fakeAdapter{}
	m, store := newTestManager(t, true, adapter)
	ctx := context.Background()

	file := mustFile(t, m, "", "synced.txt")
	file.ProviderID = "provider-a"
	file.RemoteID = "remote-1"
	if err := store.UpdateNode(ctx, file); err != nil {
		t.Fatal(err)
	}

	if _, err := m.Rename(ctx, testWorkspace, file.ID, "renamed.txt"); err != nil {
		t.Fatalf("Rename: %v", err)
	}
	if adapter.moveCalls != 1 {
		t.Errorf("backend move calls = %d, want 1", adapter.moveCalls)
	}
	if _, err := m.Stat(ctx, testWorkspace, "/renamed.txt"); err != nil {
		t.Errorf("renamed node not found: %v", err)
	}
}

func TestMoveBackendFailureLeavesTreeUnchanged(t *testing.T) {
	adapter := &fakeAdapter{
		moveErr: provider.NewError("telegram", "move", "remote-1", provider.CodeUnsupported,
			"telegram cannot move content between containers", nil),
	}
	m, store := newTestManager(t, true, adapter)
	ctx := context.Background()

	file := mustFile(t, m, "", "pinned.txt")
	file.ProviderID = "provider-a"
	file.RemoteID = "remote-1"
	if err := store.UpdateNode(ctx, file); err != nil {
		t.Fatal(err)
	}

	_, err := m.Rename(ctx, testWorkspace, file.ID, "elsewhere.txt")
	if !provider.IsCode(err, provider.CodeUnsupported) {
		t.Fatalf("expected unsupported backend error, got %v", err)
	}

	if _, err := m.Stat(ctx, testWorkspace, "/pinned.txt"); err != nil {
		t.Errorf("tree changed despite backend failure: %v", err)
	}
}

func TestDeleteSoftDeletesSubtree(t *testing.T) {
	m, store := newTestManager(t, false, nil)
	ctx := context.Background()

	docs := mustFolder(t, m, "", "docs")
	file := mustFile(t, m, docs.ID, "keep.txt")

	if err := m.Delete(ctx, testWorkspace, docs.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	if _, err := m.Stat(ctx, testWorkspace, "/docs"); err != namespace.ErrNodeNotFound {
		t.Errorf("deleted folder still resolves: %v", err)
	}
	if _, err := m.Stat(ctx, testWorkspace, "/docs/keep.txt"); err != namespace.ErrNodeNotFound {
		t.Errorf("deleted descendant still resolves: %v", err)
	}

	// Soft-deleted nodes stay fetchable by id for recovery.
	got, err := store.GetNode(ctx, testWorkspace, file.ID)
	if err != nil {
		t.Fatalf("GetNode after delete: %v", err)
	}
	if !got.Deleted {
		t.Error("descendant not marked deleted")
	}
}

func TestCreateFolderVirtualOnlyWhenBackendLacksFolders(t *testing.T) {
	adapter := &fakeAdapter{
		folderErr: provider.NewError("telegram", "create_folder", "", provider.CodeUnsupported,
			"nested folders are not supported", nil),
	}
	m, _ := newTestManager(t, true, adapter)

	node, err := m.CreateFolder(context.Background(), testWorkspace, "", "virtual", "provider-a")
	if err != nil {
		t.Fatalf("CreateFolder: %v", err)
	}
	if node.RemoteID != "" {
		t.Errorf("expected virtual-only folder, got remote id %q", node.RemoteID)
	}
}
