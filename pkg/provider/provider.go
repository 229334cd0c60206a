// Package provider defines the uniform contract implemented by every
// storage backend adapter, along with the shared remote-object types and
// the error taxonomy crossing the adapter boundary.
//
// An Adapter hides one backend (local disk, FTP, WebDAV, S3, Telegram)
// behind a single operation set. Backends differ wildly in capability:
// some have real folders, some can presign direct uploads, some report
// quota. Callers never probe an adapter for what it can do - they consult
// the capability descriptor published by the registry for its backend type
// and only invoke operations the descriptor declares.
package provider

import (
	"context"
	"io"
	"time"
)

// ConnectTimeout bounds every adapter connection attempt. An adapter that
// cannot reach its backend within this window must fail cleanly instead of
// leaving a half-open client behind.
const ConnectTimeout = 15 * time.Second

// Adapter is the uniform operation set implemented once per backend type.
//
// Remote ids are opaque to callers: a path for filesystem-like backends,
// an object key for S3, a message id for Telegram. Adapters wrap every
// failure in an *Error carrying backend type, operation and remote id;
// raw transport errors never cross this boundary unwrapped.
//
// Adapters hold backend connections scoped to their own lifetime. Callers
// that obtain an adapter for a single operation must guarantee Cleanup runs
// exactly once on all exit paths (see WithAdapter).
type Adapter interface {
	// TestConnection verifies the backend is reachable with the configured
	// credentials. Bounded by ConnectTimeout.
	TestConnection(ctx context.Context) error

	// GetQuota reports backend storage usage. Backends without quota
	// support return UnknownQuota, not an error.
	GetQuota(ctx context.Context) (Quota, error)

	// RequestUpload reserves a destination for a new file and returns an
	// upload ticket. The ticket's RemoteID may be provisional (Telegram
	// issues permanent ids only after content lands); the id returned by
	// UploadFile is always the durable one.
	RequestUpload(ctx context.Context, name, parentID string) (*UploadTicket, error)

	// UploadFile streams content to the destination reserved by
	// RequestUpload and returns the permanent remote id.
	UploadFile(ctx context.Context, remoteID string, body io.Reader, size int64) (string, error)

	// RequestDownload returns a direct-download descriptor when the backend
	// can hand the client a URL, or nil when content must be relayed
	// through DownloadFile.
	RequestDownload(ctx context.Context, remoteID string) (*DownloadTicket, error)

	// DownloadFile opens the content stream. The caller closes it.
	DownloadFile(ctx context.Context, remoteID string) (io.ReadCloser, error)

	// CreateFolder creates a folder (or the backend's nearest native
	// container) and returns its remote id.
	CreateFolder(ctx context.Context, name, parentID string) (string, error)

	// Delete removes a file or folder. Folder deletion is recursive.
	Delete(ctx context.Context, remoteID string, isFolder bool) error

	// Move relocates and/or renames a remote object. newParentID and
	// newName may each be empty to keep the current value. Backends
	// without move support fail with CodeUnsupported, never a silent no-op.
	Move(ctx context.Context, remoteID, newParentID, newName string) error

	// Copy duplicates a remote object and returns the new remote id.
	Copy(ctx context.Context, remoteID, targetParentID, newName string) (string, error)

	// List returns one page of a folder's children. An empty folderID
	// lists the backend root.
	List(ctx context.Context, folderID, pageToken string, limit int) (*Listing, error)

	// GetFileMetadata fetches metadata for a single file.
	GetFileMetadata(ctx context.Context, remoteID string) (*RemoteFile, error)

	// GetFolderMetadata fetches metadata for a single folder.
	GetFolderMetadata(ctx context.Context, remoteID string) (*RemoteFolder, error)

	// GetAccountInfo describes the authenticated backend account.
	GetAccountInfo(ctx context.Context) (*AccountInfo, error)

	// Cleanup releases connections held by this adapter instance. Safe to
	// call more than once; only the first call does work.
	Cleanup(ctx context.Context) error
}

// MultipartUploader is implemented by adapters whose backend supports
// presigned multi-part uploads (capability SupportsDirectUpload). The
// upload orchestrator uses it to let clients push chunks straight to the
// backend without relaying bytes through the server.
type MultipartUploader interface {
	// BeginMultipart opens a multi-part upload and returns one presigned
	// descriptor per part, numbered from 1.
	BeginMultipart(ctx context.Context, name, parentID string, totalSize, partSize int64) (*MultipartUpload, error)

	// CompleteMultipart assembles the reported parts into the final object.
	CompleteMultipart(ctx context.Context, remoteID, uploadID string, parts []CompletedPart) error

	// AbortMultipart releases a partial upload. Idempotent.
	AbortMultipart(ctx context.Context, remoteID, uploadID string) error
}

// Quota reports backend storage usage in bytes. A negative value means the
// backend did not report that figure.
type Quota struct {
	TotalBytes int64 `json:"total_bytes"`
	UsedBytes  int64 `json:"used_bytes"`
}

// UnknownQuota is returned by backends that cannot report usage.
var UnknownQuota = Quota{TotalBytes: -1, UsedBytes: -1}

// Known reports whether the backend returned real quota figures.
func (q Quota) Known() bool {
	return q.TotalBytes >= 0 || q.UsedBytes >= 0
}

// UploadTicket is the result of RequestUpload.
type UploadTicket struct {
	// RemoteID addresses the reserved destination. For backends that issue
	// ids post-hoc this is a provisional token, resolved by UploadFile.
	RemoteID string

	// Provisional is true when RemoteID is not yet a durable id.
	Provisional bool
}

// DownloadTicket describes a direct download bypassing the server.
type DownloadTicket struct {
	URL       string
	ExpiresAt time.Time
}

// MultipartUpload describes an open presigned multi-part upload.
type MultipartUpload struct {
	// RemoteID is the id the finished object will have.
	RemoteID string

	// UploadID identifies the multi-part session on the backend.
	UploadID string

	// Parts holds one presigned descriptor per part, ordered by number.
	Parts []PartDescriptor
}

// PartDescriptor is a presigned destination for one chunk.
type PartDescriptor struct {
	PartNumber int    `json:"part_number"`
	URL        string `json:"url"`
}

// CompletedPart is a client-reported receipt for one uploaded chunk.
type CompletedPart struct {
	PartNumber int    `json:"part_number"`
	ETag       string `json:"etag"`
}

// RemoteFile is a backend file entry.
type RemoteFile struct {
	RemoteID string
	Name     string
	Size     int64
	MimeType string
	Modified time.Time
}

// RemoteFolder is a backend folder entry.
type RemoteFolder struct {
	RemoteID string
	Name     string
	Modified time.Time
}

// Listing is one page of folder children.
type Listing struct {
	Files         []RemoteFile
	Folders       []RemoteFolder
	NextPageToken string
}

// AccountInfo describes the backend account an adapter is bound to.
type AccountInfo struct {
	ID          string
	DisplayName string
}

// WithAdapter runs fn against a freshly constructed adapter and guarantees
// Cleanup executes exactly once, including when fn fails or panics. The
// operation error wins over a cleanup error; a cleanup failure after a
// successful operation is still reported.
func WithAdapter(ctx context.Context, adapter Adapter, fn func(Adapter) error) (err error) {
	cleaned := false
	cleanup := func() error {
		if cleaned {
			return nil
		}
		cleaned = true
		return adapter.Cleanup(ctx)
	}

	defer func() {
		if r := recover(); r != nil {
			_ = cleanup()
			panic(r)
		}
	}()

	if err = fn(adapter); err != nil {
		_ = cleanup()
		return err
	}

	return cleanup()
}
