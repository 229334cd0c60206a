// Package ftp implements the provider adapter for FTP and FTPS servers.
//
// The control connection is established lazily on first use and reused
// across operations; a NOOP probe detects dropped connections and triggers
// a transparent reconnect. FTP has no server-side copy, so Copy downloads
// the file fully into memory and re-uploads it. Folder deletion recurses
// depth-first because RMD only removes empty directories.
package ftp

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"mime"
	"path"
	"sync"
	"time"

	"github.com/jlaffaye/ftp"

	"github.com/omnidrive/omnidrive/pkg/provider"
)

const backendType = "ftp"

// Config holds FTP connection settings.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string

	// Root is the directory on the server all remote ids are relative to.
	Root string

	// ExplicitTLS upgrades the connection with AUTH TLS (FTPS).
	ExplicitTLS bool
}

// Adapter speaks to one FTP server. A single control connection is shared
// by all operations on this instance and released by Cleanup.
type Adapter struct {
	cfg Config

	mu   sync.Mutex
	conn *ftp.ServerConn
}

// New creates an FTP adapter. No connection is made until the first
// operation needs one.
func New(cfg Config) (*Adapter, error) {
	if cfg.Host == "" {
		return nil, provider.NewError(backendType, "initialize", "", provider.CodeConfig, "host is required", nil)
	}
	if cfg.Username == "" {
		return nil, provider.NewError(backendType, "initialize", "", provider.CodeConfig, "username is required", nil)
	}
	if cfg.Port == 0 {
		cfg.Port = 21
	}
	return &Adapter{cfg: cfg}, nil
}

// connect dials and authenticates a fresh control connection.
func (a *Adapter) connect(ctx context.Context) (*ftp.ServerConn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	addr := fmt.Sprintf("%s:%d", a.cfg.Host, a.cfg.Port)

	opts := []ftp.DialOption{ftp.DialWithTimeout(provider.ConnectTimeout)}
	if a.cfg.ExplicitTLS {
		opts = append(opts, ftp.DialWithExplicitTLS(&tls.Config{ServerName: a.cfg.Host}))
	}

	conn, err := ftp.Dial(addr, opts...)
	if err != nil {
		return nil, provider.NewError(backendType, "connect", "", provider.CodeConnection, "dial failed", err)
	}

	if err := conn.Login(a.cfg.Username, a.cfg.Password); err != nil {
		// Release the half-authenticated connection before failing.
		_ = conn.Quit()
		return nil, provider.NewError(backendType, "connect", "", provider.CodeConnection, "login failed", err)
	}

	return conn, nil
}

// ensureConn returns a live connection, reconnecting if the cached one was
// closed by the server. Callers must hold a.mu.
func (a *Adapter) ensureConn(ctx context.Context) (*ftp.ServerConn, error) {
	if a.conn != nil {
		if err := a.conn.NoOp(); err == nil {
			return a.conn, nil
		}
		// Connection went away; drop it and redial.
		_ = a.conn.Quit()
		a.conn = nil
	}

	conn, err := a.connect(ctx)
	if err != nil {
		return nil, err
	}
	a.conn = conn
	return conn, nil
}

// remotePath resolves a remote id against the configured root.
func (a *Adapter) remotePath(remoteID string) string {
	if a.cfg.Root == "" {
		return remoteID
	}
	return path.Join(a.cfg.Root, remoteID)
}

func childID(parentID, name string) string {
	if parentID == "" {
		return name
	}
	return path.Join(parentID, name)
}

func (a *Adapter) TestConnection(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	_, err := a.ensureConn(ctx)
	return err
}

func (a *Adapter) GetQuota(ctx context.Context) (provider.Quota, error) {
	if err := ctx.Err(); err != nil {
		return provider.Quota{}, err
	}
	// FTP has no quota facility.
	return provider.UnknownQuota, nil
}

func (a *Adapter) RequestUpload(ctx context.Context, name, parentID string) (*provider.UploadTicket, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &provider.UploadTicket{RemoteID: childID(parentID, name)}, nil
}

func (a *Adapter) UploadFile(ctx context.Context, remoteID string, body io.Reader, size int64) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	conn, err := a.ensureConn(ctx)
	if err != nil {
		return "", err
	}

	if err := conn.Stor(a.remotePath(remoteID), body); err != nil {
		return "", provider.NewError(backendType, "upload_file", remoteID, provider.CodeIO, "STOR failed", err)
	}
	return remoteID, nil
}

func (a *Adapter) RequestDownload(ctx context.Context, remoteID string) (*provider.DownloadTicket, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	// No presigned downloads over FTP; relay only.
	return nil, nil
}

func (a *Adapter) DownloadFile(ctx context.Context, remoteID string) (io.ReadCloser, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	conn, err := a.ensureConn(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := conn.Retr(a.remotePath(remoteID))
	if err != nil {
		return nil, provider.NewError(backendType, "download_file", remoteID, provider.CodeNotFound, "RETR failed", err)
	}

	// The data connection must drain before the control connection is
	// reused, so buffer the payload and release the wire immediately.
	data, err := io.ReadAll(resp)
	closeErr := resp.Close()
	if err != nil {
		return nil, provider.NewError(backendType, "download_file", remoteID, provider.CodeIO, "read failed", err)
	}
	if closeErr != nil {
		return nil, provider.NewError(backendType, "download_file", remoteID, provider.CodeIO, "close failed", closeErr)
	}

	return io.NopCloser(bytes.NewReader(data)), nil
}

func (a *Adapter) CreateFolder(ctx context.Context, name, parentID string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	conn, err := a.ensureConn(ctx)
	if err != nil {
		return "", err
	}

	id := childID(parentID, name)
	if err := conn.MakeDir(a.remotePath(id)); err != nil {
		return "", provider.NewError(backendType, "create_folder", id, provider.CodeIO, "MKD failed", err)
	}
	return id, nil
}

func (a *Adapter) Delete(ctx context.Context, remoteID string, isFolder bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	conn, err := a.ensureConn(ctx)
	if err != nil {
		return err
	}

	if !isFolder {
		if err := conn.Delete(a.remotePath(remoteID)); err != nil {
			return provider.NewError(backendType, "delete", remoteID, provider.CodeIO, "DELE failed", err)
		}
		return nil
	}

	return a.deleteFolderRecursive(ctx, conn, remoteID)
}

// deleteFolderRecursive lists a directory and removes children depth-first
// before removing the directory itself.
func (a *Adapter) deleteFolderRecursive(ctx context.Context, conn *ftp.ServerConn, remoteID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	entries, err := conn.List(a.remotePath(remoteID))
	if err != nil {
		return provider.NewError(backendType, "delete", remoteID, provider.CodeIO, "LIST failed", err)
	}

	for _, entry := range entries {
		if entry.Name == "." || entry.Name == ".." {
			continue
		}
		child := childID(remoteID, entry.Name)
		if entry.Type == ftp.EntryTypeFolder {
			if err := a.deleteFolderRecursive(ctx, conn, child); err != nil {
				return err
			}
		} else {
			if err := conn.Delete(a.remotePath(child)); err != nil {
				return provider.NewError(backendType, "delete", child, provider.CodeIO, "DELE failed", err)
			}
		}
	}

	if err := conn.RemoveDir(a.remotePath(remoteID)); err != nil {
		return provider.NewError(backendType, "delete", remoteID, provider.CodeIO, "RMD failed", err)
	}
	return nil
}

func (a *Adapter) Move(ctx context.Context, remoteID, newParentID, newName string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	conn, err := a.ensureConn(ctx)
	if err != nil {
		return err
	}

	name := newName
	if name == "" {
		name = path.Base(remoteID)
	}
	parent := newParentID
	if parent == "" && newName != "" {
		parent = path.Dir(remoteID)
		if parent == "." {
			parent = ""
		}
	}
	destID := childID(parent, name)

	if err := conn.Rename(a.remotePath(remoteID), a.remotePath(destID)); err != nil {
		return provider.NewError(backendType, "move", remoteID, provider.CodeIO, "RNFR/RNTO failed", err)
	}
	return nil
}

// Copy has no FTP primitive: the file is downloaded fully into memory and
// re-uploaded under the new id.
func (a *Adapter) Copy(ctx context.Context, remoteID, targetParentID, newName string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	conn, err := a.ensureConn(ctx)
	if err != nil {
		return "", err
	}

	resp, err := conn.Retr(a.remotePath(remoteID))
	if err != nil {
		return "", provider.NewError(backendType, "copy", remoteID, provider.CodeNotFound, "RETR failed", err)
	}
	data, err := io.ReadAll(resp)
	closeErr := resp.Close()
	if err != nil {
		return "", provider.NewError(backendType, "copy", remoteID, provider.CodeIO, "read failed", err)
	}
	if closeErr != nil {
		return "", provider.NewError(backendType, "copy", remoteID, provider.CodeIO, "close failed", closeErr)
	}

	name := newName
	if name == "" {
		name = path.Base(remoteID)
	}
	destID := childID(targetParentID, name)

	if err := conn.Stor(a.remotePath(destID), bytes.NewReader(data)); err != nil {
		return "", provider.NewError(backendType, "copy", destID, provider.CodeIO, "STOR failed", err)
	}
	return destID, nil
}

func (a *Adapter) List(ctx context.Context, folderID, pageToken string, limit int) (*provider.Listing, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	conn, err := a.ensureConn(ctx)
	if err != nil {
		return nil, err
	}

	entries, err := conn.List(a.remotePath(folderID))
	if err != nil {
		return nil, provider.NewError(backendType, "list", folderID, provider.CodeIO, "LIST failed", err)
	}

	// FTP listings arrive whole; pagination is not meaningful here.
	listing := &provider.Listing{}
	for _, entry := range entries {
		if entry.Name == "." || entry.Name == ".." {
			continue
		}
		id := childID(folderID, entry.Name)
		switch entry.Type {
		case ftp.EntryTypeFolder:
			listing.Folders = append(listing.Folders, provider.RemoteFolder{
				RemoteID: id,
				Name:     entry.Name,
				Modified: entry.Time,
			})
		case ftp.EntryTypeFile:
			listing.Files = append(listing.Files, provider.RemoteFile{
				RemoteID: id,
				Name:     entry.Name,
				Size:     int64(entry.Size),
				MimeType: mime.TypeByExtension(path.Ext(entry.Name)),
				Modified: entry.Time,
			})
		}
	}
	return listing, nil
}

func (a *Adapter) GetFileMetadata(ctx context.Context, remoteID string) (*provider.RemoteFile, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	conn, err := a.ensureConn(ctx)
	if err != nil {
		return nil, err
	}

	size, err := conn.FileSize(a.remotePath(remoteID))
	if err != nil {
		return nil, provider.NewError(backendType, "get_file_metadata", remoteID, provider.CodeNotFound, "SIZE failed", err)
	}

	name := path.Base(remoteID)
	return &provider.RemoteFile{
		RemoteID: remoteID,
		Name:     name,
		Size:     size,
		MimeType: mime.TypeByExtension(path.Ext(name)),
		Modified: time.Time{},
	}, nil
}

func (a *Adapter) GetFolderMetadata(ctx context.Context, remoteID string) (*provider.RemoteFolder, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	conn, err := a.ensureConn(ctx)
	if err != nil {
		return nil, err
	}

	// Probe by listing; LIST on a missing directory fails.
	if _, err := conn.List(a.remotePath(remoteID)); err != nil {
		return nil, provider.NewError(backendType, "get_folder_metadata", remoteID, provider.CodeNotFound, "LIST failed", err)
	}

	return &provider.RemoteFolder{
		RemoteID: remoteID,
		Name:     path.Base(remoteID),
	}, nil
}

func (a *Adapter) GetAccountInfo(ctx context.Context) (*provider.AccountInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &provider.AccountInfo{
		ID:          fmt.Sprintf("%s@%s", a.cfg.Username, a.cfg.Host),
		DisplayName: fmt.Sprintf("FTP %s on %s", a.cfg.Username, a.cfg.Host),
	}, nil
}

func (a *Adapter) Cleanup(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.conn == nil {
		return nil
	}
	err := a.conn.Quit()
	a.conn = nil
	if err != nil {
		return provider.NewError(backendType, "cleanup", "", provider.CodeConnection, "QUIT failed", err)
	}
	return nil
}
