// Package local implements the provider adapter for a directory on the
// server's own filesystem.
//
// Remote ids are namespace-relative slash paths ("docs/report.pdf"). Every
// id is canonicalized and checked to resolve inside the configured root;
// any resolution escaping the root fails with a path-traversal error
// before touching the disk, for reads and writes alike.
package local

import (
	"context"
	"fmt"
	"io"
	"mime"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/omnidrive/omnidrive/pkg/provider"
)

const backendType = "local"

// Adapter stores files under a single root directory.
type Adapter struct {
	root string
}

// New creates a local adapter rooted at root, creating the directory if
// needed.
func New(ctx context.Context, root string) (*Adapter, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, provider.NewError(backendType, "initialize", "", provider.CodeConfig, "invalid root path", err)
	}

	if err := os.MkdirAll(abs, 0755); err != nil {
		return nil, provider.NewError(backendType, "initialize", "", provider.CodeConfig, "cannot create root directory", err)
	}

	return &Adapter{root: abs}, nil
}

// resolve canonicalizes a remote id and confirms it stays inside the root.
//
// Two containment checks run: the cleaned relative path must not start
// with "..", and the recomputed relative distance from the root to the
// joined path must not either. The second catches escapes that survive
// cleaning (absolute ids, symlink-free "a/../../b" shapes).
func (a *Adapter) resolve(op, remoteID string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(remoteID))

	if filepath.IsAbs(clean) {
		return "", a.traversalError(op, remoteID)
	}
	sep := string(filepath.Separator)
	if clean == ".." || strings.HasPrefix(clean, ".."+sep) {
		return "", a.traversalError(op, remoteID)
	}

	full := filepath.Join(a.root, clean)

	rel, err := filepath.Rel(a.root, full)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+sep) {
		return "", a.traversalError(op, remoteID)
	}

	return full, nil
}

func (a *Adapter) traversalError(op, remoteID string) error {
	return provider.NewError(backendType, op, remoteID, provider.CodeConfig,
		"path resolves outside the configured root", nil)
}

// childID joins a parent remote id and a name into a child remote id.
func childID(parentID, name string) string {
	if parentID == "" {
		return name
	}
	return path.Join(parentID, name)
}

func (a *Adapter) TestConnection(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	info, err := os.Stat(a.root)
	if err != nil {
		return provider.NewError(backendType, "test_connection", "", provider.CodeConnection, "root not accessible", err)
	}
	if !info.IsDir() {
		return provider.NewError(backendType, "test_connection", "", provider.CodeConfig, "root is not a directory", nil)
	}
	return nil
}

func (a *Adapter) GetQuota(ctx context.Context) (provider.Quota, error) {
	if err := ctx.Err(); err != nil {
		return provider.Quota{}, err
	}
	return diskQuota(a.root)
}

func (a *Adapter) RequestUpload(ctx context.Context, name, parentID string) (*provider.UploadTicket, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	id := childID(parentID, name)
	full, err := a.resolve("request_upload", id)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		return nil, provider.NewError(backendType, "request_upload", id, provider.CodeIO, "", err)
	}

	return &provider.UploadTicket{RemoteID: id}, nil
}

func (a *Adapter) UploadFile(ctx context.Context, remoteID string, body io.Reader, size int64) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	full, err := a.resolve("upload_file", remoteID)
	if err != nil {
		return "", err
	}

	f, err := os.OpenFile(full, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return "", provider.NewError(backendType, "upload_file", remoteID, provider.CodeIO, "", err)
	}

	if _, err := io.Copy(f, body); err != nil {
		f.Close()
		os.Remove(full)
		return "", provider.NewError(backendType, "upload_file", remoteID, provider.CodeIO, "write failed", err)
	}

	if err := f.Close(); err != nil {
		return "", provider.NewError(backendType, "upload_file", remoteID, provider.CodeIO, "close failed", err)
	}

	return remoteID, nil
}

func (a *Adapter) RequestDownload(ctx context.Context, remoteID string) (*provider.DownloadTicket, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	// Local files cannot be handed out as URLs; callers relay through
	// DownloadFile.
	return nil, nil
}

func (a *Adapter) DownloadFile(ctx context.Context, remoteID string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	full, err := a.resolve("download_file", remoteID)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(full)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, provider.NewError(backendType, "download_file", remoteID, provider.CodeNotFound, "file not found", err)
		}
		return nil, provider.NewError(backendType, "download_file", remoteID, provider.CodeIO, "", err)
	}
	return f, nil
}

func (a *Adapter) CreateFolder(ctx context.Context, name, parentID string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	id := childID(parentID, name)
	full, err := a.resolve("create_folder", id)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(full, 0755); err != nil {
		return "", provider.NewError(backendType, "create_folder", id, provider.CodeIO, "", err)
	}
	return id, nil
}

func (a *Adapter) Delete(ctx context.Context, remoteID string, isFolder bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	full, err := a.resolve("delete", remoteID)
	if err != nil {
		return err
	}

	if _, err := os.Stat(full); os.IsNotExist(err) {
		return provider.NewError(backendType, "delete", remoteID, provider.CodeNotFound, "entry not found", err)
	}

	if isFolder {
		// Recursive by contract.
		if err := os.RemoveAll(full); err != nil {
			return provider.NewError(backendType, "delete", remoteID, provider.CodeIO, "", err)
		}
		return nil
	}

	if err := os.Remove(full); err != nil {
		return provider.NewError(backendType, "delete", remoteID, provider.CodeIO, "", err)
	}
	return nil
}

func (a *Adapter) Move(ctx context.Context, remoteID, newParentID, newName string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	src, err := a.resolve("move", remoteID)
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
	dest, err := a.resolve("move", destID)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return provider.NewError(backendType, "move", remoteID, provider.CodeIO, "", err)
	}

	if err := os.Rename(src, dest); err != nil {
		// Rename cannot cross filesystems; fall back to copy+delete.
		if linkErr, ok := err.(*os.LinkError); ok && linkErr.Err == syscall.EXDEV {
			if err := copyTree(src, dest); err != nil {
				return provider.NewError(backendType, "move", remoteID, provider.CodeIO, "cross-device copy failed", err)
			}
			if err := os.RemoveAll(src); err != nil {
				return provider.NewError(backendType, "move", remoteID, provider.CodeIO, "cross-device cleanup failed", err)
			}
			return nil
		}
		if os.IsNotExist(err) {
			return provider.NewError(backendType, "move", remoteID, provider.CodeNotFound, "entry not found", err)
		}
		return provider.NewError(backendType, "move", remoteID, provider.CodeIO, "", err)
	}
	return nil
}

func (a *Adapter) Copy(ctx context.Context, remoteID, targetParentID, newName string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	src, err := a.resolve("copy", remoteID)
	if err != nil {
		return "", err
	}

	name := newName
	if name == "" {
		name = path.Base(remoteID)
	}
	destID := childID(targetParentID, name)
	dest, err := a.resolve("copy", destID)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return "", provider.NewError(backendType, "copy", remoteID, provider.CodeIO, "", err)
	}

	if err := copyTree(src, dest); err != nil {
		if os.IsNotExist(err) {
			return "", provider.NewError(backendType, "copy", remoteID, provider.CodeNotFound, "entry not found", err)
		}
		return "", provider.NewError(backendType, "copy", remoteID, provider.CodeIO, "", err)
	}
	return destID, nil
}

func (a *Adapter) List(ctx context.Context, folderID, pageToken string, limit int) (*provider.Listing, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	full, err := a.resolve("list", folderID)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(full)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, provider.NewError(backendType, "list", folderID, provider.CodeNotFound, "folder not found", err)
		}
		return nil, provider.NewError(backendType, "list", folderID, provider.CodeIO, "", err)
	}

	start := 0
	if pageToken != "" {
		start, err = strconv.Atoi(pageToken)
		if err != nil || start < 0 {
			return nil, provider.NewError(backendType, "list", folderID, provider.CodeConfig, "invalid page token", err)
		}
	}
	if limit <= 0 {
		limit = len(entries)
	}

	listing := &provider.Listing{}
	end := start + limit
	if end > len(entries) {
		end = len(entries)
	}
	if start > len(entries) {
		start = len(entries)
	}

	for _, entry := range entries[start:end] {
		id := childID(folderID, entry.Name())
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if entry.IsDir() {
			listing.Folders = append(listing.Folders, provider.RemoteFolder{
				RemoteID: id,
				Name:     entry.Name(),
				Modified: info.ModTime(),
			})
		} else {
			listing.Files = append(listing.Files, provider.RemoteFile{
				RemoteID: id,
				Name:     entry.Name(),
				Size:     info.Size(),
				MimeType: mime.TypeByExtension(path.Ext(entry.Name())),
				Modified: info.ModTime(),
			})
		}
	}

	if end < len(entries) {
		listing.NextPageToken = strconv.Itoa(end)
	}
	return listing, nil
}

func (a *Adapter) GetFileMetadata(ctx context.Context, remoteID string) (*provider.RemoteFile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	full, err := a.resolve("get_file_metadata", remoteID)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(full)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, provider.NewError(backendType, "get_file_metadata", remoteID, provider.CodeNotFound, "file not found", err)
		}
		return nil, provider.NewError(backendType, "get_file_metadata", remoteID, provider.CodeIO, "", err)
	}
	if info.IsDir() {
		return nil, provider.NewError(backendType, "get_file_metadata", remoteID, provider.CodeNotFound, "entry is a folder", nil)
	}

	return &provider.RemoteFile{
		RemoteID: remoteID,
		Name:     info.Name(),
		Size:     info.Size(),
		MimeType: mime.TypeByExtension(path.Ext(info.Name())),
		Modified: info.ModTime(),
	}, nil
}

func (a *Adapter) GetFolderMetadata(ctx context.Context, remoteID string) (*provider.RemoteFolder, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	full, err := a.resolve("get_folder_metadata", remoteID)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(full)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, provider.NewError(backendType, "get_folder_metadata", remoteID, provider.CodeNotFound, "folder not found", err)
		}
		return nil, provider.NewError(backendType, "get_folder_metadata", remoteID, provider.CodeIO, "", err)
	}
	if !info.IsDir() {
		return nil, provider.NewError(backendType, "get_folder_metadata", remoteID, provider.CodeNotFound, "entry is a file", nil)
	}

	return &provider.RemoteFolder{
		RemoteID: remoteID,
		Name:     info.Name(),
		Modified: info.ModTime(),
	}, nil
}

func (a *Adapter) GetAccountInfo(ctx context.Context) (*provider.AccountInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &provider.AccountInfo{
		ID:          a.root,
		DisplayName: fmt.Sprintf("Local storage at %s", a.root),
	}, nil
}

func (a *Adapter) Cleanup(ctx context.Context) error {
	// No connections to release.
	return nil
}

// copyTree copies a file or directory tree from src to dest.
func copyTree(src, dest string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}

	if !info.IsDir() {
		return copyFile(src, dest, info.Mode())
	}

	if err := os.MkdirAll(dest, info.Mode()); err != nil {
		return err
	}

	entries, err := os.ReadDir(src)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if err := copyTree(filepath.Join(src, entry.Name()), filepath.Join(dest, entry.Name())); err != nil {
			return err
		}
	}
	return nil
}

func copyFile(src, dest string, mode os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dest)
		return err
	}
	return out.Close()
}
