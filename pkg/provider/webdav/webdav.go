// Package webdav implements the provider adapter for WebDAV servers
// (including Nextcloud/ownCloud remotes).
//
// Remote ids are server paths relative to the configured base URL. Quota
// reporting is best-effort: many WebDAV servers do not implement the
// quota properties, and their absence yields an "unknown" quota, never an
// error to the caller.
package webdav

import (
	"context"
	"encoding/xml"
	"io"
	"mime"
	"net/http"
	"path"
	"strconv"
	"strings"

	"github.com/studio-b12/gowebdav"

	"github.com/omnidrive/omnidrive/pkg/provider"
)

const backendType = "webdav"

// Config holds WebDAV connection settings.
type Config struct {
	// URL is the base URL of the WebDAV endpoint, e.g.
	// https://cloud.example.com/remote.php/dav/files/alice
	URL      string
	Username string
	Password string
}

// Adapter speaks to one WebDAV endpoint through a shared HTTP client.
type Adapter struct {
	cfg    Config
	client *gowebdav.Client
	httpc  *http.Client
}

// New creates a WebDAV adapter. The HTTP client is created eagerly but no
// request is made until the first operation.
func New(cfg Config) (*Adapter, error) {
	if cfg.URL == "" {
		return nil, provider.NewError(backendType, "initialize", "", provider.CodeConfig, "url is required", nil)
	}

	client := gowebdav.NewClient(cfg.URL, cfg.Username, cfg.Password)
	client.SetTimeout(provider.ConnectTimeout)

	return &Adapter{
		cfg:    cfg,
		client: client,
		httpc:  &http.Client{Timeout: provider.ConnectTimeout},
	}, nil
}

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

	if err := a.client.Connect(); err != nil {
		return provider.NewError(backendType, "test_connection", "", provider.CodeConnection, "endpoint not reachable", err)
	}
	return nil
}

// quotaPropfindBody asks only for the two RFC 4331 properties.
const quotaPropfindBody = `<?xml version="1.0" encoding="utf-8"?>
<d:propfind xmlns:d="DAV:">
  <d:prop>
    <d:quota-available-bytes/>
    <d:quota-used-bytes/>
  </d:prop>
</d:propfind>`

type quotaMultistatus struct {
	Responses []struct {
		Propstats []struct {
			Status string `xml:"status"`
			Prop   struct {
				Available string `xml:"quota-available-bytes"`
				Used      string `xml:"quota-used-bytes"`
			} `xml:"prop"`
		} `xml:"propstat"`
	} `xml:"response"`
}

// GetQuota issues a Depth:0 PROPFIND for the RFC 4331 quota properties
// against the base URL. Servers without quota support, and any request or
// parse failure, read as unknown rather than an error.
func (a *Adapter) GetQuota(ctx context.Context) (provider.Quota, error) {
	if err := ctx.Err(); err != nil {
		return provider.Quota{}, err
	}

	req, err := http.NewRequestWithContext(ctx, "PROPFIND", a.cfg.URL, strings.NewReader(quotaPropfindBody))
	if err != nil {
		return provider.UnknownQuota, nil
	}
	req.Header.Set("Depth", "0")
	req.Header.Set("Content-Type", `application/xml; charset="utf-8"`)
	if a.cfg.Username != "" {
		req.SetBasicAuth(a.cfg.Username, a.cfg.Password)
	}

	resp, err := a.httpc.Do(req)
	if err != nil {
		return provider.UnknownQuota, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusMultiStatus {
		return provider.UnknownQuota, nil
	}
	return parseQuota(resp.Body), nil
}

func parseQuota(r io.Reader) provider.Quota {
	var ms quotaMultistatus
	if err := xml.NewDecoder(r).Decode(&ms); err != nil {
		return provider.UnknownQuota
	}

	for _, response := range ms.Responses {
		for _, ps := range response.Propstats {
			if !strings.Contains(ps.Status, "200") {
				continue
			}
			used, usedOK := parseByteCount(ps.Prop.Used)
			avail, availOK := parseByteCount(ps.Prop.Available)
			if !usedOK || used < 0 {
				continue
			}
			quota := provider.Quota{TotalBytes: -1, UsedBytes: used}
			// Negative available means unlimited (Nextcloud reports -3).
			if availOK && avail >= 0 {
				quota.TotalBytes = used + avail
			}
			return quota
		}
	}
	return provider.UnknownQuota
}

func parseByteCount(s string) (int64, bool) {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

func (a *Adapter) RequestUpload(ctx context.Context, name, parentID string) (*provider.UploadTicket, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &provider.UploadTicket{RemoteID: childID(parentID, name)}, nil
}

func (a *Adapter) UploadFile(ctx context.Context, remoteID string, body io.Reader, size int64) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	if err := a.client.WriteStream(remoteID, body, 0644); err != nil {
		return "", provider.NewError(backendType, "upload_file", remoteID, provider.CodeIO, "PUT failed", err)
	}
	return remoteID, nil
}

func (a *Adapter) RequestDownload(ctx context.Context, remoteID string) (*provider.DownloadTicket, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	// WebDAV URLs require the account credentials; never hand them out.
	return nil, nil
}

func (a *Adapter) DownloadFile(ctx context.Context, remoteID string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	stream, err := a.client.ReadStream(remoteID)
	if err != nil {
		return nil, provider.NewError(backendType, "download_file", remoteID, provider.CodeNotFound, "GET failed", err)
	}
	return stream, nil
}

func (a *Adapter) CreateFolder(ctx context.Context, name, parentID string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	id := childID(parentID, name)
	if err := a.client.MkdirAll(id, 0755); err != nil {
		return "", provider.NewError(backendType, "create_folder", id, provider.CodeIO, "MKCOL failed", err)
	}
	return id, nil
}

func (a *Adapter) Delete(ctx context.Context, remoteID string, isFolder bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	// DELETE on a collection is recursive by protocol.
	if err := a.client.RemoveAll(remoteID); err != nil {
		return provider.NewError(backendType, "delete", remoteID, provider.CodeIO, "DELETE failed", err)
	}
	return nil
}

func (a *Adapter) Move(ctx context.Context, remoteID, newParentID, newName string) error {
	if err := ctx.Err(); err != nil {
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

	if err := a.client.Rename(remoteID, destID, false); err != nil {
		return provider.NewError(backendType, "move", remoteID, provider.CodeIO, "MOVE failed", err)
	}
	return nil
}

func (a *Adapter) Copy(ctx context.Context, remoteID, targetParentID, newName string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	name := newName
	if name == "" {
		name = path.Base(remoteID)
	}
	destID := childID(targetParentID, name)

	if err := a.client.Copy(remoteID, destID, false); err != nil {
		return "", provider.NewError(backendType, "copy", remoteID, provider.CodeIO, "COPY failed", err)
	}
	return destID, nil
}

func (a *Adapter) List(ctx context.Context, folderID, pageToken string, limit int) (*provider.Listing, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	target := folderID
	if target == "" {
		target = "/"
	}

	entries, err := a.client.ReadDir(target)
	if err != nil {
		return nil, provider.NewError(backendType, "list", folderID, provider.CodeNotFound, "PROPFIND failed", err)
	}

	listing := &provider.Listing{}
	for _, entry := range entries {
		id := childID(folderID, entry.Name())
		if entry.IsDir() {
			listing.Folders = append(listing.Folders, provider.RemoteFolder{
				RemoteID: id,
				Name:     entry.Name(),
				Modified: entry.ModTime(),
			})
		} else {
			listing.Files = append(listing.Files, provider.RemoteFile{
				RemoteID: id,
				Name:     entry.Name(),
				Size:     entry.Size(),
				MimeType: mime.TypeByExtension(path.Ext(entry.Name())),
				Modified: entry.ModTime(),
			})
		}
	}
	return listing, nil
}

func (a *Adapter) GetFileMetadata(ctx context.Context, remoteID string) (*provider.RemoteFile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	info, err := a.client.Stat(remoteID)
	if err != nil {
		return nil, provider.NewError(backendType, "get_file_metadata", remoteID, provider.CodeNotFound, "PROPFIND failed", err)
	}
	if info.IsDir() {
		return nil, provider.NewError(backendType, "get_file_metadata", remoteID, provider.CodeNotFound, "entry is a collection", nil)
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

	info, err := a.client.Stat(remoteID)
	if err != nil {
		return nil, provider.NewError(backendType, "get_folder_metadata", remoteID, provider.CodeNotFound, "PROPFIND failed", err)
	}
	if !info.IsDir() {
		return nil, provider.NewError(backendType, "get_folder_metadata", remoteID, provider.CodeNotFound, "entry is not a collection", nil)
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
		ID:          a.cfg.Username + "@" + a.cfg.URL,
		DisplayName: "WebDAV " + a.cfg.URL,
	}, nil
}

func (a *Adapter) Cleanup(ctx context.Context) error {
	// HTTP connections are pooled by the runtime; nothing to release.
	return nil
}
