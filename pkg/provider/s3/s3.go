// Package s3 implements the provider adapter for Amazon S3 and
// S3-compatible object stores (MinIO, Localstack, ...).
//
// Remote ids are object keys relative to the configured key prefix.
// Folders are emulated with "/"-delimited key prefixes plus zero-byte
// marker objects, which is how every S3 console presents them. This is
// the one backend that supports direct uploads: clients receive presigned
// per-part URLs and push chunks straight to the bucket.
package s3

import (
	"context"
	"io"
	"mime"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsS3 "github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/omnidrive/omnidrive/pkg/provider"
)

const backendType = "s3"

// folderMarkerSuffix tags the zero-byte objects that make empty folders
// visible in listings.
const folderMarkerSuffix = "/"

// downloadURLTTL bounds presigned GET validity.
const downloadURLTTL = 15 * time.Minute

// Adapter stores objects in one bucket under an optional key prefix.
type Adapter struct {
	client  *awsS3.Client
	presign *awsS3.PresignClient
	bucket  string
	prefix  string

	uploads *uploadTracker
}

// Config holds the assembled S3 client plus bucket addressing.
type Config struct {
	Client    *awsS3.Client
	Bucket    string
	KeyPrefix string
}

// New creates an S3 adapter from an already-configured client.
func New(cfg Config) (*Adapter, error) {
	if cfg.Client == nil {
		return nil, provider.NewError(backendType, "initialize", "", provider.CodeConfig, "client is required", nil)
	}
	if cfg.Bucket == "" {
		return nil, provider.NewError(backendType, "initialize", "", provider.CodeConfig, "bucket is required", nil)
	}

	return &Adapter{
		client:  cfg.Client,
		presign: awsS3.NewPresignClient(cfg.Client),
		bucket:  cfg.Bucket,
		prefix:  strings.Trim(cfg.KeyPrefix, "/"),
		uploads: newUploadTracker(),
	}, nil
}

// key maps a remote id to the full object key.
func (a *Adapter) key(remoteID string) string {
	id := strings.TrimPrefix(remoteID, "/")
	if a.prefix == "" {
		return id
	}
	if id == "" {
		return a.prefix
	}
	return a.prefix + "/" + id
}

func childID(parentID, name string) string {
	if parentID == "" {
		return name
	}
	return strings.TrimSuffix(parentID, "/") + "/" + name
}

func (a *Adapter) TestConnection(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, provider.ConnectTimeout)
	defer cancel()

	_, err := a.client.HeadBucket(ctx, &awsS3.HeadBucketInput{Bucket: aws.String(a.bucket)})
	if err != nil {
		return provider.NewError(backendType, "test_connection", "", provider.CodeConnection, "bucket not reachable", err)
	}
	return nil
}

func (a *Adapter) GetQuota(ctx context.Context) (provider.Quota, error) {
	if err := ctx.Err(); err != nil {
		return provider.Quota{}, err
	}
	// Buckets are unbounded; S3 exposes no quota API.
	return provider.UnknownQuota, nil
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

	_, err := a.client.PutObject(ctx, &awsS3.PutObjectInput{
		Bucket:        aws.String(a.bucket),
		Key:           aws.String(a.key(remoteID)),
		Body:          body,
		ContentLength: aws.Int64(size),
	})
	if err != nil {
		return "", provider.NewError(backendType, "upload_file", remoteID, provider.CodeIO, "PutObject failed", err)
	}
	return remoteID, nil
}

func (a *Adapter) RequestDownload(ctx context.Context, remoteID string) (*provider.DownloadTicket, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	req, err := a.presign.PresignGetObject(ctx, &awsS3.GetObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(a.key(remoteID)),
	}, func(o *awsS3.PresignOptions) {
		o.Expires = downloadURLTTL
	})
	if err != nil {
		return nil, provider.NewError(backendType, "request_download", remoteID, provider.CodeIO, "presign failed", err)
	}

	return &provider.DownloadTicket{
		URL:       req.URL,
		ExpiresAt: time.Now().Add(downloadURLTTL),
	}, nil
}

func (a *Adapter) DownloadFile(ctx context.Context, remoteID string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out, err := a.client.GetObject(ctx, &awsS3.GetObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(a.key(remoteID)),
	})
	if err != nil {
		return nil, provider.NewError(backendType, "download_file", remoteID, provider.CodeNotFound, "GetObject failed", err)
	}
	return out.Body, nil
}

func (a *Adapter) CreateFolder(ctx context.Context, name, parentID string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	id := childID(parentID, name)
	marker := a.key(id) + folderMarkerSuffix

	_, err := a.client.PutObject(ctx, &awsS3.PutObjectInput{
		Bucket:        aws.String(a.bucket),
		Key:           aws.String(marker),
		Body:          strings.NewReader(""),
		ContentLength: aws.Int64(0),
	})
	if err != nil {
		return "", provider.NewError(backendType, "create_folder", id, provider.CodeIO, "marker write failed", err)
	}
	return id, nil
}

func (a *Adapter) Delete(ctx context.Context, remoteID string, isFolder bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if !isFolder {
		_, err := a.client.DeleteObject(ctx, &awsS3.DeleteObjectInput{
			Bucket: aws.String(a.bucket),
			Key:    aws.String(a.key(remoteID)),
		})
		if err != nil {
			return provider.NewError(backendType, "delete", remoteID, provider.CodeIO, "DeleteObject failed", err)
		}
		return nil
	}

	// Folder delete removes every key under the prefix, page by page.
	prefix := a.key(remoteID) + "/"
	var token *string
	for {
		page, err := a.client.ListObjectsV2(ctx, &awsS3.ListObjectsV2Input{
			Bucket:            aws.String(a.bucket),
			Prefix:            aws.String(prefix),
			ContinuationToken: token,
		})
		if err != nil {
			return provider.NewError(backendType, "delete", remoteID, provider.CodeIO, "ListObjectsV2 failed", err)
		}

		for _, obj := range page.Contents {
			_, err := a.client.DeleteObject(ctx, &awsS3.DeleteObjectInput{
				Bucket: aws.String(a.bucket),
				Key:    obj.Key,
			})
			if err != nil {
				return provider.NewError(backendType, "delete", aws.ToString(obj.Key), provider.CodeIO, "DeleteObject failed", err)
			}
		}

		if page.NextContinuationToken == nil {
			break
		}
		token = page.NextContinuationToken
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

	// S3 has no rename; copy then delete.
	if _, err := a.copyObject(ctx, remoteID, destID); err != nil {
		return err
	}
	if err := a.Delete(ctx, remoteID, false); err != nil {
		return err
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
	return a.copyObject(ctx, remoteID, destID)
}

func (a *Adapter) copyObject(ctx context.Context, srcID, destID string) (string, error) {
	_, err := a.client.CopyObject(ctx, &awsS3.CopyObjectInput{
		Bucket:     aws.String(a.bucket),
		Key:        aws.String(a.key(destID)),
		CopySource: aws.String(a.bucket + "/" + a.key(srcID)),
	})
	if err != nil {
		return "", provider.NewError(backendType, "copy", srcID+","+destID, provider.CodeIO, "CopyObject failed", err)
	}
	return destID, nil
}

func (a *Adapter) List(ctx context.Context, folderID, pageToken string, limit int) (*provider.Listing, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	prefix := ""
	if folderID != "" {
		prefix = a.key(folderID) + "/"
	} else if a.prefix != "" {
		prefix = a.prefix + "/"
	}

	input := &awsS3.ListObjectsV2Input{
		Bucket:    aws.String(a.bucket),
		Prefix:    aws.String(prefix),
		Delimiter: aws.String("/"),
	}
	if pageToken != "" {
		input.ContinuationToken = aws.String(pageToken)
	}
	if limit > 0 {
		input.MaxKeys = aws.Int32(int32(limit))
	}

	page, err := a.client.ListObjectsV2(ctx, input)
	if err != nil {
		return nil, provider.NewError(backendType, "list", folderID, provider.CodeIO, "ListObjectsV2 failed", err)
	}

	listing := &provider.Listing{}
	for _, cp := range page.CommonPrefixes {
		full := strings.TrimSuffix(aws.ToString(cp.Prefix), "/")
		name := path.Base(full)
		listing.Folders = append(listing.Folders, provider.RemoteFolder{
			RemoteID: childID(folderID, name),
			Name:     name,
		})
	}
	for _, obj := range page.Contents {
		key := aws.ToString(obj.Key)
		if strings.HasSuffix(key, folderMarkerSuffix) {
			continue // folder markers are not files
		}
		name := path.Base(key)
		listing.Files = append(listing.Files, provider.RemoteFile{
			RemoteID: childID(folderID, name),
			Name:     name,
			Size:     aws.ToInt64(obj.Size),
			MimeType: mime.TypeByExtension(path.Ext(name)),
			Modified: aws.ToTime(obj.LastModified),
		})
	}

	listing.NextPageToken = aws.ToString(page.NextContinuationToken)
	return listing, nil
}

func (a *Adapter) GetFileMetadata(ctx context.Context, remoteID string) (*provider.RemoteFile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	head, err := a.client.HeadObject(ctx, &awsS3.HeadObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(a.key(remoteID)),
	})
	if err != nil {
		return nil, provider.NewError(backendType, "get_file_metadata", remoteID, provider.CodeNotFound, "HeadObject failed", err)
	}

	name := path.Base(remoteID)
	return &provider.RemoteFile{
		RemoteID: remoteID,
		Name:     name,
		Size:     aws.ToInt64(head.ContentLength),
		MimeType: aws.ToString(head.ContentType),
		Modified: aws.ToTime(head.LastModified),
	}, nil
}

func (a *Adapter) GetFolderMetadata(ctx context.Context, remoteID string) (*provider.RemoteFolder, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// A folder exists when any key lives under its prefix.
	page, err := a.client.ListObjectsV2(ctx, &awsS3.ListObjectsV2Input{
		Bucket:  aws.String(a.bucket),
		Prefix:  aws.String(a.key(remoteID) + "/"),
		MaxKeys: aws.Int32(1),
	})
	if err != nil {
		return nil, provider.NewError(backendType, "get_folder_metadata", remoteID, provider.CodeIO, "ListObjectsV2 failed", err)
	}
	if aws.ToInt32(page.KeyCount) == 0 {
		return nil, provider.NewError(backendType, "get_folder_metadata", remoteID, provider.CodeNotFound, "folder not found", nil)
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
		ID:          a.bucket,
		DisplayName: "S3 bucket " + a.bucket,
	}, nil
}

func (a *Adapter) Cleanup(ctx context.Context) error {
	// The SDK client pools HTTP connections; nothing held per instance.
	return nil
}
