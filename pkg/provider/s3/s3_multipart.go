package s3

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsS3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/omnidrive/omnidrive/pkg/provider"
)

// partURLTTL bounds presigned part-URL validity. Generous because large
// uploads on slow links can run for a while.
const partURLTTL = 6 * time.Hour

// uploadTracker remembers open multipart uploads so Complete/Abort can
// validate the upload id they are handed.
type uploadTracker struct {
	mu      sync.Mutex
	uploads map[string]string // uploadID -> remoteID
}

func newUploadTracker() *uploadTracker {
	return &uploadTracker{uploads: make(map[string]string)}
}

func (t *uploadTracker) add(uploadID, remoteID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.uploads[uploadID] = remoteID
}

func (t *uploadTracker) remove(uploadID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.uploads, uploadID)
}

// BeginMultipart opens a multipart upload and presigns one UploadPart URL
// per chunk so the client can push parts straight to the bucket.
func (a *Adapter) BeginMultipart(ctx context.Context, name, parentID string, totalSize, partSize int64) (*provider.MultipartUpload, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	remoteID := childID(parentID, name)
	key := a.key(remoteID)

	created, err := a.client.CreateMultipartUpload(ctx, &awsS3.CreateMultipartUploadInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, provider.NewError(backendType, "begin_multipart", remoteID, provider.CodeIO, "CreateMultipartUpload failed", err)
	}
	uploadID := aws.ToString(created.UploadId)

	partCount := int(totalSize / partSize)
	if totalSize%partSize != 0 || partCount == 0 {
		partCount++
	}

	parts := make([]provider.PartDescriptor, 0, partCount)
	for n := 1; n <= partCount; n++ {
		req, err := a.presign.PresignUploadPart(ctx, &awsS3.UploadPartInput{
			Bucket:     aws.String(a.bucket),
			Key:        aws.String(key),
			UploadId:   aws.String(uploadID),
			PartNumber: aws.Int32(int32(n)),
		}, func(o *awsS3.PresignOptions) {
			o.Expires = partURLTTL
		})
		if err != nil {
			// Do not leave the half-created upload dangling.
			_ = a.AbortMultipart(ctx, remoteID, uploadID)
			return nil, provider.NewError(backendType, "begin_multipart", remoteID, provider.CodeIO, "presign part failed", err)
		}
		parts = append(parts, provider.PartDescriptor{PartNumber: n, URL: req.URL})
	}

	a.uploads.add(uploadID, remoteID)

	return &provider.MultipartUpload{
		RemoteID: remoteID,
		UploadID: uploadID,
		Parts:    parts,
	}, nil
}

// CompleteMultipart assembles the reported parts into the final object.
func (a *Adapter) CompleteMultipart(ctx context.Context, remoteID, uploadID string, parts []provider.CompletedPart) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	completed := make([]types.CompletedPart, len(parts))
	for i, p := range parts {
		completed[i] = types.CompletedPart{
			PartNumber: aws.Int32(int32(p.PartNumber)),
			ETag:       aws.String(p.ETag),
		}
	}
	sort.Slice(completed, func(i, j int) bool {
		return aws.ToInt32(completed[i].PartNumber) < aws.ToInt32(completed[j].PartNumber)
	})

	_, err := a.client.CompleteMultipartUpload(ctx, &awsS3.CompleteMultipartUploadInput{
		Bucket:          aws.String(a.bucket),
		Key:             aws.String(a.key(remoteID)),
		UploadId:        aws.String(uploadID),
		MultipartUpload: &types.CompletedMultipartUpload{Parts: completed},
	})
	if err != nil {
		return provider.NewError(backendType, "complete_multipart", remoteID, provider.CodeIO, "CompleteMultipartUpload failed", err)
	}

	a.uploads.remove(uploadID)
	return nil
}

// AbortMultipart releases a partial upload. Idempotent: aborting an
// already-gone upload succeeds.
func (a *Adapter) AbortMultipart(ctx context.Context, remoteID, uploadID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	_, err := a.client.AbortMultipartUpload(ctx, &awsS3.AbortMultipartUploadInput{
		Bucket:   aws.String(a.bucket),
		Key:      aws.String(a.key(remoteID)),
		UploadId: aws.String(uploadID),
	})
	if err != nil {
		var noSuchUpload *types.NoSuchUpload
		if !errors.As(err, &noSuchUpload) {
			return provider.NewError(backendType, "abort_multipart", remoteID, provider.CodeIO, "AbortMultipartUpload failed", err)
		}
	}

	a.uploads.remove(uploadID)
	return nil
}
