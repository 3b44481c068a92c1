// Package s3util stores relayed videos in S3 or an S3-compatible object
// store and builds their public URLs.
package s3util

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/rs/zerolog/log"

	"github.com/fpang/channel-video-relay/internal/media"
)

// API is the subset of *s3.Client used by Uploader.
type API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

// Object is one upload. Size may be -1 when unknown.
type Object struct {
	Key         string
	Body        io.Reader
	Size        int64
	ContentType string
	Metadata    map[string]string
}

// Uploader writes objects into a single bucket.
type Uploader struct {
	client        API
	bucket        string
	publicURLBase string
}

// NewUploader creates an Uploader. publicURLBase is the prefix of the
// publicly reachable object URL (e.g. https://fsn1.your-objectstorage.com/bucket).
func NewUploader(client API, bucket, publicURLBase string) *Uploader {
	return &Uploader{
		client:        client,
		bucket:        bucket,
		publicURLBase: strings.TrimRight(publicURLBase, "/"),
	}
}

// Bucket returns the target bucket name.
func (u *Uploader) Bucket() string { return u.bucket }

// PublicURL returns the public URL of key.
func (u *Uploader) PublicURL(key string) string {
	return u.publicURLBase + "/" + key
}

// Upload writes obj with a single PutObject call. Re-uploading the same key
// overwrites the previous object.
func (u *Uploader) Upload(ctx context.Context, obj Object) (media.TransferResult, error) {
	input := &s3.PutObjectInput{
		Bucket:      &u.bucket,
		Key:         &obj.Key,
		Body:        obj.Body,
		ContentType: &obj.ContentType,
		Metadata:    obj.Metadata,
		Tagging:     ProjectTagging(),
	}
	if obj.Size >= 0 {
		input.ContentLength = aws.Int64(obj.Size)
	}

	log.Debug().
		Str("bucket", u.bucket).
		Str("key", obj.Key).
		Int64("size", obj.Size).
		Str("contentType", obj.ContentType).
		Msg("Uploading to S3")

	if _, err := u.client.PutObject(ctx, input); err != nil {
		return media.TransferResult{}, fmt.Errorf("S3 PutObject %s: %w", obj.Key, err)
	}

	result := media.TransferResult{
		Key:    obj.Key,
		URL:    u.PublicURL(obj.Key),
		Bucket: u.bucket,
	}
	log.Info().Str("key", obj.Key).Str("url", result.URL).Msg("Object uploaded to S3")
	return result, nil
}

// Exists reports whether key is present in the bucket.
func (u *Uploader) Exists(ctx context.Context, key string) (bool, error) {
	_, err := u.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: &u.bucket, Key: &key})
	if err == nil {
		return true, nil
	}
	var respErr interface{ HTTPStatusCode() int }
	if errors.As(err, &respErr) && respErr.HTTPStatusCode() == http.StatusNotFound {
		return false, nil
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && (apiErr.ErrorCode() == "NotFound" || apiErr.ErrorCode() == "NoSuchKey") {
		return false, nil
	}
	return false, fmt.Errorf("S3 HeadObject %s: %w", key, err)
}
