// Package storage uploads alert images to S3-compatible object storage.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/Laisky/errors/v2"
	gutils "github.com/Laisky/go-utils/v6"
	"github.com/jonboulle/clockwork"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// objectPutter is the subset of *minio.Client used here.
type objectPutter interface {
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader,
		objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// Config configures an Uploader.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	// PublicURL is prepended to "<bucket>/<key>" to build image links,
	// defaults to the endpoint.
	PublicURL string
	Prefix    string
}

// Uploader stores images and returns their public URL.
type Uploader struct {
	cli       objectPutter
	bucket    string
	publicURL string
	prefix    string
	clock     clockwork.Clock
}

// New connects to the configured endpoint.
func New(cfg Config) (*Uploader, error) {
	if cfg.Endpoint == "" || cfg.Bucket == "" {
		return nil, errors.New("s3 endpoint and bucket are required")
	}

	cli, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, errors.Wrap(err, "new minio client")
	}

	publicURL := cfg.PublicURL
	if publicURL == "" {
		scheme := "http"
		if cfg.UseSSL {
			scheme = "https"
		}
		publicURL = scheme + "://" + cfg.Endpoint
	}

	return newUploader(cli, cfg.Bucket, publicURL, cfg.Prefix, clockwork.NewRealClock()), nil
}

func newUploader(cli objectPutter, bucket, publicURL, prefix string, clock clockwork.Clock) *Uploader {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		prefix = "alerts"
	}

	return &Uploader{
		cli:       cli,
		bucket:    bucket,
		publicURL: strings.TrimRight(publicURL, "/"),
		prefix:    prefix,
		clock:     clock,
	}
}

// Upload stores cnt under a fresh key and returns its URL.
func (u *Uploader) Upload(ctx context.Context, cnt []byte, contentType string) (string, error) {
	if len(cnt) == 0 {
		return "", errors.New("empty object")
	}

	now := u.clock.Now().UTC()
	objkey := fmt.Sprintf("%s/%04d/%02d/%s%s",
		u.prefix, now.Year(), int(now.Month()), gutils.UUID7(), extension(contentType))

	if _, err := u.cli.PutObject(ctx, u.bucket, objkey,
		bytes.NewReader(cnt), int64(len(cnt)),
		minio.PutObjectOptions{ContentType: contentType},
	); err != nil {
		return "", errors.Wrapf(err, "put object %q", objkey)
	}

	return u.publicURL + "/" + u.bucket + "/" + objkey, nil
}

func extension(contentType string) string {
	switch strings.ToLower(contentType) {
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	default:
		return ""
	}
}
