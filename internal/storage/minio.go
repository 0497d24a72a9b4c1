package storage

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"os"
	"path"
	"path/filepath"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/autopeer-io/mfrhal/pkg/log"
	"github.com/autopeer-io/mfrhal/pkg/mfr"
	"github.com/autopeer-io/mfrhal/pkg/options"
)

type minioProvider struct {
	client     *minio.Client
	bucketName string
	dir        string
	log        log.Logger
}

// NewMinIOProvider creates a Provider backed by an S3 compatible service.
func NewMinIOProvider(opts *options.S3Options) (Provider, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if opts.InsecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	minioOpts := &minio.Options{
		Creds:     credentials.NewStaticV4(opts.AccessKeyID, opts.SecretAccessKey, ""),
		Secure:    opts.UseSSL,
		Region:    opts.Region,
		Transport: transport,
	}

	client, err := minio.New(opts.Endpoint, minioOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	return &minioProvider{
		client:     client,
		bucketName: opts.BucketName,
		dir:        opts.DownloadDir,
		log:        log.WithName("storage"),
	}, nil
}

// Fetch stores the object under its base name in the download directory,
// replacing an earlier copy.
func (p *minioProvider) Fetch(ctx context.Context, objectKey string) (string, string, error) {
	name := path.Base(objectKey)
	if objectKey == "" || name == "." || name == "/" || name == ".." {
		return "", "", fmt.Errorf("%w: invalid object key %q", mfr.InvalidParam, objectKey)
	}

	if err := os.MkdirAll(p.dir, 0o755); err != nil {
		return "", "", fmt.Errorf("%w: %w", mfr.General, err)
	}
	dest := filepath.Join(p.dir, name)
	if err := os.Remove(dest); err != nil && !os.IsNotExist(err) {
		return "", "", fmt.Errorf("%w: %w", mfr.General, err)
	}

	p.log.Info("Fetching image", "bucket", p.bucketName, "object", objectKey, "dest", dest)
	if err := p.client.FGetObject(ctx, p.bucketName, objectKey, dest, minio.GetObjectOptions{}); err != nil {
		return "", "", fmt.Errorf("%w: failed to fetch %s/%s: %w", mfr.General, p.bucketName, objectKey, err)
	}

	return p.dir, name, nil
}
