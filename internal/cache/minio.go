package cache

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"git.home.luguber.info/inful/docgate/internal/config"
)

// MinIOStore keeps archives as objects in an S3-compatible bucket.
type MinIOStore struct {
	client *minio.Client
	bucket string
	prefix string
}

// NewMinIOStore connects to the configured endpoint and ensures the bucket exists.
func NewMinIOStore(ctx context.Context, cfg *config.MinIOConfig) (*MinIOStore, error) {
	if cfg == nil || cfg.Endpoint == "" || cfg.Bucket == "" {
		return nil, fmt.Errorf("minio cache requires endpoint and bucket")
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:     credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:    cfg.UseSSL,
		Region:    cfg.Region,
		Transport: newTransport(),
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}
	s := &MinIOStore{client: client, bucket: cfg.Bucket, prefix: strings.Trim(cfg.Prefix, "/")}
	if err := s.ensureBucket(ctx, cfg.Region); err != nil {
		return nil, fmt.Errorf("ensure cache bucket: %w", err)
	}
	return s, nil
}

func (s *MinIOStore) ensureBucket(ctx context.Context, region string) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	return s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: region})
}

func (s *MinIOStore) objectKey(key string) string {
	if s.prefix == "" {
		return key + archiveExt
	}
	return path.Join(s.prefix, key+archiveExt)
}

func (s *MinIOStore) Get(ctx context.Context, key string) (io.ReadCloser, bool, error) {
	if _, err := s.client.StatObject(ctx, s.bucket, s.objectKey(key), minio.StatObjectOptions{}); err != nil {
		if isNotFound(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	obj, err := s.client.GetObject(ctx, s.bucket, s.objectKey(key), minio.GetObjectOptions{})
	if err != nil {
		return nil, false, err
	}
	return obj, true, nil
}

func (s *MinIOStore) Put(ctx context.Context, key string, write func(io.Writer) error) (bool, error) {
	objectKey := s.objectKey(key)
	if _, err := s.client.StatObject(ctx, s.bucket, objectKey, minio.StatObjectOptions{}); err == nil {
		return false, nil
	} else if !isNotFound(err) {
		return false, err
	}

	pr, pw := io.Pipe()
	go func() {
		pw.CloseWithError(write(pw))
	}()
	_, err := s.client.PutObject(ctx, s.bucket, objectKey, pr, -1, minio.PutObjectOptions{ContentType: "application/gzip"})
	_ = pr.CloseWithError(err)
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *MinIOStore) List(ctx context.Context) ([]Entry, error) {
	prefix := s.prefix
	if prefix != "" {
		prefix += "/"
	}
	var out []Entry
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, obj.Err
		}
		name := strings.TrimPrefix(obj.Key, prefix)
		if !strings.HasSuffix(name, archiveExt) || strings.Contains(name, "/") {
			continue
		}
		out = append(out, Entry{
			Key:       strings.TrimSuffix(name, archiveExt),
			Size:      obj.Size,
			UpdatedAt: obj.LastModified,
		})
	}
	return out, nil
}

func (s *MinIOStore) Delete(ctx context.Context, key string) error {
	return s.client.RemoveObject(ctx, s.bucket, s.objectKey(key), minio.RemoveObjectOptions{})
}

func isNotFound(err error) bool {
	resp := minio.ToErrorResponse(err)
	return resp.Code == "NoSuchKey" || resp.StatusCode == http.StatusNotFound
}

func newTransport() *http.Transport {
	dialer := &net.Dialer{
		Timeout:   5 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          16,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}
