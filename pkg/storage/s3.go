package storage

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"path"
	"sort"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// S3Config holds connection settings for an S3-compatible object store
type S3Config struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	UseSSL    bool   `yaml:"use_ssl"`
}

// ObjectClient is the subset of the minio client used by S3
type ObjectClient interface {
	ListObjects(ctx context.Context, bucketName string, opts minio.ListObjectsOptions) <-chan minio.ObjectInfo
	GetObject(ctx context.Context, bucketName, objectName string, opts minio.GetObjectOptions) (*minio.Object, error)
	StatObject(ctx context.Context, bucketName, objectName string, opts minio.StatObjectOptions) (minio.ObjectInfo, error)
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// S3 is a storage backend over one bucket and key prefix
type S3 struct {
	client ObjectClient
	bucket string
	prefix string
}

// NewS3 connects to the object store described by cfg. The prefix anchors
// every relative path the backend is given.
func NewS3(cfg S3Config, prefix string) (*S3, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket is required")
	}

	endpoint := strings.TrimPrefix(cfg.Endpoint, "http://")
	endpoint = strings.TrimPrefix(endpoint, "https://")

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create object store client: %w", err)
	}

	return NewS3WithClient(client, cfg.Bucket, prefix), nil
}

// NewS3WithClient builds a backend around an existing client
func NewS3WithClient(client ObjectClient, bucket, prefix string) *S3 {
	return &S3{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
	}
}

// ParseS3URL splits s3://bucket/key into its bucket and key
func ParseS3URL(raw string) (bucket, key string, err error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", fmt.Errorf("invalid object URL %q: %w", raw, err)
	}
	if u.Scheme != "s3" || u.Host == "" {
		return "", "", fmt.Errorf("invalid object URL %q: want s3://bucket/key", raw)
	}
	return u.Host, strings.TrimPrefix(u.Path, "/"), nil
}

func (s *S3) key(p string) string {
	p = strings.TrimPrefix(path.Clean("/"+p), "/")
	if s.prefix == "" {
		return p
	}
	if p == "" {
		return s.prefix
	}
	return s.prefix + "/" + p
}

func (s *S3) rel(key string) string {
	if s.prefix == "" {
		return key
	}
	return strings.TrimPrefix(strings.TrimPrefix(key, s.prefix), "/")
}

// Root returns the s3:// location of the backend
func (s *S3) Root() string {
	return "s3://" + s.bucket + "/" + s.prefix
}

// List returns every object below p, sorted by relative path
func (s *S3) List(ctx context.Context, p string) ([]FileInfo, error) {
	prefix := s.key(p)
	if prefix != "" {
		prefix += "/"
	}

	var files []FileInfo
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("failed to list objects: %w", obj.Err)
		}
		if strings.HasSuffix(obj.Key, "/") {
			continue
		}
		files = append(files, FileInfo{
			Path:         "s3://" + s.bucket + "/" + obj.Key,
			Size:         obj.Size,
			ModTime:      obj.LastModified,
			RelativePath: s.rel(obj.Key),
		})
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].RelativePath < files[j].RelativePath
	})
	return files, nil
}

// Read opens an object for reading
func (s *S3) Read(ctx context.Context, p string) (io.ReadCloser, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, s.key(p), minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to open object: %w", err)
	}
	return obj, nil
}

// Write uploads an object
func (s *S3) Write(ctx context.Context, p string, reader io.Reader, size int64, metadata *FileInfo) error {
	if _, err := s.client.PutObject(ctx, s.bucket, s.key(p), reader, size, minio.PutObjectOptions{}); err != nil {
		return fmt.Errorf("failed to upload object: %w", err)
	}
	return nil
}

// Stat returns object metadata
func (s *S3) Stat(ctx context.Context, p string) (*FileInfo, error) {
	info, err := s.client.StatObject(ctx, s.bucket, s.key(p), minio.StatObjectOptions{})
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, fmt.Errorf("object %s: %w", s.key(p), fs.ErrNotExist)
		}
		return nil, fmt.Errorf("failed to stat object: %w", err)
	}
	return &FileInfo{
		Path:         "s3://" + s.bucket + "/" + info.Key,
		Size:         info.Size,
		ModTime:      info.LastModified,
		RelativePath: s.rel(info.Key),
	}, nil
}

// Close releases resources (the minio client holds none)
func (s *S3) Close() error {
	return nil
}
