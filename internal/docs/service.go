// Package docs stores client documents (assessments, consent forms, scanned
// letters) in S3-compatible object storage.
package docs

import (
	"context"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
	"time"

	"carelink/api/internal/util"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Config holds object storage connection settings.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// Document describes one stored object.
type Document struct {
	Key         string    `json:"key"`
	FileName    string    `json:"fileName"`
	Size        int64     `json:"size"`
	ContentType string    `json:"contentType"`
	UploadedAt  time.Time `json:"uploadedAt"`
}

// Service wraps a MinIO client scoped to a single bucket.
type Service struct {
	client *minio.Client
	bucket string
}

// NewService connects to object storage and ensures the bucket exists.
func NewService(ctx context.Context, cfg Config) (*Service, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	s := &Service{client: client, bucket: cfg.Bucket}
	if err := s.ensureBucket(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Service) ensureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", s.bucket, err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("create bucket %s: %w", s.bucket, err)
	}
	return nil
}

// objectKey builds branch-scoped keys so listing stays tenant-safe:
// <branchID>/<clientID>/<random>_<filename>.
func objectKey(branchID, clientID, fileName string) string {
	clean := strings.ReplaceAll(path.Base(fileName), " ", "_")
	return branchID + "/" + clientID + "/" + util.NewID("doc") + "_" + clean
}

// Upload stores a document and returns its key.
func (s *Service) Upload(ctx context.Context, branchID, clientID, fileName, contentType string, size int64, body io.Reader) (Document, error) {
	key := objectKey(branchID, clientID, fileName)
	info, err := s.client.PutObject(ctx, s.bucket, key, body, size, minio.PutObjectOptions{
		ContentType: contentType,
		UserMetadata: map[string]string{
			"filename": fileName,
		},
	})
	if err != nil {
		return Document{}, fmt.Errorf("upload document: %w", err)
	}
	return Document{
		Key:         key,
		FileName:    fileName,
		Size:        info.Size,
		ContentType: contentType,
		UploadedAt:  time.Now(),
	}, nil
}

// Download streams a stored document. Callers must close the reader.
func (s *Service) Download(ctx context.Context, branchID, key string) (io.ReadCloser, Document, error) {
	if !strings.HasPrefix(key, branchID+"/") {
		return nil, Document{}, fmt.Errorf("document not found")
	}
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, Document{}, fmt.Errorf("get document: %w", err)
	}
	stat, err := obj.Stat()
	if err != nil {
		obj.Close()
		return nil, Document{}, fmt.Errorf("stat document: %w", err)
	}
	return obj, Document{
		Key:         key,
		FileName:    fileNameFromKey(key, stat.UserMetadata["Filename"]),
		Size:        stat.Size,
		ContentType: stat.ContentType,
		UploadedAt:  stat.LastModified,
	}, nil
}

// List returns the documents stored for one client, newest first.
func (s *Service) List(ctx context.Context, branchID, clientID string) ([]Document, error) {
	prefix := branchID + "/" + clientID + "/"
	items := make([]Document, 0)
	for object := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}) {
		if object.Err != nil {
			return nil, fmt.Errorf("list documents: %w", object.Err)
		}
		items = append(items, Document{
			Key:         object.Key,
			FileName:    fileNameFromKey(object.Key, ""),
			Size:        object.Size,
			ContentType: object.ContentType,
			UploadedAt:  object.LastModified,
		})
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].UploadedAt.After(items[j].UploadedAt)
	})
	return items, nil
}

// Delete removes a stored document.
func (s *Service) Delete(ctx context.Context, branchID, key string) error {
	if !strings.HasPrefix(key, branchID+"/") {
		return fmt.Errorf("document not found")
	}
	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	return nil
}

func fileNameFromKey(key, metaName string) string {
	if metaName != "" {
		return metaName
	}
	base := path.Base(key)
	// Strip the generated "doc_<hex>_" prefix when present.
	if idx := strings.Index(base, "_"); idx >= 0 {
		if rest := base[idx+1:]; rest != "" {
			if idx2 := strings.Index(rest, "_"); idx2 >= 0 && rest[idx2+1:] != "" {
				return rest[idx2+1:]
			}
		}
	}
	return base
}
