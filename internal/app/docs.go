package app

import (
	"context"
	"io"
	"net/http"

	"carelink/api/internal/docs"
)

// DocumentsEnabled reports whether object storage is configured.
func (s *Service) DocumentsEnabled() bool {
	return s.docs != nil
}

func (s *Service) docsService() (*docs.Service, error) {
	if s.docs == nil {
		return nil, domainError(http.StatusServiceUnavailable, "DOCS_UNAVAILABLE", "Document storage not configured", nil)
	}
	return s.docs, nil
}

func (s *Service) UploadClientDocument(ctx context.Context, session Session, clientID, fileName, contentType string, size int64, body io.Reader) (docs.Document, error) {
	svc, err := s.docsService()
	if err != nil {
		return docs.Document{}, err
	}
	client, err := s.loadScopedClient(ctx, session, clientID)
	if err != nil {
		return docs.Document{}, err
	}
	return svc.Upload(ctx, client.BranchID, client.ID, fileName, contentType, size, body)
}

func (s *Service) ListClientDocuments(ctx context.Context, session Session, clientID string) ([]docs.Document, error) {
	svc, err := s.docsService()
	if err != nil {
		return nil, err
	}
	client, err := s.loadScopedClient(ctx, session, clientID)
	if err != nil {
		return nil, err
	}
	return svc.List(ctx, client.BranchID, client.ID)
}

// DownloadDocument streams a stored document. The key is prefix-checked
// against the caller's branch inside the docs service.
func (s *Service) DownloadDocument(ctx context.Context, session Session, key string) (io.ReadCloser, docs.Document, error) {
	svc, err := s.docsService()
	if err != nil {
		return nil, docs.Document{}, err
	}
	return svc.Download(ctx, session.BranchID, key)
}

func (s *Service) DeleteDocument(ctx context.Context, session Session, key string) error {
	svc, err := s.docsService()
	if err != nil {
		return err
	}
	return svc.Delete(ctx, session.BranchID, key)
}
