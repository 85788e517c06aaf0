package document

import (
	"context"
	"errors"
	"io"

	"go.uber.org/zap"

	"github.com/trackmate/server/internal/record"
	apperrors "github.com/trackmate/server/internal/shared/errors"
)

// Store is the document persistence surface the service needs.
type Store interface {
	Fetch(ctx context.Context, userID string) (*record.UserDocument, error)
	Write(ctx context.Context, userID string, doc *record.UserDocument) (int64, error)
}

// Archiver uploads CSV snapshots. Nil disables backups.
type Archiver interface {
	Archive(ctx context.Context, userID string, doc *record.UserDocument) (string, error)
}

// Service exposes a user's own document: fetch, replace, CSV interchange and
// snapshot backup.
type Service struct {
	store    Store
	archiver Archiver
	logger   *zap.Logger
}

// NewService builds the document service. archiver may be nil.
func NewService(store Store, archiver Archiver, logger *zap.Logger) *Service {
	return &Service{store: store, archiver: archiver, logger: logger}
}

// Get returns the caller's document, empty when none has been written yet.
func (s *Service) Get(ctx context.Context, userID string) (*record.UserDocument, error) {
	doc, err := s.store.Fetch(ctx, userID)
	if errors.Is(err, apperrors.ErrNotFound) {
		return record.NewUserDocument(), nil
	}
	if err != nil {
		return nil, apperrors.Internal("could not load document", err)
	}
	return doc, nil
}

// Put overwrites the caller's document and returns the write timestamp.
func (s *Service) Put(ctx context.Context, userID string, doc *record.UserDocument) (int64, error) {
	stamp, err := s.store.Write(ctx, userID, doc)
	if err != nil {
		return 0, apperrors.Internal("could not save document", err)
	}
	return stamp, nil
}

// ExportCSV renders the caller's document in the interchange format.
func (s *Service) ExportCSV(ctx context.Context, userID string) ([]byte, error) {
	doc, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	data, err := record.ExportCSV(doc)
	if err != nil {
		return nil, apperrors.Internal("could not render export", err)
	}
	return data, nil
}

// ImportCSV parses an interchange file, merges it under the caller's existing
// data (existing data wins on conflict) and persists the result. Returns the
// number of imported rows.
func (s *Service) ImportCSV(ctx context.Context, userID string, r io.Reader) (int, error) {
	imported, processed, err := record.ImportCSV(r)
	if err != nil {
		return 0, apperrors.InvalidArgument("could not parse CSV file")
	}

	existing, err := s.Get(ctx, userID)
	if err != nil {
		return 0, err
	}

	merged := record.MergeUserDocuments(existing, imported)
	if _, err := s.Put(ctx, userID, merged); err != nil {
		return 0, err
	}

	s.logger.Info("document import",
		zap.String("user_id", userID),
		zap.Int("rows", processed))
	return processed, nil
}

// Backup archives the caller's current document to object storage.
func (s *Service) Backup(ctx context.Context, userID string) (string, error) {
	if s.archiver == nil {
		return "", apperrors.NotFound("backups are not enabled")
	}

	doc, err := s.Get(ctx, userID)
	if err != nil {
		return "", err
	}
	key, err := s.archiver.Archive(ctx, userID, doc)
	if err != nil {
		return "", apperrors.Internal("could not archive snapshot", err)
	}
	return key, nil
}
