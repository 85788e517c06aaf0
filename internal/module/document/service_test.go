package document

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/trackmate/server/internal/record"
	apperrors "github.com/trackmate/server/internal/shared/errors"
)

type fakeStore struct {
	docs  map[string]*record.UserDocument
	stamp int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{docs: make(map[string]*record.UserDocument)}
}

func (f *fakeStore) Fetch(ctx context.Context, userID string) (*record.UserDocument, error) {
	doc, ok := f.docs[userID]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return doc.Clone(), nil
}

func (f *fakeStore) Write(ctx context.Context, userID string, doc *record.UserDocument) (int64, error) {
	f.stamp++
	f.docs[userID] = doc.Clone()
	return f.stamp, nil
}

type fakeArchiver struct {
	lastUser string
	err      error
}

func (f *fakeArchiver) Archive(ctx context.Context, userID string, doc *record.UserDocument) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.lastUser = userID
	return "backups/" + userID + "/snap.csv", nil
}

func TestServiceGet_MissingDocumentIsEmpty(t *testing.T) {
	s := NewService(newFakeStore(), nil, zap.NewNop())

	doc, err := s.Get(context.Background(), "u1")
	require.NoError(t, err)
	assert.Empty(t, doc.YearlyData)
}

func TestServiceImportCSV_MergesUnderExisting(t *testing.T) {
	store := newFakeStore()
	existing := record.NewUserDocument()
	existing.Year("2025").Day("2025-01-01").Note = "mine"
	store.docs["u1"] = existing

	s := NewService(store, nil, zap.NewNop())

	csv := strings.Join([]string{
		"Type,Detail1,Detail2,Detail3,Detail4",
		"NOTE,2025-01-01,imported conflict,,",
		"NOTE,2025-01-02,imported new,,",
	}, "\n")

	processed, err := s.ImportCSV(context.Background(), "u1", strings.NewReader(csv))
	require.NoError(t, err)
	assert.Equal(t, 2, processed)

	saved := store.docs["u1"]
	assert.Equal(t, "mine", saved.Year("2025").Day("2025-01-01").Note)
	assert.Equal(t, "imported new", saved.Year("2025").Day("2025-01-02").Note)
}

func TestServiceExportCSV_RoundTrips(t *testing.T) {
	store := newFakeStore()
	doc := record.NewUserDocument()
	doc.LeaveTypes = []record.LeaveType{{ID: "annual", Name: "Annual", TotalDays: 20}}
	doc.Year("2025").Day("2025-01-01").Note = "exported"
	store.docs["u1"] = doc

	s := NewService(store, nil, zap.NewNop())

	data, err := s.ExportCSV(context.Background(), "u1")
	require.NoError(t, err)

	back, _, err := record.ImportCSV(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, "exported", back.Year("2025").Day("2025-01-01").Note)
	assert.Equal(t, doc.LeaveTypes, back.LeaveTypes)
}

func TestServiceBackup(t *testing.T) {
	t.Run("disabled without archiver", func(t *testing.T) {
		s := NewService(newFakeStore(), nil, zap.NewNop())
		_, err := s.Backup(context.Background(), "u1")
		assert.ErrorIs(t, err, apperrors.ErrNotFound)
	})

	t.Run("archives current document", func(t *testing.T) {
		archiver := &fakeArchiver{}
		s := NewService(newFakeStore(), archiver, zap.NewNop())

		key, err := s.Backup(context.Background(), "u1")
		require.NoError(t, err)
		assert.Equal(t, "backups/u1/snap.csv", key)
		assert.Equal(t, "u1", archiver.lastUser)
	})

	t.Run("upload failure surfaces as internal", func(t *testing.T) {
		archiver := &fakeArchiver{err: errors.New("s3 down")}
		s := NewService(newFakeStore(), archiver, zap.NewNop())

		_, err := s.Backup(context.Background(), "u1")
		var appErr *apperrors.AppError
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, "internal", appErr.Kind)
	})
}
