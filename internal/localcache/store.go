package localcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/trackmate/server/internal/record"
)

// PersistenceError wraps a failed cache operation so callers can distinguish
// storage trouble from bad input.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("localcache %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// documentRow is the single-row-per-user storage shape. The whole document is
// one JSON payload; the cache never queries inside it.
type documentRow struct {
	UserID    string `gorm:"primaryKey;column:user_id"`
	Payload   []byte `gorm:"column:payload"`
	UpdatedAt time.Time
}

func (documentRow) TableName() string {
	return "user_documents"
}

// Store is the on-disk document cache backing offline reads and pending
// writes.
type Store struct {
	db     *gorm.DB
	logger *zap.Logger
}

// Open opens (or creates) the cache database at path. Use ":memory:" for an
// ephemeral cache.
func Open(path string, logger *zap.Logger) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, &PersistenceError{Op: "open", Err: err}
	}
	if err := db.AutoMigrate(&documentRow{}); err != nil {
		return nil, &PersistenceError{Op: "migrate", Err: err}
	}
	return &Store{db: db, logger: logger}, nil
}

// Load reads a user's cached document. A user with no cached row gets a
// fresh empty document, after running the legacy-layout migration on
// whatever shape is found.
func (s *Store) Load(ctx context.Context, userID string) (*record.UserDocument, error) {
	var row documentRow
	err := s.db.WithContext(ctx).First(&row, "user_id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return record.NewUserDocument(), nil
	}
	if err != nil {
		return nil, &PersistenceError{Op: "load", Err: err}
	}

	doc := record.NewUserDocument()
	if err := json.Unmarshal(row.Payload, doc); err != nil {
		return nil, &PersistenceError{Op: "decode", Err: err}
	}

	if migrated := MigrateLegacyLayout(doc); migrated > 0 {
		s.logger.Info("migrated legacy cache layout",
			zap.String("user_id", userID),
			zap.Int("days", migrated))
		if err := s.Save(ctx, userID, doc); err != nil {
			return nil, err
		}
	}
	return doc, nil
}

// Save writes the whole document, replacing any previous row for the user.
func (s *Store) Save(ctx context.Context, userID string, doc *record.UserDocument) error {
	payload, err := json.Marshal(doc)
	if err != nil {
		return &PersistenceError{Op: "encode", Err: err}
	}

	row := documentRow{UserID: userID, Payload: payload, UpdatedAt: time.Now()}
	err = s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"payload", "updated_at"}),
		}).
		Create(&row).Error
	if err != nil {
		return &PersistenceError{Op: "save", Err: err}
	}
	return nil
}

// Delete drops a user's cached document. Used on sign-out.
func (s *Store) Delete(ctx context.Context, userID string) error {
	err := s.db.WithContext(ctx).Delete(&documentRow{}, "user_id = ?", userID).Error
	if err != nil {
		return &PersistenceError{Op: "delete", Err: err}
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
