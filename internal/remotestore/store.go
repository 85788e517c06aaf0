package remotestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/trackmate/server/internal/record"
	apperrors "github.com/trackmate/server/internal/shared/errors"
	"github.com/trackmate/server/internal/shared/metrics"
)

// userDocumentRow is the cloud-side storage shape. Like the local cache it
// keeps the whole document as one JSON payload, plus the last-write timestamp
// pulled out as a column so the stale-write guard can compare without
// decoding.
type userDocumentRow struct {
	UserID      string `gorm:"primaryKey;column:user_id"`
	Payload     []byte `gorm:"column:payload;type:jsonb"`
	LastUpdated int64  `gorm:"column:last_updated"`
	UpdatedAt   time.Time
}

func (userDocumentRow) TableName() string {
	return "user_documents"
}

// Store persists user documents and broadcasts change notifications over
// redis pub/sub. Writes go through a circuit breaker so a struggling
// database fails fast instead of piling up blocked mutations.
type Store struct {
	db      *gorm.DB
	rdb     redis.UniversalClient
	breaker *gobreaker.CircuitBreaker[int64]
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// New builds a Store. AutoMigrate keeps the table shape current.
func New(db *gorm.DB, rdb redis.UniversalClient, logger *zap.Logger, m *metrics.Metrics) (*Store, error) {
	if err := db.AutoMigrate(&userDocumentRow{}); err != nil {
		return nil, fmt.Errorf("migrate user documents: %w", err)
	}

	breaker := gobreaker.NewCircuitBreaker[int64](gobreaker.Settings{
		Name:    "remote-write",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("remote write breaker state change",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})

	return &Store{db: db, rdb: rdb, breaker: breaker, logger: logger, metrics: m}, nil
}

// Fetch loads a user's document. Missing users get apperrors.ErrNotFound.
func (s *Store) Fetch(ctx context.Context, userID string) (*record.UserDocument, error) {
	var row userDocumentRow
	err := s.db.WithContext(ctx).First(&row, "user_id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetch document: %w", err)
	}

	doc := record.NewUserDocument()
	if err := json.Unmarshal(row.Payload, doc); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return doc, nil
}

// Write persists the document with a fresh last-write timestamp and notifies
// subscribers. The written timestamp is returned so the caller can recognize
// the echo of its own write coming back over pub/sub.
func (s *Store) Write(ctx context.Context, userID string, doc *record.UserDocument) (int64, error) {
	stamp, err := s.breaker.Execute(func() (int64, error) {
		return s.write(ctx, userID, doc)
	})
	if err != nil {
		s.countWrite("error")
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return 0, fmt.Errorf("remote store unavailable: %w", err)
		}
		return 0, err
	}
	s.countWrite("ok")

	s.publish(ctx, userID, stamp)
	return stamp, nil
}

func (s *Store) write(ctx context.Context, userID string, doc *record.UserDocument) (int64, error) {
	stamp := time.Now().UnixMilli()
	// The caller's document is not touched; the stamp goes into a private
	// copy and comes back as the return value.
	stamped := doc.Clone()
	stamped.LastUpdated = stamp

	payload, err := json.Marshal(stamped)
	if err != nil {
		return 0, fmt.Errorf("encode document: %w", err)
	}

	row := userDocumentRow{
		UserID:      userID,
		Payload:     payload,
		LastUpdated: stamp,
		UpdatedAt:   time.Now(),
	}
	err = s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"payload", "last_updated", "updated_at"}),
		}).
		Create(&row).Error
	if err != nil {
		return 0, fmt.Errorf("write document: %w", err)
	}
	return stamp, nil
}

// Replace overwrites only the activity data and leave catalog of a user's
// document, keeping team fields and any extra keys intact. Used by the reset
// flow.
func (s *Store) Replace(ctx context.Context, userID string, yearlyData map[string]*record.YearRecord, leaveTypes []record.LeaveType) (int64, error) {
	existing, err := s.Fetch(ctx, userID)
	if errors.Is(err, apperrors.ErrNotFound) {
		existing = record.NewUserDocument()
	} else if err != nil {
		return 0, err
	}

	existing.YearlyData = record.CloneYearlyData(yearlyData)
	existing.LeaveTypes = append([]record.LeaveType(nil), leaveTypes...)
	return s.Write(ctx, userID, existing)
}

func (s *Store) countWrite(outcome string) {
	if s.metrics != nil {
		s.metrics.RemoteWritesTotal.WithLabelValues(outcome).Inc()
	}
}

// publish failures are logged, not returned: the write itself succeeded and
// subscribers will reconcile on their next full fetch.
func (s *Store) publish(ctx context.Context, userID string, stamp int64) {
	event := ChangeEvent{UserID: userID, LastUpdated: stamp}
	payload, err := json.Marshal(event)
	if err != nil {
		s.logger.Error("encode change event", zap.Error(err))
		return
	}
	if err := s.rdb.Publish(ctx, documentChannel(userID), payload).Err(); err != nil {
		s.logger.Warn("publish change event",
			zap.String("user_id", userID),
			zap.Error(err))
	}
}
