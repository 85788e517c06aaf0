package team

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

// ErrRowNotFound is the repository-level missing-row signal; the service
// maps it to the caller-facing error kind per operation.
var ErrRowNotFound = errors.New("row not found")

// Repository is the storage surface for teams, users and member summaries.
// All mutating service operations run inside a transaction: BeginTx opens
// one and WithTx binds a repository view to it.
type Repository interface {
	BeginTx() *gorm.DB
	WithTx(tx *gorm.DB) Repository

	GetTeam(ctx context.Context, roomCode string) (*Team, error)
	CreateTeam(ctx context.Context, team *Team) error
	SaveTeam(ctx context.Context, team *Team) error
	DeleteTeam(ctx context.Context, roomCode string) error

	GetUser(ctx context.Context, userID string) (*UserRecord, error)
	SaveUser(ctx context.Context, user *UserRecord) error

	UpsertSummary(ctx context.Context, summary *MemberSummary) error
	DeleteSummary(ctx context.Context, teamID, userID string) error
	DeleteTeamSummaries(ctx context.Context, teamID string) error
	ListSummaries(ctx context.Context, teamID string) ([]MemberSummary, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds the gorm-backed repository and migrates its tables.
func NewRepository(db *gorm.DB) (Repository, error) {
	if err := db.AutoMigrate(&Team{}, &UserRecord{}, &MemberSummary{}); err != nil {
		return nil, err
	}
	return &repository{db: db}, nil
}

func (r *repository) BeginTx() *gorm.DB {
	return r.db.Begin()
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	return &repository{db: tx}
}

func (r *repository) GetTeam(ctx context.Context, roomCode string) (*Team, error) {
	var team Team
	err := r.db.WithContext(ctx).First(&team, "room_code = ?", roomCode).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRowNotFound
	}
	if err != nil {
		return nil, err
	}
	return &team, nil
}

func (r *repository) CreateTeam(ctx context.Context, team *Team) error {
	return r.db.WithContext(ctx).Create(team).Error
}

func (r *repository) SaveTeam(ctx context.Context, team *Team) error {
	return r.db.WithContext(ctx).Save(team).Error
}

func (r *repository) DeleteTeam(ctx context.Context, roomCode string) error {
	return r.db.WithContext(ctx).Delete(&Team{}, "room_code = ?", roomCode).Error
}

func (r *repository) GetUser(ctx context.Context, userID string) (*UserRecord, error) {
	var user UserRecord
	err := r.db.WithContext(ctx).First(&user, "user_id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRowNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *repository) SaveUser(ctx context.Context, user *UserRecord) error {
	return r.db.WithContext(ctx).Save(user).Error
}

func (r *repository) UpsertSummary(ctx context.Context, summary *MemberSummary) error {
	return r.db.WithContext(ctx).Save(summary).Error
}

func (r *repository) DeleteSummary(ctx context.Context, teamID, userID string) error {
	return r.db.WithContext(ctx).
		Delete(&MemberSummary{}, "team_id = ? AND user_id = ?", teamID, userID).Error
}

func (r *repository) DeleteTeamSummaries(ctx context.Context, teamID string) error {
	return r.db.WithContext(ctx).Delete(&MemberSummary{}, "team_id = ?", teamID).Error
}

func (r *repository) ListSummaries(ctx context.Context, teamID string) ([]MemberSummary, error) {
	var summaries []MemberSummary
	err := r.db.WithContext(ctx).
		Where("team_id = ?", teamID).
		Order("user_id").
		Find(&summaries).Error
	return summaries, err
}
