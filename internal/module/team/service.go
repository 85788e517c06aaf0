package team

import (
	"context"
	"crypto/rand"
	"math/big"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/trackmate/server/internal/record"
	"github.com/trackmate/server/internal/remotestore"
	apperrors "github.com/trackmate/server/internal/shared/errors"
	"github.com/trackmate/server/internal/shared/metrics"
)

const (
	roomCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	roomCodeLength   = 8
)

// Service implements the team operations. Every mutating operation runs in
// one transaction and re-reads its preconditions inside it, so two racing
// calls cannot both pass a check that only held before the transaction.
type Service struct {
	repo    Repository
	docs    DocumentSource
	events  EventPublisher
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// NewService builds the team service. docs, events and metrics may be nil;
// summaries are then skipped or unpublished respectively.
func NewService(repo Repository, docs DocumentSource, events EventPublisher, logger *zap.Logger, m *metrics.Metrics) *Service {
	return &Service{repo: repo, docs: docs, events: events, logger: logger, metrics: m}
}

// CreateTeam opens a new team with the caller as owner and returns the
// generated room code.
func (s *Service) CreateTeam(ctx context.Context, userID string, req CreateTeamRequest) (*CreateTeamResponse, error) {
	start := time.Now()
	resp, err := s.createTeam(ctx, userID, req)
	s.recordOp("createTeam", err, start)
	return resp, err
}

func (s *Service) createTeam(ctx context.Context, userID string, req CreateTeamRequest) (*CreateTeamResponse, error) {
	teamName := strings.TrimSpace(req.TeamName)
	displayName := strings.TrimSpace(req.DisplayName)
	if userID == "" {
		return nil, apperrors.Unauthenticated("")
	}
	if teamName == "" || displayName == "" {
		return nil, apperrors.InvalidArgument("team name and display name are required")
	}

	roomCode, err := generateRoomCode()
	if err != nil {
		return nil, apperrors.Internal("could not generate room code", err)
	}

	tx := s.repo.BeginTx()
	if tx.Error != nil {
		return nil, apperrors.Internal("could not start transaction", tx.Error)
	}
	defer tx.Rollback()
	repo := s.repo.WithTx(tx)

	user, err := s.loadOrInitUser(ctx, repo, userID)
	if err != nil {
		return nil, err
	}
	if user.TeamID != "" {
		return nil, apperrors.AlreadyExists("you are already in a team")
	}

	now := time.Now()
	team := &Team{
		RoomCode: roomCode,
		Name:     teamName,
		OwnerID:  userID,
		Members: MemberMap{
			userID: {DisplayName: displayName, Role: record.TeamRoleOwner, JoinedAt: now.UnixMilli()},
		},
	}
	if err := repo.CreateTeam(ctx, team); err != nil {
		return nil, apperrors.Internal("could not create team", err)
	}

	user.DisplayName = displayName
	user.TeamID = roomCode
	user.TeamRole = record.TeamRoleOwner
	if err := repo.SaveUser(ctx, user); err != nil {
		return nil, apperrors.Internal("could not update user", err)
	}

	if err := s.refreshSummary(ctx, repo, user); err != nil {
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, apperrors.Internal("could not commit", err)
	}

	s.logger.Info("team created",
		zap.String("room_code", roomCode),
		zap.String("owner_id", userID))
	return &CreateTeamResponse{RoomCode: roomCode, TeamName: teamName}, nil
}

// JoinTeam adds the caller to an existing team by room code.
func (s *Service) JoinTeam(ctx context.Context, userID string, req JoinTeamRequest) (*JoinTeamResponse, error) {
	start := time.Now()
	resp, err := s.joinTeam(ctx, userID, req)
	s.recordOp("joinTeam", err, start)
	return resp, err
}

func (s *Service) joinTeam(ctx context.Context, userID string, req JoinTeamRequest) (*JoinTeamResponse, error) {
	roomCode := strings.ToUpper(strings.TrimSpace(req.RoomCode))
	displayName := strings.TrimSpace(req.DisplayName)
	if userID == "" {
		return nil, apperrors.Unauthenticated("")
	}
	if len(roomCode) != roomCodeLength || displayName == "" {
		return nil, apperrors.InvalidArgument("a valid room code and display name are required")
	}

	tx := s.repo.BeginTx()
	if tx.Error != nil {
		return nil, apperrors.Internal("could not start transaction", tx.Error)
	}
	defer tx.Rollback()
	repo := s.repo.WithTx(tx)

	user, err := s.loadOrInitUser(ctx, repo, userID)
	if err != nil {
		return nil, err
	}
	if user.TeamID != "" && user.TeamID != roomCode {
		return nil, apperrors.AlreadyExists("you are already in a team")
	}

	team, err := repo.GetTeam(ctx, roomCode)
	if err == ErrRowNotFound {
		return nil, apperrors.NotFound("no team with that room code")
	}
	if err != nil {
		return nil, apperrors.Internal("could not load team", err)
	}
	if _, ok := team.Members[userID]; ok {
		return nil, apperrors.AlreadyExists("you are already a member of this team")
	}

	team.Members[userID] = Member{
		DisplayName: displayName,
		Role:        record.TeamRoleMember,
		JoinedAt:    time.Now().UnixMilli(),
	}
	if err := repo.SaveTeam(ctx, team); err != nil {
		return nil, apperrors.Internal("could not update team", err)
	}

	user.DisplayName = displayName
	user.TeamID = roomCode
	user.TeamRole = record.TeamRoleMember
	if err := repo.SaveUser(ctx, user); err != nil {
		return nil, apperrors.Internal("could not update user", err)
	}

	if err := s.refreshSummary(ctx, repo, user); err != nil {
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, apperrors.Internal("could not commit", err)
	}

	s.publishTeam(ctx, remotestore.TeamEvent{
		Kind:   remotestore.TeamMemberJoined,
		TeamID: roomCode,
		UserID: userID,
	})
	s.logger.Info("member joined",
		zap.String("room_code", roomCode),
		zap.String("user_id", userID))
	return &JoinTeamResponse{RoomCode: roomCode, TeamName: team.Name}, nil
}

// EditDisplayName renames the caller inside their team and in their summary.
func (s *Service) EditDisplayName(ctx context.Context, userID string, req EditDisplayNameRequest) error {
	start := time.Now()
	err := s.editDisplayName(ctx, userID, req)
	s.recordOp("editDisplayName", err, start)
	return err
}

func (s *Service) editDisplayName(ctx context.Context, userID string, req EditDisplayNameRequest) error {
	displayName := strings.TrimSpace(req.DisplayName)
	if userID == "" {
		return apperrors.Unauthenticated("")
	}
	if displayName == "" {
		return apperrors.InvalidArgument("display name is required")
	}

	tx := s.repo.BeginTx()
	if tx.Error != nil {
		return apperrors.Internal("could not start transaction", tx.Error)
	}
	defer tx.Rollback()
	repo := s.repo.WithTx(tx)

	user, team, err := s.requireMembership(ctx, repo, userID)
	if err != nil {
		return err
	}

	member := team.Members[userID]
	member.DisplayName = displayName
	team.Members[userID] = member
	if err := repo.SaveTeam(ctx, team); err != nil {
		return apperrors.Internal("could not update team", err)
	}

	user.DisplayName = displayName
	if err := repo.SaveUser(ctx, user); err != nil {
		return apperrors.Internal("could not update user", err)
	}

	if err := s.refreshSummary(ctx, repo, user); err != nil {
		return err
	}

	return commit(tx)
}

// EditTeamName renames the team. Owner only.
func (s *Service) EditTeamName(ctx context.Context, userID string, req EditTeamNameRequest) error {
	start := time.Now()
	err := s.editTeamName(ctx, userID, req)
	s.recordOp("editTeamName", err, start)
	return err
}

func (s *Service) editTeamName(ctx context.Context, userID string, req EditTeamNameRequest) error {
	teamName := strings.TrimSpace(req.TeamName)
	if userID == "" {
		return apperrors.Unauthenticated("")
	}
	if teamName == "" {
		return apperrors.InvalidArgument("team name is required")
	}

	tx := s.repo.BeginTx()
	if tx.Error != nil {
		return apperrors.Internal("could not start transaction", tx.Error)
	}
	defer tx.Rollback()
	repo := s.repo.WithTx(tx)

	_, team, err := s.requireMembership(ctx, repo, userID)
	if err != nil {
		return err
	}
	if team.OwnerID != userID {
		return apperrors.PermissionDenied("only the team owner can rename the team")
	}

	team.Name = teamName
	if err := repo.SaveTeam(ctx, team); err != nil {
		return apperrors.Internal("could not update team", err)
	}

	if err := commit(tx); err != nil {
		return err
	}

	s.publishTeam(ctx, remotestore.TeamEvent{
		Kind:   remotestore.TeamRenamed,
		TeamID: team.RoomCode,
		Name:   teamName,
	})
	return nil
}

// LeaveTeam removes the caller from their team. The owner cannot leave; they
// delete the team instead.
func (s *Service) LeaveTeam(ctx context.Context, userID string) error {
	start := time.Now()
	err := s.leaveTeam(ctx, userID)
	s.recordOp("leaveTeam", err, start)
	return err
}

func (s *Service) leaveTeam(ctx context.Context, userID string) error {
	if userID == "" {
		return apperrors.Unauthenticated("")
	}

	tx := s.repo.BeginTx()
	if tx.Error != nil {
		return apperrors.Internal("could not start transaction", tx.Error)
	}
	defer tx.Rollback()
	repo := s.repo.WithTx(tx)

	user, team, err := s.requireMembership(ctx, repo, userID)
	if err != nil {
		return err
	}
	if team.OwnerID == userID {
		return apperrors.PermissionDenied("the owner cannot leave; delete the team instead")
	}

	teamID := team.RoomCode
	delete(team.Members, userID)
	if err := repo.SaveTeam(ctx, team); err != nil {
		return apperrors.Internal("could not update team", err)
	}

	if err := s.detachUser(ctx, repo, user, teamID); err != nil {
		return err
	}

	if err := commit(tx); err != nil {
		return err
	}

	s.publishRemoval(ctx, teamID, userID)
	s.publishTeam(ctx, remotestore.TeamEvent{
		Kind:   remotestore.TeamMemberLeft,
		TeamID: teamID,
		UserID: userID,
	})
	s.logger.Info("member left",
		zap.String("room_code", teamID),
		zap.String("user_id", userID))
	return nil
}

// DeleteTeam tears the whole team down. Owner only. Every member's record is
// detached and every summary removed.
func (s *Service) DeleteTeam(ctx context.Context, userID string) error {
	start := time.Now()
	err := s.deleteTeam(ctx, userID)
	s.recordOp("deleteTeam", err, start)
	return err
}

func (s *Service) deleteTeam(ctx context.Context, userID string) error {
	if userID == "" {
		return apperrors.Unauthenticated("")
	}

	tx := s.repo.BeginTx()
	if tx.Error != nil {
		return apperrors.Internal("could not start transaction", tx.Error)
	}
	defer tx.Rollback()
	repo := s.repo.WithTx(tx)

	_, team, err := s.requireMembership(ctx, repo, userID)
	if err != nil {
		return err
	}
	if team.OwnerID != userID {
		return apperrors.PermissionDenied("only the team owner can delete the team")
	}

	teamID := team.RoomCode
	memberIDs := make([]string, 0, len(team.Members))
	for memberID := range team.Members {
		memberIDs = append(memberIDs, memberID)
	}

	for _, memberID := range memberIDs {
		member, err := repo.GetUser(ctx, memberID)
		if err == ErrRowNotFound {
			continue
		}
		if err != nil {
			return apperrors.Internal("could not load member", err)
		}
		member.TeamID = ""
		member.TeamRole = ""
		if err := repo.SaveUser(ctx, member); err != nil {
			return apperrors.Internal("could not update member", err)
		}
	}

	if err := repo.DeleteTeamSummaries(ctx, teamID); err != nil {
		return apperrors.Internal("could not delete summaries", err)
	}
	if err := repo.DeleteTeam(ctx, teamID); err != nil {
		return apperrors.Internal("could not delete team", err)
	}

	if err := commit(tx); err != nil {
		return err
	}

	for _, memberID := range memberIDs {
		s.publishRemoval(ctx, teamID, memberID)
	}
	s.publishTeam(ctx, remotestore.TeamEvent{
		Kind:   remotestore.TeamDeleted,
		TeamID: teamID,
	})
	s.logger.Info("team deleted",
		zap.String("room_code", teamID),
		zap.String("owner_id", userID))
	return nil
}

// KickTeamMember removes another member. Owner only; the owner cannot kick
// themselves.
func (s *Service) KickTeamMember(ctx context.Context, userID string, req KickMemberRequest) error {
	start := time.Now()
	err := s.kickTeamMember(ctx, userID, req)
	s.recordOp("kickTeamMember", err, start)
	return err
}

func (s *Service) kickTeamMember(ctx context.Context, userID string, req KickMemberRequest) error {
	if userID == "" {
		return apperrors.Unauthenticated("")
	}
	if req.MemberID == "" {
		return apperrors.InvalidArgument("member id is required")
	}
	if req.MemberID == userID {
		return apperrors.InvalidArgument("you cannot kick yourself")
	}

	tx := s.repo.BeginTx()
	if tx.Error != nil {
		return apperrors.Internal("could not start transaction", tx.Error)
	}
	defer tx.Rollback()
	repo := s.repo.WithTx(tx)

	_, team, err := s.requireMembership(ctx, repo, userID)
	if err != nil {
		return err
	}
	if team.OwnerID != userID {
		return apperrors.PermissionDenied("only the team owner can remove members")
	}
	if _, ok := team.Members[req.MemberID]; !ok {
		return apperrors.NotFound("no such member in your team")
	}

	teamID := team.RoomCode
	delete(team.Members, req.MemberID)
	if err := repo.SaveTeam(ctx, team); err != nil {
		return apperrors.Internal("could not update team", err)
	}

	target, err := repo.GetUser(ctx, req.MemberID)
	if err != nil && err != ErrRowNotFound {
		return apperrors.Internal("could not load member", err)
	}
	if err == nil {
		if err := s.detachUser(ctx, repo, target, teamID); err != nil {
			return err
		}
	} else if err := repo.DeleteSummary(ctx, teamID, req.MemberID); err != nil {
		return apperrors.Internal("could not delete summary", err)
	}

	if err := commit(tx); err != nil {
		return err
	}

	s.publishRemoval(ctx, teamID, req.MemberID)
	s.publishTeam(ctx, remotestore.TeamEvent{
		Kind:   remotestore.TeamMemberLeft,
		TeamID: teamID,
		UserID: req.MemberID,
	})
	s.logger.Info("member kicked",
		zap.String("room_code", teamID),
		zap.String("member_id", req.MemberID))
	return nil
}

// GetTeam returns the caller's team with the current member summaries.
func (s *Service) GetTeam(ctx context.Context, userID string) (*TeamView, error) {
	if userID == "" {
		return nil, apperrors.Unauthenticated("")
	}

	user, err := s.repo.GetUser(ctx, userID)
	if err == ErrRowNotFound || (err == nil && user.TeamID == "") {
		return nil, apperrors.NotFound("you are not in a team")
	}
	if err != nil {
		return nil, apperrors.Internal("could not load user", err)
	}

	team, err := s.repo.GetTeam(ctx, user.TeamID)
	if err == ErrRowNotFound {
		return nil, apperrors.NotFound("your team no longer exists")
	}
	if err != nil {
		return nil, apperrors.Internal("could not load team", err)
	}

	summaries, err := s.repo.ListSummaries(ctx, team.RoomCode)
	if err != nil {
		return nil, apperrors.Internal("could not load summaries", err)
	}

	views := make([]MemberSummaryView, 0, len(summaries))
	for _, sum := range summaries {
		views = append(views, MemberSummaryView{
			UserID:              sum.UserID,
			DisplayName:         sum.DisplayName,
			Role:                sum.Role,
			YearlyLeaveBalances: sum.Balances,
			LastUpdated:         sum.UpdatedAt.UnixMilli(),
		})
	}

	return &TeamView{
		RoomCode:  team.RoomCode,
		TeamName:  team.Name,
		Members:   team.Members,
		Summaries: views,
	}, nil
}

// requireMembership loads the caller and their team, failing when either
// side of the membership is gone.
func (s *Service) requireMembership(ctx context.Context, repo Repository, userID string) (*UserRecord, *Team, error) {
	user, err := repo.GetUser(ctx, userID)
	if err == ErrRowNotFound || (err == nil && user.TeamID == "") {
		return nil, nil, apperrors.NotFound("you are not in a team")
	}
	if err != nil {
		return nil, nil, apperrors.Internal("could not load user", err)
	}

	team, err := repo.GetTeam(ctx, user.TeamID)
	if err == ErrRowNotFound {
		return nil, nil, apperrors.NotFound("your team no longer exists")
	}
	if err != nil {
		return nil, nil, apperrors.Internal("could not load team", err)
	}
	if _, ok := team.Members[userID]; !ok {
		return nil, nil, apperrors.PermissionDenied("you are not a member of this team")
	}
	return user, team, nil
}

func (s *Service) loadOrInitUser(ctx context.Context, repo Repository, userID string) (*UserRecord, error) {
	user, err := repo.GetUser(ctx, userID)
	if err == ErrRowNotFound {
		return &UserRecord{UserID: userID}, nil
	}
	if err != nil {
		return nil, apperrors.Internal("could not load user", err)
	}
	return user, nil
}

// detachUser clears a member's team fields and drops their summary.
func (s *Service) detachUser(ctx context.Context, repo Repository, user *UserRecord, teamID string) error {
	user.TeamID = ""
	user.TeamRole = ""
	if err := repo.SaveUser(ctx, user); err != nil {
		return apperrors.Internal("could not update user", err)
	}
	if err := repo.DeleteSummary(ctx, teamID, user.UserID); err != nil {
		return apperrors.Internal("could not delete summary", err)
	}
	return nil
}

// refreshSummary recomputes the caller's summary inside the transaction so
// a new member is visible to the team as soon as the commit lands.
func (s *Service) refreshSummary(ctx context.Context, repo Repository, user *UserRecord) error {
	if s.docs == nil {
		return nil
	}

	doc, err := s.docs.Fetch(ctx, user.UserID)
	if err != nil {
		// Missing document means a brand-new user; an empty summary is right.
		doc = record.NewUserDocument()
	}

	summary := &MemberSummary{
		TeamID:      user.TeamID,
		UserID:      user.UserID,
		DisplayName: user.DisplayName,
		Role:        user.TeamRole,
		Balances:    ComputeYearlyBalances(doc, time.Now()),
		UpdatedAt:   time.Now(),
	}
	if err := repo.UpsertSummary(ctx, summary); err != nil {
		return apperrors.Internal("could not save summary", err)
	}
	if s.metrics != nil {
		s.metrics.SummaryRecomputes.Inc()
	}

	publishSummaryUpdate(ctx, s.events, s.logger, summary)
	return nil
}

func (s *Service) publishTeam(ctx context.Context, event remotestore.TeamEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishTeamEvent(ctx, event); err != nil {
		s.logger.Warn("publish team event",
			zap.String("team_id", event.TeamID),
			zap.String("kind", event.Kind),
			zap.Error(err))
	}
}

func (s *Service) publishRemoval(ctx context.Context, teamID, userID string) {
	if s.events == nil {
		return
	}
	err := s.events.PublishSummaryEvent(ctx, remoteSummaryRemoved(teamID, userID))
	if err != nil {
		s.logger.Warn("publish summary removal",
			zap.String("team_id", teamID),
			zap.Error(err))
	}
}

func (s *Service) recordOp(operation string, err error, start time.Time) {
	if s.metrics != nil {
		s.metrics.RecordTeamOp(operation, err, time.Since(start))
	}
}

func commit(tx *gorm.DB) error {
	if err := tx.Commit().Error; err != nil {
		return apperrors.Internal("could not commit", err)
	}
	return nil
}

// generateRoomCode draws an 8-character uppercase alphanumeric code. With
// 36^8 possibilities a collision is effectively impossible at this scale; a
// clashing insert fails the transaction and the user simply retries.
func generateRoomCode() (string, error) {
	var b strings.Builder
	for i := 0; i < roomCodeLength; i++ {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(roomCodeAlphabet))))
		if err != nil {
			return "", err
		}
		b.WriteByte(roomCodeAlphabet[n.Int64()])
	}
	return b.String(), nil
}
