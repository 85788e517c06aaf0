package team

import (
	"context"
	"encoding/json"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/trackmate/server/internal/record"
	"github.com/trackmate/server/internal/remotestore"
	"github.com/trackmate/server/internal/shared/metrics"
)

// ComputeYearlyBalances derives the shareable leave summary from a user's
// raw document: per year, per visible leave type, how much was used and how
// much remains. The current year is always present when the user has any
// leave types, so a fresh member shows up with full balances instead of an
// empty card.
func ComputeYearlyBalances(doc *record.UserDocument, now time.Time) BalanceMap {
	out := BalanceMap{}
	if doc == nil || len(doc.LeaveTypes) == 0 {
		return out
	}

	years := make(map[string]struct{}, len(doc.YearlyData)+1)
	for year := range doc.YearlyData {
		years[year] = struct{}{}
	}
	years[now.Format("2006")] = struct{}{}

	for year := range years {
		rec := doc.YearlyData[year]

		var overrides map[string]record.LeaveOverride
		if rec != nil {
			overrides = rec.LeaveOverrides
		}

		rows := make([]LeaveBalance, 0, len(doc.LeaveTypes))
		for _, lt := range record.VisibleLeaveTypes(doc.LeaveTypes, overrides) {
			used := 0.0
			if rec != nil {
				for _, day := range rec.Activities {
					if day.Leave != nil && day.Leave.TypeID == lt.ID {
						used += day.Leave.DayType.Cost()
					}
				}
			}
			total := record.EffectiveTotal(lt, overrides)
			rows = append(rows, LeaveBalance{
				TypeID:  lt.ID,
				Name:    lt.Name,
				Color:   lt.Color,
				Total:   total,
				Used:    round2(used),
				Balance: round2(total - used),
			})
		}
		if len(rows) > 0 {
			sort.Slice(rows, func(i, j int) bool { return rows[i].TypeID < rows[j].TypeID })
			out[year] = rows
		}
	}
	return out
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// DocumentSource supplies the raw documents summaries are derived from.
type DocumentSource interface {
	Fetch(ctx context.Context, userID string) (*record.UserDocument, error)
}

// SummaryPublisher broadcasts incremental summary changes to team
// subscribers.
type SummaryPublisher interface {
	PublishSummaryEvent(ctx context.Context, event remotestore.SummaryEvent) error
}

// EventPublisher additionally broadcasts team aggregate changes.
type EventPublisher interface {
	SummaryPublisher
	PublishTeamEvent(ctx context.Context, event remotestore.TeamEvent) error
}

// Worker keeps member summaries current: every document write triggers a
// recompute for that user, mirroring a write-triggered cloud function.
type Worker struct {
	repo    Repository
	docs    DocumentSource
	events  SummaryPublisher
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// NewWorker builds a summary worker. events and metrics may be nil.
func NewWorker(repo Repository, docs DocumentSource, events SummaryPublisher, logger *zap.Logger, m *metrics.Metrics) *Worker {
	return &Worker{repo: repo, docs: docs, events: events, logger: logger, metrics: m}
}

// HandleDocumentChange recomputes and republishes one user's summary. Users
// outside any team are ignored.
func (w *Worker) HandleDocumentChange(ctx context.Context, event remotestore.ChangeEvent) {
	user, err := w.repo.GetUser(ctx, event.UserID)
	if err != nil {
		if err != ErrRowNotFound {
			w.logger.Error("summary recompute: load user",
				zap.String("user_id", event.UserID),
				zap.Error(err))
		}
		return
	}
	if user.TeamID == "" {
		return
	}

	doc, err := w.docs.Fetch(ctx, user.UserID)
	if err != nil {
		w.logger.Error("summary recompute: fetch document",
			zap.String("user_id", user.UserID),
			zap.Error(err))
		return
	}

	summary := &MemberSummary{
		TeamID:      user.TeamID,
		UserID:      user.UserID,
		DisplayName: user.DisplayName,
		Role:        user.TeamRole,
		Balances:    ComputeYearlyBalances(doc, time.Now()),
		UpdatedAt:   time.Now(),
	}
	if err := w.repo.UpsertSummary(ctx, summary); err != nil {
		w.logger.Error("summary recompute: upsert",
			zap.String("user_id", user.UserID),
			zap.Error(err))
		return
	}
	if w.metrics != nil {
		w.metrics.SummaryRecomputes.Inc()
	}

	publishSummaryUpdate(ctx, w.events, w.logger, summary)
}

func summaryPayload(summary *MemberSummary) (json.RawMessage, error) {
	return json.Marshal(MemberSummaryView{
		UserID:              summary.UserID,
		DisplayName:         summary.DisplayName,
		Role:                summary.Role,
		YearlyLeaveBalances: summary.Balances,
		LastUpdated:         summary.UpdatedAt.UnixMilli(),
	})
}

func remoteSummaryRemoved(teamID, userID string) remotestore.SummaryEvent {
	return remotestore.SummaryEvent{
		Kind:   remotestore.SummaryRemoved,
		TeamID: teamID,
		UserID: userID,
	}
}

func publishSummaryUpdate(ctx context.Context, events SummaryPublisher, logger *zap.Logger, summary *MemberSummary) {
	if events == nil {
		return
	}
	payload, err := summaryPayload(summary)
	if err != nil {
		logger.Error("encode summary payload", zap.Error(err))
		return
	}
	err = events.PublishSummaryEvent(ctx, remotestore.SummaryEvent{
		Kind:    remotestore.SummaryUpdated,
		TeamID:  summary.TeamID,
		UserID:  summary.UserID,
		Summary: payload,
	})
	if err != nil {
		logger.Warn("publish summary event",
			zap.String("team_id", summary.TeamID),
			zap.Error(err))
	}
}
