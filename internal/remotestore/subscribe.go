package remotestore

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ChangeEvent announces that a user's document was rewritten.
type ChangeEvent struct {
	UserID      string `json:"userId"`
	LastUpdated int64  `json:"lastUpdated"`
}

// SummaryEvent announces an incremental change to a team's member summaries.
type SummaryEvent struct {
	Kind    string          `json:"kind"` // "add", "update" or "remove"
	TeamID  string          `json:"teamId"`
	UserID  string          `json:"userId"`
	Summary json.RawMessage `json:"summary,omitempty"`
}

const (
	SummaryAdded   = "add"
	SummaryUpdated = "update"
	SummaryRemoved = "remove"
)

// TeamEvent announces a change to the team aggregate itself: rename,
// membership churn or deletion.
type TeamEvent struct {
	Kind   string `json:"kind"` // "renamed", "member-joined", "member-left", "deleted"
	TeamID string `json:"teamId"`
	Name   string `json:"name,omitempty"`
	UserID string `json:"userId,omitempty"`
}

const (
	TeamRenamed      = "renamed"
	TeamMemberJoined = "member-joined"
	TeamMemberLeft   = "member-left"
	TeamDeleted      = "deleted"
)

func documentChannel(userID string) string {
	return "trackmate:doc:" + userID
}

func summaryChannel(teamID string) string {
	return "trackmate:team:" + teamID + ":summaries"
}

func teamChannel(teamID string) string {
	return "trackmate:team:" + teamID
}

// Unsubscribe tears down a subscription. Safe to call more than once.
type Unsubscribe func()

// Subscribe streams a user's document change events to handler until the
// context is canceled or the returned Unsubscribe runs. Undecodable messages
// are logged and dropped.
func (s *Store) Subscribe(ctx context.Context, userID string, handler func(ChangeEvent)) Unsubscribe {
	sub := s.rdb.Subscribe(ctx, documentChannel(userID))

	go func() {
		for msg := range sub.Channel() {
			var event ChangeEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				s.logger.Warn("bad change event payload",
					zap.String("channel", msg.Channel),
					zap.Error(err))
				continue
			}
			handler(event)
		}
	}()

	return closeOnce(sub)
}

// SubscribeAllDocuments streams change events for every user. Feeds the
// summary recompute worker.
func (s *Store) SubscribeAllDocuments(ctx context.Context, handler func(ChangeEvent)) Unsubscribe {
	sub := s.rdb.PSubscribe(ctx, documentChannel("*"))

	go func() {
		for msg := range sub.Channel() {
			var event ChangeEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				s.logger.Warn("bad change event payload",
					zap.String("channel", msg.Channel),
					zap.Error(err))
				continue
			}
			handler(event)
		}
	}()

	return closeOnce(sub)
}

// SubscribeMemberSummaries streams a team's summary events, merged into a
// cumulative snapshot: each handler call receives the full map after applying
// the incremental add, update or remove.
func (s *Store) SubscribeMemberSummaries(ctx context.Context, teamID string, handler func(map[string]json.RawMessage)) Unsubscribe {
	sub := s.rdb.Subscribe(ctx, summaryChannel(teamID))

	go func() {
		snapshot := make(map[string]json.RawMessage)
		for msg := range sub.Channel() {
			var event SummaryEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				s.logger.Warn("bad summary event payload",
					zap.String("channel", msg.Channel),
					zap.Error(err))
				continue
			}

			switch event.Kind {
			case SummaryAdded, SummaryUpdated:
				snapshot[event.UserID] = event.Summary
			case SummaryRemoved:
				delete(snapshot, event.UserID)
			default:
				continue
			}

			view := make(map[string]json.RawMessage, len(snapshot))
			for k, v := range snapshot {
				view[k] = v
			}
			handler(view)
		}
	}()

	return closeOnce(sub)
}

// SubscribeTeam streams a team's aggregate events to handler.
func (s *Store) SubscribeTeam(ctx context.Context, teamID string, handler func(TeamEvent)) Unsubscribe {
	sub := s.rdb.Subscribe(ctx, teamChannel(teamID))

	go func() {
		for msg := range sub.Channel() {
			var event TeamEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				s.logger.Warn("bad team event payload",
					zap.String("channel", msg.Channel),
					zap.Error(err))
				continue
			}
			handler(event)
		}
	}()

	return closeOnce(sub)
}

// PublishTeamEvent broadcasts a team aggregate change.
func (s *Store) PublishTeamEvent(ctx context.Context, event TeamEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode team event: %w", err)
	}
	return s.rdb.Publish(ctx, teamChannel(event.TeamID), payload).Err()
}

// PublishSummaryEvent broadcasts an incremental summary change for a team.
func (s *Store) PublishSummaryEvent(ctx context.Context, event SummaryEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode summary event: %w", err)
	}
	return s.rdb.Publish(ctx, summaryChannel(event.TeamID), payload).Err()
}

func closeOnce(sub *redis.PubSub) Unsubscribe {
	var once sync.Once
	return func() {
		once.Do(func() { _ = sub.Close() })
	}
}
