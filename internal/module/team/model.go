package team

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/trackmate/server/internal/record"
)

// Member is one entry in a team's membership map.
type Member struct {
	DisplayName string          `json:"displayName"`
	Role        record.TeamRole `json:"role"`
	JoinedAt    int64           `json:"joinedAt"`
}

// MemberMap is the membership map persisted as one JSON column, keyed by
// user id.
type MemberMap map[string]Member

func (m MemberMap) Value() (driver.Value, error) {
	if m == nil {
		m = MemberMap{}
	}
	return json.Marshal(m)
}

func (m *MemberMap) Scan(value any) error {
	if value == nil {
		*m = MemberMap{}
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, m)
	case string:
		return json.Unmarshal([]byte(v), m)
	default:
		return errors.New("unsupported member map column type")
	}
}

// Team is one shared room. The room code doubles as the primary key; it is
// what members type to join.
type Team struct {
	RoomCode  string    `gorm:"primaryKey;column:room_code;size:8"`
	Name      string    `gorm:"column:name;not null"`
	OwnerID   string    `gorm:"column:owner_id;not null"`
	Members   MemberMap `gorm:"column:members;type:jsonb"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (Team) TableName() string {
	return "teams"
}

// UserRecord is the server-side view of a user's identity and membership.
type UserRecord struct {
	UserID      string          `gorm:"primaryKey;column:user_id"`
	DisplayName string          `gorm:"column:display_name"`
	TeamID      string          `gorm:"column:team_id;index"`
	TeamRole    record.TeamRole `gorm:"column:team_role"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (UserRecord) TableName() string {
	return "users"
}

// LeaveBalance is one row of a member's per-year leave summary.
type LeaveBalance struct {
	TypeID  string  `json:"typeId"`
	Name    string  `json:"name"`
	Color   string  `json:"color,omitempty"`
	Total   float64 `json:"total"`
	Used    float64 `json:"used"`
	Balance float64 `json:"balance"`
}

// BalanceMap maps year to that year's balance rows, persisted as one JSON
// column.
type BalanceMap map[string][]LeaveBalance

func (b BalanceMap) Value() (driver.Value, error) {
	if b == nil {
		b = BalanceMap{}
	}
	return json.Marshal(b)
}

func (b *BalanceMap) Scan(value any) error {
	if value == nil {
		*b = BalanceMap{}
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, b)
	case string:
		return json.Unmarshal([]byte(v), b)
	default:
		return errors.New("unsupported balance map column type")
	}
}

// MemberSummary is the derived, shareable view of one member's leave usage.
// Only summaries, never raw activity data, are visible to teammates.
type MemberSummary struct {
	TeamID      string          `gorm:"primaryKey;column:team_id"`
	UserID      string          `gorm:"primaryKey;column:user_id"`
	DisplayName string          `gorm:"column:display_name"`
	Role        record.TeamRole `gorm:"column:role"`
	Balances    BalanceMap      `gorm:"column:balances;type:jsonb"`
	UpdatedAt   time.Time
}

func (MemberSummary) TableName() string {
	return "member_summaries"
}
