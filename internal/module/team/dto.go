package team

import "github.com/trackmate/server/internal/record"

// CreateTeamRequest starts a new team with the caller as owner.
type CreateTeamRequest struct {
	TeamName    string `json:"teamName" binding:"required"`
	DisplayName string `json:"displayName" binding:"required"`
}

// CreateTeamResponse carries the generated room code back to the caller.
type CreateTeamResponse struct {
	RoomCode string `json:"roomCode"`
	TeamName string `json:"teamName"`
}

// JoinTeamRequest joins an existing team by room code.
type JoinTeamRequest struct {
	RoomCode    string `json:"roomCode" binding:"required"`
	DisplayName string `json:"displayName" binding:"required"`
}

// JoinTeamResponse echoes the joined team.
type JoinTeamResponse struct {
	RoomCode string `json:"roomCode"`
	TeamName string `json:"teamName"`
}

// EditDisplayNameRequest renames the caller inside their team.
type EditDisplayNameRequest struct {
	DisplayName string `json:"displayName" binding:"required"`
}

// EditTeamNameRequest renames the team. Owner only.
type EditTeamNameRequest struct {
	TeamName string `json:"teamName" binding:"required"`
}

// KickMemberRequest removes another member. Owner only.
type KickMemberRequest struct {
	MemberID string `json:"memberId" binding:"required"`
}

// MemberSummaryView is the wire shape of one member's summary.
type MemberSummaryView struct {
	UserID              string          `json:"userId"`
	DisplayName         string          `json:"displayName"`
	Role                record.TeamRole `json:"role"`
	YearlyLeaveBalances BalanceMap      `json:"yearlyLeaveBalances"`
	LastUpdated         int64           `json:"lastUpdated"`
}

// TeamView is the wire shape of a team for its members.
type TeamView struct {
	RoomCode  string              `json:"roomCode"`
	TeamName  string              `json:"teamName"`
	Members   map[string]Member   `json:"members"`
	Summaries []MemberSummaryView `json:"summaries"`
}
