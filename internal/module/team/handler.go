package team

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/trackmate/server/internal/module/auth"
	apperrors "github.com/trackmate/server/internal/shared/errors"
	"github.com/trackmate/server/internal/shared/response"
)

// Handler exposes the team operations as the callable HTTP surface. Every
// operation is a POST; success responses use the standard envelope.
type Handler struct {
	service *Service
}

// NewHandler builds the team handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes mounts the team routes behind the auth middleware.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authn *auth.Manager) {
	teams := rg.Group("/team", authn.Middleware())
	{
		teams.POST("/create", h.CreateTeam)
		teams.POST("/join", h.JoinTeam)
		teams.POST("/edit-display-name", h.EditDisplayName)
		teams.POST("/edit-name", h.EditTeamName)
		teams.POST("/leave", h.LeaveTeam)
		teams.POST("/delete", h.DeleteTeam)
		teams.POST("/kick", h.KickTeamMember)
		teams.GET("", h.GetTeam)
	}
}

func (h *Handler) CreateTeam(c *gin.Context) {
	var req CreateTeamRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperrors.InvalidArgument("team name and display name are required"))
		return
	}

	resp, err := h.service.CreateTeam(c.Request.Context(), auth.UserID(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, http.StatusCreated, "Team created", gin.H{
		"roomCode": resp.RoomCode,
		"teamName": resp.TeamName,
	})
}

func (h *Handler) JoinTeam(c *gin.Context) {
	var req JoinTeamRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperrors.InvalidArgument("room code and display name are required"))
		return
	}

	resp, err := h.service.JoinTeam(c.Request.Context(), auth.UserID(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, http.StatusOK, "Joined team", gin.H{
		"roomCode": resp.RoomCode,
		"teamName": resp.TeamName,
	})
}

func (h *Handler) EditDisplayName(c *gin.Context) {
	var req EditDisplayNameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperrors.InvalidArgument("display name is required"))
		return
	}

	if err := h.service.EditDisplayName(c.Request.Context(), auth.UserID(c), req); err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, http.StatusOK, "Display name updated", nil)
}

func (h *Handler) EditTeamName(c *gin.Context) {
	var req EditTeamNameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperrors.InvalidArgument("team name is required"))
		return
	}

	if err := h.service.EditTeamName(c.Request.Context(), auth.UserID(c), req); err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, http.StatusOK, "Team name updated", nil)
}

func (h *Handler) LeaveTeam(c *gin.Context) {
	if err := h.service.LeaveTeam(c.Request.Context(), auth.UserID(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, http.StatusOK, "Left team", nil)
}

func (h *Handler) DeleteTeam(c *gin.Context) {
	if err := h.service.DeleteTeam(c.Request.Context(), auth.UserID(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, http.StatusOK, "Team deleted", nil)
}

func (h *Handler) KickTeamMember(c *gin.Context) {
	var req KickMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperrors.InvalidArgument("member id is required"))
		return
	}

	if err := h.service.KickTeamMember(c.Request.Context(), auth.UserID(c), req); err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, http.StatusOK, "Member removed", nil)
}

func (h *Handler) GetTeam(c *gin.Context) {
	view, err := h.service.GetTeam(c.Request.Context(), auth.UserID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}
