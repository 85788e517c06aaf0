package document

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/trackmate/server/internal/module/auth"
	"github.com/trackmate/server/internal/record"
	apperrors "github.com/trackmate/server/internal/shared/errors"
	"github.com/trackmate/server/internal/shared/response"
)

// Handler exposes a user's own document over HTTP.
type Handler struct {
	service *Service
}

// NewHandler builds the document handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes mounts the document routes behind the auth middleware.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authn *auth.Manager) {
	docs := rg.Group("/document", authn.Middleware())
	{
		docs.GET("", h.Get)
		docs.PUT("", h.Put)
		docs.GET("/export", h.Export)
		docs.POST("/import", h.Import)
		docs.POST("/backup", h.Backup)
	}
}

func (h *Handler) Get(c *gin.Context) {
	doc, err := h.service.Get(c.Request.Context(), auth.UserID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

func (h *Handler) Put(c *gin.Context) {
	doc := record.NewUserDocument()
	if err := c.ShouldBindJSON(doc); err != nil {
		response.Error(c, apperrors.InvalidArgument("malformed document"))
		return
	}

	stamp, err := h.service.Put(c.Request.Context(), auth.UserID(c), doc)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, http.StatusOK, "Document saved", gin.H{"lastUpdated": stamp})
}

func (h *Handler) Export(c *gin.Context) {
	data, err := h.service.ExportCSV(c.Request.Context(), auth.UserID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="trackmate-export.csv"`)
	c.Data(http.StatusOK, "text/csv", data)
}

func (h *Handler) Import(c *gin.Context) {
	processed, err := h.service.ImportCSV(c.Request.Context(), auth.UserID(c), c.Request.Body)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, http.StatusOK, "Import complete", gin.H{"rows": processed})
}

func (h *Handler) Backup(c *gin.Context) {
	key, err := h.service.Backup(c.Request.Context(), auth.UserID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, http.StatusCreated, "Snapshot archived", gin.H{"key": key})
}
