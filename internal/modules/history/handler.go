package history

import (
	"errors"
	"net/http"

	"github.com/briefly-app/core/internal/middleware"
	"github.com/briefly-app/core/internal/pkg/pagination"
	"github.com/briefly-app/core/internal/pkg/response"
	"github.com/gin-gonic/gin"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler { return &Handler{svc: svc} }

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW gin.HandlerFunc) {
	g := rg.Group("/history", authMW)
	g.GET("", h.list)
	g.GET("/stats", h.stats)
	g.GET("/:id", h.get)
	g.PATCH("/:id", h.update)
	g.DELETE("/:id", h.delete)
}

func (h *Handler) list(c *gin.Context) {
	entries, pag, err := h.svc.List(c.Request.Context(), middleware.CurrentUser(c), pagination.FromContext(c))
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.Paged(c, entries, pag)
}

func (h *Handler) stats(c *gin.Context) {
	stats, err := h.svc.Stats(c.Request.Context(), middleware.CurrentUserID(c))
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.OK(c, stats)
}

func (h *Handler) get(c *gin.Context) {
	entry, err := h.svc.Get(c.Request.Context(), middleware.CurrentUser(c), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	response.OK(c, entry)
}

type updateDTO struct {
	Summary *string   `json:"summary"`
	Tags    *[]string `json:"tags"`
}

func (h *Handler) update(c *gin.Context) {
	var dto updateDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, "invalid request body")
		return
	}
	entry, err := h.svc.Update(c.Request.Context(), middleware.CurrentUser(c), c.Param("id"), Patch{
		Summary: dto.Summary,
		Tags:    dto.Tags,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	response.OK(c, entry)
}

func (h *Handler) delete(c *gin.Context) {
	if err := h.svc.Delete(c.Request.Context(), middleware.CurrentUser(c), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	response.NoContent(c)
}

func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		response.NotFoundMsg(c, "history not found")
	case errors.Is(err, ErrInvalidPatch):
		response.Fail(c, http.StatusBadRequest, "invalid_input", "summary must not be empty and at most 20 tags are allowed")
	default:
		response.InternalError(c, err)
	}
}
