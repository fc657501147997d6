package user

import (
	"errors"

	"github.com/briefly-app/core/internal/middleware"
	"github.com/briefly-app/core/internal/models"
	"github.com/briefly-app/core/internal/pkg/pagination"
	"github.com/briefly-app/core/internal/pkg/response"
	"github.com/gin-gonic/gin"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler { return &Handler{svc: svc} }

// RegisterRoutes mounts /admin/users for the admin role only.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW gin.HandlerFunc) {
	g := rg.Group("/admin/users", authMW, middleware.RequireRole(models.RoleAdmin))
	g.GET("", h.list)
	g.GET("/:id", h.get)
	g.PATCH("/:id/role", h.updateRole)
	g.PATCH("/:id/credits", h.adjustCredits)
}

func (h *Handler) list(c *gin.Context) {
	users, pag, err := h.svc.List(c.Request.Context(), pagination.FromContext(c))
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.Paged(c, users, pag)
}

func (h *Handler) get(c *gin.Context) {
	u, err := h.svc.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	response.OK(c, u)
}

func (h *Handler) updateRole(c *gin.Context) {
	var dto UpdateRoleDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	u, err := h.svc.SetRole(c.Request.Context(), middleware.CurrentUser(c), c.Param("id"), dto.Role)
	if err != nil {
		writeError(c, err)
		return
	}
	response.OK(c, u)
}

func (h *Handler) adjustCredits(c *gin.Context) {
	var dto AdjustCreditsDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	u, err := h.svc.AdjustCredits(c.Request.Context(), c.Param("id"), *dto.Credits)
	if err != nil {
		writeError(c, err)
		return
	}
	response.OK(c, u)
}

func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrUserNotFound):
		response.NotFoundMsg(c, err.Error())
	case errors.Is(err, ErrInvalidRole), errors.Is(err, ErrSelfDemotion):
		response.BadRequest(c, err.Error())
	default:
		response.InternalError(c, err)
	}
}
