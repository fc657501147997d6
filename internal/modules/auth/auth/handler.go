package auth

import (
	"errors"

	"github.com/briefly-app/core/internal/middleware"
	"github.com/briefly-app/core/internal/pkg/response"
	"github.com/gin-gonic/gin"
)

const tokenCookie = "briefly_token"

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler { return &Handler{svc: svc} }

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW gin.HandlerFunc) {
	g := rg.Group("/auth")
	g.POST("/register", h.register)
	g.POST("/login", h.login)

	a := g.Group("", authMW)
	a.POST("/logout", h.logout)
	a.GET("/me", h.me)
}

func (h *Handler) register(c *gin.Context) {
	var dto RegisterDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	u, err := h.svc.Register(c.Request.Context(), &dto)
	if err != nil {
		if errors.Is(err, ErrEmailTaken) {
			response.Conflict(c, err.Error())
			return
		}
		response.InternalError(c, err)
		return
	}
	response.Created(c, u)
}

func (h *Handler) login(c *gin.Context) {
	var dto LoginDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	token, u, err := h.svc.Login(c.Request.Context(), dto.Email, dto.Password, c.ClientIP(), c.Request.UserAgent())
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			response.UnauthorizedMsg(c, err.Error())
			return
		}
		response.InternalError(c, err)
		return
	}
	setAuthTokenCookie(c, token, int(h.svc.sessionTTL.Seconds()))
	response.OK(c, loginResponse{Token: token, User: u})
}

func (h *Handler) logout(c *gin.Context) {
	if err := h.svc.Logout(c.Request.Context(), middleware.CurrentUserID(c), middleware.CurrentSessionID(c)); err != nil {
		response.InternalError(c, err)
		return
	}
	clearAuthTokenCookie(c)
	response.NoContent(c)
}

func (h *Handler) me(c *gin.Context) {
	p, err := h.svc.Profile(c.Request.Context(), middleware.CurrentUser(c))
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.OK(c, p)
}

func setAuthTokenCookie(c *gin.Context, token string, maxAge int) {
	secure := c.Request.TLS != nil
	c.SetCookie(tokenCookie, token, maxAge, "/", "", secure, true)
}

func clearAuthTokenCookie(c *gin.Context) {
	secure := c.Request.TLS != nil
	c.SetCookie(tokenCookie, "", -1, "/", "", secure, true)
}
