package summarize

import (
	"errors"
	"net/http"

	"github.com/briefly-app/core/internal/middleware"
	"github.com/briefly-app/core/internal/modules/processing/ai"
	"github.com/briefly-app/core/internal/modules/storage/upload"
	"github.com/briefly-app/core/internal/pkg/response"
	"github.com/gin-gonic/gin"
)

// bodySlack covers the JSON envelope around the content field.
const bodySlack = 4 << 10

type Handler struct {
	svc     *Service
	uploads *upload.Store
}

func NewHandler(svc *Service, uploads *upload.Store) *Handler {
	return &Handler{svc: svc, uploads: uploads}
}

// RegisterRoutes mounts the summarize endpoints behind mws.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, mws ...gin.HandlerFunc) {
	g := rg.Group("/summarize", mws...)
	g.POST("", h.summarize)
	g.POST("/file", h.summarizeFile)
}

type summarizeDTO struct {
	Content string `json:"content"`
	Type    string `json:"type"`
}

type summaryResponse struct {
	CachedSummary
	Cached bool `json:"cached"`
}

func (h *Handler) summarize(c *gin.Context) {
	if limit := h.maxBodyBytes(); limit > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
	}
	var dto summarizeDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.Fail(c, http.StatusRequestEntityTooLarge, "content_too_large", "request body is too large")
			return
		}
		response.Fail(c, http.StatusBadRequest, "invalid_input", "invalid request body")
		return
	}

	out, err := h.svc.Summarize(c.Request.Context(), Request{
		Content: dto.Content,
		Style:   dto.Type,
		User:    middleware.CurrentUser(c),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	writeOutcome(c, out)
}

// maxBodyBytes bounds a JSON request. An escaped character takes at most
// twelve bytes (a surrogate pair of \uXXXX escapes), so the bound never
// rejects content the character limit would accept.
func (h *Handler) maxBodyBytes() int64 {
	chars := h.svc.opts.MaxContentChars
	if chars <= 0 {
		return 0
	}
	return int64(chars)*12 + bodySlack
}

func (h *Handler) summarizeFile(c *gin.Context) {
	user := middleware.CurrentUser(c)
	if user == nil {
		writeError(c, ErrUnauthenticated)
		return
	}
	fh, err := c.FormFile("file")
	if err != nil {
		response.Fail(c, http.StatusBadRequest, "invalid_input", "file is required")
		return
	}
	doc, err := h.uploads.Save(fh)
	if err != nil {
		writeError(c, err)
		return
	}

	out, err := h.svc.SummarizeFile(c.Request.Context(), user, doc, c.PostForm("type"))
	if err != nil {
		writeError(c, err)
		return
	}
	writeOutcome(c, out)
}

func writeOutcome(c *gin.Context, out *Outcome) {
	if out.Cached {
		c.Header("X-Summary-Cache", "hit")
	} else {
		c.Header("X-Summary-Cache", "miss")
	}
	response.OK(c, summaryResponse{CachedSummary: out.Summary, Cached: out.Cached})
}

func writeError(c *gin.Context, err error) {
	var ext *ai.ExternalError
	switch {
	case errors.Is(err, upload.ErrUnsupportedFormat):
		response.Fail(c, http.StatusUnsupportedMediaType, "unsupported_file", "only .txt, .md and .docx files are supported")
	case errors.Is(err, upload.ErrTooLarge):
		response.Fail(c, http.StatusRequestEntityTooLarge, "file_too_large", err.Error())
	case errors.Is(err, upload.ErrEmptyFile), errors.Is(err, ErrInvalidInput):
		response.Fail(c, http.StatusBadRequest, "invalid_input", err.Error())
	case errors.Is(err, ErrUnauthenticated):
		response.Fail(c, http.StatusUnauthorized, "unauthenticated", "authentication required")
	case errors.Is(err, ErrInsufficientCredits):
		response.Fail(c, http.StatusPaymentRequired, "insufficient_credits", "you have no credits left")
	case errors.As(err, &ext):
		if ext.Kind == ai.KindTimeout {
			response.Fail(c, http.StatusGatewayTimeout, "external_timeout", "the summarization service timed out, please retry")
			return
		}
		response.Fail(c, http.StatusBadGateway, "external_"+string(ext.Kind), "the summarization service failed, please retry")
	default:
		response.InternalError(c, err)
	}
}
