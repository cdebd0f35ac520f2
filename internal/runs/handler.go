package runs

import (
	"errors"
	"io"
	"net/http"
	"path"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"interview-agent/internal/extract"
	"interview-agent/internal/pipeline"
	"interview-agent/internal/shared/server/middleware"
	"interview-agent/internal/shared/server/respond"
)

const maxResumeBytes = 10 << 20

// Handler wires HTTP handlers to the run service.
type Handler struct {
	Svc      *Service
	validate *validator.Validate
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc, validate: validator.New(validator.WithRequiredStructEnabled())}
}

// RegisterRoutes attaches run routes to the router group. startGuards run
// before run creation only.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, startGuards ...gin.HandlerFunc) {
	start := append(append([]gin.HandlerFunc{}, startGuards...), h.startRun)
	rg.POST("/runs", start...)
	rg.GET("/runs", h.listRuns)
	rg.GET("/runs/:id", h.getRun)
	rg.GET("/runs/:id/report", h.getReport)
}

type startRunRequest struct {
	ResumeText string           `json:"resumeText"`
	TargetRole string           `json:"targetRole"`
	Mode       string           `json:"mode"`
	Profile    pipeline.Profile `json:"profile"`
}

func (h *Handler) startRun(c *gin.Context) {
	var (
		body   startRunRequest
		upload *Upload
	)
	if strings.HasPrefix(c.ContentType(), "multipart/form-data") {
		var ok bool
		body, upload, ok = h.readMultipart(c)
		if !ok {
			return
		}
	} else if err := c.ShouldBindJSON(&body); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid JSON body", nil)
		return
	}

	mode, err := pipeline.ParseMode(body.Mode)
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", err.Error(), []map[string]string{
			{"field": "mode", "issue": "invalid"},
		})
		return
	}
	if err := h.validate.Struct(body.Profile); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid profile", profileIssues(err))
		return
	}

	ctx := WithRequestID(c.Request.Context(), middleware.RequestIDFromContext(c))
	run, err := h.Svc.Start(ctx, StartRequest{
		Input: pipeline.Input{
			ResumeText: body.ResumeText,
			TargetRole: body.TargetRole,
			Mode:       mode,
			Profile:    body.Profile,
		},
		Resume:   upload,
		ClientIP: c.ClientIP(),
	})
	if err != nil {
		switch {
		case errors.Is(err, pipeline.ErrInvalidInput):
			respond.Error(c, http.StatusBadRequest, "validation_error", err.Error(), nil)
		case errors.Is(err, ErrShuttingDown):
			respond.Error(c, http.StatusServiceUnavailable, "unavailable", "server is shutting down", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to start run", nil)
		}
		return
	}

	c.Set(middleware.RunIDKey, run.ID)
	c.Set(middleware.StatusTransitionKey, "->queued")
	respond.Accepted(c, path.Join(c.Request.URL.Path, run.ID), gin.H{
		"runId":  run.ID,
		"status": run.Status,
	})
}

func (h *Handler) readMultipart(c *gin.Context) (startRunRequest, *Upload, bool) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxResumeBytes+1<<20)
	body := startRunRequest{
		ResumeText: c.PostForm("resumeText"),
		TargetRole: c.PostForm("targetRole"),
		Mode:       c.PostForm("mode"),
		Profile: pipeline.Profile{
			ExperienceLevel: c.PostForm("experienceLevel"),
			LearningStyle:   c.PostForm("learningStyle"),
		},
	}
	if weeks := c.PostForm("preparationWeeks"); weeks != "" {
		n, err := strconv.Atoi(weeks)
		if err != nil {
			respond.Error(c, http.StatusBadRequest, "validation_error", "preparationWeeks must be a number", nil)
			return body, nil, false
		}
		body.Profile.PreparationWeeks = n
	}

	fh, err := c.FormFile("resume")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return body, nil, true
		}
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid multipart form", nil)
		return body, nil, false
	}
	if fh.Size > maxResumeBytes {
		respond.Error(c, http.StatusRequestEntityTooLarge, "file_too_large", "resume exceeds 10MB", nil)
		return body, nil, false
	}
	f, err := fh.Open()
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "unreadable resume file", nil)
		return body, nil, false
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, maxResumeBytes))
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "unreadable resume file", nil)
		return body, nil, false
	}

	contentType := fh.Header.Get("Content-Type")
	text, err := extract.ExtractTextFromBytes(c.Request.Context(), data, contentType, fh.Filename)
	if err != nil {
		status, code := http.StatusUnprocessableEntity, "extraction_failed"
		if errors.Is(err, extract.ErrUnsupportedType) {
			status, code = http.StatusUnsupportedMediaType, "unsupported_type"
		}
		respond.Error(c, status, code, err.Error(), nil)
		return body, nil, false
	}
	body.ResumeText = text
	return body, &Upload{FileName: fh.Filename, ContentType: contentType, Data: data}, true
}

func profileIssues(err error) []map[string]string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}
	out := make([]map[string]string, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, map[string]string{"field": fe.Field(), "issue": fe.Tag()})
	}
	return out
}

func (h *Handler) getRun(c *gin.Context) {
	id := c.Param("id")
	c.Set(middleware.RunIDKey, id)
	run, err := h.Svc.Get(c.Request.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			respond.Error(c, http.StatusNotFound, "not_found", "run not found", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to fetch run", nil)
		}
		return
	}
	respond.OK(c, run.View())
}

func (h *Handler) listRuns(c *gin.Context) {
	limit := 20
	offset := 0
	if v := c.Query("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			limit = parsed
		}
	}
	if v := c.Query("offset"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			offset = parsed
		}
	}

	list, err := h.Svc.List(c.Request.Context(), limit, offset)
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to list runs", nil)
		return
	}
	items := make([]RunView, 0, len(list))
	for _, run := range list {
		items = append(items, run.View())
	}
	respond.OK(c, gin.H{"items": items, "limit": limit, "offset": offset})
}

func (h *Handler) getReport(c *gin.Context) {
	id := c.Param("id")
	c.Set(middleware.RunIDKey, id)
	report, err := h.Svc.Report(c.Request.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			respond.Error(c, http.StatusNotFound, "not_found", "run not found", nil)
		case errors.Is(err, ErrReportNotReady):
			respond.Error(c, http.StatusConflict, "report_not_ready", "run has not completed", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to load report", nil)
		}
		return
	}
	respond.Markdown(c, report)
}
