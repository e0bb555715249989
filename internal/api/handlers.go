package api

import (
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tranduckhuy/eduva-backend-sub005/internal/jobs"
	"github.com/tranduckhuy/eduva-backend-sub005/internal/notify"
	"github.com/tranduckhuy/eduva-backend-sub005/internal/storage"
	"github.com/tranduckhuy/eduva-backend-sub005/internal/validation"
	"github.com/tranduckhuy/eduva-backend-sub005/internal/worker"
	"github.com/tranduckhuy/eduva-backend-sub005/pkg/models"
)

const serviceName = "eduva-ai-pipeline"

type Handlers struct {
	jobService    jobs.JobService
	hub           *notify.Hub
	validator     *validation.APIValidator
	checks        map[string]HealthCheck
	consumerStats func() worker.PoolStats
	heartbeat     time.Duration
	environment   string
	logger        zerolog.Logger
}

func NewHandlers(cfg RouterConfig) *Handlers {
	heartbeat := cfg.Heartbeat
	if heartbeat <= 0 {
		heartbeat = 25 * time.Second
	}
	return &Handlers{
		jobService:    cfg.JobService,
		hub:           cfg.Hub,
		validator:     cfg.Validator,
		checks:        cfg.Checks,
		consumerStats: cfg.ConsumerStats,
		heartbeat:     heartbeat,
		environment:   cfg.Environment,
		logger:        cfg.Logger.With().Str("component", "api").Logger(),
	}
}

// Health check
func (h *Handlers) Health(c *gin.Context) {
	resp := models.HealthResponse{
		Status:      "healthy",
		Service:     serviceName,
		Environment: h.environment,
		Timestamp:   time.Now().UTC(),
		Checks:      map[string]string{},
	}
	for name, check := range h.checks {
		if err := check(c.Request.Context()); err != nil {
			resp.Status = "degraded"
			resp.Checks[name] = err.Error()
			continue
		}
		resp.Checks[name] = "ok"
	}
	if h.consumerStats != nil {
		resp.Details = map[string]any{"consumer": h.consumerStats()}
	}

	status := http.StatusOK
	if resp.Status != "healthy" {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, resp)
}

// CreateJob reçoit les fichiers sources et le sujet d'une génération
// @Summary Submit a content generation job
// @Description Uploads the source files and requests content generation for a topic
// @Tags Jobs
// @Accept multipart/form-data
// @Produce json
// @Security BearerAuth
// @Param files formData file true "Source documents"
// @Param topic formData string true "Lesson topic"
// @Success 202 {object} jobs.SubmitResult
// @Failure 400 {object} models.ErrorResponse "Validation error"
// @Failure 401 {object} models.ErrorResponse "Unauthorized"
// @Failure 502 {object} models.ErrorResponse "Upload failed"
// @Router /ai-jobs [post]
func (h *Handlers) CreateJob(c *gin.Context) {
	headers := c.MustGet(validation.ValidatedFilesKey).([]*multipart.FileHeader)
	topic := c.GetString(validation.ValidatedTopicKey)

	files := make([]storage.SourceFile, len(headers))
	for i, fh := range headers {
		fh := fh
		files[i] = storage.SourceFile{
			Filename: h.validator.SanitizeFilename(fh.Filename),
			Open: func() (io.ReadCloser, error) {
				return fh.Open()
			},
		}
	}

	result, err := h.jobService.SubmitJob(c.Request.Context(), GetUserID(c), files, topic)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, result)
}

// GetJob retourne l'état d'un job de l'utilisateur
// @Summary Get a job
// @Tags Jobs
// @Produce json
// @Security BearerAuth
// @Param id path string true "Job ID"
// @Success 200 {object} models.JobResponse
// @Failure 404 {object} models.ErrorResponse "Job not found"
// @Router /ai-jobs/{id} [get]
func (h *Handlers) GetJob(c *gin.Context) {
	jobID := c.MustGet(validation.ValidatedJobIDKey).(uuid.UUID)

	job, err := h.jobService.GetJob(c.Request.Context(), GetUserID(c), jobID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, job.ToResponse())
}

// ConfirmJob débite l'utilisateur et lance la création du produit
// @Summary Confirm a generated job
// @Description Charges the user's credits and starts audio or video creation
// @Tags Jobs
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Job ID"
// @Param request body models.ConfirmJobRequest true "Product choice"
// @Success 202 {object} jobs.SubmitResult
// @Failure 402 {object} models.ErrorResponse "Insufficient credits"
// @Failure 404 {object} models.ErrorResponse "Job not found"
// @Failure 409 {object} models.ErrorResponse "Job not confirmable"
// @Router /ai-jobs/{id}/confirm [post]
func (h *Handlers) ConfirmJob(c *gin.Context) {
	jobID := c.MustGet(validation.ValidatedJobIDKey).(uuid.UUID)
	body := c.MustGet(validation.ValidatedConfirmKey).(models.ConfirmJobRequest)

	err := h.jobService.ConfirmJob(c.Request.Context(), jobs.ConfirmRequest{
		JobID:       jobID,
		UserID:      GetUserID(c),
		ServiceType: body.ServiceType,
		VoiceConfig: body.VoiceConfig,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, jobs.SubmitResult{JobID: jobID, Status: models.StatusCreatingProduct})
}

// ReportProgress applique un rapport envoyé par un worker IA
func (h *Handlers) ReportProgress(c *gin.Context) {
	report := c.MustGet(validation.ValidatedProgressKey).(models.ProgressReport)

	if err := h.jobService.ReportProgress(c.Request.Context(), report); err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, jobs.SubmitResult{JobID: report.JobID, Status: report.Status})
}

// StreamNotifications sert les notifications de l'utilisateur en SSE
func (h *Handlers) StreamNotifications(c *gin.Context) {
	if h.hub == nil {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, models.ErrorResponse{
			Error: "notifications are not available",
			Code:  "UNAVAILABLE",
		})
		return
	}

	userID := GetUserID(c)
	sub := h.hub.Subscribe(userID)
	defer sub.Close()

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Writer.WriteHeader(http.StatusOK)
	c.Writer.Flush()

	h.logger.Debug().Str("user_id", userID).Msg("notification stream opened")
	ctx := c.Request.Context()
	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case data, ok := <-sub.C:
			if !ok {
				return false
			}
			c.SSEvent("notification", string(data))
			return true
		case <-heartbeat.C:
			c.SSEvent("ping", "")
			return true
		}
	})
	h.logger.Debug().Str("user_id", userID).Msg("notification stream closed")
}
