package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/tranduckhuy/eduva-backend-sub005/internal/jobs"
	"github.com/tranduckhuy/eduva-backend-sub005/internal/notify"
	"github.com/tranduckhuy/eduva-backend-sub005/internal/validation"
	"github.com/tranduckhuy/eduva-backend-sub005/internal/worker"
	"github.com/tranduckhuy/eduva-backend-sub005/pkg/models"
)

// HealthCheck reports whether one dependency is reachable.
type HealthCheck func(ctx context.Context) error

type RouterConfig struct {
	JobService jobs.JobService
	Hub        *notify.Hub
	Validator  *validation.APIValidator
	Logger     zerolog.Logger

	JWTSecret   string
	WorkerToken string

	// MaxUploadBytes bounds a submission body; zero disables the bound.
	MaxUploadBytes int64
	// Heartbeat is the keep-alive period of notification streams.
	Heartbeat time.Duration

	Checks        map[string]HealthCheck
	ConsumerStats func() worker.PoolStats
	Gatherer      prometheus.Gatherer
	Environment   string
}

func SetupRouter(cfg RouterConfig) *gin.Engine {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	if cfg.Validator == nil {
		cfg.Validator = validation.NewAPIValidator(nil)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLogger(cfg.Logger))
	r.Use(SecurityHeadersMiddleware(cfg.Environment == "production"))
	r.Use(validation.Middleware(cfg.Validator))

	handlers := NewHandlers(cfg)

	r.GET("/health", handlers.Health)
	if cfg.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{})))
	}
	SetupSwagger(r, cfg.Environment)

	api := r.Group("/api/v1")
	api.Use(JWTAuth(cfg.JWTSecret))
	{
		api.POST("/ai-jobs",
			BodyLimit(cfg.MaxUploadBytes),
			validation.ValidateRequest(validation.ValidateSubmissionForm),
			handlers.CreateJob,
		)
		api.GET("/ai-jobs/:id",
			validation.ValidateRequest(validation.ValidateJobIDParam("id")),
			handlers.GetJob,
		)
		api.POST("/ai-jobs/:id/confirm",
			validation.ParseJSONRequest[models.ConfirmJobRequest](),
			validation.ValidateRequest(validation.ValidateJobIDParam("id"), validation.ValidateConfirmRequest),
			handlers.ConfirmJob,
		)
		api.GET("/notifications/stream", handlers.StreamNotifications)
	}

	internal := r.Group("/internal/v1")
	internal.Use(WorkerAuth(cfg.WorkerToken))
	{
		internal.POST("/ai-jobs/:id/progress",
			validation.ParseJSONRequest[models.ProgressReport](),
			validation.ValidateRequest(validation.ValidateJobIDParam("id"), validation.ValidateProgressReport),
			handlers.ReportProgress,
		)
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "route not found", "code": "NOT_FOUND"})
	})

	return r
}
