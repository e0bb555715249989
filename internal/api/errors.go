package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tranduckhuy/eduva-backend-sub005/internal/jobs"
	"github.com/tranduckhuy/eduva-backend-sub005/pkg/models"
)

// statusFor maps a pipeline error to its HTTP status.
func statusFor(err error) int {
	e, ok := jobs.AsError(err)
	if !ok {
		if errors.Is(err, context.DeadlineExceeded) {
			return http.StatusGatewayTimeout
		}
		return http.StatusInternalServerError
	}
	switch e.Kind {
	case jobs.KindNotFound:
		return http.StatusNotFound
	case jobs.KindInvalidState, jobs.KindConflict:
		return http.StatusConflict
	case jobs.KindValidation:
		return http.StatusBadRequest
	case jobs.KindInsufficientFunds:
		return http.StatusPaymentRequired
	case jobs.KindUpstream:
		if e.Code == jobs.CodeStorageFailed {
			return http.StatusServiceUnavailable
		}
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handlers) respondError(c *gin.Context, err error) {
	status := statusFor(err)
	body := models.ErrorResponse{Error: err.Error(), Code: jobs.CodeOf(err)}

	if e, ok := jobs.AsError(err); ok {
		body.Error = e.Message
		if status < http.StatusInternalServerError {
			body.Context = e.Context
		}
	}
	if status >= http.StatusInternalServerError {
		// Les détails internes restent dans les logs
		h.logger.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
		if body.Code == jobs.CodeInternal {
			body.Error = "internal error"
		}
	}

	c.AbortWithStatusJSON(status, body)
}
