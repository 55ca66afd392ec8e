package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "redswarm/internal/errors"
	"redswarm/internal/logging"
)

// APIResponse is the envelope of every JSON reply.
type APIResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Kind    string `json:"error_kind,omitempty"`
}

func writeData(c *gin.Context, status int, data any) {
	c.JSON(status, APIResponse{Success: true, Data: data})
}

// writeError maps err onto a status code and the error envelope.
func writeError(c *gin.Context, logger logging.Logger, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.Error("HTTP %d %s %s: %v", status, c.Request.Method, c.FullPath(), err)
	} else {
		logger.Warn("HTTP %d %s %s: %v", status, c.Request.Method, c.FullPath(), err)
	}
	c.AbortWithStatusJSON(status, APIResponse{
		Error: err.Error(),
		Kind:  string(apperrors.KindOf(err)),
	})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, apperrors.ErrConflict):
		return http.StatusConflict
	case apperrors.KindOf(err) == apperrors.KindValidation:
		return http.StatusBadRequest
	case apperrors.KindOf(err) == apperrors.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func statusForKind(kind apperrors.Kind) int {
	switch kind {
	case apperrors.KindValidation:
		return http.StatusBadRequest
	case apperrors.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
