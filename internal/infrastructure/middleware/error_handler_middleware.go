package middleware

import (
	"errors"
	"net/http"

	"livecast/internal/core/domain"
	apperrors "livecast/pkg/errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// appErrorFrom maps domain error kinds onto the transport taxonomy.
// Errors already carrying an AppError anywhere in their chain pass
// through unchanged.
func appErrorFrom(err error) *apperrors.AppError {
	if appErr := apperrors.GetAppError(err); appErr != nil {
		return appErr
	}

	switch {
	case errors.Is(err, domain.ErrStreamNotFound), errors.Is(err, domain.ErrSessionNotFound):
		return apperrors.NewNotFoundError("stream")
	case errors.Is(err, domain.ErrPermissionDenied):
		return apperrors.NewForbiddenError("not allowed to modify this stream")
	case errors.Is(err, domain.ErrInvalidState):
		return apperrors.NewInvalidStateError("operation not allowed in current stream state")
	case errors.Is(err, domain.ErrPasswordRequired):
		return apperrors.NewAppError(apperrors.ErrCodePasswordRequired, "password required or incorrect", http.StatusForbidden)
	case errors.Is(err, domain.ErrPrivateAccess):
		return apperrors.NewAppError(apperrors.ErrCodePrivateAccess, "stream is private", http.StatusForbidden)
	case errors.Is(err, domain.ErrPremiumRequired):
		return apperrors.NewAppError(apperrors.ErrCodePremiumRequired, "premium entitlement required", http.StatusForbidden)
	case errors.Is(err, domain.ErrCapacityExceeded):
		return apperrors.NewAppError(apperrors.ErrCodeCapacityExceeded, "viewer capacity exceeded", http.StatusConflict)
	case errors.Is(err, domain.ErrTooManyActiveStreams):
		return apperrors.NewAppError(apperrors.ErrCodeTooManyStreams, "concurrent stream limit reached", http.StatusConflict)
	default:
		return apperrors.WrapError(err, apperrors.ErrCodeInternal, "internal error", http.StatusInternalServerError)
	}
}

// ErrorHandlerMiddleware renders errors handlers attach via c.Error. It is
// the single place request errors become HTTP responses, so every route
// reports the same shape and status for the same failure.
func ErrorHandlerMiddleware(logger *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		appErr := appErrorFrom(c.Errors.Last().Err)

		fields := []interface{}{
			"code", appErr.Code,
			"status", appErr.HTTPStatus,
			"path", c.Request.URL.Path,
			"method", c.Request.Method,
		}
		if appErr.HTTPStatus >= http.StatusInternalServerError {
			logger.Errorw("request failed", append(fields, "error", appErr.Error())...)
		} else {
			logger.Warnw("request rejected", fields...)
		}

		body := gin.H{
			"error":   string(appErr.Code),
			"message": appErr.Message,
		}
		if len(appErr.Context) > 0 {
			body["details"] = appErr.Context
		}
		c.JSON(appErr.HTTPStatus, body)
	}
}

// RecoveryMiddleware converts panics into 500 responses instead of
// tearing the connection down.
func RecoveryMiddleware(logger *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				logger.Errorw("panic recovered",
					"error", err,
					"path", c.Request.URL.Path,
					"method", c.Request.Method,
				)

				c.JSON(http.StatusInternalServerError, gin.H{
					"error":   string(apperrors.ErrCodeInternal),
					"message": "Internal server error",
				})
				c.Abort()
			}
		}()

		c.Next()
	}
}
