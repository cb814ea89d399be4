package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apperrors "trustchecker.io/trustchecker/internal/pkg/errors"
	"trustchecker.io/trustchecker/internal/pkg/logger"
)

// statusForCode maps application error codes to HTTP statuses. Unknown
// codes fall back to 500.
func statusForCode(code string) int {
	switch code {
	case apperrors.CodeSchemaValidation, apperrors.CodeUnknownEventType:
		return http.StatusBadRequest
	case apperrors.CodeUnknownSaga, apperrors.CodeUnknownView:
		return http.StatusNotFound
	case apperrors.CodeOwnershipConflict:
		return http.StatusConflict
	case apperrors.CodeTransport:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// ErrorHandler captures errors added via c.Error() and returns a
// consistent JSON response. Handlers stay free of status mapping.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		err := c.Errors.Last().Err

		var appErr *apperrors.AppError
		if errors.As(err, &appErr) {
			status := statusForCode(appErr.Code)
			logger.Warn("request error",
				zap.String("code", appErr.Code),
				zap.String("message", appErr.Message),
				zap.Int("status", status),
				zap.Error(appErr.Err),
			)
			c.JSON(status, gin.H{
				"code":    appErr.Code,
				"message": appErr.Message,
			})
			return
		}

		logger.Error("unhandled request error", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    "INTERNAL_ERROR",
			"message": "An internal error occurred",
		})
	}
}
