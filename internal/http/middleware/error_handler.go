package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/shinequote/detailer-backend/internal/logger"
	"github.com/shinequote/detailer-backend/internal/pkg/apperror"
)

// ErrorHandler converts errors attached to the gin context into uniform
// JSON responses. Classified application errors carry their own status
// and message; everything else is masked as an internal error.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() || len(c.Errors) == 0 {
			return
		}

		err := c.Errors.Last().Err

		var appErr *apperror.AppError
		if errors.As(err, &appErr) {
			if logger.Log != nil && appErr.HTTPStatus >= http.StatusInternalServerError {
				logger.Log.WithFields(logrus.Fields{
					"path":   c.Request.URL.Path,
					"method": c.Request.Method,
					"code":   appErr.Code,
				}).WithError(err).Error("request failed")
			}
			c.JSON(appErr.HTTPStatus, gin.H{
				"error": appErr.Message,
				"code":  string(appErr.Code),
			})
			return
		}

		if logger.Log != nil {
			logger.Log.WithFields(logrus.Fields{
				"path":   c.Request.URL.Path,
				"method": c.Request.Method,
			}).WithError(err).Error("unclassified request error")
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "internal server error",
			"code":  string(apperror.ErrCodeInternal),
		})
	}
}
