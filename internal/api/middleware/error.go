package middleware

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"gridwatch/internal/api/models"
	"gridwatch/internal/logger"
)

// ErrorHandler turns panics into an INTERNAL_ERROR response and logs
// errors handlers attached with c.Error.
func ErrorHandler(log *logger.Log) gin.HandlerFunc {
	entry := logger.Component(log, "api")
	recovery := gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		entry.WithFields(logger.Fields{
			"method": c.Request.Method,
			"path":   c.Request.URL.Path,
			"panic":  fmt.Sprint(recovered),
		}).Error("recovered from panic")

		message := "An unexpected error occurred"
		if s, ok := recovered.(string); ok {
			message = s
		}
		c.AbortWithStatusJSON(http.StatusInternalServerError, models.ErrorResponse{
			Error: models.ErrorDetail{Code: "INTERNAL_ERROR", Message: message},
		})
	})

	return func(c *gin.Context) {
		recovery(c)
		for _, e := range c.Errors {
			entry.WithError(e.Err).WithField("path", c.Request.URL.Path).Warn("request error")
		}
	}
}
