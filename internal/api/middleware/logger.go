package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"gridwatch/internal/logger"
)

// Logger logs one line per request at a level matching the response status.
func Logger(log *logger.Log) gin.HandlerFunc {
	entry := logger.Component(log, "api")
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		if raw := c.Request.URL.RawQuery; raw != "" {
			path += "?" + raw
		}

		c.Next()

		status := c.Writer.Status()
		e := entry.WithFields(logger.Fields{
			"method":    c.Request.Method,
			"path":      path,
			"status":    status,
			"duration":  time.Since(start).String(),
			"client_ip": c.ClientIP(),
			"bytes":     c.Writer.Size(),
		})
		if len(c.Errors) > 0 {
			e = e.WithField("errors", c.Errors.String())
		}
		switch {
		case status >= 500:
			e.Error("request failed")
		case status >= 400:
			e.Warn("request rejected")
		default:
			e.Info("request served")
		}
	}
}
