package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"clipflow/internal/fault"
	logx "clipflow/pkg/logx"
)

func (h *Handlers) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		fields := []logx.Field{
			logx.String("method", c.Request.Method),
			logx.String("path", c.Request.URL.Path),
			logx.Int("status", status),
			logx.Duration("dur", time.Since(start)),
		}
		switch {
		case status >= 500:
			h.log.Error("http request", fields...)
		case status >= 400:
			h.log.Warn("http request", fields...)
		default:
			h.log.Debug("http request", fields...)
		}
	}
}

// writeErr maps fault kinds onto transport status codes. Raw low-level
// errors never cross this boundary.
func (h *Handlers) writeErr(c *gin.Context, err error) {
	kind := fault.KindOf(err)
	status := http.StatusInternalServerError
	msg := err.Error()

	switch kind {
	case fault.KindValidation:
		status = http.StatusBadRequest
	case fault.KindNotFound:
		status = http.StatusNotFound
	case fault.KindProcessing:
		status = http.StatusServiceUnavailable
	case fault.KindDelivery:
		status = http.StatusBadGateway
	default:
		h.log.Error("internal fault", logx.String("path", c.Request.URL.Path), logx.Err(err))
		msg = "internal error"
	}
	c.JSON(status, gin.H{"error": msg, "kind": kind.String()})
}
