package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"codeshop/internal/model"
)

// Request logs are written asynchronously through a buffered channel to
// keep SQLite write contention off the request path. Entries are dropped
// when the buffer is full.
var reqLogCh = make(chan model.RequestLog, 256)

// StartRequestLogWriter drains the request log channel into storage.
func StartRequestLogWriter(db *gorm.DB) {
	go func() {
		for entry := range reqLogCh {
			if err := db.Create(&entry).Error; err != nil {
				zap.L().Warn("request log write failed", zap.Error(err))
			}
		}
	}()
}

// RequestDBLogger records per-request rows for operator review.
func RequestDBLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		var query *string
		if q := c.Request.URL.RawQuery; q != "" {
			query = &q
		}
		ip := c.ClientIP()
		ua := c.Request.UserAgent()
		var trace *string
		if t := c.Writer.Header().Get("X-Trace-ID"); t != "" {
			trace = &t
		}

		entry := model.RequestLog{
			Method:     c.Request.Method,
			Path:       c.Request.URL.Path,
			Query:      query,
			Status:     c.Writer.Status(),
			IP:         &ip,
			UserAgent:  &ua,
			DurationMs: time.Since(start).Milliseconds(),
			TraceID:    trace,
		}
		select {
		case reqLogCh <- entry:
		default:
			// buffer full, drop
		}
	}
}
