package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	requestIDHeader = "X-Request-ID"
	requestIDKey    = "request_id"
)

//requestID reuses the caller's request id or makes one up
func requestID() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		id := ctx.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		ctx.Set(requestIDKey, id)
		ctx.Header(requestIDHeader, id)
		ctx.Next()
	}
}

func accessLog(log logrus.FieldLogger) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		start := time.Now()
		ctx.Next()
		log.WithFields(logrus.Fields{
			requestIDKey: ctx.GetString(requestIDKey),
			"method":     ctx.Request.Method,
			"path":       ctx.FullPath(),
			"status":     ctx.Writer.Status(),
			"elapsed":    time.Since(start).String(),
		}).Debug("Request served")
	}
}
