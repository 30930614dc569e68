package middleware

import (
	"bytes"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/tidwall/pretty"

	"github.com/NEHONIX/FortifyJS-sub002/pkg/logger"
)

// Logger tags each request with an id and logs it with latency, client
// and, for mutating requests, a compressed copy of the JSON body.
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()

		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()[:8]
		}
		c.Request = c.Request.WithContext(logger.ContextWithRequestID(c.Request.Context(), requestID))
		c.Header("X-Request-ID", requestID)

		var bodyStr string
		if c.Request.Method == http.MethodPost || c.Request.Method == http.MethodPut {
			bodyStr = getRequestBody(c)
		}

		c.Next()

		// 404s are noise (scanners, stale clients)
		if c.Writer.Status() == http.StatusNotFound {
			return
		}

		latency := time.Since(startTime)
		msg := "%3d | %13v | %15s | %s %s"
		args := []interface{}{c.Writer.Status(), latency, c.ClientIP(), c.Request.Method, c.Request.RequestURI}
		if bodyStr != "" {
			msg += " | body=%s"
			args = append(args, bodyStr)
		}

		if c.Writer.Status() >= http.StatusInternalServerError {
			logger.ErrorCtx(c.Request.Context(), msg, args...)
		} else {
			logger.InfoCtx(c.Request.Context(), msg, args...)
		}
	}
}

// getRequestBody reads and restores the request body.
func getRequestBody(c *gin.Context) string {
	var bodyBytes []byte
	if c.Request.Body != nil {
		bodyBytes, _ = io.ReadAll(c.Request.Body)
		// Reset request body since reading it clears it
		c.Request.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
	}
	return CompressBody(string(bodyBytes))
}

// CompressBody strips whitespace from a JSON body and truncates it for
// log lines.
func CompressBody(body string) string {
	if len(body) == 0 {
		return ""
	}

	compressed := pretty.Ugly([]byte(body))
	if len(compressed) > 1000 {
		return string(compressed[:1000]) + "..."
	}
	return string(compressed)
}
