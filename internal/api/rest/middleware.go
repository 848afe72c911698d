package rest

import (
	"bytes"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/baluhost/balupi/internal/handshake"
	"github.com/baluhost/balupi/internal/types"
)

const bodyContextKey = "request_body"

// LoggerMiddleware logs every request with latency and status.
func LoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger.Info("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()))
	}
}

// CORSMiddleware allows the dashboard origin to reach the API.
func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers",
			"Authorization, Content-Type, "+handshake.HeaderTimestamp+", "+handshake.HeaderProof)

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// ProofMiddleware verifies the HMAC authenticity proof on handshake
// requests. The raw body is buffered and stashed in the context because the
// proof covers its digest and the handlers need it verbatim.
func (s *Server) ProofMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest,
				types.NewErrorResponse("BAD_REQUEST", "failed to read request body", nil))
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))

		err = s.verifier.Verify(
			c.Request.Method,
			c.Request.URL.Path,
			c.GetHeader(handshake.HeaderTimestamp),
			c.GetHeader(handshake.HeaderProof),
			body,
		)
		if err != nil {
			s.logger.Warn("Handshake request rejected",
				zap.String("path", c.Request.URL.Path),
				zap.String("client_ip", c.ClientIP()),
				zap.Error(err))
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				types.NewErrorResponse("UNAUTHENTICATED", "invalid authenticity proof", nil))
			return
		}

		c.Set(bodyContextKey, body)
		c.Next()
	}
}

func requestBody(c *gin.Context) []byte {
	if v, ok := c.Get(bodyContextKey); ok {
		if body, ok := v.([]byte); ok {
			return body
		}
	}
	return nil
}
