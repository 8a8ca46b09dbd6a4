package httpeval

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/jseval/internal/jsruntime"
	"github.com/GriffinCanCode/jseval/internal/protocol"
)

// Run handles POST /run.
func (s *Server) Run(c *gin.Context) {
	data, err := c.GetRawData()
	if err != nil {
		c.String(http.StatusBadRequest, "failed to read body: %v", err)
		return
	}

	var req protocol.Request
	if err := sonic.Unmarshal(data, &req); err != nil {
		c.String(http.StatusBadRequest, "invalid request body: %v", err)
		return
	}

	mode := protocol.ParseMode(c.Query(protocol.AsyncParam))
	requestID := c.GetString(requestIDKey)
	start := time.Now()

	resp, err := s.engine.Eval(c.Request.Context(), req.Code, mode)
	if err != nil {
		status := http.StatusServiceUnavailable
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			// The client is gone; nobody reads this.
			status = http.StatusRequestTimeout
		} else if !errors.Is(err, jsruntime.ErrClosed) {
			status = http.StatusInternalServerError
		}
		c.String(status, "evaluation aborted: %v", err)
		return
	}

	fields := []zap.Field{
		zap.String("request_id", requestID),
		zap.Stringer("mode", mode),
		zap.Duration("duration", time.Since(start)),
	}
	status := http.StatusOK
	if resp.Failed() {
		status = http.StatusInternalServerError
		fields = append(fields, zap.String("error", resp.Error.Message))
	}
	s.logger.Debug("Evaluated", fields...)

	body, err := sonic.Marshal(resp)
	if err != nil {
		c.String(http.StatusInternalServerError, "failed to encode response: %v", err)
		return
	}
	c.Data(status, "application/json; charset=utf-8", body)
}

// Health handles GET /healthz.
func (s *Server) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"uptime":   time.Since(s.started).String(),
		"requests": s.metrics.Snapshot(),
	})
}
