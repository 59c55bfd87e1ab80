package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/luciancaetano/wadash/client"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
	Code    int             `json:"code,omitempty"`
}

func ok(c *gin.Context, data json.RawMessage) {
	if data == nil {
		data = json.RawMessage("null")
	}
	c.JSON(http.StatusOK, envelope{Success: true, Data: data})
}

func fail(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, envelope{Success: false, Error: msg})
}

// statusFor maps a call error to an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, client.ErrNotConnected), errors.Is(err, client.ErrDisconnected), errors.Is(err, client.ErrClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, client.ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, client.ErrRPC), errors.Is(err, client.ErrSend), errors.Is(err, client.ErrProtocol):
		return http.StatusBadGateway
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) callFailed(c *gin.Context, err error) {
	s.callFailedWith(c, statusFor(err), err)
}

func (s *Server) callFailedWith(c *gin.Context, status int, err error) {
	body := envelope{Success: false, Error: err.Error()}
	var rpcErr *client.RPCError
	if errors.As(err, &rpcErr) {
		body.Code = rpcErr.Code
	}
	if status >= http.StatusInternalServerError {
		s.logger.Warn("Backend call failed",
			zap.String("path", routePath(c)),
			zap.Int("status", status),
			zap.Error(err))
	}
	c.AbortWithStatusJSON(status, body)
}

func (s *Server) rateLimited(c *gin.Context, scope string) {
	if s.metrics != nil {
		s.metrics.RecordRateLimited(scope)
	}
	fail(c, http.StatusTooManyRequests, "rate limit exceeded")
}

func badRequest(c *gin.Context, err error) {
	fail(c, http.StatusBadRequest, err.Error())
}
