// Package dashboard serves the JSON API of the messaging dashboard on top
// of the typed RPC client.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/luciancaetano/wadash/client"
	"github.com/luciancaetano/wadash/internal/metrics"
)

// Server is the dashboard HTTP server.
type Server struct {
	cfg     *Config
	client  *client.Client
	logger  *zap.Logger
	metrics *metrics.HTTP
	limits  *limits
	engine  *gin.Engine
	started time.Time
}

// New builds the server and its routes. It does not listen.
func New(cfg *Config, c *client.Client) (*Server, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if c == nil {
		return nil, fmt.Errorf("%w: client is required", ErrInvalidConfig)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		cfg:     cfg,
		client:  c,
		logger:  logger.Named("dashboard"),
		metrics: cfg.Metrics,
		limits:  newLimits(cfg.RateLimit),
		started: time.Now(),
	}
	engine, err := s.routes()
	if err != nil {
		return nil, err
	}
	s.engine = engine
	return s, nil
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) routes() (*gin.Engine, error) {
	r := gin.New()
	if err := r.SetTrustedProxies(s.cfg.TrustedProxies); err != nil {
		return nil, fmt.Errorf("%w: trusted proxies: %v", ErrInvalidConfig, err)
	}
	r.Use(gin.Recovery(), requestID(), requestLogger(s.logger))
	if s.metrics != nil {
		r.Use(requestMetrics(s.metrics))
	}
	if len(s.cfg.CORSOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:  s.cfg.CORSOrigins,
			AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
			AllowHeaders:  []string{"Origin", "Content-Type", RequestIDHeader},
			ExposeHeaders: []string{RequestIDHeader},
			MaxAge:        12 * time.Hour,
		}))
	}

	r.GET("/health", s.health)
	if s.cfg.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.cfg.Gatherer, promhttp.HandlerOpts{})))
	}

	api := r.Group("/api", s.clientLimit())

	api.GET("/status", s.forward(s.client.Status))
	api.POST("/start", s.forward(s.client.Start))
	api.POST("/stop", s.forward(s.client.Stop))
	api.POST("/restart", s.forward(s.client.Restart))
	api.POST("/reset", s.forward(s.client.Reset))
	api.GET("/qr", s.forward(s.client.QR))
	api.GET("/diagnostics", s.forward(s.client.Diagnostics))

	api.POST("/send", s.send)
	api.POST("/send/enhanced", s.send)
	api.GET("/media/:message_id", s.media)

	api.GET("/groups", s.forward(s.client.Groups))
	api.GET("/groups/:group_id", s.groupInfo)
	api.PUT("/groups/:group_id", s.groupUpdate)
	api.POST("/groups/:group_id/participants", s.participants(s.client.GroupParticipantsAdd))
	api.DELETE("/groups/:group_id/participants", s.participants(s.client.GroupParticipantsRemove))
	api.GET("/groups/:group_id/invite", s.groupInvite)
	api.POST("/groups/:group_id/invite/revoke", s.groupRevokeInvite)

	api.GET("/contacts", s.contacts)
	api.POST("/contacts/check", s.contactCheck)
	api.GET("/contacts/:jid/picture", s.contactPicture)
	api.GET("/contact-info/:phone", s.contactInfo)
	api.GET("/chat-history", s.chatHistory)

	api.POST("/typing", s.typing)
	api.POST("/presence", s.presence)
	api.POST("/mark-read", s.markRead)

	api.GET("/rate-limit", s.forward(s.client.RateLimitGet))
	api.PUT("/rate-limit", s.rateLimitSet)
	api.GET("/rate-limit/stats", s.forward(s.client.RateLimitStats))
	api.POST("/rate-limit/unpause", s.forward(s.client.RateLimitUnpause))

	return r, nil
}

// Serve serves on l until ctx ends, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	srv := &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(l)
	}()
	s.logger.Info("Dashboard listening", zap.String("addr", l.Addr().String()))

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = DefaultShutdownTimeout
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("dashboard: shutdown: %w", err)
	}
	s.logger.Info("Dashboard stopped")
	return nil
}

// Run listens on the configured address and serves until ctx ends.
func (s *Server) Run(ctx context.Context) error {
	l, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("dashboard: listen %s: %w", s.cfg.Addr, err)
	}
	return s.Serve(ctx, l)
}
