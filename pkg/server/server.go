// Package server exposes the request dispatcher over HTTP.
//
// The console talks to a single endpoint: every operation is a POST of a
// JSON body to "/", except document generation, which the browser opens
// with GET /?function=documentGenerate so that the rendered document lands
// in a new tab.
package server

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ha1tch/qconsole/pkg/api"
	"github.com/ha1tch/qconsole/pkg/config"
	qerrors "github.com/ha1tch/qconsole/pkg/errors"
	"github.com/ha1tch/qconsole/pkg/log"
	"github.com/ha1tch/qconsole/pkg/version"
)

// DefaultMaxBodyBytes bounds a request body.
const DefaultMaxBodyBytes = 8 << 20

// State represents the server's current state.
type State int

const (
	StateNew State = iota
	StateStarting
	StateRunning
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Config holds the transport settings.
type Config struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	MaxBodyBytes int64

	// SessionCookie names the cookie that keys document sessions.
	SessionCookie string

	// ClientSources identify callers for rate limiting and logs.
	ClientSources []ClientSource

	Auth      config.AuthConfig
	RateLimit config.RateLimitConfig
}

// FromConfig extracts the transport settings from the full configuration.
func FromConfig(cfg config.Config) Config {
	return Config{
		Addr:          cfg.Server.Address(),
		ReadTimeout:   cfg.Server.ReadTimeout,
		WriteTimeout:  cfg.Server.WriteTimeout,
		IdleTimeout:   cfg.Server.IdleTimeout,
		MaxBodyBytes:  DefaultMaxBodyBytes,
		SessionCookie: cfg.Server.SessionCookie,
		ClientSources: DefaultClientSources(cfg.Server.ClientHeader),
		Auth:          cfg.Auth,
		RateLimit:     cfg.RateLimit,
	}
}

// Server is the qconsole HTTP server.
type Server struct {
	mu sync.RWMutex

	config     Config
	logger     *log.Logger
	dispatcher *api.Dispatcher
	engine     *gin.Engine

	httpServer *http.Server
	listener   net.Listener
	done       chan struct{}

	state     State
	startTime time.Time
}

// New creates a server. It does not listen until Start is called.
func New(cfg Config, dispatcher *api.Dispatcher, logger *log.Logger) (*Server, error) {
	if logger == nil {
		logger = log.Default()
	}
	if cfg.SessionCookie == "" {
		cfg.SessionCookie = config.DefaultConfig().Server.SessionCookie
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}

	if cfg.Auth.Enabled && cfg.Auth.JWTSecret == "" {
		return nil, qerrors.New(qerrors.ErrCodeConfigMissing, "auth requires a JWT secret").
			WithOp("server.New").
			Err()
	}
	clients, err := NewClientIdentifier(cfg.ClientSources)
	if err != nil {
		return nil, qerrors.Wrap(err, qerrors.ErrCodeConfigInvalid, "invalid client sources").
			WithOp("server.New").
			Err()
	}

	s := &Server{
		config:     cfg,
		logger:     logger,
		dispatcher: dispatcher,
		state:      StateNew,
	}
	s.engine = s.routes(clients)
	return s, nil
}

func (s *Server) routes(clients *ClientIdentifier) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger(s.logger))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(metricsHandler()))

	console := r.Group("/")
	if s.config.Auth.Enabled {
		console.Use(authMiddleware(s.config.Auth, s.logger))
	}
	console.Use(clientMiddleware(clients))
	if s.config.RateLimit.RequestsPerMinute > 0 {
		console.Use(rateLimitMiddleware(s.config.RateLimit.RequestsPerMinute, s.config.RateLimit.Burst, s.logger))
	}
	console.Use(sessionMiddleware(s.config.SessionCookie))

	console.POST("/", s.handlePost)
	console.GET("/", s.handleGet)
	return r
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.engine }

// Start binds the listen address and serves in the background.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.state != StateNew && s.state != StateStopped {
		s.mu.Unlock()
		return qerrors.Newf(qerrors.ErrCodeInternal,
			"server cannot start from state %s", s.state).
			WithOp("Server.Start").
			Err()
	}
	s.state = StateStarting
	s.mu.Unlock()

	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		s.setState(StateStopped)
		return qerrors.Wrap(err, qerrors.ErrCodeConfigInvalid, "failed to listen").
			WithOp("Server.Start").
			WithField("addr", s.config.Addr).
			Err()
	}

	srv := &http.Server{
		Handler:      s.engine,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}
	done := make(chan struct{})

	s.mu.Lock()
	s.httpServer = srv
	s.listener = ln
	s.done = done
	s.state = StateRunning
	s.startTime = time.Now()
	s.mu.Unlock()

	go func() {
		defer close(done)
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.System().Error("http server failed", err, "addr", ln.Addr().String())
		}
	}()

	s.logger.System().Info("server started",
		"addr", ln.Addr().String(),
		"version", version.String(),
		"auth", s.config.Auth.Enabled,
		"rate_limit", s.config.RateLimit.RequestsPerMinute,
	)
	return nil
}

// Stop shuts the server down, waiting for in-flight requests until ctx is
// done.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateRunning {
		s.mu.Unlock()
		return nil
	}
	s.state = StateStopping
	srv, done := s.httpServer, s.done
	s.mu.Unlock()

	s.logger.System().Info("server stopping")

	err := srv.Shutdown(ctx)
	if err != nil {
		srv.Close()
	}
	<-done

	s.setState(StateStopped)
	s.logger.System().Info("server stopped", "uptime", time.Since(s.startTime).String())

	if err != nil {
		return qerrors.Wrap(err, qerrors.ErrCodeInternal, "shutdown interrupted").
			WithOp("Server.Stop").
			Err()
	}
	return nil
}

// Wait blocks until the server stops serving.
func (s *Server) Wait() {
	s.mu.RLock()
	done := s.done
	s.mu.RUnlock()
	if done != nil {
		<-done
	}
}

// Addr returns the bound address, or the configured one before Start.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.config.Addr
}

// State returns the current server state.
func (s *Server) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Uptime returns how long the server has been running.
func (s *Server) Uptime() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state != StateRunning {
		return 0
	}
	return time.Since(s.startTime)
}

func (s *Server) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}
