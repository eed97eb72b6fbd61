package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/rs/zerolog"

	"github.com/akave-ai/logserver/internal/config"
	"github.com/akave-ai/logserver/internal/handler"
	"github.com/akave-ai/logserver/internal/logstore"
	"github.com/akave-ai/logserver/internal/repository"
	"github.com/akave-ai/logserver/internal/router"
	"github.com/akave-ai/logserver/internal/storage"
)

const opsShutdownTimeout = 5 * time.Second

// Deps are the collaborators the server wires together. Journal and Archive
// are optional.
type Deps struct {
	Tokens   router.Tokens
	Store    *logstore.Store
	Journal  *repository.JournalRepository
	Archive  *storage.Archiver
	NewRelic *newrelic.Application
	Logger   zerolog.Logger
}

// Server holds the log protocol listener and the optional Echo ops API.
type Server struct {
	Echo   *echo.Echo
	Config *config.Config
	Log    *LogServer
	Stats  *Stats
	logger zerolog.Logger
}

// New builds the log server and registers the ops routes.
func New(cfg *config.Config, deps Deps) *Server {
	opts := router.Options{DebugBypass: cfg.Auth.DebugBypass}
	if deps.Journal != nil {
		opts.Journal = deps.Journal
	}
	rt := router.New(deps.Tokens, deps.Store, opts)

	stats := NewStats()
	ls := NewLogServer(ConnConfig{
		Identity:       cfg.Server.Identity,
		Deadline:       cfg.Server.DeadlineDuration(),
		MaxBodyBytes:   cfg.Server.MaxBodyBytes,
		MaxHeaderBytes: cfg.Server.MaxHeaderBytes,
	}, rt, deps.Logger, stats, deps.NewRelic)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover(), requestLogger(deps.Logger))

	ops := &handler.OpsHandler{Users: deps.Store, Stats: stats}
	if deps.Journal != nil {
		ops.Journal = deps.Journal
	}
	if deps.Archive != nil {
		ops.Archive = deps.Archive
	}
	ops.Register(e)

	return &Server{Echo: e, Config: cfg, Log: ls, Stats: stats, logger: deps.Logger}
}

func requestLogger(logger zerolog.Logger) echo.MiddlewareFunc {
	logger = logger.With().Str("component", "ops").Logger()
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			ev := logger.Info()
			if v.Error != nil {
				ev = logger.Warn().Err(v.Error)
			}
			ev.Str("method", v.Method).Str("uri", v.URI).Int("status", v.Status).Dur("latency", v.Latency).Msg("ops request")
			return nil
		},
	})
}

// Start listens on the configured address and serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.Config.Server.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.Config.Server.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve runs the log protocol on ln, and the ops API when an ops address is
// configured. Blocks until ctx is cancelled or either listener fails.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	opsErr := make(chan error, 1)
	if addr := s.Config.Server.OpsAddr; addr != "" {
		go func() {
			s.logger.Info().Str("addr", addr).Msg("ops api listening")
			err := s.Echo.Start(addr)
			if errors.Is(err, http.ErrServerClosed) {
				err = nil
			}
			if err != nil {
				cancel()
			}
			opsErr <- err
		}()
	} else {
		opsErr <- nil
	}

	err := s.Log.Serve(ctx, ln)
	if shutdownErr := s.Shutdown(context.Background()); shutdownErr != nil && err == nil {
		err = shutdownErr
	}
	if oerr := <-opsErr; oerr != nil && err == nil {
		err = fmt.Errorf("ops api: %w", oerr)
	}
	return err
}

// Shutdown stops the ops API. The log listener stops with its context.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.Config.Server.OpsAddr == "" {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, opsShutdownTimeout)
	defer cancel()
	return s.Echo.Shutdown(ctx)
}
