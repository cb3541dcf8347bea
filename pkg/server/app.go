package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	mid "SaxoBridge/internal/middleware"
	"SaxoBridge/internal/service/oauth"
	"SaxoBridge/internal/usecase"
	"SaxoBridge/pkg/config"
	xhttp "SaxoBridge/pkg/http"
	applogger "SaxoBridge/pkg/logger"
)

// App encapsulates the entire application lifecycle.
type App struct {
	cfg        *config.Config
	logger     *applogger.Logger
	handler    xhttp.Handler
	tokens     *oauth.Manager
	sessions   *usecase.SessionManager
	pipeline   *mid.TickPipeline
	httpServer *xhttp.Server
}

// New creates a new App instance with all dependencies. pipeline is nil
// when archiving is disabled.
func New(
	cfg *config.Config,
	l *applogger.Logger,
	handler xhttp.Handler,
	tokens *oauth.Manager,
	sessions *usecase.SessionManager,
	pipeline *mid.TickPipeline,
) *App {
	return &App{
		cfg:      cfg,
		logger:   l,
		handler:  handler,
		tokens:   tokens,
		sessions: sessions,
		pipeline: pipeline,
	}
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return a.run(ctx)
}

func (a *App) run(ctx context.Context) error {
	l := a.logger

	a.httpServer = xhttp.NewServer(a.handler,
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
		xhttp.WithLogger(l),
	)

	if a.pipeline != nil {
		a.pipeline.Start(context.WithoutCancel(ctx))
		l.Info("tick archive started", applogger.String("backend", a.cfg.Archive.Backend))
	}

	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	go a.tokens.Run(sweepCtx, a.cfg.Tokens.RefreshInterval)

	if err := a.httpServer.Start(); err != nil {
		l.Error("http server start error", applogger.Error(err))
		return err
	}

	<-ctx.Done()
	l.Info("shutdown signal received")
	stopSweep()
	return a.shutdown()
}

// shutdown ends every stream context before the HTTP server, so open
// quote responses complete, then drains the archive.
func (a *App) shutdown() error {
	l := a.logger
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	a.sessions.Shutdown(ctx)

	if err := a.httpServer.Stop(ctx); err != nil {
		l.Error("http shutdown error", applogger.Error(err))
	}

	if a.pipeline != nil {
		a.pipeline.Stop()
	}

	l.Info("shutdown complete")
	return nil
}
