package httpapp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"

	"housing_search/internal/config"
)

type App struct {
	log    *slog.Logger
	server *http.Server
	port   int
}

// New создаёт HTTP-сервер поверх готового обработчика.
func New(log *slog.Logger, handler http.Handler, cfg config.HTTPConfig) *App {
	return &App{
		log:  log,
		port: cfg.Port,
		server: &http.Server{
			Addr:              net.JoinHostPort("", strconv.Itoa(cfg.Port)),
			Handler:           handler,
			ReadHeaderTimeout: cfg.Timeout,
			IdleTimeout:       cfg.IdleTimeout,
		},
	}
}

// MustRun запускает сервер и паникует при ошибке.
func (a *App) MustRun() {
	if err := a.Run(); err != nil {
		panic(err)
	}
}

func (a *App) Run() error {
	const op = "httpapp.Run"

	l, err := net.Listen("tcp", a.server.Addr)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	a.log.Info("http server started", slog.String("addr", l.Addr().String()))

	if err := a.server.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// Stop корректно останавливает сервер, дожидаясь активных запросов.
func (a *App) Stop(ctx context.Context) {
	const op = "httpapp.Stop"

	a.log.With(slog.String("op", op)).Info("stopping http server", slog.Int("port", a.port))

	if err := a.server.Shutdown(ctx); err != nil {
		a.log.Error("http server shutdown failed", slog.String("error", err.Error()))
	}
}
