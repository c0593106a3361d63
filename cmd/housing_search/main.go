package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"housing_search/internal/app"
	"housing_search/internal/config"
	"housing_search/internal/lib/logger/handlers/slogpretty"
	"housing_search/internal/lib/logger/sl"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/urfave/cli/v2"
)

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := newCLIApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newCLIApp() *cli.App {
	return &cli.App{
		Name:  "housing_search",
		Usage: "Hybrid lexical and semantic search over housing listings",
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Start the HTTP API and background embedding maintenance",
				Action: serveCommand,
			},
			{
				Name:   "backfill",
				Usage:  "Embed every listing that has no vector for the configured model",
				Action: backfillCommand,
			},
			{
				Name:   "search",
				Usage:  "Run a single hybrid search and print the results as JSON",
				Action: searchCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "query",
						Aliases:  []string{"q"},
						Usage:    "Free-text search query",
						Required: true,
					},
					&cli.IntFlag{
						Name:    "limit",
						Aliases: []string{"n"},
						Usage:   "Maximum number of results",
						Value:   10,
					},
					&cli.Float64Flag{
						Name:  "target-price",
						Usage: "Preferred price; the candidates' median is used when omitted",
					},
					&cli.Float64Flag{
						Name:  "price-weight",
						Usage: "Weight of price proximity in the final ranking (0-1)",
					},
				},
			},
		},
	}
}

// bootstrap загружает конфиг, открывает пул и собирает приложение.
func bootstrap(ctx context.Context) (*app.App, *pgxpool.Pool, *slog.Logger, error) {
	cfg := config.MustLoad()
	log := setupLogger(cfg.Env)

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to create pgx pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	application, err := app.New(log, pool, cfg)
	if err != nil {
		pool.Close()
		return nil, nil, nil, err
	}

	return application, pool, log, nil
}

func serveCommand(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, pool, log, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()
	defer application.Maintenance.Release()

	log.Info("starting housing search", slog.String("env", os.Getenv("ENV")))

	if application.MaintenanceEnabled {
		go application.Maintenance.Run(ctx)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- application.HTTPServer.Run()
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			log.Error("http server failed", sl.Err(err))
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	application.HTTPServer.Stop(shutdownCtx)

	log.Info("application stopped")
	return nil
}

func backfillCommand(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, pool, log, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()
	defer application.Maintenance.Release()

	report, err := application.Maintenance.RunOnce(ctx)
	if err != nil {
		log.Error("backfill failed", sl.Err(err))
		return err
	}

	return printJSON(report)
}

func searchCommand(c *cli.Context) error {
	ctx := c.Context

	application, pool, _, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()
	defer application.Maintenance.Release()

	targetPrice, priceWeight := optionalFloat(c, "target-price"), optionalFloat(c, "price-weight")

	resp, err := application.Search.SearchDefault(ctx, c.String("query"), c.Int("limit"), targetPrice, priceWeight)
	if err != nil {
		return err
	}

	return printJSON(resp)
}

// optionalFloat возвращает nil, если флаг не задан явно.
func optionalFloat(c *cli.Context, name string) *float64 {
	if !c.IsSet(name) {
		return nil
	}
	v := c.Float64(name)
	return &v
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func setupLogger(env string) *slog.Logger {
	var log *slog.Logger

	switch env {
	case envLocal:
		log = setupPrettySlog()
	case envDev:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envProd:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	default:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	}

	return log
}

func setupPrettySlog() *slog.Logger {
	opts := slogpretty.PrettyHandlerOptions{
		SlogOpts: &slog.HandlerOptions{
			Level: slog.LevelDebug,
		},
	}

	handler := opts.NewPrettyHandler(os.Stdout)

	return slog.New(handler)
}
