package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/animerealm/animerealm/animerealm"
	"github.com/animerealm/animerealm/animerealm/logger"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	// Initialize custom logger
	customHandler := logger.NewHandler()
	slog.SetDefault(slog.New(customHandler))

	slog.Info("Starting AnimeRealm Bot",
		slog.String("version", version),
		slog.String("commit", commit))

	path := flag.String("config", "config.toml", "path to config")
	flag.Parse()

	// A .env next to the binary can inject secrets into ${...} free toml
	// setups in development; missing is fine.
	_ = godotenv.Load()

	cfg, err := animerealm.LoadConfig(*path)
	if err != nil {
		slog.Error("Failed to load configuration", slog.Any("error", err))
		os.Exit(-1)
	}
	if cfg.Bot.Token == "" {
		cfg.Bot.Token = os.Getenv("BOT_TOKEN")
	}
	if cfg.Bot.BroadcastPerSecond <= 0 {
		cfg.Bot.BroadcastPerSecond = 10
	}
	customHandler.SetLevel(cfg.Log.Level)
	logger.LogSystem("Configuration loaded successfully")

	setupCtx, setupCancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer setupCancel()

	b := animerealm.New(*cfg, version, commit)
	if err := b.Setup(setupCtx); err != nil {
		slog.Error("Failed to set up bot",
			slog.String("type", "sys"),
			slog.Any("error", err))
		os.Exit(-1)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		b.Close(closeCtx)
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return b.Run(gctx)
	})

	if cfg.Health.Addr != "" {
		g.Go(func() error {
			return runHealthServer(gctx, cfg.Health.Addr, b)
		})
	}

	logger.LogSystem("Bot is running. Press CTRL-C to exit.")
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("Bot stopped with error",
			slog.String("type", "sys"),
			slog.Any("error", err))
		os.Exit(-1)
	}
	logger.LogSystem("Shutting down bot...")
}

func runHealthServer(ctx context.Context, addr string, b *animerealm.Bot) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		pingCtx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		if err := b.DB.Ping(pingCtx); err != nil {
			http.Error(w, "database unreachable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.LogSystem("Health endpoint listening", slog.String("addr", addr))
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
