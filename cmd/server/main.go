package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"collabrelay/internal/api"
	"collabrelay/internal/config"
	"collabrelay/internal/metrics"
	"collabrelay/internal/routers"
	"collabrelay/internal/store"
)

var (
	listenAndServe = http.ListenAndServe
	exitFunc       = defaultExit
	exit           = os.Exit
)

func defaultExit(err error) {
	log.Printf("collab-relay: %v", err)
	exit(1)
}

func run(ctx context.Context) error {
	cfg := config.Load()

	logger, err := zap.NewProduction()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	snapshots := store.NewRedis(rdb)

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	if err := snapshots.Ping(pingCtx); err != nil {
		// snapshot persistence degrades silently; the relay still serves
		logger.Warn("snapshot store unreachable", zap.String("addr", cfg.RedisAddr), zap.Error(err))
	}
	cancel()

	h := api.NewHandlers(logger, snapshots)

	r := chi.NewRouter()
	// no request timeout middleware: relay connections are long-lived and a
	// deadline on the request context would cut off snapshot writes
	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Logger,
		middleware.Recoverer,
		metrics.Middleware,
	)

	r.Mount("/", routers.New(h, cfg.CORSOrigins))
	r.Get("/healthz", healthHandler)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	addr := ":" + cfg.Port
	logger.Info("collab-relay listening", zap.String("addr", addr))
	return listenAndServe(addr, r)
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	_, _ = w.Write([]byte("ok"))
}

func main() {
	if err := run(context.Background()); err != nil {
		exitFunc(err)
	}
}
