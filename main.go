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

	"github.com/gorilla/mux"

	"predictive-maintenance/analytics"
	"predictive-maintenance/cache"
	"predictive-maintenance/classifier"
	"predictive-maintenance/config"
	"predictive-maintenance/handlers"
	"predictive-maintenance/live"
	"predictive-maintenance/predict"
	"predictive-maintenance/simulator"
	"predictive-maintenance/storage"
)

func main() {
	configPath := flag.String("config", config.DefaultPath, "path to params file")
	envPath := flag.String("env", ".env", "optional dotenv file with database credentials")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := config.LoadDotEnv(*envPath); err != nil {
		slog.Error("failed to load env file", "path", *envPath, "err", err)
		os.Exit(1)
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	modelStore := classifier.NewStore(cfg.Model.Path)
	if err := modelStore.Load(); err != nil {
		// The API still serves health and simulation; /predict answers 503
		// until an artifact appears.
		slog.Warn("model not loaded", "path", cfg.Model.Path, "err", err)
	} else if m, _ := modelStore.Model(); m != nil {
		if err := m.CheckFeatures(cfg.Features.Numerical); err != nil {
			slog.Error("model artifact does not match features.numerical", "path", cfg.Model.Path, "err", err)
			os.Exit(1)
		}
	}
	if cfg.Model.Watch {
		go func() {
			if err := modelStore.Watch(ctx); err != nil {
				slog.Error("model watcher stopped", "err", err)
			}
		}()
	}

	var (
		readingCache handlers.ReadingCache
		latest       live.LatestStore
		analysisSink analytics.AnalysisStore
	)
	redisClient, err := cache.NewRedisClient(ctx, cfg.Redis.Addr, cfg.Redis.TTL)
	if err != nil {
		slog.Warn("redis unavailable, running without cache", "addr", cfg.Redis.Addr, "err", err)
	} else {
		defer redisClient.Close()
		slog.Info("connected to redis", "addr", cfg.Redis.Addr)
		readingCache, latest, analysisSink = redisClient, redisClient, redisClient
	}

	opts := []predict.Option{}
	var history handlers.HistoryReader
	if cfg.Database.Host != "" {
		predictionLog, err := storage.Connect(ctx, cfg.Database.DSN())
		if err != nil {
			slog.Error("failed to connect to database", "host", cfg.Database.Host, "err", err)
			os.Exit(1)
		}
		defer predictionLog.Close()
		if err := predictionLog.Init(ctx); err != nil {
			slog.Error("failed to initialise prediction log", "err", err)
			os.Exit(1)
		}
		slog.Info("prediction log ready", "host", cfg.Database.Host, "database", cfg.Database.Name)
		opts = append(opts, predict.WithLog(predictionLog))
		history = predictionLog
	}

	engine := analytics.NewAnalyticsEngine(analysisSink, handlers.CountAnomaly)
	opts = append(opts, predict.WithAnalyzer(engine))

	svc := predict.New(modelStore, cfg.Features.Numerical, opts...)
	seed := cfg.Simulation.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	gen := simulator.New(seed)

	hub := live.NewHub(live.NewFeed(cfg.Simulation.Machines, gen, svc, latest), cfg.Simulation.Interval)
	hubDone := make(chan struct{})
	go func() {
		defer close(hubDone)
		hub.Run(ctx)
	}()

	srv := &http.Server{
		Addr:           cfg.Server.Addr,
		Handler:        newRouter(handlers.NewPredictionHandler(svc, readingCache, history, gen), hub),
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		IdleTimeout:    120 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	go func() {
		slog.Info("server starting", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server failed", "err", err)
			cancel()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down server")
	shutdownCtx, stop := context.WithTimeout(context.Background(), 30*time.Second)
	defer stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "err", err)
	}
	// The hub and in-flight requests submit to the engine; close it last.
	<-hubDone
	engine.Close()
	slog.Info("server exited")
}

// newRouter mounts the API and the live feed. Every route goes through the
// metrics middleware, websocket upgrades included.
func newRouter(api *handlers.PredictionHandler, hub http.Handler) *mux.Router {
	r := mux.NewRouter()
	api.Register(r)
	r.Handle("/ws/live", hub)
	return r
}
