package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"finsight/internal/api"
	"finsight/internal/config"
	"finsight/internal/logging"
	"finsight/internal/metrics"
	"finsight/internal/redis"
	"finsight/internal/render"
	"finsight/internal/service/analyzer"
	"finsight/internal/service/extract"
	"finsight/internal/service/insight"
	"finsight/internal/service/intake"
	"finsight/internal/worker"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

const memoKeyPrefix = "finsight:report:"

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("load .env: %v", err)
	}

	cfgPath := os.Getenv("FINSIGHT_CONFIG")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		if errors.Is(err, config.ErrMissingCredential) {
			log.Fatalf("⚠️ %s", strings.TrimPrefix(err.Error(), config.ErrMissingCredential.Error()+": "))
		}
		log.Fatalf("load config: %v", err)
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	store, err := intake.NewStore(cfg.Upload.Dir, cfg.MaxUploadBytes(), logger.Named("intake"))
	if err != nil {
		logger.Fatal("init upload store", zap.Error(err))
	}
	store.StartSweeper(ctx,
		time.Duration(cfg.Upload.SweepIntervalMinutes)*time.Minute,
		time.Duration(cfg.Upload.MaxAgeMinutes)*time.Minute)

	extractor, err := extract.New(ctx, logger.Named("extract"))
	if err != nil {
		logger.Fatal("init extractor", zap.Error(err))
	}

	chatModel, err := insight.NewChatModel(ctx, cfg.Provider)
	if err != nil {
		logger.Fatal("init chat model", zap.String("provider", cfg.Provider.Name), zap.Error(err))
	}

	cacheTTL := time.Duration(cfg.Cache.TTLMinutes) * time.Minute
	var cache insight.Cache
	switch cfg.Cache.Backend {
	case config.CacheRedis:
		rdb, err := redis.NewRedisClient(ctx, cfg.Redis, memoKeyPrefix)
		if err != nil {
			logger.Fatal("create redis client", zap.Error(err))
		}
		defer rdb.Close()
		cache = insight.NewRedisCache(rdb, cacheTTL, logger.Named("memo"))
	default:
		cache = insight.NewMemoryCache(insight.WithCapacity(cfg.Cache.Capacity), insight.WithTTL(cacheTTL))
	}

	generator, err := insight.NewGenerator(chatModel,
		insight.WithCache(cache),
		insight.WithArchive(insight.NewMemoryCache(insight.WithCapacity(cfg.Cache.ArchiveCapacity))),
		insight.WithTimeout(time.Duration(cfg.Provider.TimeoutSeconds)*time.Second),
		insight.WithLogger(logger.Named("insight")),
		insight.WithMetrics(m),
	)
	if err != nil {
		logger.Fatal("init generator", zap.Error(err))
	}

	pipeline := analyzer.NewService(store, extractor, generator, logger.Named("analyzer"), m)
	pool := worker.NewPool(cfg.Workers.Size, cfg.Workers.QueueSize, logger.Named("worker"))
	defer pool.Close()

	handlers := api.NewHandler(pipeline, generator, pool, render.New(), store.MaxBytes(), logger.Named("api"))

	if !cfg.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery(), logging.Middleware(logger.Named("http")))
	router.MaxMultipartMemory = cfg.MaxUploadBytes()
	handlers.RegisterRoutes(router, reg)

	srv := &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("server shutdown", zap.Error(err))
		}
	}()

	logger.Info("server starting",
		zap.String("addr", cfg.Server.Address),
		zap.String("provider", cfg.Provider.Name),
		zap.String("model", cfg.Provider.Model),
		zap.String("cache", cfg.Cache.Backend),
	)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("server stopped", zap.Error(err))
	}
	logger.Info("server stopped")
}
