package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/bravohq/dispatch/internal/ai"
	"github.com/bravohq/dispatch/internal/codebase"
	"github.com/bravohq/dispatch/internal/config"
	"github.com/bravohq/dispatch/internal/conversation"
	"github.com/bravohq/dispatch/internal/db"
	"github.com/bravohq/dispatch/internal/events"
	"github.com/bravohq/dispatch/internal/httpapi"
	"github.com/bravohq/dispatch/internal/orchestrate"
	"github.com/bravohq/dispatch/internal/queue"
	"github.com/bravohq/dispatch/internal/search"
	"github.com/bravohq/dispatch/internal/upload"
)

func main() {
	cfgPath := flag.String("config", "", "path to config file")
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	gdb, err := db.Connect(cfg.Database)
	if err != nil {
		logger.Fatal("connect database", zap.Error(err))
	}
	if err := db.Migrate(gdb); err != nil {
		logger.Fatal("migrate database", zap.Error(err))
	}

	// Redis backs the push channel. Without it the service still
	// answers; clients just get no live status events.
	var notifier *events.RedisNotifier
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	pingCtx, cancelPing := context.WithTimeout(context.Background(), 3*time.Second)
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis unavailable, push channel disabled", zap.Error(err))
	} else {
		notifier = events.NewRedisNotifier(rdb, logger)
	}
	cancelPing()

	var rabbit *queue.Publisher
	if p, err := queue.NewPublisher(cfg.Rabbit.URL, cfg.Rabbit.Queue); err != nil {
		logger.Warn("rabbitmq unavailable, async jobs disabled", zap.Error(err))
	} else {
		rabbit = p
		defer rabbit.Close()
	}

	store, err := upload.NewLocalStore(cfg.Uploads.Dir)
	if err != nil {
		logger.Fatal("init upload store", zap.Error(err))
	}

	registry := upload.NewRegistry(gdb)
	convs := conversation.NewRepo(gdb)
	pipeline := buildPipeline(cfg, gdb, notifier, store, logger)

	engine := httpapi.NewRouter(gdb, cfg, pipeline, convs, registry, store, rabbit, notifier, logger)

	srv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: engine,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("server listening", zap.String("addr", cfg.Server.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("serve", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", zap.Error(err))
	}
}

// buildPipeline wires the orchestration core. The worker builds the
// identical pipeline so sync and async turns behave the same.
func buildPipeline(cfg *config.Config, gdb *gorm.DB, notifier *events.RedisNotifier, store *upload.LocalStore, logger *zap.Logger) *orchestrate.Pipeline {
	gateway := ai.NewOpenAIGateway(cfg.OpenAI.APIKey, cfg.OpenAI.Model, logger)
	classifier := orchestrate.NewClassifier(gateway, cfg.OpenAI.ClassifierModel, logger)

	registry := upload.NewRegistry(gdb)
	extractor := upload.NewTextExtractor(cfg.Uploads.WordLimit)
	files := orchestrate.NewFileHandler(registry, extractor, store.Path, logger)

	searcher := search.NewClient(cfg.Search.GoogleAPIKey, cfg.Search.SearchEngineID, cfg.OpenAI.Model, gateway, logger)
	code := codebase.NewSource("", logger)
	viz := codebase.NewVisualizer("", cfg.Uploads.Dir, codebase.GraphvizRenderer{}, logger)

	router := orchestrate.NewRouter(gateway, viz, files, code, searcher, logger)

	var counter orchestrate.TokenCounter
	if tk, err := orchestrate.NewTiktokenCounter(cfg.OpenAI.Model); err != nil {
		logger.Warn("token encoding unavailable, counting words instead", zap.Error(err))
		counter = orchestrate.WordCounter{}
	} else {
		counter = tk
	}
	trimmer := orchestrate.NewTrimmer(counter, cfg.Chat.TokenBudget)

	var pushChannel events.Notifier = events.NopNotifier{}
	if notifier != nil {
		pushChannel = notifier
	}

	return orchestrate.NewPipeline(
		gateway, classifier, router,
		conversation.NewRepo(gdb), registry, trimmer,
		pushChannel, cfg.Chat.SystemPrompt, cfg.Chat.MaxMessages, logger,
	)
}
