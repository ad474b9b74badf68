package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/bravohq/dispatch/internal/ai"
	"github.com/bravohq/dispatch/internal/codebase"
	"github.com/bravohq/dispatch/internal/config"
	"github.com/bravohq/dispatch/internal/conversation"
	"github.com/bravohq/dispatch/internal/db"
	"github.com/bravohq/dispatch/internal/events"
	"github.com/bravohq/dispatch/internal/orchestrate"
	"github.com/bravohq/dispatch/internal/queue"
	"github.com/bravohq/dispatch/internal/search"
	"github.com/bravohq/dispatch/internal/upload"
)

func workerConcurrency() int {
	v := os.Getenv("WORKER_CONCURRENCY")
	if v == "" {
		return 2
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 2
	}
	if n > 50 {
		return 50
	}
	return n
}

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

	store, err := upload.NewLocalStore(cfg.Uploads.Dir)
	if err != nil {
		logger.Fatal("init upload store", zap.Error(err))
	}

	repo := conversation.NewRepo(gdb)
	pipeline := buildPipeline(cfg, gdb, notifier, store, logger)

	concurrency := workerConcurrency()
	consumer, deliveries, err := queue.NewConsumer(cfg.Rabbit.URL, cfg.Rabbit.Queue, concurrency)
	if err != nil {
		logger.Fatal("rabbitmq consumer", zap.Error(err))
	}
	defer consumer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("worker started",
		zap.String("queue", cfg.Rabbit.Queue),
		zap.Int("concurrency", concurrency))

	// worker pool
	jobs := make(chan amqp.Delivery, concurrency*2)

	var wg sync.WaitGroup
	wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go func(workerID int) {
			defer wg.Done()
			for d := range jobs {
				var m queue.JobMessage
				if err := json.Unmarshal(d.Body, &m); err != nil || m.JobID == "" {
					logger.Warn("bad message",
						zap.Int("worker", workerID), zap.Error(err))
					_ = d.Nack(false, false)
					continue
				}

				start := time.Now()
				if err := handleJob(ctx, pipeline, repo, m.JobID); err != nil {
					logger.Error("job failed",
						zap.Int("worker", workerID),
						zap.String("job_id", m.JobID),
						zap.Duration("cost", time.Since(start)),
						zap.Error(err))
					_ = d.Nack(false, false)
					continue
				}

				if err := d.Ack(false); err != nil {
					logger.Warn("ack failed",
						zap.Int("worker", workerID),
						zap.String("job_id", m.JobID),
						zap.Error(err))
				}
			}
		}(i)
	}

	// dispatcher
	for {
		select {
		case <-ctx.Done():
			logger.Info("worker shutting down")
			close(jobs)
			wg.Wait()
			return

		case d, ok := <-deliveries:
			if !ok {
				logger.Warn("delivery channel closed")
				time.Sleep(1 * time.Second)
				continue
			}
			jobs <- d
		}
	}
}

// handleJob runs one queued chat turn through the same pipeline the
// sync endpoint uses and records the outcome on the job row.
func handleJob(ctx context.Context, pipeline *orchestrate.Pipeline, repo *conversation.Repo, jobID string) error {
	if err := repo.MarkJobRunning(ctx, jobID); err != nil {
		return err
	}

	j, err := repo.GetJobByID(ctx, jobID)
	if err != nil {
		return err
	}

	resp, err := pipeline.Respond(ctx, orchestrate.Request{
		SessionID:   j.SessionID,
		Message:     j.Prompt,
		Model:       j.Model,
		Temperature: float32(j.Temperature),
	})
	if err != nil {
		_ = repo.MarkJobFailed(ctx, jobID, err.Error())
		return err
	}

	return repo.MarkJobSucceeded(ctx, jobID, resp.AssistantMessageID)
}

// buildPipeline mirrors the server's wiring so async jobs go through
// the identical orchestration path.
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
