package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jo-hoe/imagepress/internal/backend/blobstore"
	"github.com/jo-hoe/imagepress/internal/backend/database"
	"github.com/jo-hoe/imagepress/internal/backend/events"
	"github.com/jo-hoe/imagepress/internal/backend/metrics"
	"github.com/jo-hoe/imagepress/internal/backend/upload"
	"github.com/jo-hoe/imagepress/internal/backend/worker"
)

// Dependencies are the backends the core service runs on. Nil queue, events
// and metrics fall back to in-process implementations.
type Dependencies struct {
	Database database.DatabaseService
	Blobs    blobstore.Store
	Queue    worker.Queue
	Events   events.Publisher
	Metrics  *metrics.Metrics
}

type CoreService struct {
	config          *ServiceConfig
	databaseService database.DatabaseService
	blobs           blobstore.Store
	queue           worker.Queue
	events          events.Publisher
	metrics         *metrics.Metrics
	limits          upload.Limits
}

func NewCoreService(config *ServiceConfig, deps Dependencies) *CoreService {
	if deps.Queue == nil {
		deps.Queue = worker.NewMemoryQueue(config.Queue.Capacity)
	}
	if deps.Events == nil {
		deps.Events = events.LogPublisher{}
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.New()
	}
	deps.Metrics.RegisterQueueDepth(deps.Queue.Depth)

	return &CoreService{
		config:          config,
		databaseService: deps.Database,
		blobs:           deps.Blobs,
		queue:           deps.Queue,
		events:          deps.Events,
		metrics:         deps.Metrics,
		limits:          config.Upload.Limits(),
	}
}

// Bootstrap builds every backend named in config and wires them into a service
func Bootstrap(ctx context.Context, config *ServiceConfig) (*CoreService, error) {
	databaseService, err := database.NewDatabase(ctx, config.Database.Type, config.Database.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	slog.Info("database initialized successfully", "type", config.Database.Type)

	blobs, err := blobstore.NewStore(ctx, config.Storage, databaseService)
	if err != nil {
		_ = databaseService.Close()
		return nil, fmt.Errorf("failed to initialize blob store: %w", err)
	}

	queue, err := newQueue(ctx, config.Queue)
	if err != nil {
		_ = databaseService.Close()
		return nil, fmt.Errorf("failed to initialize job queue: %w", err)
	}

	publisher, err := events.NewPublisher(config.Events)
	if err != nil {
		_ = queue.Close()
		_ = databaseService.Close()
		return nil, fmt.Errorf("failed to initialize event publisher: %w", err)
	}

	slog.Info("core service initialized",
		"storage", config.Storage.Type, "queue", config.Queue.Type, "events", config.Events.Type)
	service := NewCoreService(config, Dependencies{
		Database: databaseService,
		Blobs:    blobs,
		Queue:    queue,
		Events:   publisher,
	})
	if _, durable := queue.(*worker.RedisQueue); !durable {
		// in-memory jobs did not survive the last shutdown
		if _, err := service.RequeueStranded(ctx); err != nil {
			slog.Warn("failed to requeue unfinished images", "error", err)
		}
	}
	return service, nil
}

func newQueue(ctx context.Context, config QueueConfig) (worker.Queue, error) {
	if config.Type == "redis" {
		return worker.NewRedisQueueFromConfig(ctx, config.Redis, config.Capacity)
	}
	return worker.NewMemoryQueue(config.Capacity), nil
}

// RunWorkers processes queued jobs until ctx is cancelled or the service is closed
func (service *CoreService) RunWorkers(ctx context.Context) error {
	if recoverable, ok := service.queue.(interface {
		Recover(context.Context) (int, error)
	}); ok {
		claimed, err := recoverable.Recover(ctx)
		if err != nil {
			slog.Warn("failed to recover pending jobs", "error", err)
		} else if claimed > 0 {
			slog.Info("recovered pending jobs", "count", claimed)
		}
	}
	pool := worker.NewPool(service.queue, service.HandleJob, service.handleExhausted, service.config.Queue.PoolConfig)
	return pool.Run(ctx)
}

// Metrics exposes the service collectors
func (service *CoreService) Metrics() *metrics.Metrics {
	return service.metrics
}

// Config returns the configuration the service runs with
func (service *CoreService) Config() *ServiceConfig {
	return service.config
}

// Ping reports whether the database is reachable
func (service *CoreService) Ping(ctx context.Context) bool {
	return service.databaseService.DoesDatabaseExist(ctx)
}

func (service *CoreService) Close() error {
	return errors.Join(
		service.queue.Close(),
		service.events.Close(),
		service.databaseService.Close(),
	)
}
