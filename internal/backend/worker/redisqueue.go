package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig configures a queue backed by a Redis stream and consumer group
type RedisConfig struct {
	Address      string        `yaml:"address"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	Stream       string        `yaml:"stream"`
	Group        string        `yaml:"group"`
	Consumer     string        `yaml:"consumer"`
	BlockTimeout time.Duration `yaml:"blockTimeout"`
	// MinIdle is how long a delivered job may stay unacknowledged before another consumer claims it
	MinIdle time.Duration `yaml:"minIdle"`
}

func (c RedisConfig) withDefaults() RedisConfig {
	if c.Stream == "" {
		c.Stream = "imagepress:jobs"
	}
	if c.Group == "" {
		c.Group = "imagepress"
	}
	if c.Consumer == "" {
		c.Consumer = "worker"
	}
	if c.BlockTimeout <= 0 {
		c.BlockTimeout = 2 * time.Second
	}
	if c.MinIdle <= 0 {
		c.MinIdle = 30 * time.Second
		if t := c.BlockTimeout * 6; t > c.MinIdle {
			c.MinIdle = t
		}
	}
	return c
}

// RedisQueue survives restarts: unacknowledged jobs are reclaimed by Recover
type RedisQueue struct {
	client   redis.UniversalClient
	cfg      RedisConfig
	capacity int

	mu      sync.Mutex
	claimed []redis.XMessage

	done      chan struct{}
	closeOnce sync.Once
}

// NewRedisQueue takes ownership of client and makes sure the consumer group exists
func NewRedisQueue(ctx context.Context, client redis.UniversalClient, cfg RedisConfig, capacity int) (*RedisQueue, error) {
	q := &RedisQueue{
		client:   client,
		cfg:      cfg.withDefaults(),
		capacity: capacity,
		done:     make(chan struct{}),
	}
	// MKSTREAM lets the group exist before the first job; BUSYGROUP means it already does
	err := client.XGroupCreateMkStream(ctx, q.cfg.Stream, q.cfg.Group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return nil, fmt.Errorf("failed to ensure consumer group: %w", err)
	}
	return q, nil
}

// NewRedisQueueFromConfig dials Redis and builds a queue on it
func NewRedisQueueFromConfig(ctx context.Context, cfg RedisConfig, capacity int) (*RedisQueue, error) {
	client := redis.NewClient(&redis.Options{Addr: cfg.Address, Password: cfg.Password, DB: cfg.DB})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Address, err)
	}
	return NewRedisQueue(ctx, client, cfg, capacity)
}

func (q *RedisQueue) Enqueue(ctx context.Context, job Job, attempt int) error {
	if q.isClosed() {
		return ErrQueueClosed
	}
	if q.capacity > 0 {
		length, err := q.client.XLen(ctx, q.cfg.Stream).Result()
		if err != nil {
			return fmt.Errorf("failed to read queue length: %w", err)
		}
		if length >= int64(q.capacity) {
			return ErrQueueFull
		}
	}

	raw, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return q.client.XAdd(ctx, &redis.XAddArgs{
		Stream: q.cfg.Stream,
		Values: map[string]any{
			"payload": string(raw),
			"attempt": attempt,
		},
	}).Err()
}

// Recover claims jobs that were delivered to a consumer but never acknowledged
func (q *RedisQueue) Recover(ctx context.Context) (int, error) {
	next := "0-0"
	total := 0
	for {
		messages, start, err := q.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
			Stream:   q.cfg.Stream,
			Group:    q.cfg.Group,
			Consumer: q.cfg.Consumer,
			MinIdle:  q.cfg.MinIdle,
			Start:    next,
			Count:    100,
		}).Result()
		if err != nil {
			return total, fmt.Errorf("failed to claim pending jobs: %w", err)
		}
		q.mu.Lock()
		q.claimed = append(q.claimed, messages...)
		q.mu.Unlock()
		total += len(messages)
		if len(messages) == 0 || start == "0-0" {
			return total, nil
		}
		next = start
	}
}

func (q *RedisQueue) Dequeue(ctx context.Context) (Delivery, error) {
	for {
		if q.isClosed() {
			return Delivery{}, ErrQueueClosed
		}
		if message, ok := q.popClaimed(); ok {
			return q.delivery(message)
		}

		streams, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    q.cfg.Group,
			Consumer: q.cfg.Consumer,
			Streams:  []string{q.cfg.Stream, ">"},
			Count:    1,
			Block:    q.cfg.BlockTimeout,
		}).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return Delivery{}, ctx.Err()
			}
			if q.isClosed() {
				return Delivery{}, ErrQueueClosed
			}
			return Delivery{}, fmt.Errorf("failed to read jobs: %w", err)
		}
		for _, stream := range streams {
			for _, message := range stream.Messages {
				return q.delivery(message)
			}
		}
	}
}

func (q *RedisQueue) delivery(message redis.XMessage) (Delivery, error) {
	ack := func(ctx context.Context) error {
		if err := q.client.XAck(ctx, q.cfg.Stream, q.cfg.Group, message.ID).Err(); err != nil {
			return err
		}
		return q.client.XDel(ctx, q.cfg.Stream, message.ID).Err()
	}

	raw, _ := message.Values["payload"].(string)
	var job Job
	if err := json.Unmarshal([]byte(raw), &job); err != nil || job.ImageID == "" {
		slog.Error("dropping malformed job", "id", message.ID, "error", err)
		_ = ack(context.Background())
		return Delivery{}, fmt.Errorf("malformed job %s", message.ID)
	}
	return Delivery{Job: job, Attempt: toInt(message.Values["attempt"]), ack: ack}, nil
}

func (q *RedisQueue) popClaimed() (redis.XMessage, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.claimed) == 0 {
		return redis.XMessage{}, false
	}
	message := q.claimed[0]
	q.claimed = q.claimed[1:]
	return message, true
}

func (q *RedisQueue) Depth() int {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	length, err := q.client.XLen(ctx, q.cfg.Stream).Result()
	if err != nil {
		return 0
	}
	return int(length)
}

func (q *RedisQueue) Close() error {
	var err error
	q.closeOnce.Do(func() {
		close(q.done)
		err = q.client.Close()
	})
	return err
}

func (q *RedisQueue) isClosed() bool {
	select {
	case <-q.done:
		return true
	default:
		return false
	}
}

func toInt(v any) int {
	switch t := v.(type) {
	case int:
		return t
	case int64:
		return int(t)
	case string:
		n, _ := strconv.Atoi(t)
		return n
	default:
		return 0
	}
}
