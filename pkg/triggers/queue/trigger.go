// Package queue provides a Redis-backed message queue trigger.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/forgeops/automaton/pkg/protocol"
)

const triggerType = "queue"

const (
	popTimeout     = 1 * time.Second
	connectTimeout = 5 * time.Second
)

// Trigger consumes messages from a Redis list and fires one trigger event
// per message. JSON messages become the event data; anything else is passed
// through under the "message" key.
type Trigger struct {
	Queue      string
	Connection map[string]string
	Enabled    bool

	client   redis.UniversalClient
	callback protocol.TriggerCallback
	logger   *slog.Logger
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewTrigger builds a queue trigger from declarative config.
func NewTrigger(config map[string]any, logger *slog.Logger) (*Trigger, error) {
	queue, _ := config["queue"].(string)

	connection := make(map[string]string)
	if connectionConfig, ok := config["connection"].(map[string]any); ok {
		for k, v := range connectionConfig {
			if str, ok := v.(string); ok {
				connection[k] = str
			}
		}
	}

	enabled := true
	if enabledVal, ok := config["enabled"].(bool); ok {
		enabled = enabledVal
	}

	trigger := &Trigger{
		Queue:      queue,
		Connection: connection,
		Enabled:    enabled,
		stopCh:     make(chan struct{}),
		logger: logger.With(
			"module", "queue_trigger",
			"queue", queue,
		),
	}

	if err := trigger.Validate(); err != nil {
		return nil, err
	}

	return trigger, nil
}

// Validate checks the queue name.
func (t *Trigger) Validate() error {
	if t.Queue == "" {
		return errors.New("queue trigger queue name is required")
	}

	return nil
}

// Start connects to Redis and launches the consumer loop.
func (t *Trigger) Start(ctx context.Context, callback protocol.TriggerCallback) error {
	if !t.Enabled {
		t.logger.Info("Queue trigger is disabled")

		return nil
	}

	t.callback = callback

	if err := t.connect(ctx); err != nil {
		return fmt.Errorf("failed to initialize queue client: %w", err)
	}

	t.wg.Add(1)

	go t.consume(ctx)

	t.logger.Info("Queue trigger started")

	return nil
}

func (t *Trigger) connect(ctx context.Context) error {
	addr := t.Connection["addr"]
	if addr == "" {
		addr = "localhost:6379"
	}

	db := 0

	if dbStr := t.Connection["db"]; dbStr != "" {
		parsed, err := strconv.Atoi(dbStr)
		if err != nil {
			return fmt.Errorf("invalid db value: %w", err)
		}

		db = parsed
	}

	t.client = redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: t.Connection["password"],
		DB:       db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	if err := t.client.Ping(pingCtx).Err(); err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}

	t.logger.Info("Connected to redis", "addr", addr, "db", db)

	return nil
}

func (t *Trigger) consume(ctx context.Context) {
	defer t.wg.Done()

	for {
		select {
		case <-t.stopCh:
			return
		case <-ctx.Done():
			return
		default:
			if err := t.processMessage(ctx); err != nil {
				t.logger.Error("Error processing queue message", "error", err)
				time.Sleep(time.Second)
			}
		}
	}
}

func (t *Trigger) processMessage(ctx context.Context) error {
	result, err := t.client.BLPop(ctx, popTimeout, t.Queue).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) || errors.Is(err, context.Canceled) {
			return nil
		}

		return fmt.Errorf("failed to pop message from queue: %w", err)
	}

	if len(result) < 2 {
		return nil
	}

	message := result[1]

	var data map[string]any
	if err := json.Unmarshal([]byte(message), &data); err != nil {
		data = map[string]any{"message": message}
	}

	data["queue"] = t.Queue

	event := protocol.TriggerEvent{
		TriggerType: triggerType,
		Data:        data,
	}

	go func() {
		if err := t.callback(ctx, event); err != nil {
			t.logger.Error("Queue trigger callback failed", "error", err)
		}
	}()

	return nil
}

// Stop halts the consumer loop and closes the Redis client.
func (t *Trigger) Stop(ctx context.Context) error {
	t.logger.Info("Stopping queue trigger")
	t.stopOnce.Do(func() { close(t.stopCh) })
	t.wg.Wait()

	if t.client != nil {
		if err := t.client.Close(); err != nil {
			t.logger.ErrorContext(ctx, "Error closing redis client", "error", err)
		}
	}

	return nil
}
