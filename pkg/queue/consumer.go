// Package queue consumes externally enqueued run requests from a Redis
// list and republishes them as run-request events on the bus. It is the
// manual-trigger entry point for systems without direct bus access.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/quickops/jobflow/pkg/eventbus"
	"github.com/quickops/jobflow/pkg/events"
	"github.com/quickops/jobflow/pkg/models"
)

// DefaultQueue is the list key consumed when none is configured.
const DefaultQueue = "jobflow:requests"

// runRequest is the JSON payload external producers push onto the list.
type runRequest struct {
	Kind   string         `json:"kind"` // "job" or "flow"
	ID     string         `json:"id"`
	User   string         `json:"user,omitempty"`
	Params map[string]any `json:"params,omitempty"`
}

// Consumer pops run requests off a Redis list and publishes them.
type Consumer struct {
	client redis.UniversalClient
	queue  string
	bus    eventbus.EventPublisher
	logger *slog.Logger
	stopCh chan struct{}
	wg     sync.WaitGroup
}

func NewConsumer(ctx context.Context, redisURL, queueName string, bus eventbus.EventPublisher, logger *slog.Logger) (*Consumer, error) {
	if queueName == "" {
		queueName = DefaultQueue
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger = logger.With("module", "queue_consumer", "queue", queueName)
	logger.InfoContext(ctx, "Connected to Redis", "addr", opts.Addr)

	return &Consumer{
		client: client,
		queue:  queueName,
		bus:    bus,
		logger: logger,
		stopCh: make(chan struct{}),
	}, nil
}

func (c *Consumer) Start(ctx context.Context) {
	c.wg.Add(1)

	go c.consume(ctx)
}

func (c *Consumer) consume(ctx context.Context) {
	defer c.wg.Done()

	c.logger.InfoContext(ctx, "Starting queue consumer")

	for {
		select {
		case <-c.stopCh:
			c.logger.InfoContext(ctx, "Queue consumer stopped")

			return
		case <-ctx.Done():
			c.logger.InfoContext(ctx, "Context cancelled, stopping queue consumer")

			return
		default:
			err := c.processMessage(ctx)
			if err != nil && ctx.Err() == nil {
				c.logger.ErrorContext(ctx, "Error processing queue message", "error", err)
				time.Sleep(1 * time.Second)
			}
		}
	}
}

func (c *Consumer) processMessage(ctx context.Context) error {
	result, err := c.client.BLPop(ctx, 1*time.Second, c.queue).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}

		return fmt.Errorf("failed to pop message from queue: %w", err)
	}

	if len(result) < 2 {
		return nil
	}

	payload := result[1]

	event, key, err := parseRequest(payload)
	if err != nil {
		// Malformed payloads are dropped, not retried: requeueing would
		// loop forever on the same message.
		c.logger.ErrorContext(ctx, "Dropping malformed run request", "payload", payload, "error", err)

		return nil
	}

	if err := c.bus.Publish(ctx, key, event); err != nil {
		return fmt.Errorf("failed to publish run request: %w", err)
	}

	c.logger.InfoContext(ctx, "Forwarded queued run request", "key", key)

	return nil
}

// parseRequest converts one queue payload into the matching run-request
// event.
func parseRequest(payload string) (eventbus.Event, string, error) {
	var request runRequest
	if err := json.Unmarshal([]byte(payload), &request); err != nil {
		return nil, "", fmt.Errorf("invalid JSON: %w", err)
	}

	if request.ID == "" {
		return nil, "", errors.New("missing id")
	}

	switch request.Kind {
	case "job":
		return events.JobRunRequested{
			BaseEvent:   events.NewBaseEvent(events.JobRunRequestedEvent),
			JobID:       request.ID,
			Trigger:     models.TriggerManual,
			TriggerUser: request.User,
			Params:      request.Params,
		}, request.ID, nil
	case "flow":
		return events.FlowRunRequested{
			BaseEvent:   events.NewBaseEvent(events.FlowRunRequestedEvent),
			FlowID:      request.ID,
			Trigger:     models.TriggerManual,
			TriggerUser: request.User,
			Params:      request.Params,
		}, request.ID, nil
	default:
		return nil, "", fmt.Errorf("unknown request kind %q", request.Kind)
	}
}

func (c *Consumer) Stop(ctx context.Context) error {
	c.logger.InfoContext(ctx, "Stopping queue consumer")

	close(c.stopCh)
	c.wg.Wait()

	if err := c.client.Close(); err != nil {
		return fmt.Errorf("failed to close Redis client: %w", err)
	}

	return nil
}
