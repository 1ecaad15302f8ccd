package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/driftdetect/backend/internal/storage/models"
	"github.com/driftdetect/backend/pkg/logger"
)

type Client struct {
	client *redis.Client
}

func NewClient(ctx context.Context, host string, port int, password string, db int) (*Client, error) {
	addr := fmt.Sprintf("%s:%d", host, port)
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	_, err := client.Ping(ctx).Result()
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("Redis client initialized", zap.String("addr", addr))

	return &Client{client: client}, nil
}

func (c *Client) Close() error {
	return c.client.Close()
}

// DriftChannel is the pub/sub channel drift records for detector are published on.
func DriftChannel(detector string) string {
	return "drift:" + detector
}

// DriftMessage is the payload published for each drift record.
type DriftMessage struct {
	RunID      string         `json:"run_id"`
	Detector   string         `json:"detector"`
	Kind       string         `json:"kind"`
	Record     map[string]any `json:"record"`
	DetectedAt time.Time      `json:"detected_at"`
}

func (c *Client) PublishDrift(ctx context.Context, msg DriftMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal drift message: %w", err)
	}

	err = c.client.Publish(ctx, DriftChannel(msg.Detector), data).Err()
	if err != nil {
		return fmt.Errorf("failed to publish drift: %w", err)
	}

	logger.Debug("Drift published", zap.String("detector", msg.Detector), zap.String("run_id", msg.RunID))
	return nil
}

func (c *Client) SubscribeDrift(ctx context.Context, detector string) *redis.PubSub {
	return c.client.Subscribe(ctx, DriftChannel(detector))
}

func (c *Client) SetLastRun(ctx context.Context, run *models.DriftRun, ttl time.Duration) error {
	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("failed to marshal run: %w", err)
	}

	err = c.client.Set(ctx, fmt.Sprintf("lastrun:%s", run.Detector), data, ttl).Err()
	if err != nil {
		return fmt.Errorf("failed to set last run: %w", err)
	}

	logger.Debug("Last run cached", zap.String("detector", run.Detector), zap.Duration("ttl", ttl))
	return nil
}

func (c *Client) GetLastRun(ctx context.Context, detector string) (*models.DriftRun, bool, error) {
	data, err := c.client.Get(ctx, fmt.Sprintf("lastrun:%s", detector)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get last run: %w", err)
	}

	var run models.DriftRun
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal run: %w", err)
	}

	return &run, true, nil
}

func (c *Client) IncrementMetric(ctx context.Context, metricName string, by int64) error {
	return c.client.IncrBy(ctx, fmt.Sprintf("metric:%s", metricName), by).Err()
}

func (c *Client) GetMetric(ctx context.Context, metricName string) (int64, error) {
	val, err := c.client.Get(ctx, fmt.Sprintf("metric:%s", metricName)).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	return val, err
}
