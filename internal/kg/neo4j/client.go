package neo4j

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"github.com/driftdetect/backend/internal/detector"
	"github.com/driftdetect/backend/internal/metrics"
	"github.com/driftdetect/backend/pkg/circuitbreaker"
	"github.com/driftdetect/backend/pkg/config"
	"github.com/driftdetect/backend/pkg/logger"
	"github.com/driftdetect/backend/pkg/retry"
)

// Client owns the driver and hands out read sessions for detector runs.
type Client struct {
	driver       neo4j.DriverWithContext
	database     string
	queryTimeout time.Duration
	cb           *circuitbreaker.CircuitBreaker
}

func NewClient(ctx context.Context, cfg config.Neo4jConfig) (*Client, error) {
	driver, err := neo4j.NewDriverWithContext(
		cfg.URI,
		neo4j.BasicAuth(cfg.Username, cfg.Password, ""),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create neo4j driver: %w", err)
	}

	retryConfig := retry.DefaultConfig()
	retryConfig.ShouldRetry = neo4j.IsRetryable
	retryConfig.Logger = logger.GetLogger()

	err = retry.Do(ctx, retryConfig, driver.VerifyConnectivity)
	if err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("failed to verify connectivity: %w", err)
	}

	logger.Info("Neo4j client initialized", zap.String("uri", cfg.URI), zap.String("database", cfg.Database))

	return newClient(driver, cfg.Database, cfg.QueryTimeout()), nil
}

func newClient(driver neo4j.DriverWithContext, database string, queryTimeout time.Duration) *Client {
	cb := circuitbreaker.NewCircuitBreaker("neo4j", circuitbreaker.Config{
		MaxRequests:      1,
		Interval:         time.Minute,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
		SuccessThreshold: 1,
		IsFailure:        isGraphFailure,
		OnStateChange: func(name string, from, to circuitbreaker.State) {
			metrics.GraphCircuitState.Set(float64(to))
		},
		Logger: logger.GetLogger(),
	})

	return &Client{
		driver:       driver,
		database:     database,
		queryTimeout: queryTimeout,
		cb:           cb,
	}
}

// isGraphFailure keeps client mistakes such as Cypher syntax errors from
// tripping the breaker; only transport and server faults count.
func isGraphFailure(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var neoErr *neo4j.Neo4jError
	if errors.As(err, &neoErr) {
		return neoErr.Classification() != "ClientError"
	}
	return true
}

func (c *Client) Close(ctx context.Context) error {
	return c.driver.Close(ctx)
}

// NewSession opens a read-access session. The caller closes it.
func (c *Client) NewSession(ctx context.Context) *Session {
	s := c.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeRead,
		DatabaseName: c.database,
	})
	return &Session{session: s, cb: c.cb, queryTimeout: c.queryTimeout}
}

// Session adapts a driver session to detector.Session. It is not safe for
// concurrent use.
type Session struct {
	session      neo4j.SessionWithContext
	cb           *circuitbreaker.CircuitBreaker
	queryTimeout time.Duration
}

var _ detector.Session = (*Session)(nil)

// ExecuteQuery runs query without parameters. Driver errors are returned as
// they are; nothing is retried.
func (s *Session) ExecuteQuery(ctx context.Context, query string) (detector.Result, error) {
	var configurers []func(*neo4j.TransactionConfig)
	if s.queryTimeout > 0 {
		configurers = append(configurers, neo4j.WithTxTimeout(s.queryTimeout))
	}

	var result neo4j.ResultWithContext
	err := s.cb.Execute(ctx, func() error {
		var err error
		result, err = s.session.Run(ctx, query, nil, configurers...)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &cursor{result: result}, nil
}

func (s *Session) Close(ctx context.Context) error {
	return s.session.Close(ctx)
}

type cursor struct {
	result neo4j.ResultWithContext
}

func (c *cursor) Next(ctx context.Context) bool {
	return c.result.Next(ctx)
}

func (c *cursor) Row() detector.Row {
	return record{rec: c.result.Record()}
}

func (c *cursor) Err() error {
	return c.result.Err()
}

type record struct {
	rec *neo4j.Record
}

func (r record) Keys() []string {
	return r.rec.Keys
}

func (r record) Values() []any {
	return r.rec.Values
}

func (r record) Get(key string) (any, bool) {
	return r.rec.Get(key)
}
