package runner

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/driftdetect/backend/internal/detector"
)

// Scheduler runs every detector in a catalog on a cron schedule. A tick that
// arrives while the previous sweep is still running is skipped.
type Scheduler struct {
	cron    *cron.Cron
	runner  *Runner
	catalog *detector.Catalog
	spec    string
	logger  *zap.Logger

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
}

func NewScheduler(r *Runner, catalog *detector.Catalog, spec string, logger *zap.Logger) *Scheduler {
	cl := cronLogger{logger.Sugar()}
	return &Scheduler{
		cron:    cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl))),
		runner:  r,
		catalog: catalog,
		spec:    spec,
		logger:  logger,
	}
}

// Start registers the sweep and starts the cron loop. Runs started by the
// schedule are cancelled by Stop.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ctx, s.cancel = context.WithCancel(context.Background())

	if _, err := s.cron.AddFunc(s.spec, func() { s.Sweep(s.ctx) }); err != nil {
		s.cancel()
		return fmt.Errorf("invalid detector schedule %q: %w", s.spec, err)
	}

	s.cron.Start()
	s.logger.Info("Detector scheduler started",
		zap.String("schedule", s.spec),
		zap.Int("detectors", s.catalog.Len()),
	)
	return nil
}

// Stop halts the schedule, cancels in-flight runs and waits for them to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}
	<-s.cron.Stop().Done()
	s.logger.Info("Detector scheduler stopped")
}

// Sweep runs every catalog detector once.
func (s *Scheduler) Sweep(ctx context.Context) []Report {
	reports := s.runner.RunAll(ctx, s.catalog.All())

	drift, failed := 0, 0
	for _, r := range reports {
		drift += r.Drift
		if r.Err != nil {
			failed++
		}
	}
	s.logger.Info("Detector sweep completed",
		zap.Int("detectors", len(reports)),
		zap.Int("failed", failed),
		zap.Int("drift", drift),
	)
	return reports
}

// cronLogger routes cron's own logging through zap.
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}
