// Package runner executes detector definitions against graph sessions and
// delivers the drift records they produce to sinks.
package runner

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/driftdetect/backend/internal/detector"
	"github.com/driftdetect/backend/internal/metrics"
	"github.com/driftdetect/backend/internal/storage/models"
	"github.com/driftdetect/backend/pkg/logger"
)

// Session is a detector.Session the runner owns for the length of one run.
type Session interface {
	detector.Session
	Close(ctx context.Context) error
}

// SessionFactory opens a fresh session. Each run gets its own.
type SessionFactory func(ctx context.Context) Session

// RunInfo identifies a run to sinks.
type RunInfo struct {
	RunID     string
	Detector  string
	Kind      string
	StartedAt time.Time
}

// Report summarizes a finished run. Err is the error that ended the run
// early, if any; records delivered before it remain delivered.
type Report struct {
	RunInfo
	Drift      int
	FinishedAt time.Time
	Err        error
}

func (r Report) Status() string {
	if r.Err != nil {
		return models.RunStatusFailed
	}
	return models.RunStatusSucceeded
}

func (r Report) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// DriftRun converts the report to its stored form.
func (r Report) DriftRun() *models.DriftRun {
	run := &models.DriftRun{
		ID:         r.RunID,
		Detector:   r.Detector,
		Kind:       r.Kind,
		Status:     r.Status(),
		DriftCount: r.Drift,
		StartedAt:  r.StartedAt,
	}
	if r.Err != nil {
		run.Error = r.Err.Error()
	}
	if !r.FinishedAt.IsZero() {
		finished := r.FinishedAt
		run.FinishedAt = &finished
	}
	return run
}

type Runner struct {
	sessions    SessionFactory
	sinks       []Sink
	concurrency int
	now         func() time.Time
}

func New(sessions SessionFactory, concurrency int, sinks ...Sink) *Runner {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Runner{
		sessions:    sessions,
		sinks:       sinks,
		concurrency: concurrency,
		now:         time.Now,
	}
}

// RunDetector runs def once on a new session, handing each drift record to
// the runner's sinks and then to extra as soon as it is produced.
func (r *Runner) RunDetector(ctx context.Context, def *detector.Definition, extra ...Sink) Report {
	sinks := append(append([]Sink(nil), r.sinks...), extra...)

	info := RunInfo{
		RunID:     uuid.NewString(),
		Detector:  def.Name(),
		Kind:      def.Kind().String(),
		StartedAt: r.now(),
	}
	report := Report{RunInfo: info}

	log := logger.GetLogger().With(zap.String("detector", info.Detector), zap.String("run_id", info.RunID))
	log.Info("Detector run started")

	for _, s := range sinks {
		if o, ok := s.(RunObserver); ok {
			deliver(ctx, log, s, func() error { return o.RunStarted(ctx, info) })
		}
	}

	session := r.sessions(ctx)
	for rec, err := range def.Run(ctx, session) {
		if err != nil {
			report.Err = err
			break
		}
		report.Drift++
		metrics.DriftRecordsTotal.WithLabelValues(info.Detector, info.Kind).Inc()
		for _, s := range sinks {
			deliver(ctx, log, s, func() error { return s.Emit(ctx, info, rec) })
		}
	}
	if err := session.Close(context.WithoutCancel(ctx)); err != nil {
		log.Warn("Failed to close graph session", zap.Error(err))
	}

	report.FinishedAt = r.now()

	metrics.DetectorRunsTotal.WithLabelValues(info.Detector, report.Status()).Inc()
	metrics.DetectorRunDuration.WithLabelValues(info.Detector).Observe(report.Duration().Seconds())
	metrics.DetectorLastDrift.WithLabelValues(info.Detector).Set(float64(report.Drift))
	metrics.DetectorLastRunTimestamp.WithLabelValues(info.Detector).Set(float64(report.FinishedAt.Unix()))

	for _, s := range sinks {
		if o, ok := s.(RunObserver); ok {
			deliver(ctx, log, s, func() error { return o.RunFinished(ctx, report) })
		}
	}

	if report.Err != nil {
		log.Error("Detector run failed", zap.Int("drift", report.Drift), zap.Error(report.Err))
	} else {
		log.Info("Detector run completed",
			zap.Int("drift", report.Drift),
			zap.Duration("duration", report.Duration()),
		)
	}

	return report
}

// RunAll runs every definition, at most concurrency at a time, and returns
// one report per definition in the same order. A failing detector does not
// stop the others.
func (r *Runner) RunAll(ctx context.Context, defs []*detector.Definition) []Report {
	reports := make([]Report, len(defs))

	var g errgroup.Group
	g.SetLimit(r.concurrency)
	for i, def := range defs {
		g.Go(func() error {
			reports[i] = r.RunDetector(ctx, def)
			return nil
		})
	}
	_ = g.Wait()

	return reports
}

// deliver runs one sink call. Sink failures are logged and counted but never
// end the run.
func deliver(ctx context.Context, log *zap.Logger, s Sink, call func() error) {
	if err := call(); err != nil {
		metrics.SinkErrorsTotal.WithLabelValues(s.Name()).Inc()
		log.Warn("Sink delivery failed", zap.String("sink", s.Name()), zap.Error(err))
	}
}
