package runner

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"

	cache "github.com/driftdetect/backend/internal/cache/redis"
	"github.com/driftdetect/backend/internal/detector"
	"github.com/driftdetect/backend/internal/storage/models"
	"github.com/driftdetect/backend/pkg/utils"
)

// Sink receives drift records as a run produces them. Sinks are shared by
// concurrent runs and must be safe for concurrent use.
type Sink interface {
	Name() string
	Emit(ctx context.Context, run RunInfo, rec detector.Record) error
}

// RunObserver is implemented by sinks that also track run boundaries.
type RunObserver interface {
	RunStarted(ctx context.Context, run RunInfo) error
	RunFinished(ctx context.Context, report Report) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, run RunInfo, rec detector.Record) error

func (f SinkFunc) Name() string { return "func" }

func (f SinkFunc) Emit(ctx context.Context, run RunInfo, rec detector.Record) error {
	return f(ctx, run, rec)
}

// LogSink writes every drift record to the logger at warn level.
type LogSink struct {
	Logger *zap.Logger
}

func (s LogSink) Name() string { return "log" }

func (s LogSink) Emit(ctx context.Context, run RunInfo, rec detector.Record) error {
	s.Logger.Warn("Drift detected",
		zap.String("detector", run.Detector),
		zap.String("kind", run.Kind),
		zap.String("run_id", run.RunID),
		zap.Any("record", map[string]any(rec)),
	)
	return nil
}

// Event is one NDJSON line written by WriterSink.
type Event struct {
	Type      string         `json:"type"`
	RunID     string         `json:"run_id"`
	Detector  string         `json:"detector"`
	Kind      string         `json:"kind"`
	Timestamp time.Time      `json:"timestamp"`
	Record    map[string]any `json:"record,omitempty"`
	Drift     *int           `json:"drift,omitempty"`
	Error     string         `json:"error,omitempty"`
}

// WriterSink writes drift records, and run completion, as NDJSON events.
type WriterSink struct {
	w  io.Writer
	mu sync.Mutex
}

func NewWriterSink(w io.Writer) *WriterSink {
	return &WriterSink{w: w}
}

func (s *WriterSink) Name() string { return "writer" }

func (s *WriterSink) Emit(ctx context.Context, run RunInfo, rec detector.Record) error {
	return s.write(Event{
		Type:      "drift",
		RunID:     run.RunID,
		Detector:  run.Detector,
		Kind:      run.Kind,
		Timestamp: time.Now().UTC(),
		Record:    rec,
	})
}

func (s *WriterSink) RunStarted(ctx context.Context, run RunInfo) error {
	return nil
}

func (s *WriterSink) RunFinished(ctx context.Context, report Report) error {
	drift := report.Drift
	evt := Event{
		Type:      "run_" + report.Status(),
		RunID:     report.RunID,
		Detector:  report.Detector,
		Kind:      report.Kind,
		Timestamp: report.FinishedAt.UTC(),
		Drift:     &drift,
	}
	if report.Err != nil {
		evt.Error = report.Err.Error()
	}
	return s.write(evt)
}

func (s *WriterSink) write(evt Event) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.w.Write(append(payload, '\n'))
	return err
}

// RunStore persists runs and their drift records.
type RunStore interface {
	InsertRun(ctx context.Context, run *models.DriftRun) error
	FinishRun(ctx context.Context, run *models.DriftRun) error
	InsertRecord(ctx context.Context, rec *models.DriftRecord) error
}

// StoreSink records run history and drift records in a RunStore.
type StoreSink struct {
	Store RunStore
}

func (s StoreSink) Name() string { return "store" }

func (s StoreSink) RunStarted(ctx context.Context, run RunInfo) error {
	return s.Store.InsertRun(ctx, &models.DriftRun{
		ID:        run.RunID,
		Detector:  run.Detector,
		Kind:      run.Kind,
		Status:    models.RunStatusRunning,
		StartedAt: run.StartedAt,
	})
}

func (s StoreSink) Emit(ctx context.Context, run RunInfo, rec detector.Record) error {
	fingerprint, err := utils.Fingerprint(rec)
	if err != nil {
		return err
	}
	return s.Store.InsertRecord(ctx, &models.DriftRecord{
		RunID:       run.RunID,
		Detector:    run.Detector,
		Fingerprint: fingerprint,
		Payload:     rec,
		DetectedAt:  time.Now(),
	})
}

func (s StoreSink) RunFinished(ctx context.Context, report Report) error {
	return s.Store.FinishRun(context.WithoutCancel(ctx), report.DriftRun())
}

// Publisher fans drift out to other processes.
type Publisher interface {
	PublishDrift(ctx context.Context, msg cache.DriftMessage) error
	SetLastRun(ctx context.Context, run *models.DriftRun, ttl time.Duration) error
	IncrementMetric(ctx context.Context, metricName string, by int64) error
}

// PublishSink publishes each drift record and caches the last run summary.
type PublishSink struct {
	Publisher Publisher
	TTL       time.Duration
}

func (s PublishSink) Name() string { return "publish" }

func (s PublishSink) Emit(ctx context.Context, run RunInfo, rec detector.Record) error {
	return s.Publisher.PublishDrift(ctx, cache.DriftMessage{
		RunID:      run.RunID,
		Detector:   run.Detector,
		Kind:       run.Kind,
		Record:     rec,
		DetectedAt: time.Now().UTC(),
	})
}

func (s PublishSink) RunStarted(ctx context.Context, run RunInfo) error {
	return nil
}

func (s PublishSink) RunFinished(ctx context.Context, report Report) error {
	ctx = context.WithoutCancel(ctx)
	if err := s.Publisher.SetLastRun(ctx, report.DriftRun(), s.TTL); err != nil {
		return err
	}
	return s.Publisher.IncrementMetric(ctx, "drift:"+report.Detector, int64(report.Drift))
}
