package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/driftdetect/backend/internal/detector"
	"github.com/driftdetect/backend/internal/runner"
	"github.com/driftdetect/backend/internal/storage/models"
	"github.com/driftdetect/backend/pkg/logger"
)

// LastRunReader looks up the cached summary of a detector's latest run.
type LastRunReader interface {
	GetLastRun(ctx context.Context, detector string) (*models.DriftRun, bool, error)
}

type DetectorHandler struct {
	catalog  *detector.Catalog
	runner   *runner.Runner
	lastRuns LastRunReader
}

// NewDetectorHandler wires the detector endpoints. lastRuns may be nil.
func NewDetectorHandler(catalog *detector.Catalog, r *runner.Runner, lastRuns LastRunReader) *DetectorHandler {
	return &DetectorHandler{
		catalog:  catalog,
		runner:   r,
		lastRuns: lastRuns,
	}
}

func (h *DetectorHandler) ListDetectors(c *fiber.Ctx) error {
	items := make([]fiber.Map, 0, h.catalog.Len())
	for _, def := range h.catalog.All() {
		items = append(items, fiber.Map{
			"name":         def.Name(),
			"kind":         def.Kind().String(),
			"expectations": len(def.Expectations()),
		})
	}

	return c.JSON(fiber.Map{
		"detectors": items,
	})
}

func (h *DetectorHandler) GetDetector(c *fiber.Ctx) error {
	def, ok := h.catalog.Get(c.Params("name"))
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Detector not found",
		})
	}

	resp := fiber.Map{
		"definition": def,
		"kind":       def.Kind().String(),
	}

	if h.lastRuns != nil {
		last, found, err := h.lastRuns.GetLastRun(c.Context(), def.Name())
		if err != nil {
			logger.Warn("Failed to read last run", zap.String("detector", def.Name()), zap.Error(err))
		} else if found {
			resp["last_run"] = last
		}
	}

	return c.JSON(resp)
}

// RunDetector runs a detector now and returns its drift records. A failed
// run answers 502 with the records produced before the failure.
func (h *DetectorHandler) RunDetector(c *fiber.Ctx) error {
	def, ok := h.catalog.Get(c.Params("name"))
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Detector not found",
		})
	}

	records := []detector.Record{}
	collect := runner.SinkFunc(func(ctx context.Context, run runner.RunInfo, rec detector.Record) error {
		records = append(records, rec)
		return nil
	})

	report := h.runner.RunDetector(c.UserContext(), def, collect)

	body := fiber.Map{
		"run_id":      report.RunID,
		"detector":    report.Detector,
		"kind":        report.Kind,
		"status":      report.Status(),
		"drift_count": report.Drift,
		"records":     records,
		"duration_ms": report.Duration().Milliseconds(),
	}

	if report.Err != nil {
		logger.Error("Detector run failed", zap.String("detector", def.Name()), zap.Error(report.Err))
		body["error"] = report.Err.Error()
		return c.Status(fiber.StatusBadGateway).JSON(body)
	}

	return c.JSON(body)
}
