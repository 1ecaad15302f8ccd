package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/driftdetect/backend/internal/storage/models"
	"github.com/driftdetect/backend/pkg/logger"
)

type HistoryStore interface {
	ListRuns(ctx context.Context, detector string, limit int) ([]models.DriftRun, error)
	ListRecords(ctx context.Context, filter models.RecordFilter) ([]models.DriftRecord, error)
}

type HistoryHandler struct {
	store HistoryStore
}

// NewHistoryHandler serves stored run history. A nil store answers 503.
func NewHistoryHandler(store HistoryStore) *HistoryHandler {
	return &HistoryHandler{store: store}
}

func (h *HistoryHandler) ListRuns(c *fiber.Ctx) error {
	if h.store == nil {
		return historyDisabled(c)
	}

	runs, err := h.store.ListRuns(c.Context(), c.Query("detector"), c.QueryInt("limit", 0))
	if err != nil {
		logger.Error("Failed to list runs", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list runs",
		})
	}
	if runs == nil {
		runs = []models.DriftRun{}
	}

	return c.JSON(fiber.Map{
		"runs": runs,
	})
}

func (h *HistoryHandler) ListDrift(c *fiber.Ctx) error {
	if h.store == nil {
		return historyDisabled(c)
	}

	records, err := h.store.ListRecords(c.Context(), models.RecordFilter{
		RunID:    c.Query("run_id"),
		Detector: c.Query("detector"),
		Limit:    c.QueryInt("limit", 0),
	})
	if err != nil {
		logger.Error("Failed to list drift records", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list drift records",
		})
	}
	if records == nil {
		records = []models.DriftRecord{}
	}

	return c.JSON(fiber.Map{
		"records": records,
	})
}

func historyDisabled(c *fiber.Ctx) error {
	return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
		"error": "History store is disabled",
	})
}
