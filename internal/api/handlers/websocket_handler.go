package handlers

import (
	"context"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/driftdetect/backend/internal/detector"
	"github.com/driftdetect/backend/internal/runner"
	"github.com/driftdetect/backend/pkg/logger"
)

// WebSocketHandler streams a detector run: one message per drift record as
// the run produces it, then a complete or error message.
type WebSocketHandler struct {
	catalog *detector.Catalog
	runner  *runner.Runner
}

func NewWebSocketHandler(catalog *detector.Catalog, r *runner.Runner) *WebSocketHandler {
	return &WebSocketHandler{
		catalog: catalog,
		runner:  r,
	}
}

func (h *WebSocketHandler) HandleRun(c *websocket.Conn) {
	name := c.Params("name")
	logger.Info("WebSocket run requested", zap.String("detector", name))

	defer func() {
		c.Close()
		logger.Debug("WebSocket connection closed", zap.String("detector", name))
	}()

	def, ok := h.catalog.Get(name)
	if !ok {
		h.sendError(c, "Detector not found")
		return
	}

	// A failed write means the client left; cancelling stops the run at the next row.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream := runner.SinkFunc(func(ctx context.Context, run runner.RunInfo, rec detector.Record) error {
		err := c.WriteJSON(map[string]interface{}{
			"type":   "drift",
			"run_id": run.RunID,
			"record": rec,
		})
		if err != nil {
			cancel()
		}
		return err
	})

	report := h.runner.RunDetector(ctx, def, stream)
	if report.Err != nil {
		logger.Error("WebSocket run failed", zap.String("detector", name), zap.Error(report.Err))
		h.sendError(c, report.Err.Error())
		return
	}

	h.sendComplete(c, report)
}

func (h *WebSocketHandler) sendComplete(c *websocket.Conn, report runner.Report) {
	msg := map[string]interface{}{
		"type":        "complete",
		"run_id":      report.RunID,
		"detector":    report.Detector,
		"drift_count": report.Drift,
		"duration_ms": report.Duration().Milliseconds(),
	}

	if err := c.WriteJSON(msg); err != nil {
		logger.Debug("Failed to send completion", zap.Error(err))
	}
}

func (h *WebSocketHandler) sendError(c *websocket.Conn, errorMsg string) {
	msg := map[string]interface{}{
		"type":  "error",
		"error": errorMsg,
	}

	if err := c.WriteJSON(msg); err != nil {
		logger.Debug("Failed to send error", zap.Error(err))
	}
}
