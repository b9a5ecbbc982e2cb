package handlers

import (
	"net/http"

	"github.com/Harshitk-cp/vigil/internal/domain"
	"github.com/Harshitk-cp/vigil/internal/service"
	"go.uber.org/zap"
)

type MemoryHandler struct {
	memory *service.StrategicMemory
	drift  *service.DriftDetector
	logger *zap.Logger
}

func NewMemoryHandler(memory *service.StrategicMemory, drift *service.DriftDetector, logger *zap.Logger) *MemoryHandler {
	return &MemoryHandler{memory: memory, drift: drift, logger: logger}
}

type memoryStatsResponse struct {
	domain.StrategicMemoryStats
	AccuracyOverTime []service.AccuracyBucket `json:"accuracy_over_time"`
}

func (h *MemoryHandler) Stats(w http.ResponseWriter, r *http.Request) {
	bucket, err := queryInt(r, "bucket", 10, 1000)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	stats, err := h.memory.Stats(r.Context())
	if err != nil {
		h.logger.Error("strategic memory stats", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to compute memory stats")
		return
	}
	buckets, err := h.memory.AccuracyOverTime(r.Context(), bucket)
	if err != nil {
		h.logger.Error("accuracy over time", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to compute memory stats")
		return
	}
	writeJSON(w, http.StatusOK, memoryStatsResponse{StrategicMemoryStats: stats, AccuracyOverTime: buckets})
}

// Replays lists recent replays, or the worst ones with ?order=worst.
func (h *MemoryHandler) Replays(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 20, 500)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var replays []domain.CounterfactualReplay
	switch r.URL.Query().Get("order") {
	case "", "recent":
		replays, err = h.memory.Recent(r.Context(), limit)
	case "worst":
		replays, err = h.memory.Worst(r.Context(), limit)
	default:
		writeError(w, http.StatusBadRequest, "order must be recent or worst")
		return
	}
	if err != nil {
		h.logger.Error("list replays", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list replays")
		return
	}
	if replays == nil {
		replays = []domain.CounterfactualReplay{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"replays": replays})
}

func (h *MemoryHandler) Drift(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.drift.Snapshot())
}
