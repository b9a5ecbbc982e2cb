package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/Harshitk-cp/vigil/internal/service"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type PolicyHandler struct {
	svc    *service.PolicyService
	memory *service.StrategicMemory
	logger *zap.Logger
}

func NewPolicyHandler(svc *service.PolicyService, memory *service.StrategicMemory, logger *zap.Logger) *PolicyHandler {
	return &PolicyHandler{svc: svc, memory: memory, logger: logger}
}

func (h *PolicyHandler) Current(w http.ResponseWriter, r *http.Request) {
	p := h.svc.Current()
	if p == nil {
		writeError(w, http.StatusServiceUnavailable, "decision policy not loaded")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *PolicyHandler) Versions(w http.ResponseWriter, r *http.Request) {
	versions, err := h.svc.History(r.Context())
	if err != nil {
		h.logger.Error("list policy versions", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list policy versions")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"versions": versions})
}

func (h *PolicyHandler) GetVersion(w http.ResponseWriter, r *http.Request) {
	version, err := strconv.Atoi(chi.URLParam(r, "version"))
	if err != nil || version < 1 {
		writeError(w, http.StatusBadRequest, "invalid policy version")
		return
	}

	p, err := h.svc.Version(r.Context(), version)
	if err != nil {
		if errors.Is(err, service.ErrPolicyNotFound) {
			writeError(w, http.StatusNotFound, "policy version not found")
			return
		}
		h.logger.Error("get policy version", zap.Int("version", version), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to get policy version")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *PolicyHandler) Evolutions(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 20, 200)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	records, err := h.memory.Evolutions(r.Context(), limit)
	if err != nil {
		h.logger.Error("list policy evolutions", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list policy evolutions")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"evolutions": records})
}
