package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/Harshitk-cp/vigil/internal/domain"
	"github.com/Harshitk-cp/vigil/internal/service"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// Investigator is the slice of service.Investigator the handler needs.
type Investigator interface {
	Investigate(ctx context.Context, sig domain.Signal) (*domain.RunState, error)
	Submit(sig domain.Signal)
	Resume(ctx context.Context, signalID string) (*domain.RunState, error)
	Get(ctx context.Context, signalID string) (*domain.RunState, error)
}

type InvestigationHandler struct {
	inv    Investigator
	logger *zap.Logger
}

func NewInvestigationHandler(inv Investigator, logger *zap.Logger) *InvestigationHandler {
	return &InvestigationHandler{inv: inv, logger: logger}
}

type acceptedResponse struct {
	SignalID string `json:"signal_id"`
	Status   string `json:"status"`
}

type failedRunResponse struct {
	Error string           `json:"error"`
	State *domain.RunState `json:"state,omitempty"`
}

// Create investigates a signal. With ?async=true the run is started in the
// background and 202 is returned immediately.
func (h *InvestigationHandler) Create(w http.ResponseWriter, r *http.Request) {
	var sig domain.Signal
	if err := decodeJSON(w, r, &sig); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if r.URL.Query().Get("async") == "true" {
		h.inv.Submit(sig)
		writeJSON(w, http.StatusAccepted, acceptedResponse{SignalID: sig.ID, Status: "accepted"})
		return
	}

	st, err := h.inv.Investigate(r.Context(), sig)
	if err != nil {
		h.writeRunError(w, sig.ID, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *InvestigationHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	st, err := h.inv.Get(r.Context(), id)
	if err != nil {
		h.writeRunError(w, id, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *InvestigationHandler) Resume(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	st, err := h.inv.Resume(r.Context(), id)
	if err != nil {
		h.writeRunError(w, id, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *InvestigationHandler) writeRunError(w http.ResponseWriter, signalID string, err error) {
	switch {
	case errors.Is(err, service.ErrRunNotFound):
		writeError(w, http.StatusNotFound, "investigation not found")
	case errors.Is(err, service.ErrRunInProgress):
		writeError(w, http.StatusConflict, "investigation already running for this signal")
	case errors.Is(err, service.ErrPolicyNotLoaded):
		writeError(w, http.StatusServiceUnavailable, "decision policy not loaded")
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, "investigation timed out; resume to continue")
	default:
		var invErr *domain.InvestigationError
		if errors.As(err, &invErr) {
			h.logger.Warn("investigation failed", zap.String("signal_id", signalID), zap.Error(err))
			writeJSON(w, http.StatusUnprocessableEntity, failedRunResponse{Error: invErr.Error(), State: invErr.State})
			return
		}
		h.logger.Error("investigation error", zap.String("signal_id", signalID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to run investigation")
	}
}
