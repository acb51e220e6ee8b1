package handler

import (
	"context"
	"io"
	"net/http"

	"rmscall/internal/callevent"
	"rmscall/internal/service"
)

// PhoneStateIntake доставляет сырое состояние телефонии источнику событий
type PhoneStateIntake func(ctx context.Context, u callevent.PhoneStateUpdate) error

type PipelineHandler struct {
	pipeline *service.PipelineService
	intake   PhoneStateIntake
}

func NewPipelineHandler(pipeline *service.PipelineService, intake PhoneStateIntake) *PipelineHandler {
	return &PipelineHandler{
		pipeline: pipeline,
		intake:   intake,
	}
}

func (h *PipelineHandler) Attach(w http.ResponseWriter, r *http.Request) {
	if err := h.pipeline.Attach(r.Context()); err != nil {
		writeError(w, err, "Failed to attach pipeline")
		return
	}
	writeJSON(w, http.StatusOK, h.pipeline.Status(r.Context()))
}

func (h *PipelineHandler) Detach(w http.ResponseWriter, r *http.Request) {
	h.pipeline.Detach()
	writeJSON(w, http.StatusOK, h.pipeline.Status(r.Context()))
}

func (h *PipelineHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.pipeline.Status(r.Context()))
}

// PhoneState принимает {"state": "OFFHOOK", "phone_number": "..."} от нативного приемника
func (h *PipelineHandler) PhoneState(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 4096))
	if err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	update, err := callevent.DecodeUpdate(body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.intake(r.Context(), update); err != nil {
		writeError(w, err, "Phone state rejected")
		return
	}
	w.WriteHeader(http.StatusAccepted)
}
