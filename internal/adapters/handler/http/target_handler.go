package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"
	"github.com/vncsmyrnk/tally/internal/core/ports"
)

type TargetHandler struct {
	service ports.TallyingService
	log     logrus.FieldLogger
}

func NewTargetHandler(service ports.TallyingService, log logrus.FieldLogger) *TargetHandler {
	return &TargetHandler{
		service: service,
		log:     log,
	}
}

type createTargetRequest struct {
	ID          string `json:"target_id"`
	Type        string `json:"target_type"`
	DisplayName string `json:"display_name"`
}

func (h *TargetHandler) CreateTarget(w http.ResponseWriter, r *http.Request) {
	var req createTargetRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	target, err := h.service.CreateTarget(r.Context(), ports.CreateTargetInput{
		ID:          req.ID,
		Type:        req.Type,
		DisplayName: req.DisplayName,
	})
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, target)
}

func (h *TargetHandler) GetTarget(w http.ResponseWriter, r *http.Request) {
	target, err := h.service.GetTarget(r.Context(), chi.URLParam(r, "type"), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, target)
}

func (h *TargetHandler) RetireTarget(w http.ResponseWriter, r *http.Request) {
	target, err := h.service.RetireTarget(r.Context(), chi.URLParam(r, "type"), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, target)
}
