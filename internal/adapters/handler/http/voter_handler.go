package http

import (
	"net/http"

	"github.com/sirupsen/logrus"
	"github.com/vncsmyrnk/tally/internal/core/ports"
)

type VoterHandler struct {
	service ports.TallyingService
	log     logrus.FieldLogger
}

func NewVoterHandler(service ports.TallyingService, log logrus.FieldLogger) *VoterHandler {
	return &VoterHandler{
		service: service,
		log:     log,
	}
}

func (h *VoterHandler) VotingHistory(w http.ResponseWriter, r *http.Request) {
	voter, ok := requireSelf(w, r)
	if !ok {
		return
	}

	history, err := h.service.VotingHistory(r.Context(), voter)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, history)
}
