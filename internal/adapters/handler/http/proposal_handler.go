package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"
	"github.com/vncsmyrnk/tally/internal/core/ports"
)

type ProposalHandler struct {
	service ports.TallyingService
	log     logrus.FieldLogger
}

func NewProposalHandler(service ports.TallyingService, log logrus.FieldLogger) *ProposalHandler {
	return &ProposalHandler{
		service: service,
		log:     log,
	}
}

type createProposalRequest struct {
	Title               string    `json:"title"`
	Description         string    `json:"description"`
	Category            string    `json:"category"`
	ProposerID          string    `json:"proposer_id"`
	QuorumRequired      int64     `json:"quorum_required"`
	PassingThresholdPct *int      `json:"passing_threshold_pct"`
	StartTime           time.Time `json:"start_time"`
	EndTime             time.Time `json:"end_time"`
}

func (h *ProposalHandler) CreateProposal(w http.ResponseWriter, r *http.Request) {
	var req createProposalRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	proposal, err := h.service.CreateProposal(r.Context(), ports.CreateProposalInput{
		Title:               req.Title,
		Description:         req.Description,
		Category:            req.Category,
		ProposerID:          req.ProposerID,
		QuorumRequired:      req.QuorumRequired,
		PassingThresholdPct: req.PassingThresholdPct,
		StartTime:           req.StartTime,
		EndTime:             req.EndTime,
	})
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, proposal)
}

func (h *ProposalHandler) ListProposals(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	proposals, err := h.service.ListProposals(r.Context(), ports.ListProposalsInput{
		Status:   query.Get("status"),
		Category: query.Get("category"),
	})
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, proposals)
}

func (h *ProposalHandler) GetProposal(w http.ResponseWriter, r *http.Request) {
	status, err := h.service.GetProposalStatus(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (h *ProposalHandler) CloseProposal(w http.ResponseWriter, r *http.Request) {
	status, err := h.service.CloseProposal(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (h *ProposalHandler) RetireProposal(w http.ResponseWriter, r *http.Request) {
	status, err := h.service.RetireProposal(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}
