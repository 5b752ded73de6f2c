package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"
	"github.com/vncsmyrnk/tally/internal/core/ports"
)

type VoteHandler struct {
	service ports.TallyingService
	log     logrus.FieldLogger
}

func NewVoteHandler(service ports.TallyingService, log logrus.FieldLogger) *VoteHandler {
	return &VoteHandler{
		service: service,
		log:     log,
	}
}

type electionVoteRequest struct {
	CandidateID string `json:"candidate_id"`
	// VoteCount defaults to 1 when omitted. An explicit 0 is rejected.
	VoteCount *int `json:"vote_count"`
}

type choiceVoteRequest struct {
	Choice   string `json:"choice"`
	Category string `json:"category"`
}

func (h *VoteHandler) CastElectionVote(w http.ResponseWriter, r *http.Request) {
	voter, ok := voterID(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing voter context")
		return
	}

	var req electionVoteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	count := 1
	if req.VoteCount != nil {
		count = *req.VoteCount
	}

	receipt, err := h.service.CastElectionVote(r.Context(), ports.CastElectionVoteInput{
		ElectionID:  chi.URLParam(r, "id"),
		VoterID:     voter,
		CandidateID: req.CandidateID,
		VoteCount:   count,
	})
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, receipt)
}

func (h *VoteHandler) CastProposalVote(w http.ResponseWriter, r *http.Request) {
	voter, ok := voterID(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing voter context")
		return
	}

	var req choiceVoteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	receipt, err := h.service.CastProposalVote(r.Context(), ports.CastProposalVoteInput{
		ProposalID: chi.URLParam(r, "id"),
		VoterID:    voter,
		Choice:     req.Choice,
	})
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, receipt)
}

func (h *VoteHandler) CastGenericVote(w http.ResponseWriter, r *http.Request) {
	voter, ok := voterID(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing voter context")
		return
	}

	var req choiceVoteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	receipt, err := h.service.CastGenericVote(r.Context(), ports.CastGenericVoteInput{
		TargetType: chi.URLParam(r, "type"),
		TargetID:   chi.URLParam(r, "id"),
		VoterID:    voter,
		Choice:     req.Choice,
		Category:   req.Category,
	})
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, receipt)
}

func (h *VoteHandler) CheckHasVoted(w http.ResponseWriter, r *http.Request) {
	voter, ok := requireSelf(w, r)
	if !ok {
		return
	}

	result, err := h.service.CheckHasVoted(r.Context(), chi.URLParam(r, "id"), voter)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *VoteHandler) CheckHasVotedTarget(w http.ResponseWriter, r *http.Request) {
	voter, ok := requireSelf(w, r)
	if !ok {
		return
	}

	result, err := h.service.CheckHasVotedTarget(r.Context(), chi.URLParam(r, "type"), chi.URLParam(r, "id"), voter)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// requireSelf only lets a voter look up their own ballots.
func requireSelf(w http.ResponseWriter, r *http.Request) (string, bool) {
	voter, ok := voterID(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing voter context")
		return "", false
	}
	if chi.URLParam(r, "voterID") != voter {
		writeError(w, http.StatusForbidden, "voters can only inspect their own ballots")
		return "", false
	}
	return voter, true
}
