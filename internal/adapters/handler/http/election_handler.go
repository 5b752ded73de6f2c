package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"
	"github.com/vncsmyrnk/tally/internal/core/ports"
)

type ElectionHandler struct {
	service ports.TallyingService
	log     logrus.FieldLogger
}

func NewElectionHandler(service ports.TallyingService, log logrus.FieldLogger) *ElectionHandler {
	return &ElectionHandler{
		service: service,
		log:     log,
	}
}

type createCandidateRequest struct {
	DisplayName string `json:"display_name"`
	Affiliation string `json:"affiliation"`
}

type createElectionRequest struct {
	Title            string                   `json:"title"`
	Description      string                   `json:"description"`
	Position         string                   `json:"position"`
	Country          string                   `json:"country"`
	Region           string                   `json:"region"`
	StartTime        time.Time                `json:"start_time"`
	EndTime          time.Time                `json:"end_time"`
	MaxVotesPerVoter int                      `json:"max_votes_per_voter"`
	Candidates       []createCandidateRequest `json:"candidates"`
}

func (h *ElectionHandler) CreateElection(w http.ResponseWriter, r *http.Request) {
	var req createElectionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	input := ports.CreateElectionInput{
		Title:            req.Title,
		Description:      req.Description,
		Position:         req.Position,
		Country:          req.Country,
		Region:           req.Region,
		StartTime:        req.StartTime,
		EndTime:          req.EndTime,
		MaxVotesPerVoter: req.MaxVotesPerVoter,
	}
	for _, c := range req.Candidates {
		input.Candidates = append(input.Candidates, ports.CreateCandidateInput{
			DisplayName: c.DisplayName,
			Affiliation: c.Affiliation,
		})
	}

	election, err := h.service.CreateElection(r.Context(), input)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, election)
}

func (h *ElectionHandler) ListElections(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	elections, err := h.service.ListElections(r.Context(), ports.ListElectionsInput{
		Status:  query.Get("status"),
		Country: query.Get("country"),
	})
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, elections)
}

func (h *ElectionHandler) GetElection(w http.ResponseWriter, r *http.Request) {
	election, err := h.service.GetElection(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, election)
}

func (h *ElectionHandler) GetResults(w http.ResponseWriter, r *http.Request) {
	results, err := h.service.GetElectionResults(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

// ListVotes serves the public audit log. Voter identities are never part
// of the page.
func (h *ElectionHandler) ListVotes(w http.ResponseWriter, r *http.Request) {
	page, err := queryInt(r, "page")
	if err != nil {
		writeError(w, http.StatusBadRequest, "page must be a number")
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeError(w, http.StatusBadRequest, "limit must be a number")
		return
	}

	votes, err := h.service.ListElectionVotes(r.Context(), ports.ListVotesInput{
		ElectionID: chi.URLParam(r, "id"),
		Page:       page,
		Limit:      limit,
	})
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, votes)
}

func (h *ElectionHandler) VerifyProof(w http.ResponseWriter, r *http.Request) {
	verification, err := h.service.VerifyProof(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "proofHash"))
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, verification)
}

func (h *ElectionHandler) CloseElection(w http.ResponseWriter, r *http.Request) {
	results, err := h.service.CloseElection(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

func (h *ElectionHandler) RetireElection(w http.ResponseWriter, r *http.Request) {
	results, err := h.service.RetireElection(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

func queryInt(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}
