package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vncsmyrnk/tally/internal/adapters/auth/token"
	"github.com/vncsmyrnk/tally/internal/adapters/repository/bolt"
	"github.com/vncsmyrnk/tally/internal/core/domain"
	"github.com/vncsmyrnk/tally/internal/core/services"
)

const (
	testSecret   = "test-jwt-secret"
	testAdminKey = "test-admin-key"
)

type testApp struct {
	Server *httptest.Server
	Client *http.Client
}

func setupTestApp(t *testing.T) *testApp {
	t.Helper()

	store, err := bolt.Open(filepath.Join(t.TempDir(), "tally.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	log := logrus.New()
	log.SetOutput(io.Discard)

	admission := services.NewAdmissionService(store, nil)
	tally := services.NewTallyService(store, services.NewAuditSigner("audit-secret"), nil, services.TallyConfig{IncrementBudget: time.Second}, log)
	outcomes := services.NewOutcomeService(store, nil, log)
	service := services.NewTallyingService(store, admission, tally, outcomes, nil, services.TallyingConfig{ClaimRetries: 1}, log)

	server := httptest.NewServer(NewHandler(RouterConfig{
		Service:  service,
		Verifier: token.NewVerifier(testSecret),
		AdminKey: testAdminKey,
		Log:      log,
	}))
	t.Cleanup(server.Close)

	return &testApp{Server: server, Client: server.Client()}
}

func voterToken(t *testing.T, voter string) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": voter,
		"exp": time.Now().Add(15 * time.Minute).Unix(),
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

type call struct {
	method string
	path   string
	body   any
	token  string
	admin  string
}

func (a *testApp) do(t *testing.T, c call, out any) int {
	t.Helper()

	var body io.Reader
	if c.body != nil {
		raw, err := json.Marshal(c.body)
		require.NoError(t, err)
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(c.method, a.Server.URL+c.path, body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.admin != "" {
		req.Header.Set("X-Admin-Key", c.admin)
	}

	resp, err := a.Client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	if out != nil && resp.StatusCode < 300 {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func createElection(t *testing.T, app *testApp) domain.Election {
	t.Helper()
	now := time.Now().UTC()
	var election domain.Election
	status := app.do(t, call{
		method: "POST",
		path:   "/api/elections",
		admin:  testAdminKey,
		body: map[string]any{
			"title":      "City council",
			"position":   "councillor",
			"country":    "PT",
			"start_time": now.Add(-time.Minute),
			"end_time":   now.Add(time.Hour),
			"candidates": []map[string]string{
				{"display_name": "Ada"},
				{"display_name": "Grace"},
			},
		},
	}, &election)
	require.Equal(t, http.StatusCreated, status)
	require.Len(t, election.Candidates, 2)
	return election
}

func TestHealth(t *testing.T) {
	app := setupTestApp(t)

	var body map[string]string
	status := app.do(t, call{method: "GET", path: "/api/health"}, &body)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", body["status"])
}

func TestAdminKeyRequired(t *testing.T) {
	app := setupTestApp(t)

	assert.Equal(t, http.StatusUnauthorized, app.do(t, call{method: "POST", path: "/api/elections", body: map[string]any{}}, nil))
	assert.Equal(t, http.StatusForbidden, app.do(t, call{method: "POST", path: "/api/elections", admin: "wrong", body: map[string]any{}}, nil))
	assert.Equal(t, http.StatusBadRequest, app.do(t, call{method: "POST", path: "/api/elections", admin: testAdminKey, body: map[string]any{}}, nil))
}

func TestElectionVotingFlow(t *testing.T) {
	app := setupTestApp(t)
	election := createElection(t, app)
	ada, grace := election.Candidates[0], election.Candidates[1]
	alice := voterToken(t, "alice")
	votesPath := fmt.Sprintf("/api/elections/%s/votes", election.ID)

	// 1. Casting without a token is rejected
	status := app.do(t, call{method: "POST", path: votesPath, body: map[string]any{"candidate_id": ada.ID}}, nil)
	require.Equal(t, http.StatusUnauthorized, status)

	// 2. Explicit zero weight is invalid
	status = app.do(t, call{method: "POST", path: votesPath, token: alice, body: map[string]any{"candidate_id": ada.ID, "vote_count": 0}}, nil)
	require.Equal(t, http.StatusBadRequest, status)

	// 3. Alice casts three votes for Ada
	var receipt domain.TallyReceipt
	status = app.do(t, call{method: "POST", path: votesPath, token: alice, body: map[string]any{"candidate_id": ada.ID, "vote_count": 3}}, &receipt)
	require.Equal(t, http.StatusCreated, status)
	assert.NotEmpty(t, receipt.ProofHash)
	assert.Equal(t, int64(1), receipt.Sequence)
	assert.False(t, receipt.Pending)

	// 4. A second ballot, even for another candidate, conflicts
	status = app.do(t, call{method: "POST", path: votesPath, token: alice, body: map[string]any{"candidate_id": grace.ID}}, nil)
	require.Equal(t, http.StatusConflict, status)

	// 5. Bob's ballot without vote_count weighs one
	status = app.do(t, call{method: "POST", path: votesPath, token: voterToken(t, "bob"), body: map[string]any{"candidate_id": grace.ID}}, nil)
	require.Equal(t, http.StatusCreated, status)

	var results domain.ElectionResults
	status = app.do(t, call{method: "GET", path: fmt.Sprintf("/api/elections/%s/results", election.ID)}, &results)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, int64(4), results.TotalVotes)
	assert.Equal(t, int64(2), results.TotalVoters)
	require.Len(t, results.Results, 2)
	assert.Equal(t, ada.ID, results.Results[0].CandidateID)
	assert.Equal(t, 75, results.Results[0].Percentage)

	// 6. Voters can look up their own ballot only
	var voted domain.HasVoted
	status = app.do(t, call{method: "GET", path: fmt.Sprintf("/api/elections/%s/voters/alice", election.ID), token: alice}, &voted)
	require.Equal(t, http.StatusOK, status)
	assert.True(t, voted.HasVoted)
	assert.Equal(t, ada.ID, voted.Vote.CandidateID)

	status = app.do(t, call{method: "GET", path: fmt.Sprintf("/api/elections/%s/voters/bob", election.ID), token: alice}, nil)
	assert.Equal(t, http.StatusForbidden, status)

	// 7. The proof verifies and the public log hides voters
	var verification domain.ProofVerification
	status = app.do(t, call{method: "GET", path: fmt.Sprintf("/api/elections/%s/verify/%s", election.ID, receipt.ProofHash)}, &verification)
	require.Equal(t, http.StatusOK, status)
	assert.True(t, verification.Verified)

	var page domain.VotePage
	status = app.do(t, call{method: "GET", path: fmt.Sprintf("/api/elections/%s/votes?limit=1", election.ID)}, &page)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, 2, page.Total)
	require.Len(t, page.Votes, 1)
	assert.Empty(t, page.Votes[0].VoterID)

	status = app.do(t, call{method: "GET", path: fmt.Sprintf("/api/elections/%s/votes?page=x", election.ID)}, nil)
	assert.Equal(t, http.StatusBadRequest, status)

	// 8. Closing picks the winner and later ballots are refused
	var closed domain.ElectionResults
	status = app.do(t, call{method: "POST", path: fmt.Sprintf("/api/elections/%s/close", election.ID), admin: testAdminKey}, &closed)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, domain.StatusClosed, closed.Status)
	assert.Equal(t, ada.ID, closed.WinnerID)

	status = app.do(t, call{method: "POST", path: votesPath, token: voterToken(t, "carol"), body: map[string]any{"candidate_id": ada.ID}}, nil)
	assert.Equal(t, http.StatusConflict, status)
}

func TestUnknownElection(t *testing.T) {
	app := setupTestApp(t)

	assert.Equal(t, http.StatusNotFound, app.do(t, call{method: "GET", path: "/api/elections/missing"}, nil))
	assert.Equal(t, http.StatusNotFound, app.do(t, call{method: "GET", path: "/api/elections/missing/results"}, nil))
	assert.Equal(t, http.StatusNotFound, app.do(t, call{
		method: "POST",
		path:   "/api/elections/missing/votes",
		token:  voterToken(t, "alice"),
		body:   map[string]any{"candidate_id": "nobody"},
	}, nil))
}

func TestProposalFlow(t *testing.T) {
	app := setupTestApp(t)
	now := time.Now().UTC()

	var proposal domain.Proposal
	status := app.do(t, call{
		method: "POST",
		path:   "/api/proposals",
		admin:  testAdminKey,
		body: map[string]any{
			"title":           "Bike lanes",
			"category":        "policy",
			"quorum_required": 2,
			"end_time":        now.Add(time.Hour),
		},
	}, &proposal)
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, domain.StatusActive, proposal.Status)
	assert.Equal(t, 50, proposal.PassingThresholdPct)

	votesPath := fmt.Sprintf("/api/proposals/%s/votes", proposal.ID)
	status = app.do(t, call{method: "POST", path: votesPath, token: voterToken(t, "alice"), body: map[string]any{"choice": "maybe"}}, nil)
	require.Equal(t, http.StatusBadRequest, status)

	for voter, choice := range map[string]string{"alice": "for", "bob": "against", "carol": "for"} {
		status = app.do(t, call{method: "POST", path: votesPath, token: voterToken(t, voter), body: map[string]any{"choice": choice}}, nil)
		require.Equal(t, http.StatusCreated, status, voter)
	}

	var current domain.ProposalStatus
	status = app.do(t, call{method: "GET", path: "/api/proposals/" + proposal.ID}, &current)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, int64(3), current.Summary.TotalVotes)
	assert.True(t, current.Summary.QuorumMet)
	assert.Equal(t, domain.StatusActive, current.Proposal.Status)

	var resolved domain.ProposalStatus
	status = app.do(t, call{method: "POST", path: fmt.Sprintf("/api/proposals/%s/close", proposal.ID), admin: testAdminKey}, &resolved)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, domain.StatusPassed, resolved.Proposal.Status)

	var listed []domain.Proposal
	status = app.do(t, call{method: "GET", path: "/api/proposals?status=passed"}, &listed)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, listed, 1)
	assert.Equal(t, proposal.ID, listed[0].ID)

	status = app.do(t, call{method: "GET", path: "/api/proposals?status=bogus"}, nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestTargetVotingAndHistory(t *testing.T) {
	app := setupTestApp(t)
	alice := voterToken(t, "alice")

	var target domain.Target
	status := app.do(t, call{
		method: "POST",
		path:   "/api/targets",
		admin:  testAdminKey,
		body:   map[string]string{"target_id": "ada", "target_type": "genius", "display_name": "Ada Lovelace"},
	}, &target)
	require.Equal(t, http.StatusCreated, status)

	status = app.do(t, call{
		method: "POST",
		path:   "/api/targets",
		admin:  testAdminKey,
		body:   map[string]string{"target_id": "ada", "target_type": "genius", "display_name": "Ada again"},
	}, nil)
	assert.Equal(t, http.StatusConflict, status)

	status = app.do(t, call{method: "POST", path: "/api/targets/genius/ada/votes", token: alice, body: map[string]string{"category": "science"}}, nil)
	require.Equal(t, http.StatusCreated, status)

	status = app.do(t, call{method: "POST", path: "/api/targets/genius/ada/votes", token: alice, body: map[string]string{"category": "art"}}, nil)
	assert.Equal(t, http.StatusConflict, status)

	status = app.do(t, call{method: "POST", path: "/api/targets/planet/ada/votes", token: alice, body: map[string]string{}}, nil)
	assert.Equal(t, http.StatusBadRequest, status)

	var stored domain.Target
	status = app.do(t, call{method: "GET", path: "/api/targets/genius/ada"}, &stored)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, int64(1), stored.VotesCount)

	var voted domain.HasVotedTarget
	status = app.do(t, call{method: "GET", path: "/api/targets/genius/ada/voters/alice", token: alice}, &voted)
	require.Equal(t, http.StatusOK, status)
	assert.True(t, voted.HasVoted)

	var history []domain.HistoryEntry
	status = app.do(t, call{method: "GET", path: "/api/voters/alice/votes", token: alice}, &history)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, history, 1)
	assert.Equal(t, "science", history[0].Category)
	assert.Equal(t, "Ada Lovelace", history[0].TargetName)

	status = app.do(t, call{method: "POST", path: "/api/targets/genius/ada/retire"}, nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	var retired domain.Target
	status = app.do(t, call{method: "POST", path: "/api/targets/genius/ada/retire", admin: testAdminKey}, &retired)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, domain.StatusRetired, retired.Status)
	assert.Equal(t, int64(1), retired.VotesCount)

	bob := voterToken(t, "bob")
	status = app.do(t, call{method: "POST", path: "/api/targets/genius/ada/votes", token: bob, body: map[string]string{}}, nil)
	assert.Equal(t, http.StatusConflict, status)

	status = app.do(t, call{method: "GET", path: "/api/voters/bob/votes", token: alice}, nil)
	assert.Equal(t, http.StatusForbidden, status)
}

func TestCookieAuthentication(t *testing.T) {
	app := setupTestApp(t)

	req, err := http.NewRequest("GET", app.Server.URL+"/api/voters/alice/votes", nil)
	require.NoError(t, err)
	req.AddCookie(&http.Cookie{Name: "access_token", Value: voterToken(t, "alice")})

	resp, err := app.Client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestStatusFor(t *testing.T) {
	cases := map[error]int{
		domain.ErrTargetNotFound:     http.StatusNotFound,
		domain.ErrVoteNotFound:       http.StatusNotFound,
		domain.ErrVotingClosed:       http.StatusConflict,
		domain.ErrDuplicateVote:      http.StatusConflict,
		domain.ErrTargetExists:       http.StatusConflict,
		domain.ErrInvalidWeight:      http.StatusBadRequest,
		domain.ErrInvalidTargetType:  http.StatusBadRequest,
		domain.ErrStorageUnavailable: http.StatusServiceUnavailable,
		io.ErrUnexpectedEOF:          http.StatusInternalServerError,
	}
	for err, want := range cases {
		assert.Equal(t, want, statusFor(fmt.Errorf("wrapped: %w", err)), err.Error())
	}
}

func TestRetireAndFilterElections(t *testing.T) {
	app := setupTestApp(t)
	election := createElection(t, app)

	var listed []domain.Election
	status := app.do(t, call{method: "GET", path: "/api/elections?country=pt"}, &listed)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, listed, 1)

	status = app.do(t, call{method: "GET", path: "/api/elections?country=BR"}, &listed)
	require.Equal(t, http.StatusOK, status)
	assert.Empty(t, listed)

	var results domain.ElectionResults
	status = app.do(t, call{method: "POST", path: "/api/elections/" + election.ID + "/retire", admin: testAdminKey}, &results)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, domain.StatusRetired, results.Status)

	status = app.do(t, call{
		method: "POST",
		path:   "/api/elections/" + election.ID + "/votes",
		token:  voterToken(t, "alice"),
		body:   map[string]any{"candidate_id": election.Candidates[0].ID},
	}, nil)
	assert.Equal(t, http.StatusConflict, status)

	status = app.do(t, call{method: "GET", path: "/api/elections?status=retired"}, &listed)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, listed, 1)
	assert.Equal(t, election.ID, listed[0].ID)

	status = app.do(t, call{method: "POST", path: "/api/proposals/missing/retire", admin: testAdminKey}, nil)
	assert.Equal(t, http.StatusNotFound, status)
}
