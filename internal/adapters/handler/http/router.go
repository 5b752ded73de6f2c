package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
	"github.com/vncsmyrnk/tally/internal/core/ports"
)

type RouterConfig struct {
	Service  ports.TallyingService
	Verifier ports.TokenVerifier
	AdminKey string
	Log      logrus.FieldLogger
}

func NewHandler(cfg RouterConfig) http.Handler {
	elections := NewElectionHandler(cfg.Service, cfg.Log)
	proposals := NewProposalHandler(cfg.Service, cfg.Log)
	targets := NewTargetHandler(cfg.Service, cfg.Log)
	votes := NewVoteHandler(cfg.Service, cfg.Log)
	voters := NewVoterHandler(cfg.Service, cfg.Log)

	authenticated := Authenticate(cfg.Verifier)
	admin := RequireAdminKey(cfg.AdminKey)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})

		r.Route("/elections", func(r chi.Router) {
			r.Get("/", elections.ListElections)
			r.With(admin).Post("/", elections.CreateElection)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", elections.GetElection)
				r.Get("/results", elections.GetResults)
				r.Get("/votes", elections.ListVotes)
				r.Get("/verify/{proofHash}", elections.VerifyProof)
				r.With(authenticated).Post("/votes", votes.CastElectionVote)
				r.With(authenticated).Get("/voters/{voterID}", votes.CheckHasVoted)
				r.With(admin).Post("/close", elections.CloseElection)
				r.With(admin).Post("/retire", elections.RetireElection)
			})
		})

		r.Route("/proposals", func(r chi.Router) {
			r.Get("/", proposals.ListProposals)
			r.With(admin).Post("/", proposals.CreateProposal)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", proposals.GetProposal)
				r.With(authenticated).Post("/votes", votes.CastProposalVote)
				r.With(admin).Post("/close", proposals.CloseProposal)
				r.With(admin).Post("/retire", proposals.RetireProposal)
			})
		})

		r.Route("/targets", func(r chi.Router) {
			r.With(admin).Post("/", targets.CreateTarget)

			r.Route("/{type}/{id}", func(r chi.Router) {
				r.Get("/", targets.GetTarget)
				r.With(authenticated).Post("/votes", votes.CastGenericVote)
				r.With(authenticated).Get("/voters/{voterID}", votes.CheckHasVotedTarget)
				r.With(admin).Post("/retire", targets.RetireTarget)
			})
		})

		r.With(authenticated).Get("/voters/{voterID}/votes", voters.VotingHistory)
	})

	return r
}
