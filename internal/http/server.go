// README: API gateway; registers HTTP routes and delegates to module services.
package http

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"transferhub/internal/http/handlers"
	"transferhub/internal/http/middleware"
	"transferhub/internal/infra"
	"transferhub/internal/modules/eligibility"
	"transferhub/internal/modules/events"
	"transferhub/internal/modules/job"
	"transferhub/internal/modules/pricing"
	"transferhub/internal/modules/settlement"
)

type ServerDeps struct {
	Jobs        *job.Service
	Eligibility *eligibility.Service
	Pricing     *pricing.Service
	Settlement  *settlement.Service
	// Broker backs the admin event stream; the route is omitted when nil.
	Broker *events.Broker
	// Verifier is nil when auth is disabled; callers are then taken from
	// the X-User-ID / X-User-Role headers.
	Verifier infra.TokenVerifier
	Currency string
	Logger   *slog.Logger
}

type Server struct {
	deps ServerDeps
}

func NewServer(deps ServerDeps) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Server{deps: deps}
}

func (s *Server) Routes() http.Handler {
	r := gin.New()
	r.Use(middleware.Recovery(s.deps.Logger))

	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	auth := middleware.HeaderAuth()
	if s.deps.Verifier != nil {
		auth = middleware.Auth(s.deps.Verifier)
	}
	api := r.Group("/api", middleware.Logging(s.deps.Logger), auth)

	jobs := handlers.NewJobHandler(s.deps.Jobs, s.deps.Eligibility)
	api.POST("/jobs", jobs.Create)
	api.GET("/jobs", jobs.List)
	api.GET("/jobs/:id", jobs.Get)
	api.GET("/jobs/:id/events", jobs.Events)
	api.POST("/jobs/:id/bids", jobs.PlaceBid)
	api.POST("/jobs/:id/bids/:bid_id/accept", jobs.AcceptBid)
	api.POST("/jobs/:id/cancel", jobs.Cancel)
	api.POST("/jobs/:id/paid", jobs.MarkPaid)
	api.POST("/jobs/:id/complete", jobs.Complete)
	api.PUT("/jobs/:id/distance", jobs.SetDistance)
	api.POST("/jobs/:id/dispute", jobs.OpenDispute)
	api.POST("/jobs/:id/dispute/resolve", jobs.ResolveDispute)
	api.POST("/jobs/:id/skip", jobs.Skip)
	api.DELETE("/jobs/:id/skip", jobs.Unskip)

	prices := handlers.NewPricingHandler(s.deps.Pricing)
	api.GET("/pricing/quote", prices.Quote)
	api.GET("/admin/pricing", prices.Config)
	api.PUT("/admin/pricing", prices.Update)

	ledger := handlers.NewLedgerHandler(s.deps.Settlement, s.deps.Currency)
	api.POST("/admin/payouts", ledger.Payout)
	api.GET("/admin/jobs/:id/transactions", ledger.JobTransactions)
	api.GET("/users/:id/transactions", ledger.UserTransactions)

	if s.deps.Broker != nil {
		stream := handlers.NewStreamHandler(s.deps.Broker, s.deps.Logger)
		api.GET("/admin/events/stream", stream.Events)
	}

	return r
}
