package api

import (
	"net/http"

	"github.com/ayo6706/custodial-ledger/internal/api/handler"
	"github.com/ayo6706/custodial-ledger/internal/api/middleware"
	"github.com/ayo6706/custodial-ledger/internal/api/spec"
	"github.com/ayo6706/custodial-ledger/internal/domain"
	"github.com/ayo6706/custodial-ledger/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	httpSwagger "github.com/swaggo/http-swagger/v2"
	"go.uber.org/zap"
)

// Services bundles everything the HTTP layer calls into.
type Services struct {
	Accounts       *service.AccountService
	Ledger         *service.Ledger
	History        *service.HistoryService
	Funding        *service.FundingService
	Swaps          *service.SwapService
	Investments    *service.InvestmentService
	Payouts        *service.PayoutService
	Plans          *service.PlanService
	Reconciliation *service.ReconciliationService
	Oracle         service.PriceOracle
	Registry       *domain.Registry
}

// Options configures the middleware stack.
type Options struct {
	Auth               *middleware.Authenticator
	Idempotency        middleware.IdempotencyStore
	RequireIdempotency bool
	Store              handler.Pinger
	Redis              redis.Cmdable
	PublicRateLimitRPS int
	AuthRateLimitRPS   int
	Logger             *zap.Logger
}

type Router struct {
	svc  Services
	opts Options
}

func NewRouter(svc Services, opts Options) *Router {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.PublicRateLimitRPS <= 0 {
		opts.PublicRateLimitRPS = 100
	}
	if opts.AuthRateLimitRPS <= 0 {
		opts.AuthRateLimitRPS = 50
	}
	return &Router{svc: svc, opts: opts}
}

func (api *Router) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.TraceMiddleware)
	r.Use(middleware.RecoverMiddleware(api.opts.Logger))
	r.Use(middleware.LoggingMiddleware(api.opts.Logger))
	r.Use(middleware.MetricsMiddleware)

	healthHandler := handler.NewHealthHandler(api.opts.Store, api.opts.Redis)
	accountHandler := handler.NewAccountHandler(api.svc.Accounts, api.svc.Ledger, api.svc.History)
	fundingHandler := handler.NewFundingHandler(api.svc.Funding)
	swapHandler := handler.NewSwapHandler(api.svc.Swaps)
	investmentHandler := handler.NewInvestmentHandler(api.svc.Investments, api.svc.Payouts)
	planHandler := handler.NewPlanHandler(api.svc.Plans)
	marketHandler := handler.NewMarketHandler(api.svc.Oracle, api.svc.Registry, api.svc.Reconciliation)

	// Public Routes
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/openapi.yaml", spec.OpenAPIHandler())
	r.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL("/openapi.yaml")))

	r.Group(func(r chi.Router) {
		r.Use(middleware.PublicRateLimiter(api.opts.PublicRateLimitRPS))
		r.Get("/v1/plans", planHandler.List)
		r.Get("/v1/prices", marketHandler.Prices)
	})

	// Protected Routes
	r.Group(func(r chi.Router) {
		r.Use(api.opts.Auth.Middleware)
		r.Use(middleware.AuthRateLimiter(api.opts.AuthRateLimitRPS))
		r.Use(middleware.Idempotency(api.opts.Idempotency, api.opts.RequireIdempotency, api.opts.Logger))

		// Accounts
		r.Post("/v1/accounts", accountHandler.Open)
		r.Get("/v1/accounts/me", accountHandler.Me)
		r.Patch("/v1/accounts/me", accountHandler.SetWorkingCurrency)
		r.Put("/v1/accounts/me/wallets", accountHandler.RegisterWallet)
		r.Get("/v1/accounts/me/portfolio", accountHandler.Portfolio)
		r.Get("/v1/accounts/me/transactions", accountHandler.Transactions)
		r.Get("/v1/accounts/me/investments", investmentHandler.Mine)
		r.Get("/v1/deposit-addresses/{currency}", accountHandler.DepositAddress)

		// Funding
		r.Post("/v1/deposits", fundingHandler.RequestDeposit)
		r.Post("/v1/withdrawals", fundingHandler.RequestWithdrawal)
		r.Get("/v1/transactions/{id}", fundingHandler.GetTransaction)

		// Swaps
		r.Post("/v1/swaps/preview", swapHandler.Preview)
		r.Post("/v1/swaps", swapHandler.Swap)

		// Investments
		r.Post("/v1/investments", investmentHandler.Open)
		r.Get("/v1/investments/{id}", investmentHandler.Get)

		r.Route("/v1/admin", func(r chi.Router) {
			r.Use(middleware.RequireRole(domain.RoleAdmin))

			r.Get("/accounts/{id}", accountHandler.AdminGet)
			r.Delete("/accounts/{id}", accountHandler.AdminDelete)
			r.Get("/accounts/{id}/audit", accountHandler.AdminAudit)
			r.Post("/accounts/{id}/recompute", accountHandler.AdminRecompute)
			r.Get("/transactions", accountHandler.AdminTransactions)

			r.Post("/deposits/{id}/approve", fundingHandler.ApproveDeposit)
			r.Post("/deposits/{id}/reject", fundingHandler.RejectDeposit)
			r.Post("/withdrawals/{id}/approve", fundingHandler.ApproveWithdrawal)
			r.Post("/withdrawals/{id}/reject", fundingHandler.RejectWithdrawal)

			r.Get("/plans", planHandler.AdminList)
			r.Post("/plans", planHandler.Create)
			r.Put("/plans/{id}", planHandler.Update)
			r.Delete("/plans/{id}", planHandler.Delete)
			r.Post("/plans/{id}/activate", planHandler.Activate)
			r.Post("/plans/{id}/deactivate", planHandler.Deactivate)

			r.Get("/investments", investmentHandler.AdminList)
			r.Post("/investments/{id}/cancel", investmentHandler.AdminCancel)
			r.Post("/payouts/run", investmentHandler.AdminRunPayouts)
			r.Post("/reconciliation/run", marketHandler.RunReconciliation)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		handler.RespondError(w, r, http.StatusNotFound, "resource/not-found", "route not found")
	})

	return r
}
