package handler

import (
	"net/http"
	"strings"

	"github.com/ayo6706/custodial-ledger/internal/domain"
	"github.com/ayo6706/custodial-ledger/internal/models"
	"github.com/ayo6706/custodial-ledger/internal/service"
	"github.com/shopspring/decimal"
)

// MarketHandler exposes oracle prices and admin ledger checks.
type MarketHandler struct {
	oracle    service.PriceOracle
	registry  *domain.Registry
	reconcile *service.ReconciliationService
}

func NewMarketHandler(oracle service.PriceOracle, registry *domain.Registry, reconcile *service.ReconciliationService) *MarketHandler {
	return &MarketHandler{oracle: oracle, registry: registry, reconcile: reconcile}
}

// Prices handles GET /v1/prices?symbols=BTC,ETH&fiat=EUR. Without symbols every
// supported currency is priced. Unknown or unpriced symbols report zero.
func (h *MarketHandler) Prices(w http.ResponseWriter, r *http.Request) {
	var symbols []domain.Currency
	if raw := r.URL.Query().Get("symbols"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			c, err := h.registry.Parse(part)
			if err != nil {
				respondServiceError(w, r, err, "prices")
				return
			}
			symbols = append(symbols, c)
		}
	} else {
		symbols = h.registry.Codes()
	}

	prices := h.oracle.GetUsdPrices(r.Context(), symbols)
	resp := struct {
		USD      map[domain.Currency]decimal.Decimal `json:"usd"`
		Fiat     string                              `json:"fiat,omitempty"`
		FiatRate *decimal.Decimal                    `json:"fiat_rate,omitempty"`
	}{USD: prices}

	if fiat := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("fiat"))); fiat != "" {
		rate := h.oracle.GetFiatRate(r.Context(), fiat)
		resp.Fiat = fiat
		resp.FiatRate = &rate
	}
	RespondJSON(w, http.StatusOK, resp)
}

// RunReconciliation handles POST /v1/admin/reconciliation/run.
func (h *MarketHandler) RunReconciliation(w http.ResponseWriter, r *http.Request) {
	drifts, err := h.reconcile.Run(r.Context())
	if err != nil {
		respondServiceError(w, r, err, "reconciliation")
		return
	}
	if drifts == nil {
		drifts = []models.LedgerDrift{}
	}
	RespondJSON(w, http.StatusOK, map[string]interface{}{"drifts": drifts, "clean": len(drifts) == 0})
}
