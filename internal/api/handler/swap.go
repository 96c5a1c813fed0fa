package handler

import (
	"net/http"

	"github.com/ayo6706/custodial-ledger/internal/service"
	"github.com/shopspring/decimal"
)

type SwapHandler struct {
	swaps *service.SwapService
}

func NewSwapHandler(swaps *service.SwapService) *SwapHandler {
	return &SwapHandler{swaps: swaps}
}

type swapRequest struct {
	From   string          `json:"from"`
	To     string          `json:"to"`
	Amount decimal.Decimal `json:"amount"`
}

// Preview handles POST /v1/swaps/preview.
func (h *SwapHandler) Preview(w http.ResponseWriter, r *http.Request) {
	var req swapRequest
	if !decodeBody(w, r, &req) {
		return
	}
	quote, err := h.swaps.Preview(r.Context(), req.From, req.To, req.Amount)
	if err != nil {
		respondServiceError(w, r, err, "preview swap")
		return
	}
	RespondJSON(w, http.StatusOK, quote)
}

// Swap handles POST /v1/swaps.
func (h *SwapHandler) Swap(w http.ResponseWriter, r *http.Request) {
	actorID, _, ok := mustActor(w, r)
	if !ok {
		return
	}
	var req swapRequest
	if !decodeBody(w, r, &req) {
		return
	}
	result, err := h.swaps.Swap(r.Context(), actorID, req.From, req.To, req.Amount)
	if err != nil {
		respondServiceError(w, r, err, "swap")
		return
	}
	RespondJSON(w, http.StatusCreated, result)
}
