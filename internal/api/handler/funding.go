package handler

import (
	"context"
	"net/http"

	"github.com/ayo6706/custodial-ledger/internal/models"
	"github.com/ayo6706/custodial-ledger/internal/service"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// FundingHandler serves deposit and withdrawal requests and their admin review.
type FundingHandler struct {
	funding *service.FundingService
}

func NewFundingHandler(funding *service.FundingService) *FundingHandler {
	return &FundingHandler{funding: funding}
}

type fundingRequest struct {
	Currency string          `json:"currency"`
	Amount   decimal.Decimal `json:"amount"`
}

// RequestDeposit handles POST /v1/deposits and returns 202 with the pending transaction.
func (h *FundingHandler) RequestDeposit(w http.ResponseWriter, r *http.Request) {
	actorID, _, ok := mustActor(w, r)
	if !ok {
		return
	}
	var req fundingRequest
	if !decodeBody(w, r, &req) {
		return
	}
	txn, err := h.funding.RequestDeposit(r.Context(), actorID, req.Currency, req.Amount)
	if err != nil {
		respondServiceError(w, r, err, "request deposit")
		return
	}
	RespondJSON(w, http.StatusAccepted, txn)
}

// RequestWithdrawal handles POST /v1/withdrawals. An empty currency withdraws
// the settlement currency.
func (h *FundingHandler) RequestWithdrawal(w http.ResponseWriter, r *http.Request) {
	actorID, _, ok := mustActor(w, r)
	if !ok {
		return
	}
	var req fundingRequest
	if !decodeBody(w, r, &req) {
		return
	}
	txn, err := h.funding.RequestWithdrawal(r.Context(), actorID, req.Currency, req.Amount)
	if err != nil {
		respondServiceError(w, r, err, "request withdrawal")
		return
	}
	RespondJSON(w, http.StatusAccepted, txn)
}

// GetTransaction handles GET /v1/transactions/{id}. Non-admins only see their own.
func (h *FundingHandler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	actorID, isAdmin, ok := mustActor(w, r)
	if !ok {
		return
	}
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	txn, err := h.funding.Get(r.Context(), id)
	if err != nil {
		respondServiceError(w, r, err, "get transaction")
		return
	}
	if !isAdmin && txn.AccountID != actorID {
		// Hide existence from other accounts.
		RespondError(w, r, http.StatusNotFound, "resource/not-found", "transaction not found")
		return
	}
	RespondJSON(w, http.StatusOK, txn)
}

func (h *FundingHandler) ApproveDeposit(w http.ResponseWriter, r *http.Request) {
	h.review(w, r, "approve deposit", h.funding.ApproveDeposit)
}

func (h *FundingHandler) RejectDeposit(w http.ResponseWriter, r *http.Request) {
	h.review(w, r, "reject deposit", h.funding.RejectDeposit)
}

func (h *FundingHandler) ApproveWithdrawal(w http.ResponseWriter, r *http.Request) {
	h.review(w, r, "approve withdrawal", h.funding.ApproveWithdrawal)
}

func (h *FundingHandler) RejectWithdrawal(w http.ResponseWriter, r *http.Request) {
	h.review(w, r, "reject withdrawal", h.funding.RejectWithdrawal)
}

type reviewFunc func(ctx context.Context, id uuid.UUID, actorID *uuid.UUID) (models.Transaction, error)

func (h *FundingHandler) review(w http.ResponseWriter, r *http.Request, operation string, fn reviewFunc) {
	actorID, _, ok := mustActor(w, r)
	if !ok {
		return
	}
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	txn, err := fn(r.Context(), id, &actorID)
	if err != nil {
		respondServiceError(w, r, err, operation)
		return
	}
	RespondJSON(w, http.StatusOK, txn)
}
