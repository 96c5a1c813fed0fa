package handler

import (
	"net/http"

	"github.com/ayo6706/custodial-ledger/internal/models"
	"github.com/ayo6706/custodial-ledger/internal/service"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type InvestmentHandler struct {
	investments *service.InvestmentService
	payouts     *service.PayoutService
}

func NewInvestmentHandler(investments *service.InvestmentService, payouts *service.PayoutService) *InvestmentHandler {
	return &InvestmentHandler{investments: investments, payouts: payouts}
}

// Open handles POST /v1/investments. amount is in the caller's working currency.
func (h *InvestmentHandler) Open(w http.ResponseWriter, r *http.Request) {
	actorID, _, ok := mustActor(w, r)
	if !ok {
		return
	}
	var req struct {
		PlanID uuid.UUID       `json:"plan_id"`
		Amount decimal.Decimal `json:"amount"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	inv, err := h.investments.Open(r.Context(), actorID, req.PlanID, req.Amount)
	if err != nil {
		respondServiceError(w, r, err, "open investment")
		return
	}
	RespondJSON(w, http.StatusCreated, inv)
}

// Get handles GET /v1/investments/{id}.
func (h *InvestmentHandler) Get(w http.ResponseWriter, r *http.Request) {
	actorID, isAdmin, ok := mustActor(w, r)
	if !ok {
		return
	}
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	inv, err := h.investments.Get(r.Context(), id)
	if err != nil {
		respondServiceError(w, r, err, "get investment")
		return
	}
	if !isAdmin && inv.AccountID != actorID {
		RespondError(w, r, http.StatusNotFound, "resource/not-found", "investment not found")
		return
	}
	RespondJSON(w, http.StatusOK, inv)
}

// Mine handles GET /v1/accounts/me/investments.
func (h *InvestmentHandler) Mine(w http.ResponseWriter, r *http.Request) {
	actorID, _, ok := mustActor(w, r)
	if !ok {
		return
	}
	list, err := h.investments.ListForAccount(r.Context(), actorID, r.URL.Query().Get("status"), queryInt32(r, "limit"), queryInt32(r, "offset"))
	if err != nil {
		respondServiceError(w, r, err, "list investments")
		return
	}
	RespondJSON(w, http.StatusOK, list)
}

// AdminList handles GET /v1/admin/investments.
func (h *InvestmentHandler) AdminList(w http.ResponseWriter, r *http.Request) {
	filter := models.InvestmentFilter{
		Status: r.URL.Query().Get("status"),
		Limit:  queryInt32(r, "limit"),
		Offset: queryInt32(r, "offset"),
	}
	if raw := r.URL.Query().Get("account_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			RespondError(w, r, http.StatusBadRequest, "request/invalid-account-id", "Invalid account_id")
			return
		}
		filter.AccountID = &id
	}
	list, err := h.investments.ListAll(r.Context(), filter)
	if err != nil {
		respondServiceError(w, r, err, "list investments")
		return
	}
	RespondJSON(w, http.StatusOK, list)
}

// AdminCancel handles POST /v1/admin/investments/{id}/cancel.
func (h *InvestmentHandler) AdminCancel(w http.ResponseWriter, r *http.Request) {
	actorID, _, ok := mustActor(w, r)
	if !ok {
		return
	}
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	inv, err := h.investments.Cancel(r.Context(), id, &actorID)
	if err != nil {
		respondServiceError(w, r, err, "cancel investment")
		return
	}
	RespondJSON(w, http.StatusOK, inv)
}

// AdminRunPayouts handles POST /v1/admin/payouts/run and runs one pass immediately.
func (h *InvestmentHandler) AdminRunPayouts(w http.ResponseWriter, r *http.Request) {
	result, err := h.payouts.ProcessDue(r.Context())
	if err != nil {
		respondServiceError(w, r, err, "run payouts")
		return
	}
	RespondJSON(w, http.StatusOK, result)
}
