package handler

import (
	"net/http"
	"time"

	"github.com/ayo6706/custodial-ledger/internal/domain"
	"github.com/ayo6706/custodial-ledger/internal/models"
	"github.com/ayo6706/custodial-ledger/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type AccountHandler struct {
	accounts *service.AccountService
	ledger   *service.Ledger
	history  *service.HistoryService
}

func NewAccountHandler(accounts *service.AccountService, ledger *service.Ledger, history *service.HistoryService) *AccountHandler {
	return &AccountHandler{accounts: accounts, ledger: ledger, history: history}
}

type workingCurrencyRequest struct {
	WorkingCurrency string `json:"working_currency"`
}

// Open handles POST /v1/accounts. The account id is the token's account id.
func (h *AccountHandler) Open(w http.ResponseWriter, r *http.Request) {
	actorID, _, ok := mustActor(w, r)
	if !ok {
		return
	}
	var req workingCurrencyRequest
	if r.ContentLength != 0 && !decodeBody(w, r, &req) {
		return
	}
	account, err := h.accounts.Open(r.Context(), actorID, req.WorkingCurrency)
	if err != nil {
		respondServiceError(w, r, err, "open account")
		return
	}
	RespondJSON(w, http.StatusCreated, account)
}

// Me handles GET /v1/accounts/me.
func (h *AccountHandler) Me(w http.ResponseWriter, r *http.Request) {
	actorID, _, ok := mustActor(w, r)
	if !ok {
		return
	}
	h.writeView(w, r, actorID)
}

// SetWorkingCurrency handles PATCH /v1/accounts/me.
func (h *AccountHandler) SetWorkingCurrency(w http.ResponseWriter, r *http.Request) {
	actorID, _, ok := mustActor(w, r)
	if !ok {
		return
	}
	var req workingCurrencyRequest
	if !decodeBody(w, r, &req) {
		return
	}
	account, err := h.accounts.SetWorkingCurrency(r.Context(), actorID, req.WorkingCurrency)
	if err != nil {
		respondServiceError(w, r, err, "set working currency")
		return
	}
	RespondJSON(w, http.StatusOK, account)
}

// RegisterWallet handles PUT /v1/accounts/me/wallets.
func (h *AccountHandler) RegisterWallet(w http.ResponseWriter, r *http.Request) {
	actorID, _, ok := mustActor(w, r)
	if !ok {
		return
	}
	var req struct {
		Currency string `json:"currency"`
		Address  string `json:"address"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	wallet, err := h.accounts.RegisterWalletAddress(r.Context(), actorID, req.Currency, req.Address)
	if err != nil {
		respondServiceError(w, r, err, "register wallet")
		return
	}
	RespondJSON(w, http.StatusOK, wallet)
}

// Portfolio handles GET /v1/accounts/me/portfolio.
func (h *AccountHandler) Portfolio(w http.ResponseWriter, r *http.Request) {
	actorID, _, ok := mustActor(w, r)
	if !ok {
		return
	}
	p, err := h.accounts.Portfolio(r.Context(), actorID)
	if err != nil {
		respondServiceError(w, r, err, "portfolio")
		return
	}
	RespondJSON(w, http.StatusOK, p)
}

// Transactions handles GET /v1/accounts/me/transactions.
func (h *AccountHandler) Transactions(w http.ResponseWriter, r *http.Request) {
	actorID, _, ok := mustActor(w, r)
	if !ok {
		return
	}
	filter, ok := transactionFilter(w, r)
	if !ok {
		return
	}
	filter.AccountID = &actorID
	page, err := h.history.List(r.Context(), filter, r.URL.Query().Get("fiat"))
	if err != nil {
		respondServiceError(w, r, err, "list transactions")
		return
	}
	RespondJSON(w, http.StatusOK, page)
}

// DepositAddress handles GET /v1/deposit-addresses/{currency}.
func (h *AccountHandler) DepositAddress(w http.ResponseWriter, r *http.Request) {
	currency := chi.URLParam(r, "currency")
	addr, err := h.accounts.DepositAddress(r.Context(), currency)
	if err != nil {
		respondServiceError(w, r, err, "deposit address")
		return
	}
	RespondJSON(w, http.StatusOK, map[string]string{"currency": currency, "address": addr})
}

// AdminGet handles GET /v1/admin/accounts/{id}.
func (h *AccountHandler) AdminGet(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	h.writeView(w, r, id)
}

// AdminDelete handles DELETE /v1/admin/accounts/{id}.
func (h *AccountHandler) AdminDelete(w http.ResponseWriter, r *http.Request) {
	actorID, _, ok := mustActor(w, r)
	if !ok {
		return
	}
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	if err := h.accounts.Delete(r.Context(), id, &actorID); err != nil {
		respondServiceError(w, r, err, "delete account")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AdminAudit handles GET /v1/admin/accounts/{id}/audit.
func (h *AccountHandler) AdminAudit(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	trail, err := h.accounts.AuditTrail(r.Context(), id)
	if err != nil {
		respondServiceError(w, r, err, "audit trail")
		return
	}
	RespondJSON(w, http.StatusOK, trail)
}

// AdminRecompute handles POST /v1/admin/accounts/{id}/recompute.
func (h *AccountHandler) AdminRecompute(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	total, err := h.ledger.RecomputeAggregate(r.Context(), id)
	if err != nil {
		respondServiceError(w, r, err, "recompute aggregate")
		return
	}
	RespondJSON(w, http.StatusOK, map[string]interface{}{"account_id": id, "total_usd": total})
}

// AdminTransactions handles GET /v1/admin/transactions.
func (h *AccountHandler) AdminTransactions(w http.ResponseWriter, r *http.Request) {
	filter, ok := transactionFilter(w, r)
	if !ok {
		return
	}
	if raw := r.URL.Query().Get("account_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			RespondError(w, r, http.StatusBadRequest, "request/invalid-account-id", "Invalid account_id")
			return
		}
		filter.AccountID = &id
	}
	page, err := h.history.List(r.Context(), filter, r.URL.Query().Get("fiat"))
	if err != nil {
		respondServiceError(w, r, err, "list transactions")
		return
	}
	RespondJSON(w, http.StatusOK, page)
}

func (h *AccountHandler) writeView(w http.ResponseWriter, r *http.Request, id uuid.UUID) {
	view, err := h.accounts.Get(r.Context(), id)
	if err != nil {
		respondServiceError(w, r, err, "get account")
		return
	}
	RespondJSON(w, http.StatusOK, view)
}

func transactionFilter(w http.ResponseWriter, r *http.Request) (models.TransactionFilter, bool) {
	q := r.URL.Query()
	filter := models.TransactionFilter{
		Kind:   q.Get("kind"),
		Status: q.Get("status"),
		Limit:  queryInt32(r, "limit"),
		Offset: queryInt32(r, "offset"),
	}
	if c := q.Get("currency"); c != "" {
		filter.Currency = domain.NormalizeCurrency(c)
	}
	for name, dst := range map[string]**time.Time{"from": &filter.From, "to": &filter.To} {
		raw := q.Get(name)
		if raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			RespondError(w, r, http.StatusBadRequest, "request/invalid-"+name, "Invalid "+name+": expected RFC 3339")
			return filter, false
		}
		*dst = &t
	}
	return filter, true
}
