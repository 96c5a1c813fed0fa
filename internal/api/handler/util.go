package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/ayo6706/custodial-ledger/internal/api/middleware"
	"github.com/ayo6706/custodial-ledger/internal/api/problem"
	"github.com/ayo6706/custodial-ledger/internal/domain"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

// RespondJSON writes a JSON response.
func RespondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// RespondError writes an error response.
func RespondError(w http.ResponseWriter, r *http.Request, status int, problemType, message string) {
	if problemType != "" && problemType != "about:blank" && !strings.HasPrefix(problemType, "http") {
		problemType = problem.Type(problemType)
	}
	problem.Write(w, r, status, problemType, http.StatusText(status), message)
}

type errorMapping struct {
	err    error
	status int
	slug   string
}

var domainErrors = []errorMapping{
	{domain.ErrInvalidAmount, http.StatusBadRequest, "ledger/invalid-amount"},
	{domain.ErrUnsupportedCurrency, http.StatusBadRequest, "ledger/unsupported-currency"},
	{domain.ErrSameCurrency, http.StatusBadRequest, "swap/same-currency"},
	{domain.ErrInvalidWalletAddress, http.StatusBadRequest, "account/invalid-wallet-address"},
	{domain.ErrMissingWalletAddress, http.StatusBadRequest, "account/missing-wallet-address"},
	{domain.ErrInvalidPlan, http.StatusBadRequest, "plan/invalid"},
	{domain.ErrInvalidArgument, http.StatusBadRequest, "request/invalid-argument"},
	{domain.ErrWrongKind, http.StatusBadRequest, "transaction/wrong-kind"},
	{domain.ErrNotFound, http.StatusNotFound, "resource/not-found"},
	{domain.ErrInsufficientFunds, http.StatusUnprocessableEntity, "ledger/insufficient-funds"},
	{domain.ErrAmountOutOfRange, http.StatusUnprocessableEntity, "investment/amount-out-of-range"},
	{domain.ErrPlanInactive, http.StatusConflict, "investment/plan-inactive"},
	{domain.ErrNotPending, http.StatusConflict, "transaction/not-pending"},
	{domain.ErrNotActive, http.StatusConflict, "investment/not-active"},
	{domain.ErrAccountExists, http.StatusConflict, "account/exists"},
	{domain.ErrAccountHasObligations, http.StatusConflict, "account/has-obligations"},
	{domain.ErrPlanInUse, http.StatusConflict, "plan/in-use"},
	{domain.ErrConcurrentModification, http.StatusConflict, "ledger/concurrent-modification"},
	{domain.ErrPriceUnavailable, http.StatusServiceUnavailable, "oracle/price-unavailable"},
}

// respondServiceError maps a service error onto a problem response. Unknown
// errors are logged and reported as 500 with a generic message.
func respondServiceError(w http.ResponseWriter, r *http.Request, err error, operation string) {
	for _, m := range domainErrors {
		if errors.Is(err, m.err) {
			RespondError(w, r, m.status, m.slug, err.Error())
			return
		}
	}
	if status, pType, msg, ok := mapDBError(err); ok {
		RespondError(w, r, status, pType, msg)
		return
	}
	zap.L().Error(operation+" failed", zap.Error(err), zap.String("trace_id", middleware.TraceIDFromContext(r.Context())))
	RespondError(w, r, http.StatusInternalServerError, "internal-server-error", "unexpected server error")
}

// requestActor returns the calling account and whether it has the admin role.
func requestActor(r *http.Request) (uuid.UUID, bool, bool) {
	id, ok := middleware.AccountIDFromContext(r.Context())
	if !ok {
		return uuid.Nil, false, false
	}
	return id, middleware.RoleFromContext(r.Context()) == domain.RoleAdmin, true
}

func mustActor(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool, bool) {
	id, isAdmin, ok := requestActor(r)
	if !ok {
		RespondError(w, r, http.StatusUnauthorized, "auth/unauthorized", "Unauthorized")
	}
	return id, isAdmin, ok
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "Invalid request body")
		return false
	}
	return true
}

func uuidParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-"+name, "Invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}

func queryInt32(r *http.Request, name string) int32 {
	v, err := strconv.ParseInt(r.URL.Query().Get(name), 10, 32)
	if err != nil {
		return 0
	}
	return int32(v)
}

func mapDBError(err error) (status int, problemType, message string, ok bool) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return 0, "", "", false
	}

	switch pgErr.Code {
	case "23505": // unique_violation
		return http.StatusConflict, "db/unique-violation", "resource already exists", true
	case "23503": // foreign_key_violation
		return http.StatusBadRequest, "db/foreign-key-violation", "invalid reference", true
	case "23514": // check_violation
		return http.StatusBadRequest, "db/check-violation", "request violates data constraints", true
	case "23502": // not_null_violation
		return http.StatusBadRequest, "db/not-null-violation", "missing required field", true
	default:
		return 0, "", "", false
	}
}
