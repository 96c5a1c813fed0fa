package handler

import (
	"net/http"

	"github.com/ayo6706/custodial-ledger/internal/service"
)

type PlanHandler struct {
	plans *service.PlanService
}

func NewPlanHandler(plans *service.PlanService) *PlanHandler {
	return &PlanHandler{plans: plans}
}

// List handles GET /v1/plans?fiat=EUR: active plans with bounds in fiat.
func (h *PlanHandler) List(w http.ResponseWriter, r *http.Request) {
	views, err := h.plans.ListForDisplay(r.Context(), r.URL.Query().Get("fiat"))
	if err != nil {
		respondServiceError(w, r, err, "list plans")
		return
	}
	RespondJSON(w, http.StatusOK, views)
}

// AdminList handles GET /v1/admin/plans, including inactive plans.
func (h *PlanHandler) AdminList(w http.ResponseWriter, r *http.Request) {
	plans, err := h.plans.List(r.Context(), false)
	if err != nil {
		respondServiceError(w, r, err, "list plans")
		return
	}
	RespondJSON(w, http.StatusOK, plans)
}

func (h *PlanHandler) Create(w http.ResponseWriter, r *http.Request) {
	actorID, _, ok := mustActor(w, r)
	if !ok {
		return
	}
	var in service.PlanInput
	if !decodeBody(w, r, &in) {
		return
	}
	plan, err := h.plans.Create(r.Context(), in, &actorID)
	if err != nil {
		respondServiceError(w, r, err, "create plan")
		return
	}
	RespondJSON(w, http.StatusCreated, plan)
}

func (h *PlanHandler) Update(w http.ResponseWriter, r *http.Request) {
	actorID, _, ok := mustActor(w, r)
	if !ok {
		return
	}
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	var in service.PlanInput
	if !decodeBody(w, r, &in) {
		return
	}
	plan, err := h.plans.Update(r.Context(), id, in, &actorID)
	if err != nil {
		respondServiceError(w, r, err, "update plan")
		return
	}
	RespondJSON(w, http.StatusOK, plan)
}

// Delete handles DELETE /v1/admin/plans/{id}. Plans with investments answer 409.
func (h *PlanHandler) Delete(w http.ResponseWriter, r *http.Request) {
	actorID, _, ok := mustActor(w, r)
	if !ok {
		return
	}
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	if err := h.plans.Delete(r.Context(), id, &actorID); err != nil {
		respondServiceError(w, r, err, "delete plan")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *PlanHandler) Activate(w http.ResponseWriter, r *http.Request) {
	h.setActive(w, r, true)
}

func (h *PlanHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	h.setActive(w, r, false)
}

func (h *PlanHandler) setActive(w http.ResponseWriter, r *http.Request, active bool) {
	actorID, _, ok := mustActor(w, r)
	if !ok {
		return
	}
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	plan, err := h.plans.SetActive(r.Context(), id, active, &actorID)
	if err != nil {
		respondServiceError(w, r, err, "set plan active")
		return
	}
	RespondJSON(w, http.StatusOK, plan)
}
