package leavehandler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"hrleave/internal/domain/auth"
	"hrleave/internal/domain/leave"
	"hrleave/internal/transport/http/api"
	"hrleave/internal/transport/http/shared"
)

func (h *Handler) handleListEntitlements(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	employeeID := h.scopedEmployee(r.Context(), user, r.URL.Query().Get("employeeId"))
	ents, err := h.Service.GetEntitlements(r.Context(), employeeID, r.URL.Query().Get("leaveTypeId"))
	if err != nil {
		writeError(w, r, err, "leave_entitlements_failed")
		return
	}
	api.Success(w, ents, requestID(r))
}

func (h *Handler) handleGetEntitlement(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	ent, err := h.Service.GetEntitlement(r.Context(), chi.URLParam(r, "entitlementID"))
	if err != nil {
		writeError(w, r, err, "leave_entitlement_failed")
		return
	}
	if h.scopedEmployee(r.Context(), user, ent.EmployeeID) != ent.EmployeeID {
		api.Fail(w, http.StatusForbidden, "forbidden", "not allowed to view this entitlement", requestID(r))
		return
	}
	api.Success(w, ent, requestID(r))
}

type entitlementPayload struct {
	EmployeeID        string  `json:"employeeId" validate:"required"`
	LeaveTypeID       string  `json:"leaveTypeId" validate:"required"`
	YearlyEntitlement float64 `json:"yearlyEntitlement" validate:"gte=0"`
	CarryForward      float64 `json:"carryForward" validate:"gte=0"`
}

func (h *Handler) handleCreateEntitlement(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	var payload entitlementPayload
	if !decode(w, r, &payload) {
		return
	}
	v := shared.NewValidator()
	v.Struct(payload)
	if v.Reject(w, requestID(r)) {
		return
	}

	created, err := h.Service.CreateEntitlement(r.Context(), leave.LeaveEntitlement{
		EmployeeID:        payload.EmployeeID,
		LeaveTypeID:       payload.LeaveTypeID,
		YearlyEntitlement: payload.YearlyEntitlement,
		CarryForward:      payload.CarryForward,
	})
	if err != nil {
		writeError(w, r, err, "leave_entitlement_create_failed")
		return
	}
	h.record(r, user, "leave.entitlement.create", "leave_entitlement", created.ID, nil, created)
	api.Created(w, created, requestID(r))
}

func (h *Handler) handleUpdateEntitlement(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	var patch leave.EntitlementPatch
	if !decode(w, r, &patch) {
		return
	}
	id := chi.URLParam(r, "entitlementID")
	before, err := h.Service.GetEntitlement(r.Context(), id)
	if err != nil {
		writeError(w, r, err, "leave_entitlement_update_failed")
		return
	}
	updated, err := h.Service.UpdateEntitlement(r.Context(), id, patch)
	if err != nil {
		writeError(w, r, err, "leave_entitlement_update_failed")
		return
	}
	h.record(r, user, "leave.entitlement.update", "leave_entitlement", id, before, updated)
	api.Success(w, updated, requestID(r))
}

func (h *Handler) handleDeleteEntitlement(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "entitlementID")
	if err := h.Service.DeleteEntitlement(r.Context(), id); err != nil {
		writeError(w, r, err, "leave_entitlement_delete_failed")
		return
	}
	h.record(r, user, "leave.entitlement.delete", "leave_entitlement", id, nil, nil)
	api.Success(w, map[string]string{"status": "deleted"}, requestID(r))
}

func (h *Handler) handleBulkUpdateEntitlements(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	var payload struct {
		Items []leave.BulkEntitlementItem `json:"items"`
	}
	if !decode(w, r, &payload) {
		return
	}
	if len(payload.Items) == 0 {
		shared.FailValidation(w, requestID(r), []shared.ValidationIssue{{Field: "items", Reason: "must not be empty"}})
		return
	}
	results := h.Service.BulkUpdateEntitlements(r.Context(), payload.Items)
	h.record(r, user, "leave.entitlement.bulk_update", "leave_entitlement", "", nil, results)
	api.Success(w, results, requestID(r))
}

type initializePayload struct {
	EmployeeID   string `json:"employeeId" validate:"required"`
	ContractType string `json:"contractType" validate:"required"`
	TenureMonths int    `json:"tenureMonths" validate:"gte=0"`
}

func (h *Handler) handleInitializeEntitlements(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	var payload initializePayload
	if !decode(w, r, &payload) {
		return
	}
	v := shared.NewValidator()
	v.Struct(payload)
	if v.Reject(w, requestID(r)) {
		return
	}
	results, err := h.Service.InitializeForEmployee(r.Context(), payload.EmployeeID, payload.ContractType, payload.TenureMonths)
	if err != nil {
		writeError(w, r, err, "leave_entitlement_initialize_failed")
		return
	}
	h.record(r, user, "leave.entitlement.initialize", "employee", payload.EmployeeID, nil, results)
	api.Success(w, results, requestID(r))
}

type adjustPayload struct {
	EmployeeID  string  `json:"employeeId" validate:"required"`
	LeaveTypeID string  `json:"leaveTypeId" validate:"required"`
	Type        string  `json:"type" validate:"required,oneof=ADD DEDUCT"`
	Amount      float64 `json:"amount" validate:"gt=0"`
	Reason      string  `json:"reason" validate:"required,max=500"`
}

func (h *Handler) handleAdjustBalance(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	var payload adjustPayload
	if !decode(w, r, &payload) {
		return
	}
	v := shared.NewValidator()
	v.Struct(payload)
	if v.Reject(w, requestID(r)) {
		return
	}

	adj, ent, err := h.Service.AdjustBalance(r.Context(), payload.EmployeeID, payload.LeaveTypeID, payload.Type, payload.Amount, payload.Reason, user.EmployeeID)
	if err != nil {
		writeError(w, r, err, "leave_adjust_failed")
		return
	}
	h.record(r, user, "leave.entitlement.adjust", "leave_entitlement", ent.ID, nil, adj)
	api.Success(w, map[string]any{"adjustment": adj, "entitlement": ent}, requestID(r))
}

func (h *Handler) handleListAdjustments(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	employeeID := h.scopedEmployee(r.Context(), user, r.URL.Query().Get("employeeId"))
	adjustments, err := h.Service.ListAdjustments(r.Context(), employeeID)
	if err != nil {
		writeError(w, r, err, "leave_adjustments_failed")
		return
	}
	api.Success(w, adjustments, requestID(r))
}

func (h *Handler) handleReconcile(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	result, err := h.Service.ReconcileEntitlements(r.Context())
	if err != nil {
		writeError(w, r, err, "leave_reconcile_failed")
		return
	}
	h.record(r, user, "leave.entitlement.reconcile", "leave_entitlement", "", nil, map[string]int{
		"checked":   result.Checked,
		"corrected": result.Corrected,
	})
	api.Success(w, result, requestID(r))
}

type entitlementKeyPayload struct {
	EmployeeID  string `json:"employeeId" validate:"required"`
	LeaveTypeID string `json:"leaveTypeId" validate:"required"`
}

func (h *Handler) handleAccrueOne(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	var payload entitlementKeyPayload
	if !decode(w, r, &payload) {
		return
	}
	v := shared.NewValidator()
	v.Struct(payload)
	if v.Reject(w, requestID(r)) {
		return
	}
	ent, err := h.Service.ProcessLeaveAccrual(r.Context(), payload.EmployeeID, payload.LeaveTypeID, h.Service.Now())
	if err != nil {
		writeError(w, r, err, "leave_accrual_failed")
		return
	}
	h.record(r, user, "leave.entitlement.accrue", "leave_entitlement", ent.ID, nil, ent)
	api.Success(w, ent, requestID(r))
}

func (h *Handler) handleYearEndOne(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	var payload entitlementKeyPayload
	if !decode(w, r, &payload) {
		return
	}
	v := shared.NewValidator()
	v.Struct(payload)
	if v.Reject(w, requestID(r)) {
		return
	}
	ent, applied, err := h.Service.ProcessYearEnd(r.Context(), payload.EmployeeID, payload.LeaveTypeID, h.Service.Now())
	if err != nil {
		writeError(w, r, err, "leave_year_end_failed")
		return
	}
	if applied {
		h.record(r, user, "leave.entitlement.year_end", "leave_entitlement", ent.ID, nil, ent)
	}
	api.Success(w, map[string]any{"entitlement": ent, "carriedForward": applied}, requestID(r))
}

func (h *Handler) handleTeamConflict(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	v := shared.NewValidator()
	from, _ := v.Date("from", q.Get("from"))
	to, _ := v.Date("to", q.Get("to"))
	v.DateOrder("from", from, "to", to)
	if v.Reject(w, requestID(r)) {
		return
	}
	employeeID := h.scopedEmployee(r.Context(), user, q.Get("employeeId"))
	if employeeID == "" {
		api.Fail(w, http.StatusBadRequest, "bad_request", "employeeId is required", requestID(r))
		return
	}
	result, err := h.Service.CheckTeamConflict(r.Context(), employeeID, from, to)
	if err != nil {
		writeError(w, r, err, "leave_team_conflict_failed")
		return
	}
	api.Success(w, result, requestID(r))
}

func (h *Handler) isHR(r *http.Request, user auth.UserContext) bool {
	return h.hasPermission(r.Context(), user, auth.PermLeaveAdmin)
}
