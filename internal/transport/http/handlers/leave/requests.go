package leavehandler

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"hrleave/internal/domain/auth"
	"hrleave/internal/domain/leave"
	"hrleave/internal/transport/http/api"
	"hrleave/internal/transport/http/shared"
)

const (
	stageManager = "manager"
	stageHR      = "hr"
)

type submitPayload struct {
	LeaveTypeID         string `json:"leaveTypeId" validate:"required"`
	FromDate            string `json:"fromDate" validate:"required"`
	ToDate              string `json:"toDate" validate:"required"`
	Justification       string `json:"justification" validate:"max=2000"`
	AttachmentID        string `json:"attachmentId"`
	EnforceTeamConflict bool   `json:"enforceTeamConflict"`
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	actor, ok := actorFor(w, r, user)
	if !ok {
		return
	}
	var payload submitPayload
	if !decode(w, r, &payload) {
		return
	}
	v := shared.NewValidator()
	v.Struct(payload)
	from, _ := v.Date("fromDate", payload.FromDate)
	to, _ := v.Date("toDate", payload.ToDate)
	if v.Reject(w, requestID(r)) {
		return
	}

	created, err := h.Service.Submit(r.Context(), actor, leave.SubmitInput{
		LeaveTypeID:         payload.LeaveTypeID,
		From:                from,
		To:                  to,
		Justification:       payload.Justification,
		AttachmentID:        payload.AttachmentID,
		EnforceTeamConflict: payload.EnforceTeamConflict,
	})
	if err != nil {
		writeError(w, r, err, "leave_request_create_failed")
		return
	}
	api.Created(w, created, requestID(r))
}

func (h *Handler) handleGetRequest(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	req, err := h.Service.GetRequest(r.Context(), chi.URLParam(r, "requestID"))
	if err != nil {
		writeError(w, r, err, "leave_request_failed")
		return
	}
	if h.scopedEmployee(r.Context(), user, req.EmployeeID) != req.EmployeeID {
		api.Fail(w, http.StatusForbidden, "forbidden", "not allowed to view this request", requestID(r))
		return
	}
	api.Success(w, req, requestID(r))
}

func (h *Handler) handleListRequests(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	filter := leave.RequestFilter{LeaveTypeID: q.Get("leaveTypeId")}
	if employeeID := h.scopedEmployee(r.Context(), user, q.Get("employeeId")); employeeID != "" {
		filter.EmployeeIDs = []string{employeeID}
	}
	if raw := strings.TrimSpace(q.Get("status")); raw != "" {
		for _, status := range strings.Split(raw, ",") {
			filter.Statuses = append(filter.Statuses, strings.ToUpper(strings.TrimSpace(status)))
		}
	}
	v := shared.NewValidator()
	if raw := q.Get("from"); raw != "" {
		if from, ok := v.Date("from", raw); ok {
			filter.OverlapFrom = &from
		}
	}
	if raw := q.Get("to"); raw != "" {
		if to, ok := v.Date("to", raw); ok {
			filter.OverlapTo = &to
		}
	}
	if v.Reject(w, requestID(r)) {
		return
	}

	requests, err := h.Service.ListRequests(r.Context(), filter)
	if err != nil {
		writeError(w, r, err, "leave_requests_failed")
		return
	}
	page := shared.ParsePagination(r, 50, 200)
	api.Success(w, shared.Paginate(requests, page), requestID(r))
}

func (h *Handler) handleListPending(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	approverID := user.EmployeeID
	if requested := r.URL.Query().Get("approverId"); requested != "" && h.isHR(r, user) {
		approverID = requested
	}
	pending, err := h.Service.ListPendingForApprover(r.Context(), approverID)
	if err != nil {
		writeError(w, r, err, "leave_pending_failed")
		return
	}
	api.Success(w, pending, requestID(r))
}

type decisionPayload struct {
	Stage   string `json:"stage" validate:"omitempty,oneof=manager hr"`
	Comment string `json:"comment" validate:"max=2000"`
	Reason  string `json:"reason" validate:"max=2000"`
}

// decisionStage picks the approval step a decision applies to. Without an
// explicit stage the open line manager step wins.
func decisionStage(req leave.LeaveRequest, requested string) string {
	if requested != "" {
		return requested
	}
	if idx := req.Step(leave.RoleLineManager); idx >= 0 && req.ApprovalFlow[idx].Status == leave.StatusPending {
		return stageManager
	}
	return stageHR
}

// canDecide checks that user may act on the given stage of req. HR may act
// on any stage; managers only on requests routed to them.
func (h *Handler) canDecide(r *http.Request, user auth.UserContext, req leave.LeaveRequest, stage string) (bool, error) {
	if h.isHR(r, user) {
		return true, nil
	}
	if stage == stageHR {
		return false, nil
	}
	pending, err := h.Service.ListPendingForApprover(r.Context(), user.EmployeeID)
	if err != nil {
		return false, err
	}
	for _, p := range pending {
		if p.ID == req.ID {
			return true, nil
		}
	}
	return false, nil
}

func (h *Handler) decision(w http.ResponseWriter, r *http.Request) (auth.UserContext, leave.LeaveRequest, string, decisionPayload, bool) {
	user, ok := currentUser(w, r)
	if !ok {
		return user, leave.LeaveRequest{}, "", decisionPayload{}, false
	}
	if user.EmployeeID == "" {
		api.Fail(w, http.StatusForbidden, "no_identity", "only employees can decide on leave requests", requestID(r))
		return user, leave.LeaveRequest{}, "", decisionPayload{}, false
	}
	var payload decisionPayload
	if r.ContentLength != 0 && !decode(w, r, &payload) {
		return user, leave.LeaveRequest{}, "", decisionPayload{}, false
	}
	v := shared.NewValidator()
	v.Struct(payload)
	if v.Reject(w, requestID(r)) {
		return user, leave.LeaveRequest{}, "", decisionPayload{}, false
	}
	req, err := h.Service.GetRequest(r.Context(), chi.URLParam(r, "requestID"))
	if err != nil {
		writeError(w, r, err, "leave_request_failed")
		return user, leave.LeaveRequest{}, "", decisionPayload{}, false
	}
	stage := decisionStage(req, payload.Stage)
	allowed, err := h.canDecide(r, user, req, stage)
	if err != nil {
		writeError(w, r, err, "leave_request_failed")
		return user, leave.LeaveRequest{}, "", decisionPayload{}, false
	}
	if !allowed {
		api.Fail(w, http.StatusForbidden, "forbidden", "not allowed to decide on this request", requestID(r))
		return user, leave.LeaveRequest{}, "", decisionPayload{}, false
	}
	return user, req, stage, payload, true
}

func (h *Handler) handleApprove(w http.ResponseWriter, r *http.Request) {
	user, req, stage, payload, ok := h.decision(w, r)
	if !ok {
		return
	}
	var (
		updated leave.LeaveRequest
		err     error
	)
	if stage == stageManager {
		updated, err = h.Service.ManagerApprove(r.Context(), req.ID, user.EmployeeID, payload.Comment)
	} else {
		updated, err = h.Service.HRApprove(r.Context(), req.ID, user.EmployeeID, payload.Comment)
	}
	if err != nil {
		writeError(w, r, err, "leave_request_approve_failed")
		return
	}
	h.record(r, user, "leave.request.approve."+stage, "leave_request", updated.ID, req, updated)
	api.Success(w, updated, requestID(r))
}

func (h *Handler) handleReject(w http.ResponseWriter, r *http.Request) {
	user, req, stage, payload, ok := h.decision(w, r)
	if !ok {
		return
	}
	reason := payload.Reason
	if reason == "" {
		reason = payload.Comment
	}
	if strings.TrimSpace(reason) == "" {
		shared.FailValidation(w, requestID(r), []shared.ValidationIssue{{Field: "reason", Reason: "is required"}})
		return
	}
	var (
		updated leave.LeaveRequest
		err     error
	)
	if stage == stageManager {
		updated, err = h.Service.ManagerReject(r.Context(), req.ID, user.EmployeeID, reason)
	} else {
		updated, err = h.Service.HRReject(r.Context(), req.ID, user.EmployeeID, reason)
	}
	if err != nil {
		writeError(w, r, err, "leave_request_reject_failed")
		return
	}
	h.record(r, user, "leave.request.reject."+stage, "leave_request", updated.ID, req, updated)
	api.Success(w, updated, requestID(r))
}

func (h *Handler) handleOverride(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	var payload decisionPayload
	if r.ContentLength != 0 && !decode(w, r, &payload) {
		return
	}
	if strings.TrimSpace(payload.Comment) == "" {
		shared.FailValidation(w, requestID(r), []shared.ValidationIssue{{Field: "comment", Reason: "is required for an override"}})
		return
	}
	id := chi.URLParam(r, "requestID")
	before, err := h.Service.GetRequest(r.Context(), id)
	if err != nil {
		writeError(w, r, err, "leave_request_override_failed")
		return
	}
	updated, err := h.Service.HROverride(r.Context(), id, user.EmployeeID, payload.Comment)
	if err != nil {
		writeError(w, r, err, "leave_request_override_failed")
		return
	}
	h.record(r, user, "leave.request.override", "leave_request", updated.ID, before, updated)
	api.Success(w, updated, requestID(r))
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	actor, ok := actorFor(w, r, user)
	if !ok {
		return
	}
	updated, err := h.Service.Cancel(r.Context(), chi.URLParam(r, "requestID"), actor)
	if err != nil {
		writeError(w, r, err, "leave_request_cancel_failed")
		return
	}
	api.Success(w, updated, requestID(r))
}

func (h *Handler) handleDelegate(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	var payload struct {
		DelegateID string `json:"delegateId" validate:"required"`
	}
	if !decode(w, r, &payload) {
		return
	}
	v := shared.NewValidator()
	v.Struct(payload)
	if v.Reject(w, requestID(r)) {
		return
	}
	req, err := h.Service.GetRequest(r.Context(), chi.URLParam(r, "requestID"))
	if err != nil {
		writeError(w, r, err, "leave_request_delegate_failed")
		return
	}
	allowed, err := h.canDecide(r, user, req, stageManager)
	if err != nil {
		writeError(w, r, err, "leave_request_delegate_failed")
		return
	}
	if !allowed {
		api.Fail(w, http.StatusForbidden, "forbidden", "not allowed to delegate this request", requestID(r))
		return
	}
	updated, err := h.Service.Delegate(r.Context(), req.ID, user.EmployeeID, payload.DelegateID)
	if err != nil {
		writeError(w, r, err, "leave_request_delegate_failed")
		return
	}
	h.record(r, user, "leave.request.delegate", "leave_request", updated.ID, req, updated)
	api.Success(w, updated, requestID(r))
}

type amendPayload struct {
	FromDate      string  `json:"fromDate" validate:"required"`
	ToDate        string  `json:"toDate" validate:"required"`
	Justification *string `json:"justification"`
	AttachmentID  *string `json:"attachmentId"`
	Reason        string  `json:"reason" validate:"max=2000"`
}

func (h *Handler) handleAmend(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	actor, ok := actorFor(w, r, user)
	if !ok {
		return
	}
	var payload amendPayload
	if !decode(w, r, &payload) {
		return
	}
	v := shared.NewValidator()
	v.Struct(payload)
	from, _ := v.Date("fromDate", payload.FromDate)
	to, _ := v.Date("toDate", payload.ToDate)
	if v.Reject(w, requestID(r)) {
		return
	}

	updated, err := h.Service.Amend(r.Context(), chi.URLParam(r, "requestID"), actor, leave.AmendInput{
		From:          from,
		To:            to,
		Justification: payload.Justification,
		AttachmentID:  payload.AttachmentID,
		Reason:        payload.Reason,
	})
	if err != nil {
		writeError(w, r, err, "leave_request_amend_failed")
		return
	}
	api.Success(w, updated, requestID(r))
}

func (h *Handler) handleListDelegations(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	managerID := h.scopedEmployee(r.Context(), user, r.URL.Query().Get("managerId"))
	delegations, err := h.Service.ListDelegations(r.Context(), managerID)
	if err != nil {
		writeError(w, r, err, "leave_delegations_failed")
		return
	}
	api.Success(w, delegations, requestID(r))
}

type delegationPayload struct {
	ManagerID  string `json:"managerId"`
	DelegateID string `json:"delegateId" validate:"required"`
	StartDate  string `json:"startDate" validate:"required"`
	EndDate    string `json:"endDate" validate:"required"`
	Reason     string `json:"reason" validate:"max=500"`
}

func (h *Handler) handleCreateDelegation(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	var payload delegationPayload
	if !decode(w, r, &payload) {
		return
	}
	v := shared.NewValidator()
	v.Struct(payload)
	start, _ := v.Date("startDate", payload.StartDate)
	end, _ := v.Date("endDate", payload.EndDate)
	v.DateOrder("startDate", start, "endDate", end)
	if v.Reject(w, requestID(r)) {
		return
	}
	managerID := user.EmployeeID
	if payload.ManagerID != "" && payload.ManagerID != managerID {
		if !h.isHR(r, user) {
			api.Fail(w, http.StatusForbidden, "forbidden", "only hr can delegate on behalf of another manager", requestID(r))
			return
		}
		managerID = payload.ManagerID
	}

	created, err := h.Service.CreateDelegation(r.Context(), leave.LeaveDelegation{
		ManagerID:  managerID,
		DelegateID: payload.DelegateID,
		StartDate:  start,
		EndDate:    end,
		Reason:     payload.Reason,
	})
	if err != nil {
		writeError(w, r, err, "leave_delegation_create_failed")
		return
	}
	h.record(r, user, "leave.delegation.create", "leave_delegation", created.ID, nil, created)
	api.Created(w, created, requestID(r))
}

func (h *Handler) handleDeactivateDelegation(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "delegationID")
	if err := h.Service.DeactivateDelegation(r.Context(), id); err != nil {
		writeError(w, r, err, "leave_delegation_deactivate_failed")
		return
	}
	h.record(r, user, "leave.delegation.deactivate", "leave_delegation", id, nil, nil)
	api.Success(w, map[string]string{"status": "inactive"}, requestID(r))
}
