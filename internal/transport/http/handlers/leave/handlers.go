package leavehandler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"hrleave/internal/domain/audit"
	"hrleave/internal/domain/auth"
	"hrleave/internal/domain/core"
	"hrleave/internal/domain/leave"
	"hrleave/internal/platform/jobs"
	"hrleave/internal/transport/http/api"
	"hrleave/internal/transport/http/middleware"
)

type Handler struct {
	Service *leave.Service
	Perms   middleware.PermissionStore
	Audit   audit.Recorder
	Jobs    *jobs.Service
}

func NewHandler(service *leave.Service, perms middleware.PermissionStore, auditRec audit.Recorder, jobsSvc *jobs.Service) *Handler {
	return &Handler{Service: service, Perms: perms, Audit: auditRec, Jobs: jobsSvc}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	read := middleware.RequirePermission(auth.PermLeaveRead, h.Perms)
	write := middleware.RequirePermission(auth.PermLeaveWrite, h.Perms)
	approve := middleware.RequirePermission(auth.PermLeaveApprove, h.Perms)
	admin := middleware.RequirePermission(auth.PermLeaveAdmin, h.Perms)
	runJobs := middleware.RequirePermission(auth.PermLeaveJobs, h.Perms)

	r.Route("/leave", func(r chi.Router) {
		r.With(read).Get("/types", h.handleListTypes)
		r.With(read).Get("/types/{typeID}", h.handleGetType)
		r.With(admin).Post("/types", h.handleCreateType)
		r.With(admin).Put("/types/{typeID}", h.handleUpdateType)
		r.With(read).Get("/policies", h.handleListPolicies)
		r.With(admin).Post("/policies", h.handleCreatePolicy)
		r.With(admin).Put("/policies/{policyID}", h.handleUpdatePolicy)

		r.With(read).Get("/calendars/{year}", h.handleGetCalendar)
		r.With(admin).Put("/calendars/{year}", h.handleSaveCalendar)
		r.With(admin).Post("/calendars/{year}/holidays", h.handleAddHolidays)
		r.With(admin).Delete("/calendars/{year}/holidays/{date}", h.handleRemoveHoliday)
		r.With(read).Get("/duration", h.handleDuration)

		r.With(read).Get("/block-periods", h.handleListBlockPeriods)
		r.With(admin).Post("/block-periods", h.handleCreateBlockPeriod)
		r.With(admin).Delete("/block-periods/{blockID}", h.handleDeactivateBlockPeriod)

		r.With(read).Get("/entitlements", h.handleListEntitlements)
		r.With(admin).Post("/entitlements", h.handleCreateEntitlement)
		r.With(admin).Post("/entitlements/bulk", h.handleBulkUpdateEntitlements)
		r.With(admin).Post("/entitlements/initialize", h.handleInitializeEntitlements)
		r.With(admin).Post("/entitlements/adjust", h.handleAdjustBalance)
		r.With(admin).Post("/entitlements/reconcile", h.handleReconcile)
		r.With(admin).Post("/entitlements/accrue", h.handleAccrueOne)
		r.With(admin).Post("/entitlements/year-end", h.handleYearEndOne)
		r.With(read).Get("/entitlements/{entitlementID}", h.handleGetEntitlement)
		r.With(admin).Patch("/entitlements/{entitlementID}", h.handleUpdateEntitlement)
		r.With(admin).Delete("/entitlements/{entitlementID}", h.handleDeleteEntitlement)
		r.With(read).Get("/adjustments", h.handleListAdjustments)

		r.With(read).Get("/requests", h.handleListRequests)
		r.With(approve).Get("/requests/pending", h.handleListPending)
		r.With(write).Post("/requests", h.handleSubmit)
		r.With(read).Get("/requests/{requestID}", h.handleGetRequest)
		r.With(approve).Post("/requests/{requestID}/approve", h.handleApprove)
		r.With(approve).Post("/requests/{requestID}/reject", h.handleReject)
		r.With(admin).Post("/requests/{requestID}/override", h.handleOverride)
		r.With(write).Post("/requests/{requestID}/cancel", h.handleCancel)
		r.With(approve).Post("/requests/{requestID}/delegate", h.handleDelegate)
		r.With(write).Post("/requests/{requestID}/amend", h.handleAmend)
		r.With(read).Get("/team-conflict", h.handleTeamConflict)

		r.With(read).Get("/delegations", h.handleListDelegations)
		r.With(approve).Post("/delegations", h.handleCreateDelegation)
		r.With(approve).Delete("/delegations/{delegationID}", h.handleDeactivateDelegation)

		r.With(admin).Get("/patterns", h.handleListPatterns)
		r.With(admin).Post("/patterns/{patternID}/acknowledge", h.handleAcknowledgePattern)

		r.With(admin).Post("/settlements/{employeeID}/calculate", h.handleCalculateSettlement)
		r.With(admin).Post("/settlements/{employeeID}/process", h.handleProcessSettlement)

		r.With(runJobs).Post("/jobs/{job}", h.handleRunJob)
	})
}

// jobNames maps trigger path segments to registered job names.
var jobNames = map[string]string{
	"accrual":    leave.JobMonthlyAccrual,
	"year-end":   leave.JobYearEnd,
	"escalation": leave.JobEscalation,
	"patterns":   leave.JobPatternDetection,
}

func requestID(r *http.Request) string {
	return middleware.GetRequestID(r.Context())
}

func currentUser(w http.ResponseWriter, r *http.Request) (auth.UserContext, bool) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", requestID(r))
		return auth.UserContext{}, false
	}
	return user, true
}

// actorFor resolves the acting identity carried by the token.
func actorFor(w http.ResponseWriter, r *http.Request, user auth.UserContext) (core.Actor, bool) {
	actor, err := core.ResolveActor(user.EmployeeID, user.CandidateID)
	if err != nil {
		api.Fail(w, http.StatusForbidden, "no_identity", err.Error(), requestID(r))
		return core.Actor{}, false
	}
	return actor, true
}

func (h *Handler) hasPermission(ctx context.Context, user auth.UserContext, perm string) bool {
	ok, err := h.Perms.HasPermission(ctx, user.RoleName, perm)
	if err != nil {
		slog.Warn("permission lookup failed", "role", user.RoleName, "perm", perm, "err", err)
		return false
	}
	return ok
}

// scopedEmployee returns the employee a read is about. Callers without
// approval rights only ever see their own data.
func (h *Handler) scopedEmployee(ctx context.Context, user auth.UserContext, requested string) string {
	if requested == "" || requested == user.EmployeeID {
		return user.EmployeeID
	}
	if h.hasPermission(ctx, user, auth.PermLeaveApprove) {
		return requested
	}
	return user.EmployeeID
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", requestID(r))
		return false
	}
	return true
}

// writeError maps engine errors onto the response envelope.
func writeError(w http.ResponseWriter, r *http.Request, err error, fallbackCode string) {
	reqID := requestID(r)
	var ruleErr *leave.RuleError
	var balanceErr *leave.InsufficientBalanceError
	switch {
	case errors.As(err, &balanceErr):
		api.FailWithDetails(w, http.StatusBadRequest, leave.RuleBalance, balanceErr.Error(), map[string]float64{
			"available": balanceErr.Available,
			"requested": balanceErr.Requested,
			"shortfall": balanceErr.Shortfall,
		}, reqID)
	case errors.As(err, &ruleErr):
		api.Fail(w, http.StatusBadRequest, ruleErr.Rule, ruleErr.Message, reqID)
	case errors.Is(err, leave.ErrNotFound):
		api.Fail(w, http.StatusNotFound, "not_found", err.Error(), reqID)
	case errors.Is(err, leave.ErrInvalidState):
		api.Fail(w, http.StatusBadRequest, "invalid_state", err.Error(), reqID)
	case errors.Is(err, leave.ErrBadRequest):
		api.Fail(w, http.StatusBadRequest, "bad_request", err.Error(), reqID)
	case errors.Is(err, leave.ErrForbidden):
		api.Fail(w, http.StatusForbidden, "forbidden", err.Error(), reqID)
	case errors.Is(err, leave.ErrConcurrentModification):
		api.Fail(w, http.StatusConflict, "concurrent_modification", "record changed concurrently, retry the request", reqID)
	case errors.Is(err, leave.ErrConflict):
		api.Fail(w, http.StatusConflict, "conflict", err.Error(), reqID)
	default:
		slog.Error("leave request failed", "code", fallbackCode, "path", r.URL.Path, "requestId", reqID, "err", err)
		api.Fail(w, http.StatusInternalServerError, fallbackCode, "internal error", reqID)
	}
}

func (h *Handler) record(r *http.Request, user auth.UserContext, action, entityType, entityID string, before, after any) {
	if h.Audit == nil {
		return
	}
	evt := audit.Event{
		ActorID:    user.UserID,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		RequestID:  requestID(r),
	}
	if err := h.Audit.Record(r.Context(), evt, before, after); err != nil {
		slog.Warn("audit record failed", "action", action, "err", err)
	}
}
