package payrollhandler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"hrleave/internal/domain/auth"
	"hrleave/internal/domain/payroll"
	"hrleave/internal/domain/timemgmt"
	"hrleave/internal/transport/http/api"
	"hrleave/internal/transport/http/middleware"
)

// SummaryReader exposes payroll inputs produced from approved leave.
type SummaryReader interface {
	Summary(ctx context.Context, employeeID string) (payroll.Summary, error)
}

// ExceptionLister exposes time exceptions produced from approved leave.
type ExceptionLister interface {
	ListExceptions(ctx context.Context, employeeID string) ([]timemgmt.Exception, error)
}

type Handler struct {
	Payroll    SummaryReader
	Exceptions ExceptionLister
	Perms      middleware.PermissionStore
}

func NewHandler(summaries SummaryReader, exceptions ExceptionLister, perms middleware.PermissionStore) *Handler {
	return &Handler{Payroll: summaries, Exceptions: exceptions, Perms: perms}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	read := middleware.RequirePermission(auth.PermLeaveRead, h.Perms)
	r.With(read).Get("/payroll/leave-inputs", h.handleLeaveInputs)
	r.With(read).Get("/time/exceptions", h.handleTimeExceptions)
}

// employeeFor lets approvers look at anyone and everyone else at themselves.
func (h *Handler) employeeFor(r *http.Request, user auth.UserContext) string {
	requested := r.URL.Query().Get("employeeId")
	if requested == "" || requested == user.EmployeeID {
		return user.EmployeeID
	}
	if ok, err := h.Perms.HasPermission(r.Context(), user.RoleName, auth.PermLeaveApprove); err == nil && ok {
		return requested
	}
	return user.EmployeeID
}

func (h *Handler) handleLeaveInputs(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}
	summary, err := h.Payroll.Summary(r.Context(), h.employeeFor(r, user))
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "payroll_inputs_failed", "failed to load payroll inputs", middleware.GetRequestID(r.Context()))
		return
	}
	api.Success(w, summary, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleTimeExceptions(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}
	items, err := h.Exceptions.ListExceptions(r.Context(), h.employeeFor(r, user))
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "time_exceptions_failed", "failed to load time exceptions", middleware.GetRequestID(r.Context()))
		return
	}
	api.Success(w, items, middleware.GetRequestID(r.Context()))
}
