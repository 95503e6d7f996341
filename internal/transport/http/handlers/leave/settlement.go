package leavehandler

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"hrleave/internal/platform/jobs"
	"hrleave/internal/transport/http/api"
	"hrleave/internal/transport/http/shared"
)

func (h *Handler) handleCalculateSettlement(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		DailyRate decimal.Decimal `json:"dailyRate"`
	}
	if !decode(w, r, &payload) {
		return
	}
	if payload.DailyRate.IsNegative() {
		shared.FailValidation(w, requestID(r), []shared.ValidationIssue{{Field: "dailyRate", Reason: "must not be negative"}})
		return
	}
	settlement, err := h.Service.CalculateFinalSettlement(r.Context(), chi.URLParam(r, "employeeID"), payload.DailyRate)
	if err != nil {
		writeError(w, r, err, "leave_settlement_calculate_failed")
		return
	}
	api.Success(w, settlement, requestID(r))
}

func (h *Handler) handleProcessSettlement(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	employeeID := chi.URLParam(r, "employeeID")
	result, err := h.Service.ProcessFinalSettlement(r.Context(), employeeID, user.EmployeeID)
	if err != nil {
		writeError(w, r, err, "leave_settlement_process_failed")
		return
	}
	h.record(r, user, "leave.settlement.process", "employee", employeeID, nil, result)
	api.Success(w, result, requestID(r))
}

func (h *Handler) handleRunJob(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	name, known := jobNames[chi.URLParam(r, "job")]
	if !known || h.Jobs == nil {
		api.Fail(w, http.StatusNotFound, "unknown_job", "unknown leave job", requestID(r))
		return
	}
	details, err := h.Jobs.RunNow(r.Context(), name)
	if errors.Is(err, jobs.ErrUnknownJob) {
		api.Fail(w, http.StatusNotFound, "unknown_job", "job is not registered", requestID(r))
		return
	}
	if err != nil {
		writeError(w, r, err, "leave_job_failed")
		return
	}
	h.record(r, user, "leave.job.run", "job", name, nil, details)
	api.Success(w, map[string]any{"job": name, "details": details}, requestID(r))
}
