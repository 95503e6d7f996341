package leavehandler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"hrleave/internal/domain/leave"
	"hrleave/internal/transport/http/api"
	"hrleave/internal/transport/http/shared"
)

func (h *Handler) handleListTypes(w http.ResponseWriter, r *http.Request) {
	types, err := h.Service.ListLeaveTypes(r.Context())
	if err != nil {
		writeError(w, r, err, "leave_types_failed")
		return
	}
	api.Success(w, types, requestID(r))
}

func (h *Handler) handleGetType(w http.ResponseWriter, r *http.Request) {
	lt, err := h.Service.GetLeaveType(r.Context(), chi.URLParam(r, "typeID"))
	if err != nil {
		writeError(w, r, err, "leave_type_failed")
		return
	}
	api.Success(w, lt, requestID(r))
}

func validateType(v *shared.Validator, lt leave.LeaveType) {
	v.Required("name", lt.Name, "is required")
	if lt.RequiresAttachment {
		v.Required("attachmentKind", lt.AttachmentKind, "is required when an attachment is required")
	}
}

func (h *Handler) handleCreateType(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	var payload leave.LeaveType
	if !decode(w, r, &payload) {
		return
	}
	v := shared.NewValidator()
	v.Required("code", payload.Code, "is required")
	validateType(v, payload)
	if v.Reject(w, requestID(r)) {
		return
	}

	created, err := h.Service.CreateLeaveType(r.Context(), payload)
	if err != nil {
		writeError(w, r, err, "leave_type_create_failed")
		return
	}
	h.record(r, user, "leave.type.create", "leave_type", created.ID, nil, created)
	api.Created(w, created, requestID(r))
}

func (h *Handler) handleUpdateType(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	var payload leave.LeaveType
	if !decode(w, r, &payload) {
		return
	}
	payload.ID = chi.URLParam(r, "typeID")
	before, err := h.Service.GetLeaveType(r.Context(), payload.ID)
	if err != nil {
		writeError(w, r, err, "leave_type_update_failed")
		return
	}
	updated, err := h.Service.UpdateLeaveType(r.Context(), payload)
	if err != nil {
		writeError(w, r, err, "leave_type_update_failed")
		return
	}
	h.record(r, user, "leave.type.update", "leave_type", updated.ID, before, updated)
	api.Success(w, updated, requestID(r))
}

func (h *Handler) handleListPolicies(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("active") == "true"
	policies, err := h.Service.ListPolicies(r.Context(), activeOnly)
	if err != nil {
		writeError(w, r, err, "leave_policies_failed")
		return
	}
	api.Success(w, policies, requestID(r))
}

func validatePolicy(v *shared.Validator, p leave.LeavePolicy) {
	v.Required("leaveTypeId", p.LeaveTypeID, "is required")
	v.Required("accrualMethod", p.AccrualMethod, "is required")
	v.Enum("accrualMethod", p.AccrualMethod, []string{leave.AccrualMonthly, leave.AccrualYearly}, "must be MONTHLY or YEARLY")
	v.Enum("rounding", p.Rounding, []string{leave.RoundingNone, leave.RoundingUp, leave.RoundingDown}, "must be NONE, ROUND_UP or ROUND_DOWN")
}

func (h *Handler) handleCreatePolicy(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	var payload leave.LeavePolicy
	if !decode(w, r, &payload) {
		return
	}
	v := shared.NewValidator()
	validatePolicy(v, payload)
	if v.Reject(w, requestID(r)) {
		return
	}

	created, err := h.Service.CreatePolicy(r.Context(), payload)
	if err != nil {
		writeError(w, r, err, "leave_policy_create_failed")
		return
	}
	h.record(r, user, "leave.policy.create", "leave_policy", created.ID, nil, created)
	api.Created(w, created, requestID(r))
}

func (h *Handler) handleUpdatePolicy(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	var payload leave.LeavePolicy
	if !decode(w, r, &payload) {
		return
	}
	payload.ID = chi.URLParam(r, "policyID")
	v := shared.NewValidator()
	validatePolicy(v, payload)
	if v.Reject(w, requestID(r)) {
		return
	}

	updated, err := h.Service.UpdatePolicy(r.Context(), payload)
	if err != nil {
		writeError(w, r, err, "leave_policy_update_failed")
		return
	}
	h.record(r, user, "leave.policy.update", "leave_policy", updated.ID, nil, updated)
	api.Success(w, updated, requestID(r))
}

func yearParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	year, err := strconv.Atoi(chi.URLParam(r, "year"))
	if err != nil || year < 1900 || year > 9999 {
		api.Fail(w, http.StatusBadRequest, "invalid_year", "year must be a four digit number", requestID(r))
		return 0, false
	}
	return year, true
}

type holidayPayload struct {
	Date    string `json:"date" validate:"required"`
	Name    string `json:"name" validate:"required"`
	EndDate string `json:"endDate"`
}

func parseHolidays(v *shared.Validator, payload []holidayPayload) []leave.Holiday {
	out := make([]leave.Holiday, 0, len(payload))
	for i, p := range payload {
		field := "holidays[" + strconv.Itoa(i) + "]"
		v.Required(field+".name", p.Name, "is required")
		date, ok := v.Date(field+".date", p.Date)
		if !ok {
			continue
		}
		h := leave.Holiday{Date: date, Name: p.Name}
		if p.EndDate != "" {
			end, ok := v.Date(field+".endDate", p.EndDate)
			if !ok {
				continue
			}
			v.DateOrder(field+".date", date, field+".endDate", end)
			h.EndDate = &end
		}
		out = append(out, h)
	}
	return out
}

func (h *Handler) handleGetCalendar(w http.ResponseWriter, r *http.Request) {
	year, ok := yearParam(w, r)
	if !ok {
		return
	}
	cal, err := h.Service.GetCalendar(r.Context(), year)
	if err != nil {
		writeError(w, r, err, "leave_calendar_failed")
		return
	}
	api.Success(w, cal, requestID(r))
}

func (h *Handler) handleSaveCalendar(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	year, ok := yearParam(w, r)
	if !ok {
		return
	}
	var payload struct {
		Holidays []holidayPayload `json:"holidays"`
	}
	if !decode(w, r, &payload) {
		return
	}
	v := shared.NewValidator()
	holidays := parseHolidays(v, payload.Holidays)
	if v.Reject(w, requestID(r)) {
		return
	}

	saved, err := h.Service.SaveCalendar(r.Context(), leave.Calendar{Year: year, Holidays: holidays})
	if err != nil {
		writeError(w, r, err, "leave_calendar_save_failed")
		return
	}
	h.record(r, user, "leave.calendar.save", "leave_calendar", strconv.Itoa(year), nil, saved)
	api.Success(w, saved, requestID(r))
}

func (h *Handler) handleAddHolidays(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	year, ok := yearParam(w, r)
	if !ok {
		return
	}
	var payload struct {
		Holidays []holidayPayload `json:"holidays"`
	}
	if !decode(w, r, &payload) {
		return
	}
	if len(payload.Holidays) == 0 {
		shared.FailValidation(w, requestID(r), []shared.ValidationIssue{{Field: "holidays", Reason: "must not be empty"}})
		return
	}
	v := shared.NewValidator()
	holidays := parseHolidays(v, payload.Holidays)
	if v.Reject(w, requestID(r)) {
		return
	}

	results, err := h.Service.AddHolidays(r.Context(), year, holidays)
	if err != nil {
		writeError(w, r, err, "leave_holidays_add_failed")
		return
	}
	h.record(r, user, "leave.calendar.holidays.add", "leave_calendar", strconv.Itoa(year), nil, results)
	api.Success(w, results, requestID(r))
}

func (h *Handler) handleRemoveHoliday(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	year, ok := yearParam(w, r)
	if !ok {
		return
	}
	date, err := time.Parse("2006-01-02", chi.URLParam(r, "date"))
	if err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD", requestID(r))
		return
	}
	if err := h.Service.RemoveHoliday(r.Context(), year, date); err != nil {
		writeError(w, r, err, "leave_holiday_remove_failed")
		return
	}
	h.record(r, user, "leave.calendar.holidays.remove", "leave_calendar", strconv.Itoa(year), chi.URLParam(r, "date"), nil)
	api.Success(w, map[string]string{"status": "removed"}, requestID(r))
}

func (h *Handler) handleDuration(w http.ResponseWriter, r *http.Request) {
	v := shared.NewValidator()
	from, _ := v.Date("from", r.URL.Query().Get("from"))
	to, _ := v.Date("to", r.URL.Query().Get("to"))
	v.DateOrder("from", from, "to", to)
	if v.Reject(w, requestID(r)) {
		return
	}
	days, err := h.Service.Duration(r.Context(), from, to)
	if err != nil {
		writeError(w, r, err, "leave_duration_failed")
		return
	}
	api.Success(w, map[string]int{"workingDays": days}, requestID(r))
}

func (h *Handler) handleListBlockPeriods(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("active") != "false"
	blocks, err := h.Service.ListBlockPeriods(r.Context(), activeOnly)
	if err != nil {
		writeError(w, r, err, "leave_block_periods_failed")
		return
	}
	api.Success(w, blocks, requestID(r))
}

type blockPeriodPayload struct {
	Name             string   `json:"name" validate:"required,max=200"`
	StartDate        string   `json:"startDate" validate:"required"`
	EndDate          string   `json:"endDate" validate:"required"`
	Reason           string   `json:"reason"`
	ExemptLeaveTypes []string `json:"exemptLeaveTypes"`
}

func (h *Handler) handleCreateBlockPeriod(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	var payload blockPeriodPayload
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

	created, err := h.Service.CreateBlockPeriod(r.Context(), leave.BlockPeriod{
		Name:             payload.Name,
		StartDate:        start,
		EndDate:          end,
		Reason:           payload.Reason,
		ExemptLeaveTypes: payload.ExemptLeaveTypes,
	})
	if err != nil {
		writeError(w, r, err, "leave_block_period_create_failed")
		return
	}
	h.record(r, user, "leave.block_period.create", "leave_block_period", created.ID, nil, created)
	api.Created(w, created, requestID(r))
}

func (h *Handler) handleDeactivateBlockPeriod(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "blockID")
	if err := h.Service.DeactivateBlockPeriod(r.Context(), id); err != nil {
		writeError(w, r, err, "leave_block_period_deactivate_failed")
		return
	}
	h.record(r, user, "leave.block_period.deactivate", "leave_block_period", id, nil, nil)
	api.Success(w, map[string]string{"status": "inactive"}, requestID(r))
}

func (h *Handler) handleListPatterns(w http.ResponseWriter, r *http.Request) {
	openOnly := r.URL.Query().Get("open") == "true"
	patterns, err := h.Service.ListPatterns(r.Context(), r.URL.Query().Get("employeeId"), openOnly)
	if err != nil {
		writeError(w, r, err, "leave_patterns_failed")
		return
	}
	api.Success(w, patterns, requestID(r))
}

func (h *Handler) handleAcknowledgePattern(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	pattern, err := h.Service.AcknowledgePattern(r.Context(), chi.URLParam(r, "patternID"), user.EmployeeID)
	if err != nil {
		writeError(w, r, err, "leave_pattern_ack_failed")
		return
	}
	h.record(r, user, "leave.pattern.acknowledge", "leave_pattern", pattern.ID, nil, pattern)
	api.Success(w, pattern, requestID(r))
}
