package leave

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
)

const leaveTypeColumns = `id, code, name, COALESCE(category_id, ''), is_paid, is_deductible, requires_attachment,
       COALESCE(attachment_kind, ''), min_tenure_months, max_duration_days, annual_cap_days, encashable,
       active, COALESCE(payroll_code, ''), created_at, updated_at`

func scanLeaveType(row pgx.Row) (LeaveType, error) {
	var t LeaveType
	err := row.Scan(&t.ID, &t.Code, &t.Name, &t.CategoryID, &t.Paid, &t.Deductible, &t.RequiresAttachment,
		&t.AttachmentKind, &t.MinTenureMonths, &t.MaxDurationDays, &t.AnnualCapDays, &t.Encashable,
		&t.Active, &t.PayrollCode, &t.CreatedAt, &t.UpdatedAt)
	return t, err
}

func (s *Store) ListLeaveTypes(ctx context.Context) ([]LeaveType, error) {
	rows, err := s.DB.Query(ctx, `SELECT `+leaveTypeColumns+` FROM leave_types ORDER BY code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var types []LeaveType
	for rows.Next() {
		t, err := scanLeaveType(rows)
		if err != nil {
			return nil, err
		}
		types = append(types, t)
	}
	return types, rows.Err()
}

func (s *Store) GetLeaveType(ctx context.Context, id string) (LeaveType, error) {
	t, err := scanLeaveType(s.DB.QueryRow(ctx, `SELECT `+leaveTypeColumns+` FROM leave_types WHERE id = $1`, id))
	return t, mapErr(err, "leave type")
}

func (s *Store) GetLeaveTypeByCode(ctx context.Context, code string) (LeaveType, error) {
	t, err := scanLeaveType(s.DB.QueryRow(ctx, `SELECT `+leaveTypeColumns+` FROM leave_types WHERE code = $1`, code))
	return t, mapErr(err, "leave type")
}

func (s *Store) CreateLeaveType(ctx context.Context, lt LeaveType) (LeaveType, error) {
	err := s.DB.QueryRow(ctx, `
    INSERT INTO leave_types (code, name, category_id, is_paid, is_deductible, requires_attachment, attachment_kind,
                             min_tenure_months, max_duration_days, annual_cap_days, encashable, active, payroll_code,
                             created_at, updated_at)
    VALUES ($1,$2,NULLIF($3,''),$4,$5,$6,NULLIF($7,''),$8,$9,$10,$11,$12,NULLIF($13,''),$14,$15)
    RETURNING id
  `, lt.Code, lt.Name, lt.CategoryID, lt.Paid, lt.Deductible, lt.RequiresAttachment, lt.AttachmentKind,
		lt.MinTenureMonths, lt.MaxDurationDays, lt.AnnualCapDays, lt.Encashable, lt.Active, lt.PayrollCode,
		lt.CreatedAt, lt.UpdatedAt).Scan(&lt.ID)
	return lt, mapErr(err, "leave type")
}

func (s *Store) UpdateLeaveType(ctx context.Context, lt LeaveType) error {
	tag, err := s.DB.Exec(ctx, `
    UPDATE leave_types
    SET name = $2, category_id = NULLIF($3,''), is_paid = $4, is_deductible = $5, requires_attachment = $6,
        attachment_kind = NULLIF($7,''), min_tenure_months = $8, max_duration_days = $9, annual_cap_days = $10,
        encashable = $11, active = $12, payroll_code = NULLIF($13,''), updated_at = $14
    WHERE id = $1
  `, lt.ID, lt.Name, lt.CategoryID, lt.Paid, lt.Deductible, lt.RequiresAttachment, lt.AttachmentKind,
		lt.MinTenureMonths, lt.MaxDurationDays, lt.AnnualCapDays, lt.Encashable, lt.Active, lt.PayrollCode, lt.UpdatedAt)
	if err != nil {
		return mapErr(err, "leave type")
	}
	if tag.RowsAffected() == 0 {
		return notFound("leave type")
	}
	return nil
}

const policyColumns = `id, leave_type_id, accrual_method, monthly_rate, yearly_rate, carry_forward_allowed,
       max_carry_forward, rounding, allowed_contract_types, allowed_positions, min_tenure_months,
       encashment_cap_days, active, created_at, updated_at`

func scanPolicy(row pgx.Row) (LeavePolicy, error) {
	var p LeavePolicy
	err := row.Scan(&p.ID, &p.LeaveTypeID, &p.AccrualMethod, &p.MonthlyRate, &p.YearlyRate, &p.CarryForwardAllowed,
		&p.MaxCarryForward, &p.Rounding, &p.AllowedContractTypes, &p.AllowedPositions, &p.MinTenureMonths,
		&p.EncashmentCapDays, &p.Active, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func (s *Store) ListPolicies(ctx context.Context, activeOnly bool) ([]LeavePolicy, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT `+policyColumns+`
    FROM leave_policies
    WHERE ($1 = false OR active)
    ORDER BY created_at
  `, activeOnly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var policies []LeavePolicy
	for rows.Next() {
		p, err := scanPolicy(rows)
		if err != nil {
			return nil, err
		}
		policies = append(policies, p)
	}
	return policies, rows.Err()
}

func (s *Store) GetPolicy(ctx context.Context, id string) (LeavePolicy, error) {
	p, err := scanPolicy(s.DB.QueryRow(ctx, `SELECT `+policyColumns+` FROM leave_policies WHERE id = $1`, id))
	return p, mapErr(err, "leave policy")
}

func (s *Store) ActivePolicyForType(ctx context.Context, leaveTypeID string) (LeavePolicy, error) {
	p, err := scanPolicy(s.DB.QueryRow(ctx, `
    SELECT `+policyColumns+`
    FROM leave_policies
    WHERE leave_type_id = $1 AND active
  `, leaveTypeID))
	return p, mapErr(err, "leave policy")
}

func (s *Store) CreatePolicy(ctx context.Context, p LeavePolicy) (LeavePolicy, error) {
	err := s.DB.QueryRow(ctx, `
    INSERT INTO leave_policies (leave_type_id, accrual_method, monthly_rate, yearly_rate, carry_forward_allowed,
                                max_carry_forward, rounding, allowed_contract_types, allowed_positions,
                                min_tenure_months, encashment_cap_days, active, created_at, updated_at)
    VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
    RETURNING id
  `, p.LeaveTypeID, p.AccrualMethod, p.MonthlyRate, p.YearlyRate, p.CarryForwardAllowed, p.MaxCarryForward,
		p.Rounding, nonNil(p.AllowedContractTypes), nonNil(p.AllowedPositions), p.MinTenureMonths,
		p.EncashmentCapDays, p.Active, p.CreatedAt, p.UpdatedAt).Scan(&p.ID)
	return p, mapErr(err, "leave policy")
}

func (s *Store) UpdatePolicy(ctx context.Context, p LeavePolicy) error {
	tag, err := s.DB.Exec(ctx, `
    UPDATE leave_policies
    SET accrual_method = $2, monthly_rate = $3, yearly_rate = $4, carry_forward_allowed = $5,
        max_carry_forward = $6, rounding = $7, allowed_contract_types = $8, allowed_positions = $9,
        min_tenure_months = $10, encashment_cap_days = $11, active = $12, updated_at = $13
    WHERE id = $1
  `, p.ID, p.AccrualMethod, p.MonthlyRate, p.YearlyRate, p.CarryForwardAllowed, p.MaxCarryForward, p.Rounding,
		nonNil(p.AllowedContractTypes), nonNil(p.AllowedPositions), p.MinTenureMonths, p.EncashmentCapDays,
		p.Active, p.UpdatedAt)
	if err != nil {
		return mapErr(err, "leave policy")
	}
	if tag.RowsAffected() == 0 {
		return notFound("leave policy")
	}
	return nil
}

func (s *Store) GetCalendar(ctx context.Context, year int) (Calendar, error) {
	cal := Calendar{Year: year}
	var raw []byte
	err := s.DB.QueryRow(ctx, `SELECT holidays FROM leave_calendars WHERE year = $1`, year).Scan(&raw)
	if err != nil {
		return cal, mapErr(err, "calendar")
	}
	if err := json.Unmarshal(raw, &cal.Holidays); err != nil {
		return cal, fmt.Errorf("decode calendar %d: %w", year, err)
	}
	return cal, nil
}

func (s *Store) SaveCalendar(ctx context.Context, cal Calendar) error {
	holidays := cal.Holidays
	if holidays == nil {
		holidays = []Holiday{}
	}
	raw, err := json.Marshal(holidays)
	if err != nil {
		return err
	}
	_, err = s.DB.Exec(ctx, `
    INSERT INTO leave_calendars (year, holidays, updated_at)
    VALUES ($1,$2,now())
    ON CONFLICT (year) DO UPDATE SET holidays = EXCLUDED.holidays, updated_at = now()
  `, cal.Year, raw)
	return mapErr(err, "calendar")
}

func (s *Store) ListBlockPeriods(ctx context.Context, activeOnly bool) ([]BlockPeriod, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT id, name, start_date, end_date, COALESCE(reason, ''), exempt_leave_types, active, created_at
    FROM leave_block_periods
    WHERE ($1 = false OR active)
    ORDER BY start_date
  `, activeOnly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []BlockPeriod
	for rows.Next() {
		var b BlockPeriod
		if err := rows.Scan(&b.ID, &b.Name, &b.StartDate, &b.EndDate, &b.Reason, &b.ExemptLeaveTypes, &b.Active, &b.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *Store) CreateBlockPeriod(ctx context.Context, b BlockPeriod) (BlockPeriod, error) {
	err := s.DB.QueryRow(ctx, `
    INSERT INTO leave_block_periods (name, start_date, end_date, reason, exempt_leave_types, active, created_at)
    VALUES ($1,$2,$3,NULLIF($4,''),$5,$6,$7)
    RETURNING id
  `, b.Name, b.StartDate, b.EndDate, b.Reason, nonNil(b.ExemptLeaveTypes), b.Active, b.CreatedAt).Scan(&b.ID)
	return b, mapErr(err, "block period")
}

func (s *Store) DeactivateBlockPeriod(ctx context.Context, id string) error {
	tag, err := s.DB.Exec(ctx, `UPDATE leave_block_periods SET active = false WHERE id = $1`, id)
	if err != nil {
		return mapErr(err, "block period")
	}
	if tag.RowsAffected() == 0 {
		return notFound("block period")
	}
	return nil
}

const entitlementColumns = `id, employee_id, leave_type_id, yearly_entitlement, annual_grant, accrued_actual, accrued_rounded,
       carry_forward, taken, pending, remaining, last_accrual_date, next_reset_date, version, created_at, updated_at`

func scanEntitlement(row pgx.Row) (LeaveEntitlement, error) {
	var e LeaveEntitlement
	err := row.Scan(&e.ID, &e.EmployeeID, &e.LeaveTypeID, &e.YearlyEntitlement, &e.AnnualGrant, &e.AccruedActual, &e.AccruedRounded,
		&e.CarryForward, &e.Taken, &e.Pending, &e.Remaining, &e.LastAccrualDate, &e.NextResetDate, &e.Version,
		&e.CreatedAt, &e.UpdatedAt)
	return e, err
}

func (s *Store) CreateEntitlement(ctx context.Context, e LeaveEntitlement) (LeaveEntitlement, error) {
	e.Version = 1
	err := s.DB.QueryRow(ctx, `
    INSERT INTO leave_entitlements (employee_id, leave_type_id, yearly_entitlement, annual_grant, accrued_actual,
                                    accrued_rounded, carry_forward, taken, pending, remaining, last_accrual_date,
                                    next_reset_date, version, created_at, updated_at)
    VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
    RETURNING id
  `, e.EmployeeID, e.LeaveTypeID, e.YearlyEntitlement, e.AnnualGrant, e.AccruedActual, e.AccruedRounded, e.CarryForward,
		e.Taken, e.Pending, e.Remaining, e.LastAccrualDate, e.NextResetDate, e.Version, e.CreatedAt, e.UpdatedAt).Scan(&e.ID)
	return e, mapErr(err, "entitlement")
}

func (s *Store) GetEntitlement(ctx context.Context, id string) (LeaveEntitlement, error) {
	e, err := scanEntitlement(s.DB.QueryRow(ctx, `SELECT `+entitlementColumns+` FROM leave_entitlements WHERE id = $1`, id))
	return e, mapErr(err, "entitlement")
}

func (s *Store) FindEntitlement(ctx context.Context, employeeID, leaveTypeID string) (LeaveEntitlement, error) {
	e, err := scanEntitlement(s.DB.QueryRow(ctx, `
    SELECT `+entitlementColumns+`
    FROM leave_entitlements
    WHERE employee_id = $1 AND leave_type_id = $2
  `, employeeID, leaveTypeID))
	return e, mapErr(err, "entitlement")
}

func (s *Store) ListEntitlements(ctx context.Context, filter EntitlementFilter) ([]LeaveEntitlement, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT `+entitlementColumns+`
    FROM leave_entitlements
    WHERE ($1 = '' OR employee_id::text = $1)
      AND ($2 = '' OR leave_type_id::text = $2)
    ORDER BY employee_id, leave_type_id
  `, filter.EmployeeID, filter.LeaveTypeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []LeaveEntitlement
	for rows.Next() {
		e, err := scanEntitlement(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) UpdateEntitlement(ctx context.Context, e *LeaveEntitlement) error {
	tag, err := s.DB.Exec(ctx, `
    UPDATE leave_entitlements
    SET yearly_entitlement = $3, annual_grant = $4, accrued_actual = $5, accrued_rounded = $6, carry_forward = $7,
        taken = $8, pending = $9, remaining = $10, last_accrual_date = $11, next_reset_date = $12,
        version = version + 1, updated_at = $13
    WHERE id = $1 AND version = $2
  `, e.ID, e.Version, e.YearlyEntitlement, e.AnnualGrant, e.AccruedActual, e.AccruedRounded, e.CarryForward,
		e.Taken, e.Pending, e.Remaining, e.LastAccrualDate, e.NextResetDate, e.UpdatedAt)
	if err != nil {
		return mapErr(err, "entitlement")
	}
	if tag.RowsAffected() == 0 {
		if _, getErr := s.GetEntitlement(ctx, e.ID); getErr != nil {
			return getErr
		}
		return ErrConcurrentModification
	}
	e.Version++
	return nil
}

func (s *Store) DeleteEntitlement(ctx context.Context, id string) error {
	tag, err := s.DB.Exec(ctx, `DELETE FROM leave_entitlements WHERE id = $1`, id)
	if err != nil {
		return mapErr(err, "entitlement")
	}
	if tag.RowsAffected() == 0 {
		return notFound("entitlement")
	}
	return nil
}

func (s *Store) CreateAdjustment(ctx context.Context, a LeaveAdjustment) (LeaveAdjustment, error) {
	err := s.DB.QueryRow(ctx, `
    INSERT INTO leave_adjustments (employee_id, leave_type_id, adjustment_type, amount, reason, actor_id, created_at)
    VALUES ($1,$2,$3,$4,$5,NULLIF($6,''),$7)
    RETURNING id
  `, a.EmployeeID, a.LeaveTypeID, a.Type, a.Amount, a.Reason, a.ActorID, a.CreatedAt).Scan(&a.ID)
	return a, mapErr(err, "adjustment")
}

func (s *Store) ListAdjustments(ctx context.Context, employeeID string) ([]LeaveAdjustment, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT id, employee_id, leave_type_id, adjustment_type, amount, reason, COALESCE(actor_id, ''), created_at
    FROM leave_adjustments
    WHERE employee_id = $1
    ORDER BY created_at
  `, employeeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []LeaveAdjustment
	for rows.Next() {
		var a LeaveAdjustment
		if err := rows.Scan(&a.ID, &a.EmployeeID, &a.LeaveTypeID, &a.Type, &a.Amount, &a.Reason, &a.ActorID, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

const requestColumns = `id, employee_id, leave_type_id, start_date, end_date, duration_days, COALESCE(justification, ''),
       COALESCE(attachment_id, ''), status, approval_flow, amendments, COALESCE(delegated_by::text, ''),
       escalated_at, submitted_at, version, created_at, updated_at`

func scanRequest(row pgx.Row) (LeaveRequest, error) {
	var r LeaveRequest
	var flow, amendments []byte
	if err := row.Scan(&r.ID, &r.EmployeeID, &r.LeaveTypeID, &r.From, &r.To, &r.DurationDays, &r.Justification,
		&r.AttachmentID, &r.Status, &flow, &amendments, &r.DelegatedBy, &r.EscalatedAt, &r.SubmittedAt,
		&r.Version, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return r, err
	}
	if err := json.Unmarshal(flow, &r.ApprovalFlow); err != nil {
		return r, fmt.Errorf("decode approval flow: %w", err)
	}
	if len(amendments) > 0 {
		if err := json.Unmarshal(amendments, &r.Amendments); err != nil {
			return r, fmt.Errorf("decode amendments: %w", err)
		}
	}
	return r, nil
}

func encodeRequestJSON(r LeaveRequest) ([]byte, []byte, error) {
	flow := r.ApprovalFlow
	if flow == nil {
		flow = []ApprovalStep{}
	}
	amendments := r.Amendments
	if amendments == nil {
		amendments = []Amendment{}
	}
	flowJSON, err := json.Marshal(flow)
	if err != nil {
		return nil, nil, err
	}
	amendJSON, err := json.Marshal(amendments)
	if err != nil {
		return nil, nil, err
	}
	return flowJSON, amendJSON, nil
}

func (s *Store) CreateRequest(ctx context.Context, r LeaveRequest) (LeaveRequest, error) {
	flow, amendments, err := encodeRequestJSON(r)
	if err != nil {
		return LeaveRequest{}, err
	}
	r.Version = 1
	err = s.DB.QueryRow(ctx, `
    INSERT INTO leave_requests (employee_id, leave_type_id, start_date, end_date, duration_days, justification,
                                attachment_id, status, approval_flow, amendments, delegated_by, escalated_at,
                                submitted_at, version, created_at, updated_at)
    VALUES ($1,$2,$3,$4,$5,NULLIF($6,''),NULLIF($7,''),$8,$9,$10,NULLIF($11,'')::uuid,$12,$13,$14,$15,$16)
    RETURNING id
  `, r.EmployeeID, r.LeaveTypeID, r.From, r.To, r.DurationDays, r.Justification, r.AttachmentID, r.Status,
		flow, amendments, r.DelegatedBy, r.EscalatedAt, r.SubmittedAt, r.Version, r.CreatedAt, r.UpdatedAt).Scan(&r.ID)
	return r, mapErr(err, "leave request")
}

func (s *Store) GetRequest(ctx context.Context, id string) (LeaveRequest, error) {
	r, err := scanRequest(s.DB.QueryRow(ctx, `SELECT `+requestColumns+` FROM leave_requests WHERE id = $1`, id))
	return r, mapErr(err, "leave request")
}

func (s *Store) ListRequests(ctx context.Context, filter RequestFilter) ([]LeaveRequest, error) {
	var where []string
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if len(filter.EmployeeIDs) > 0 {
		where = append(where, "employee_id::text = ANY("+arg(filter.EmployeeIDs)+")")
	}
	if filter.LeaveTypeID != "" {
		where = append(where, "leave_type_id::text = "+arg(filter.LeaveTypeID))
	}
	if len(filter.Statuses) > 0 {
		where = append(where, "status = ANY("+arg(filter.Statuses)+")")
	}
	if filter.OverlapFrom != nil {
		where = append(where, "end_date >= "+arg(*filter.OverlapFrom))
	}
	if filter.OverlapTo != nil {
		where = append(where, "start_date <= "+arg(*filter.OverlapTo))
	}
	if filter.DelegatedBy != "" {
		where = append(where, "delegated_by::text = "+arg(filter.DelegatedBy))
	}
	if filter.SubmittedBefore != nil {
		where = append(where, "submitted_at < "+arg(*filter.SubmittedBefore))
	}
	if filter.ExcludeID != "" {
		where = append(where, "id::text <> "+arg(filter.ExcludeID))
	}

	query := `SELECT ` + requestColumns + ` FROM leave_requests`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY submitted_at, id"

	rows, err := s.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []LeaveRequest
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) UpdateRequest(ctx context.Context, r *LeaveRequest) error {
	flow, amendments, err := encodeRequestJSON(*r)
	if err != nil {
		return err
	}
	tag, err := s.DB.Exec(ctx, `
    UPDATE leave_requests
    SET start_date = $3, end_date = $4, duration_days = $5, justification = NULLIF($6,''),
        attachment_id = NULLIF($7,''), status = $8, approval_flow = $9, amendments = $10,
        delegated_by = NULLIF($11,'')::uuid, escalated_at = $12, submitted_at = $13,
        version = version + 1, updated_at = $14
    WHERE id = $1 AND version = $2
  `, r.ID, r.Version, r.From, r.To, r.DurationDays, r.Justification, r.AttachmentID, r.Status, flow, amendments,
		r.DelegatedBy, r.EscalatedAt, r.SubmittedAt, r.UpdatedAt)
	if err != nil {
		return mapErr(err, "leave request")
	}
	if tag.RowsAffected() == 0 {
		if _, getErr := s.GetRequest(ctx, r.ID); getErr != nil {
			return getErr
		}
		return ErrConcurrentModification
	}
	r.Version++
	return nil
}

func (s *Store) CreateDelegation(ctx context.Context, d LeaveDelegation) (LeaveDelegation, error) {
	err := s.DB.QueryRow(ctx, `
    INSERT INTO leave_delegations (manager_id, delegate_id, start_date, end_date, reason, active, created_at)
    VALUES ($1,$2,$3,$4,NULLIF($5,''),$6,$7)
    RETURNING id
  `, d.ManagerID, d.DelegateID, d.StartDate, d.EndDate, d.Reason, d.Active, d.CreatedAt).Scan(&d.ID)
	return d, mapErr(err, "delegation")
}

func (s *Store) ListDelegations(ctx context.Context, filter DelegationFilter) ([]LeaveDelegation, error) {
	var activeAt *time.Time
	if filter.ActiveAt != nil {
		day := DateOnly(*filter.ActiveAt)
		activeAt = &day
	}
	rows, err := s.DB.Query(ctx, `
    SELECT id, manager_id, delegate_id, start_date, end_date, COALESCE(reason, ''), active, created_at
    FROM leave_delegations
    WHERE ($1 = '' OR manager_id::text = $1)
      AND ($2 = '' OR delegate_id::text = $2)
      AND ($3::date IS NULL OR (active AND start_date <= $3::date AND end_date >= $3::date))
    ORDER BY start_date
  `, filter.ManagerID, filter.DelegateID, activeAt)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []LeaveDelegation
	for rows.Next() {
		var d LeaveDelegation
		if err := rows.Scan(&d.ID, &d.ManagerID, &d.DelegateID, &d.StartDate, &d.EndDate, &d.Reason, &d.Active, &d.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *Store) DeactivateDelegation(ctx context.Context, id string) error {
	tag, err := s.DB.Exec(ctx, `UPDATE leave_delegations SET active = false WHERE id = $1`, id)
	if err != nil {
		return mapErr(err, "delegation")
	}
	if tag.RowsAffected() == 0 {
		return notFound("delegation")
	}
	return nil
}

const patternColumns = `id, employee_id, pattern_type, occurrence_count, COALESCE(details, ''), acknowledged,
       COALESCE(acknowledged_by, ''), acknowledged_at, detection_date`

func scanPattern(row pgx.Row) (LeavePattern, error) {
	var p LeavePattern
	err := row.Scan(&p.ID, &p.EmployeeID, &p.PatternType, &p.OccurrenceCount, &p.Details, &p.Acknowledged,
		&p.AcknowledgedBy, &p.AcknowledgedAt, &p.DetectionDate)
	return p, err
}

func (s *Store) FindOpenPattern(ctx context.Context, employeeID, patternType string) (LeavePattern, error) {
	p, err := scanPattern(s.DB.QueryRow(ctx, `
    SELECT `+patternColumns+`
    FROM leave_patterns
    WHERE employee_id = $1 AND pattern_type = $2 AND NOT acknowledged
  `, employeeID, patternType))
	return p, mapErr(err, "pattern")
}

func (s *Store) GetPattern(ctx context.Context, id string) (LeavePattern, error) {
	p, err := scanPattern(s.DB.QueryRow(ctx, `SELECT `+patternColumns+` FROM leave_patterns WHERE id = $1`, id))
	return p, mapErr(err, "pattern")
}

func (s *Store) ListPatterns(ctx context.Context, employeeID string, openOnly bool) ([]LeavePattern, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT `+patternColumns+`
    FROM leave_patterns
    WHERE ($1 = '' OR employee_id::text = $1)
      AND ($2 = false OR NOT acknowledged)
    ORDER BY detection_date DESC
  `, employeeID, openOnly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []LeavePattern
	for rows.Next() {
		p, err := scanPattern(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) SavePattern(ctx context.Context, p LeavePattern) (LeavePattern, error) {
	if p.ID == "" {
		err := s.DB.QueryRow(ctx, `
      INSERT INTO leave_patterns (employee_id, pattern_type, occurrence_count, details, acknowledged, detection_date)
      VALUES ($1,$2,$3,$4,$5,$6)
      RETURNING id
    `, p.EmployeeID, p.PatternType, p.OccurrenceCount, p.Details, p.Acknowledged, p.DetectionDate).Scan(&p.ID)
		return p, mapErr(err, "pattern")
	}
	tag, err := s.DB.Exec(ctx, `
    UPDATE leave_patterns
    SET occurrence_count = $2, details = $3, acknowledged = $4, acknowledged_by = NULLIF($5,''),
        acknowledged_at = $6, detection_date = $7
    WHERE id = $1
  `, p.ID, p.OccurrenceCount, p.Details, p.Acknowledged, p.AcknowledgedBy, p.AcknowledgedAt, p.DetectionDate)
	if err != nil {
		return LeavePattern{}, mapErr(err, "pattern")
	}
	if tag.RowsAffected() == 0 {
		return LeavePattern{}, notFound("pattern")
	}
	return p, nil
}

func (s *Store) RecordAccrualRun(ctx context.Context, policyID string, periodStart time.Time) (bool, error) {
	tag, err := s.DB.Exec(ctx, `
    INSERT INTO leave_accrual_runs (policy_id, period_start)
    VALUES ($1,$2)
    ON CONFLICT (policy_id, period_start) DO NOTHING
  `, policyID, periodStart)
	if err != nil {
		return false, mapErr(err, "accrual run")
	}
	return tag.RowsAffected() == 1, nil
}

func nonNil(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}
