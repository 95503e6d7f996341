package leave

import "time"

type LeaveType struct {
	ID                 string    `json:"id"`
	Code               string    `json:"code"`
	Name               string    `json:"name"`
	CategoryID         string    `json:"categoryId,omitempty"`
	Paid               bool      `json:"paid"`
	Deductible         bool      `json:"deductible"`
	RequiresAttachment bool      `json:"requiresAttachment"`
	AttachmentKind     string    `json:"attachmentKind,omitempty"`
	MinTenureMonths    *int      `json:"minTenureMonths,omitempty"`
	MaxDurationDays    *int      `json:"maxDurationDays,omitempty"`
	AnnualCapDays      *int      `json:"annualCapDays,omitempty"`
	Encashable         bool      `json:"encashable"`
	Active             bool      `json:"active"`
	PayrollCode        string    `json:"payrollCode,omitempty"`
	CreatedAt          time.Time `json:"createdAt"`
	UpdatedAt          time.Time `json:"updatedAt"`
}

func (t LeaveType) Unpaid() bool {
	return !t.Paid
}

type LeavePolicy struct {
	ID                   string    `json:"id"`
	LeaveTypeID          string    `json:"leaveTypeId"`
	AccrualMethod        string    `json:"accrualMethod"`
	MonthlyRate          float64   `json:"monthlyRate"`
	YearlyRate           float64   `json:"yearlyRate"`
	CarryForwardAllowed  bool      `json:"carryForwardAllowed"`
	MaxCarryForward      float64   `json:"maxCarryForward"`
	Rounding             string    `json:"rounding"`
	AllowedContractTypes []string  `json:"allowedContractTypes"`
	AllowedPositions     []string  `json:"allowedPositions"`
	MinTenureMonths      int       `json:"minTenureMonths"`
	EncashmentCapDays    float64   `json:"encashmentCapDays"`
	Active               bool      `json:"active"`
	CreatedAt            time.Time `json:"createdAt"`
	UpdatedAt            time.Time `json:"updatedAt"`
}

type LeaveEntitlement struct {
	ID                string     `json:"id"`
	EmployeeID        string     `json:"employeeId"`
	LeaveTypeID       string     `json:"leaveTypeId"`
	YearlyEntitlement float64    `json:"yearlyEntitlement"`
	AnnualGrant       float64    `json:"annualGrant"`
	AccruedActual     float64    `json:"accruedActual"`
	AccruedRounded    float64    `json:"accruedRounded"`
	CarryForward      float64    `json:"carryForward"`
	Taken             float64    `json:"taken"`
	Pending           float64    `json:"pending"`
	Remaining         float64    `json:"remaining"`
	LastAccrualDate   *time.Time `json:"lastAccrualDate,omitempty"`
	NextResetDate     *time.Time `json:"nextResetDate,omitempty"`
	Version           int64      `json:"version"`
	CreatedAt         time.Time  `json:"createdAt"`
	UpdatedAt         time.Time  `json:"updatedAt"`
}

// Recompute derives Remaining from the authoritative ledger fields.
func (e *LeaveEntitlement) Recompute() {
	e.Remaining = e.YearlyEntitlement + e.CarryForward + e.AccruedRounded - e.Taken - e.Pending
}

func (e LeaveEntitlement) validate() error {
	if e.Pending < 0 {
		return &RuleError{Rule: RuleLedger, Message: "pending balance cannot be negative"}
	}
	if e.Taken < 0 {
		return &RuleError{Rule: RuleLedger, Message: "taken balance cannot be negative"}
	}
	return nil
}

type ApprovalStep struct {
	Role      string     `json:"role"`
	Status    string     `json:"status"`
	DecidedBy string     `json:"decidedBy,omitempty"`
	DecidedAt *time.Time `json:"decidedAt,omitempty"`
	Comment   string     `json:"comment,omitempty"`
}

// Amendment records the request state that an amend replaced.
type Amendment struct {
	From         time.Time      `json:"from"`
	To           time.Time      `json:"to"`
	DurationDays int            `json:"durationDays"`
	ApprovalFlow []ApprovalStep `json:"approvalFlow"`
	EscalatedAt  *time.Time     `json:"escalatedAt,omitempty"`
	AmendedBy    string         `json:"amendedBy"`
	AmendedAt    time.Time      `json:"amendedAt"`
	Reason       string         `json:"reason,omitempty"`
}

type LeaveRequest struct {
	ID            string         `json:"id"`
	EmployeeID    string         `json:"employeeId"`
	LeaveTypeID   string         `json:"leaveTypeId"`
	From          time.Time      `json:"from"`
	To            time.Time      `json:"to"`
	DurationDays  int            `json:"durationDays"`
	Justification string         `json:"justification,omitempty"`
	AttachmentID  string         `json:"attachmentId,omitempty"`
	Status        string         `json:"status"`
	ApprovalFlow  []ApprovalStep `json:"approvalFlow"`
	DelegatedBy   string         `json:"delegatedBy,omitempty"`
	EscalatedAt   *time.Time     `json:"escalatedAt,omitempty"`
	SubmittedAt   time.Time      `json:"submittedAt"`
	Amendments    []Amendment    `json:"amendments,omitempty"`
	Version       int64          `json:"version"`
	CreatedAt     time.Time      `json:"createdAt"`
	UpdatedAt     time.Time      `json:"updatedAt"`
}

// Step returns the index of the first step with the given role, or -1.
func (r *LeaveRequest) Step(role string) int {
	for i := range r.ApprovalFlow {
		if r.ApprovalFlow[i].Role == role {
			return i
		}
	}
	return -1
}

func (r LeaveRequest) overlaps(from, to time.Time) bool {
	return !r.From.After(to) && !r.To.Before(from)
}

// Clone returns a deep copy so callers can mutate without aliasing stored slices.
func (r LeaveRequest) Clone() LeaveRequest {
	out := r
	out.ApprovalFlow = append([]ApprovalStep(nil), r.ApprovalFlow...)
	if r.Amendments != nil {
		out.Amendments = make([]Amendment, len(r.Amendments))
		for i, a := range r.Amendments {
			a.ApprovalFlow = append([]ApprovalStep(nil), a.ApprovalFlow...)
			out.Amendments[i] = a
		}
	}
	return out
}

type LeaveAdjustment struct {
	ID          string    `json:"id"`
	EmployeeID  string    `json:"employeeId"`
	LeaveTypeID string    `json:"leaveTypeId"`
	Type        string    `json:"type"`
	Amount      float64   `json:"amount"`
	Reason      string    `json:"reason"`
	ActorID     string    `json:"actorId"`
	CreatedAt   time.Time `json:"createdAt"`
}

type LeaveDelegation struct {
	ID         string    `json:"id"`
	ManagerID  string    `json:"managerId"`
	DelegateID string    `json:"delegateId"`
	StartDate  time.Time `json:"startDate"`
	EndDate    time.Time `json:"endDate"`
	Reason     string    `json:"reason,omitempty"`
	Active     bool      `json:"active"`
	CreatedAt  time.Time `json:"createdAt"`
}

func (d LeaveDelegation) covers(at time.Time) bool {
	day := DateOnly(at)
	return d.Active && !day.Before(DateOnly(d.StartDate)) && !day.After(DateOnly(d.EndDate))
}

type Holiday struct {
	Date    time.Time  `json:"date"`
	Name    string     `json:"name"`
	EndDate *time.Time `json:"endDate,omitempty"`
}

type Calendar struct {
	Year     int       `json:"year"`
	Holidays []Holiday `json:"holidays"`
}

type BlockPeriod struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	StartDate        time.Time `json:"startDate"`
	EndDate          time.Time `json:"endDate"`
	Reason           string    `json:"reason,omitempty"`
	ExemptLeaveTypes []string  `json:"exemptLeaveTypes"`
	Active           bool      `json:"active"`
	CreatedAt        time.Time `json:"createdAt"`
}

func (b BlockPeriod) exempts(code string) bool {
	for _, c := range b.ExemptLeaveTypes {
		if c == code {
			return true
		}
	}
	return false
}

type LeavePattern struct {
	ID              string     `json:"id"`
	EmployeeID      string     `json:"employeeId"`
	PatternType     string     `json:"patternType"`
	OccurrenceCount int        `json:"occurrenceCount"`
	Details         string     `json:"details"`
	Acknowledged    bool       `json:"acknowledged"`
	AcknowledgedBy  string     `json:"acknowledgedBy,omitempty"`
	AcknowledgedAt  *time.Time `json:"acknowledgedAt,omitempty"`
	DetectionDate   time.Time  `json:"detectionDate"`
}

// ItemResult reports the outcome of one element of a batch operation.
type ItemResult struct {
	Index   int    `json:"index"`
	ID      string `json:"id,omitempty"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

type RequestFilter struct {
	EmployeeIDs     []string
	LeaveTypeID     string
	Statuses        []string
	OverlapFrom     *time.Time
	OverlapTo       *time.Time
	DelegatedBy     string
	SubmittedBefore *time.Time
	ExcludeID       string
}

type EntitlementFilter struct {
	EmployeeID  string
	LeaveTypeID string
}

type DelegationFilter struct {
	ManagerID  string
	DelegateID string
	ActiveAt   *time.Time
}
