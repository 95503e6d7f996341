package leave

const (
	StatusPending   = "PENDING"
	StatusApproved  = "APPROVED"
	StatusRejected  = "REJECTED"
	StatusCancelled = "CANCELLED"
)

const (
	RoleLineManager = "line_manager"
	RoleHRAdmin     = "hr_admin"
)

const (
	AccrualMonthly = "MONTHLY"
	AccrualYearly  = "YEARLY"
)

const (
	RoundingNone = "NONE"
	RoundingUp   = "ROUND_UP"
	RoundingDown = "ROUND_DOWN"
)

const (
	AdjustmentAdd    = "ADD"
	AdjustmentDeduct = "DEDUCT"
)

const (
	EmployeeActive     = "ACTIVE"
	EmployeeSuspended  = "SUSPENDED"
	EmployeeTerminated = "TERMINATED"
)

const PatternMondayFriday = "MONDAY_FRIDAY"

const (
	JobEscalation       = "leave_escalation"
	JobMonthlyAccrual   = "leave_accrual"
	JobYearEnd          = "leave_year_end"
	JobPatternDetection = "leave_pattern_detection"
)

const (
	maxCASAttempts             = 5
	defaultEscalationSLAHours  = 48
	defaultTeamConflictRatio   = 0.30
	defaultEncashmentCapDays   = 30
	patternLookbackMonths      = 3
	patternMondayFridayMinimum = 5
)
