package notifications

const (
	TypeLeaveSubmitted = "leave_submitted"
	TypeLeaveApproved  = "leave_approved"
	TypeLeaveRejected  = "leave_rejected"
	TypeLeaveEscalated = "leave_escalated"
	TypeLeaveDelegated = "leave_delegated"
)
