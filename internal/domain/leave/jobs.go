package leave

import "context"

// EscalationJob escalates requests left with the line manager past the SLA.
type EscalationJob struct {
	Service *Service
}

func (j EscalationJob) Name() string { return JobEscalation }

func (j EscalationJob) Run(ctx context.Context) (any, error) {
	return j.Service.EscalateOverdue(ctx, j.Service.now())
}

// MonthlyAccrualJob is safe to tick more often than monthly; each policy is
// processed once per accrual period.
type MonthlyAccrualJob struct {
	Service *Service
}

func (j MonthlyAccrualJob) Name() string { return JobMonthlyAccrual }

func (j MonthlyAccrualJob) Run(ctx context.Context) (any, error) {
	return j.Service.RunMonthlyAccrual(ctx, j.Service.now())
}

// YearEndJob only touches entitlements whose reset date has passed.
type YearEndJob struct {
	Service *Service
}

func (j YearEndJob) Name() string { return JobYearEnd }

func (j YearEndJob) Run(ctx context.Context) (any, error) {
	return j.Service.RunYearEnd(ctx, j.Service.now())
}

type PatternDetectionJob struct {
	Service *Service
}

func (j PatternDetectionJob) Name() string { return JobPatternDetection }

func (j PatternDetectionJob) Run(ctx context.Context) (any, error) {
	return j.Service.DetectPatterns(ctx, j.Service.now())
}
