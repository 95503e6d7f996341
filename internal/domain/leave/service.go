package leave

import (
	"context"
	"log/slog"
	"time"
)

type Settings struct {
	EscalationSLA         time.Duration
	TeamConflictThreshold float64
	EncashmentCapDays     float64
}

type Dependencies struct {
	Directory Directory
	Org       OrgStructure
	Notifier  Notifier
	TimeSync  TimeSync
	Payroll   PayrollSync
	Rules     RuleTable
	Now       func() time.Time
}

type Service struct {
	Store     StoreAPI
	Directory Directory
	Org       OrgStructure
	Notifier  Notifier
	TimeSync  TimeSync
	Payroll   PayrollSync
	Rules     RuleTable
	Settings  Settings
	Now       func() time.Time
}

func NewService(store StoreAPI, deps Dependencies, settings Settings) *Service {
	if settings.EscalationSLA <= 0 {
		settings.EscalationSLA = defaultEscalationSLAHours * time.Hour
	}
	if settings.TeamConflictThreshold <= 0 {
		settings.TeamConflictThreshold = defaultTeamConflictRatio
	}
	if settings.EncashmentCapDays <= 0 {
		settings.EncashmentCapDays = defaultEncashmentCapDays
	}
	svc := &Service{
		Store:     store,
		Directory: deps.Directory,
		Org:       deps.Org,
		Notifier:  deps.Notifier,
		TimeSync:  deps.TimeSync,
		Payroll:   deps.Payroll,
		Rules:     deps.Rules,
		Settings:  settings,
		Now:       deps.Now,
	}
	if svc.Notifier == nil {
		svc.Notifier = noopNotifier{}
	}
	if svc.TimeSync == nil {
		svc.TimeSync = noopTimeSync{}
	}
	if svc.Payroll == nil {
		svc.Payroll = noopPayrollSync{}
	}
	if svc.Rules == nil {
		svc.Rules = DefaultRules()
	}
	if svc.Now == nil {
		svc.Now = time.Now
	}
	return svc
}

func (s *Service) now() time.Time {
	return s.Now().UTC()
}

// sideEffect runs a best-effort call after commit. Failures are logged only.
func sideEffect(name, requestID string, fn func() error) {
	if err := fn(); err != nil {
		slog.Warn("leave side effect failed", "effect", name, "requestId", requestID, "err", err)
	}
}

// detached keeps request values but drops cancellation so side effects
// outlive a client that disconnects right after the commit.
func detached(ctx context.Context) context.Context {
	return context.WithoutCancel(ctx)
}
