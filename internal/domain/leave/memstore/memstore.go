// Package memstore is an in-process implementation of leave.StoreAPI used
// when no database is configured and by tests.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"hrleave/internal/domain/leave"
)

type data struct {
	leaveTypes   map[string]leave.LeaveType
	policies     map[string]leave.LeavePolicy
	calendars    map[int]leave.Calendar
	blocks       map[string]leave.BlockPeriod
	entitlements map[string]leave.LeaveEntitlement
	adjustments  []leave.LeaveAdjustment
	requests     map[string]leave.LeaveRequest
	delegations  map[string]leave.LeaveDelegation
	patterns     map[string]leave.LeavePattern
	accrualRuns  map[string]bool
}

func newData() *data {
	return &data{
		leaveTypes:   map[string]leave.LeaveType{},
		policies:     map[string]leave.LeavePolicy{},
		calendars:    map[int]leave.Calendar{},
		blocks:       map[string]leave.BlockPeriod{},
		entitlements: map[string]leave.LeaveEntitlement{},
		requests:     map[string]leave.LeaveRequest{},
		delegations:  map[string]leave.LeaveDelegation{},
		patterns:     map[string]leave.LeavePattern{},
		accrualRuns:  map[string]bool{},
	}
}

// snapshot copies the maps. Stored values are never mutated in place, so
// copying the map entries is enough to restore them later.
func (d *data) snapshot() *data {
	return &data{
		leaveTypes:   cloneMap(d.leaveTypes),
		policies:     cloneMap(d.policies),
		calendars:    cloneMap(d.calendars),
		blocks:       cloneMap(d.blocks),
		entitlements: cloneMap(d.entitlements),
		adjustments:  append([]leave.LeaveAdjustment(nil), d.adjustments...),
		requests:     cloneMap(d.requests),
		delegations:  cloneMap(d.delegations),
		patterns:     cloneMap(d.patterns),
		accrualRuns:  cloneMap(d.accrualRuns),
	}
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Store guards data with a single mutex. A transaction holds the mutex for
// its whole duration and restores the snapshot when fn fails.
type Store struct {
	mu   *sync.Mutex
	d    *data
	inTx bool
}

var _ leave.StoreAPI = (*Store)(nil)

func New() *Store {
	return &Store{mu: &sync.Mutex{}, d: newData()}
}

func (s *Store) lock() func() {
	if s.inTx {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

func (s *Store) InTx(ctx context.Context, fn func(leave.StoreAPI) error) error {
	if s.inTx {
		return fn(s)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	saved := s.d.snapshot()
	err := fn(&Store{mu: s.mu, d: s.d, inTx: true})
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		*s.d = *saved
	}
	return err
}

func notFound(what string) error {
	return fmt.Errorf("%s %w", what, leave.ErrNotFound)
}

func conflict(what string) error {
	return fmt.Errorf("%w: %s already exists", leave.ErrConflict, what)
}

func cloneStrings(v []string) []string {
	if v == nil {
		return []string{}
	}
	return append([]string(nil), v...)
}

func (s *Store) ListLeaveTypes(_ context.Context) ([]leave.LeaveType, error) {
	defer s.lock()()
	out := make([]leave.LeaveType, 0, len(s.d.leaveTypes))
	for _, t := range s.d.leaveTypes {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (s *Store) GetLeaveType(_ context.Context, id string) (leave.LeaveType, error) {
	defer s.lock()()
	t, ok := s.d.leaveTypes[id]
	if !ok {
		return leave.LeaveType{}, notFound("leave type")
	}
	return t, nil
}

func (s *Store) GetLeaveTypeByCode(_ context.Context, code string) (leave.LeaveType, error) {
	defer s.lock()()
	for _, t := range s.d.leaveTypes {
		if t.Code == code {
			return t, nil
		}
	}
	return leave.LeaveType{}, notFound("leave type")
}

func (s *Store) CreateLeaveType(_ context.Context, lt leave.LeaveType) (leave.LeaveType, error) {
	defer s.lock()()
	for _, t := range s.d.leaveTypes {
		if t.Code == lt.Code {
			return leave.LeaveType{}, conflict("leave type")
		}
	}
	lt.ID = uuid.NewString()
	s.d.leaveTypes[lt.ID] = lt
	return lt, nil
}

func (s *Store) UpdateLeaveType(_ context.Context, lt leave.LeaveType) error {
	defer s.lock()()
	current, ok := s.d.leaveTypes[lt.ID]
	if !ok {
		return notFound("leave type")
	}
	lt.Code = current.Code
	lt.CreatedAt = current.CreatedAt
	s.d.leaveTypes[lt.ID] = lt
	return nil
}

func (s *Store) ListPolicies(_ context.Context, activeOnly bool) ([]leave.LeavePolicy, error) {
	defer s.lock()()
	var out []leave.LeavePolicy
	for _, p := range s.d.policies {
		if activeOnly && !p.Active {
			continue
		}
		out = append(out, copyPolicy(p))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func copyPolicy(p leave.LeavePolicy) leave.LeavePolicy {
	p.AllowedContractTypes = cloneStrings(p.AllowedContractTypes)
	p.AllowedPositions = cloneStrings(p.AllowedPositions)
	return p
}

func (s *Store) GetPolicy(_ context.Context, id string) (leave.LeavePolicy, error) {
	defer s.lock()()
	p, ok := s.d.policies[id]
	if !ok {
		return leave.LeavePolicy{}, notFound("leave policy")
	}
	return copyPolicy(p), nil
}

func (s *Store) ActivePolicyForType(_ context.Context, leaveTypeID string) (leave.LeavePolicy, error) {
	defer s.lock()()
	for _, p := range s.d.policies {
		if p.Active && p.LeaveTypeID == leaveTypeID {
			return copyPolicy(p), nil
		}
	}
	return leave.LeavePolicy{}, notFound("leave policy")
}

func (s *Store) activePolicyTaken(p leave.LeavePolicy) bool {
	if !p.Active {
		return false
	}
	for _, other := range s.d.policies {
		if other.ID != p.ID && other.Active && other.LeaveTypeID == p.LeaveTypeID {
			return true
		}
	}
	return false
}

func (s *Store) CreatePolicy(_ context.Context, p leave.LeavePolicy) (leave.LeavePolicy, error) {
	defer s.lock()()
	if _, ok := s.d.leaveTypes[p.LeaveTypeID]; !ok {
		return leave.LeavePolicy{}, fmt.Errorf("%w: leave policy references a missing record", leave.ErrBadRequest)
	}
	if s.activePolicyTaken(p) {
		return leave.LeavePolicy{}, conflict("active leave policy")
	}
	p.ID = uuid.NewString()
	p = copyPolicy(p)
	s.d.policies[p.ID] = p
	return copyPolicy(p), nil
}

func (s *Store) UpdatePolicy(_ context.Context, p leave.LeavePolicy) error {
	defer s.lock()()
	if _, ok := s.d.policies[p.ID]; !ok {
		return notFound("leave policy")
	}
	if s.activePolicyTaken(p) {
		return conflict("active leave policy")
	}
	s.d.policies[p.ID] = copyPolicy(p)
	return nil
}

func (s *Store) GetCalendar(_ context.Context, year int) (leave.Calendar, error) {
	defer s.lock()()
	cal, ok := s.d.calendars[year]
	if !ok {
		return leave.Calendar{Year: year}, notFound("calendar")
	}
	cal.Holidays = append([]leave.Holiday(nil), cal.Holidays...)
	return cal, nil
}

func (s *Store) SaveCalendar(_ context.Context, cal leave.Calendar) error {
	defer s.lock()()
	cal.Holidays = append([]leave.Holiday{}, cal.Holidays...)
	s.d.calendars[cal.Year] = cal
	return nil
}

func (s *Store) ListBlockPeriods(_ context.Context, activeOnly bool) ([]leave.BlockPeriod, error) {
	defer s.lock()()
	var out []leave.BlockPeriod
	for _, b := range s.d.blocks {
		if activeOnly && !b.Active {
			continue
		}
		b.ExemptLeaveTypes = cloneStrings(b.ExemptLeaveTypes)
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartDate.Before(out[j].StartDate) })
	return out, nil
}

func (s *Store) CreateBlockPeriod(_ context.Context, b leave.BlockPeriod) (leave.BlockPeriod, error) {
	defer s.lock()()
	b.ID = uuid.NewString()
	b.ExemptLeaveTypes = cloneStrings(b.ExemptLeaveTypes)
	s.d.blocks[b.ID] = b
	return b, nil
}

func (s *Store) DeactivateBlockPeriod(_ context.Context, id string) error {
	defer s.lock()()
	b, ok := s.d.blocks[id]
	if !ok {
		return notFound("block period")
	}
	b.Active = false
	s.d.blocks[id] = b
	return nil
}

func checkLedger(e leave.LeaveEntitlement) error {
	if e.Pending < 0 || e.Taken < 0 {
		return &leave.RuleError{Rule: leave.RuleLedger, Message: "entitlement violates a balance constraint"}
	}
	return nil
}

func (s *Store) CreateEntitlement(_ context.Context, e leave.LeaveEntitlement) (leave.LeaveEntitlement, error) {
	defer s.lock()()
	if err := checkLedger(e); err != nil {
		return leave.LeaveEntitlement{}, err
	}
	for _, existing := range s.d.entitlements {
		if existing.EmployeeID == e.EmployeeID && existing.LeaveTypeID == e.LeaveTypeID {
			return leave.LeaveEntitlement{}, conflict("entitlement")
		}
	}
	e.ID = uuid.NewString()
	e.Version = 1
	s.d.entitlements[e.ID] = e
	return e, nil
}

func (s *Store) GetEntitlement(_ context.Context, id string) (leave.LeaveEntitlement, error) {
	defer s.lock()()
	e, ok := s.d.entitlements[id]
	if !ok {
		return leave.LeaveEntitlement{}, notFound("entitlement")
	}
	return e, nil
}

func (s *Store) FindEntitlement(_ context.Context, employeeID, leaveTypeID string) (leave.LeaveEntitlement, error) {
	defer s.lock()()
	for _, e := range s.d.entitlements {
		if e.EmployeeID == employeeID && e.LeaveTypeID == leaveTypeID {
			return e, nil
		}
	}
	return leave.LeaveEntitlement{}, notFound("entitlement")
}

func (s *Store) ListEntitlements(_ context.Context, filter leave.EntitlementFilter) ([]leave.LeaveEntitlement, error) {
	defer s.lock()()
	var out []leave.LeaveEntitlement
	for _, e := range s.d.entitlements {
		if filter.EmployeeID != "" && e.EmployeeID != filter.EmployeeID {
			continue
		}
		if filter.LeaveTypeID != "" && e.LeaveTypeID != filter.LeaveTypeID {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].EmployeeID == out[j].EmployeeID {
			return out[i].LeaveTypeID < out[j].LeaveTypeID
		}
		return out[i].EmployeeID < out[j].EmployeeID
	})
	return out, nil
}

func (s *Store) UpdateEntitlement(_ context.Context, e *leave.LeaveEntitlement) error {
	defer s.lock()()
	current, ok := s.d.entitlements[e.ID]
	if !ok {
		return notFound("entitlement")
	}
	if current.Version != e.Version {
		return leave.ErrConcurrentModification
	}
	if err := checkLedger(*e); err != nil {
		return err
	}
	e.Version++
	e.EmployeeID = current.EmployeeID
	e.LeaveTypeID = current.LeaveTypeID
	e.CreatedAt = current.CreatedAt
	s.d.entitlements[e.ID] = *e
	return nil
}

func (s *Store) DeleteEntitlement(_ context.Context, id string) error {
	defer s.lock()()
	if _, ok := s.d.entitlements[id]; !ok {
		return notFound("entitlement")
	}
	delete(s.d.entitlements, id)
	return nil
}

func (s *Store) CreateAdjustment(_ context.Context, a leave.LeaveAdjustment) (leave.LeaveAdjustment, error) {
	defer s.lock()()
	a.ID = uuid.NewString()
	s.d.adjustments = append(s.d.adjustments, a)
	return a, nil
}

func (s *Store) ListAdjustments(_ context.Context, employeeID string) ([]leave.LeaveAdjustment, error) {
	defer s.lock()()
	var out []leave.LeaveAdjustment
	for _, a := range s.d.adjustments {
		if a.EmployeeID == employeeID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *Store) CreateRequest(_ context.Context, r leave.LeaveRequest) (leave.LeaveRequest, error) {
	defer s.lock()()
	r.ID = uuid.NewString()
	r.Version = 1
	r = r.Clone()
	s.d.requests[r.ID] = r
	return r.Clone(), nil
}

func (s *Store) GetRequest(_ context.Context, id string) (leave.LeaveRequest, error) {
	defer s.lock()()
	r, ok := s.d.requests[id]
	if !ok {
		return leave.LeaveRequest{}, notFound("leave request")
	}
	return r.Clone(), nil
}

func matchRequest(r leave.LeaveRequest, f leave.RequestFilter) bool {
	if len(f.EmployeeIDs) > 0 && !containsString(f.EmployeeIDs, r.EmployeeID) {
		return false
	}
	if f.LeaveTypeID != "" && r.LeaveTypeID != f.LeaveTypeID {
		return false
	}
	if len(f.Statuses) > 0 && !containsString(f.Statuses, r.Status) {
		return false
	}
	if f.OverlapFrom != nil && r.To.Before(leave.DateOnly(*f.OverlapFrom)) {
		return false
	}
	if f.OverlapTo != nil && r.From.After(leave.DateOnly(*f.OverlapTo)) {
		return false
	}
	if f.DelegatedBy != "" && r.DelegatedBy != f.DelegatedBy {
		return false
	}
	if f.SubmittedBefore != nil && !r.SubmittedAt.Before(*f.SubmittedBefore) {
		return false
	}
	if f.ExcludeID != "" && r.ID == f.ExcludeID {
		return false
	}
	return true
}

func (s *Store) ListRequests(_ context.Context, filter leave.RequestFilter) ([]leave.LeaveRequest, error) {
	defer s.lock()()
	var out []leave.LeaveRequest
	for _, r := range s.d.requests {
		if matchRequest(r, filter) {
			out = append(out, r.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SubmittedAt.Equal(out[j].SubmittedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].SubmittedAt.Before(out[j].SubmittedAt)
	})
	return out, nil
}

func (s *Store) UpdateRequest(_ context.Context, r *leave.LeaveRequest) error {
	defer s.lock()()
	current, ok := s.d.requests[r.ID]
	if !ok {
		return notFound("leave request")
	}
	if current.Version != r.Version {
		return leave.ErrConcurrentModification
	}
	r.Version++
	r.EmployeeID = current.EmployeeID
	r.LeaveTypeID = current.LeaveTypeID
	r.CreatedAt = current.CreatedAt
	s.d.requests[r.ID] = r.Clone()
	return nil
}

func (s *Store) CreateDelegation(_ context.Context, d leave.LeaveDelegation) (leave.LeaveDelegation, error) {
	defer s.lock()()
	d.ID = uuid.NewString()
	s.d.delegations[d.ID] = d
	return d, nil
}

func (s *Store) ListDelegations(_ context.Context, filter leave.DelegationFilter) ([]leave.LeaveDelegation, error) {
	defer s.lock()()
	var out []leave.LeaveDelegation
	for _, d := range s.d.delegations {
		if filter.ManagerID != "" && d.ManagerID != filter.ManagerID {
			continue
		}
		if filter.DelegateID != "" && d.DelegateID != filter.DelegateID {
			continue
		}
		if filter.ActiveAt != nil {
			day := leave.DateOnly(*filter.ActiveAt)
			if !d.Active || day.Before(leave.DateOnly(d.StartDate)) || day.After(leave.DateOnly(d.EndDate)) {
				continue
			}
		}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartDate.Before(out[j].StartDate) })
	return out, nil
}

func (s *Store) DeactivateDelegation(_ context.Context, id string) error {
	defer s.lock()()
	d, ok := s.d.delegations[id]
	if !ok {
		return notFound("delegation")
	}
	d.Active = false
	s.d.delegations[id] = d
	return nil
}

func (s *Store) FindOpenPattern(_ context.Context, employeeID, patternType string) (leave.LeavePattern, error) {
	defer s.lock()()
	for _, p := range s.d.patterns {
		if p.EmployeeID == employeeID && p.PatternType == patternType && !p.Acknowledged {
			return p, nil
		}
	}
	return leave.LeavePattern{}, notFound("pattern")
}

func (s *Store) GetPattern(_ context.Context, id string) (leave.LeavePattern, error) {
	defer s.lock()()
	p, ok := s.d.patterns[id]
	if !ok {
		return leave.LeavePattern{}, notFound("pattern")
	}
	return p, nil
}

func (s *Store) ListPatterns(_ context.Context, employeeID string, openOnly bool) ([]leave.LeavePattern, error) {
	defer s.lock()()
	var out []leave.LeavePattern
	for _, p := range s.d.patterns {
		if employeeID != "" && p.EmployeeID != employeeID {
			continue
		}
		if openOnly && p.Acknowledged {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DetectionDate.After(out[j].DetectionDate) })
	return out, nil
}

func (s *Store) SavePattern(_ context.Context, p leave.LeavePattern) (leave.LeavePattern, error) {
	defer s.lock()()
	if p.ID == "" {
		for _, existing := range s.d.patterns {
			if existing.EmployeeID == p.EmployeeID && existing.PatternType == p.PatternType && !existing.Acknowledged && !p.Acknowledged {
				return leave.LeavePattern{}, conflict("open pattern")
			}
		}
		p.ID = uuid.NewString()
	} else if _, ok := s.d.patterns[p.ID]; !ok {
		return leave.LeavePattern{}, notFound("pattern")
	}
	s.d.patterns[p.ID] = p
	return p, nil
}

func (s *Store) RecordAccrualRun(_ context.Context, policyID string, periodStart time.Time) (bool, error) {
	defer s.lock()()
	key := policyID + "|" + periodStart.UTC().Format(time.DateOnly)
	if s.d.accrualRuns[key] {
		return false, nil
	}
	s.d.accrualRuns[key] = true
	return true, nil
}

func containsString(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
