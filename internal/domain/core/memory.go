package core

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// Memory is an in-process directory used by tests and database-less runs.
type Memory struct {
	mu        sync.RWMutex
	profiles  map[string]Profile
	positions map[string]Position
}

func NewMemory() *Memory {
	return &Memory{profiles: map[string]Profile{}, positions: map[string]Position{}}
}

func (m *Memory) PutProfile(p Profile) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.profiles[p.EmployeeID] = p
}

// PutPosition stores a position; profiles resolve their supervisor position through it.
func (m *Memory) PutPosition(p Position) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.positions[p.ID] = p
}

func (m *Memory) GetProfile(ctx context.Context, employeeID string) (Profile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.profiles[employeeID]
	if !ok {
		return Profile{}, ErrNotFound
	}
	if p.SupervisorPositionID == "" {
		if pos, ok := m.positions[p.PrimaryPositionID]; ok {
			p.SupervisorPositionID = pos.SupervisorPositionID
		}
	}
	return p, nil
}

func (m *Memory) GetDirectReports(ctx context.Context, managerID string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	manager, ok := m.profiles[managerID]
	if !ok || manager.PrimaryPositionID == "" {
		return nil, nil
	}
	var ids []string
	for id, p := range m.profiles {
		if p.Status == "TERMINATED" || id == managerID {
			continue
		}
		if m.supervisorOf(p) == manager.PrimaryPositionID {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (m *Memory) GetEmployeeHoldingPosition(ctx context.Context, positionID string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var ids []string
	for id, p := range m.profiles {
		if p.PrimaryPositionID == positionID && p.Status != "TERMINATED" {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return "", ErrNotFound
	}
	sort.Strings(ids)
	return ids[0], nil
}

func (m *Memory) GetPositionByID(ctx context.Context, positionID string) (Position, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.positions[positionID]
	if !ok {
		return Position{}, ErrNotFound
	}
	return p, nil
}

// HRContacts mirrors the Postgres lookup: active holders of positions titled HR.
func (m *Memory) HRContacts(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var emails []string
	for _, p := range m.profiles {
		pos, ok := m.positions[p.PrimaryPositionID]
		if !ok || p.Status != "ACTIVE" || p.WorkEmail == "" {
			continue
		}
		if strings.HasPrefix(strings.ToUpper(pos.Title), "HR") {
			emails = append(emails, p.WorkEmail)
		}
	}
	sort.Strings(emails)
	return emails, nil
}

func (m *Memory) supervisorOf(p Profile) string {
	if p.SupervisorPositionID != "" {
		return p.SupervisorPositionID
	}
	return m.positions[p.PrimaryPositionID].SupervisorPositionID
}
