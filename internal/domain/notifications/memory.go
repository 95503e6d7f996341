package notifications

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type record struct {
	employeeID string
	Notification
}

// MemoryStore keeps notifications in process for database-less runs and tests.
type MemoryStore struct {
	mu    sync.Mutex
	items []record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) CreateNotification(ctx context.Context, employeeID, ntype, title, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = append(m.items, record{employeeID: employeeID, Notification: Notification{
		ID:        uuid.NewString(),
		Type:      ntype,
		Title:     title,
		Body:      body,
		CreatedAt: time.Now().UTC(),
	}})
	return nil
}

func (m *MemoryStore) ListNotifications(ctx context.Context, employeeID string, limit, offset int) ([]Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []Notification{}
	for i := len(m.items) - 1; i >= 0; i-- {
		if m.items[i].employeeID == employeeID {
			out = append(out, m.items[i].Notification)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if offset >= len(out) {
		return []Notification{}, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) CountNotifications(ctx context.Context, employeeID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := 0
	for _, r := range m.items {
		if r.employeeID == employeeID {
			total++
		}
	}
	return total, nil
}

func (m *MemoryStore) MarkRead(ctx context.Context, employeeID, notificationID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.items {
		if m.items[i].employeeID == employeeID && m.items[i].ID == notificationID {
			now := time.Now().UTC()
			m.items[i].ReadAt = &now
			return nil
		}
	}
	return ErrNotFound
}
