// Package timemgmt records leave as time exceptions so attendance does not
// flag the days as absences.
package timemgmt

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"hrleave/internal/domain/leave"
	"hrleave/internal/platform/querier"
)

type Exception struct {
	ID             string    `json:"id"`
	EmployeeID     string    `json:"employeeId"`
	LeaveRequestID string    `json:"leaveRequestId"`
	Type           string    `json:"type"`
	StartDate      time.Time `json:"startDate"`
	EndDate        time.Time `json:"endDate"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Store writes time exceptions to Postgres. One exception exists per leave
// request; repeated calls are no-ops.
type Store struct {
	DB querier.Querier
}

var _ leave.TimeSync = (*Store)(nil)

func NewStore(db querier.Querier) *Store {
	return &Store{DB: db}
}

func (s *Store) CreateTimeException(ctx context.Context, exc leave.TimeException) error {
	_, err := s.DB.Exec(ctx, `
    INSERT INTO time_exceptions (employee_id, leave_request_id, exception_type, start_date, end_date)
    VALUES ($1,$2,$3,$4,$5)
    ON CONFLICT (leave_request_id) DO NOTHING
  `, exc.EmployeeID, exc.LeaveRequestID, exc.Type, exc.From, exc.To)
	return err
}

func (s *Store) ListExceptions(ctx context.Context, employeeID string) ([]Exception, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT id, employee_id, leave_request_id, exception_type, start_date, end_date, created_at
    FROM time_exceptions
    WHERE employee_id = $1
    ORDER BY start_date
  `, employeeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Exception{}
	for rows.Next() {
		var e Exception
		if err := rows.Scan(&e.ID, &e.EmployeeID, &e.LeaveRequestID, &e.Type, &e.StartDate, &e.EndDate, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

type MemoryStore struct {
	mu    sync.Mutex
	items []Exception
}

var _ leave.TimeSync = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) CreateTimeException(ctx context.Context, exc leave.TimeException) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.items {
		if e.LeaveRequestID == exc.LeaveRequestID {
			return nil
		}
	}
	m.items = append(m.items, Exception{
		ID:             uuid.NewString(),
		EmployeeID:     exc.EmployeeID,
		LeaveRequestID: exc.LeaveRequestID,
		Type:           exc.Type,
		StartDate:      exc.From,
		EndDate:        exc.To,
		CreatedAt:      time.Now().UTC(),
	})
	return nil
}

func (m *MemoryStore) ListExceptions(ctx context.Context, employeeID string) ([]Exception, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []Exception{}
	for _, e := range m.items {
		if e.EmployeeID == employeeID {
			out = append(out, e)
		}
	}
	return out, nil
}
