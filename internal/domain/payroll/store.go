package payroll

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"hrleave/internal/platform/querier"
)

type Store struct {
	DB querier.Querier
}

func NewStore(db querier.Querier) *Store {
	return &Store{DB: db}
}

func (s *Store) InsertInput(ctx context.Context, line InputLine) error {
	_, err := s.DB.Exec(ctx, `
    INSERT INTO payroll_inputs (employee_id, leave_request_id, element_type, element_code, units, amount,
                                period_start, period_end)
    VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
    ON CONFLICT (leave_request_id) DO NOTHING
  `, line.EmployeeID, line.LeaveRequestID, line.ElementType, line.ElementCode, line.Units, line.Amount,
		line.PeriodStart, line.PeriodEnd)
	return err
}

func (s *Store) ListInputs(ctx context.Context, employeeID string) ([]InputLine, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT id, employee_id, COALESCE(leave_request_id::text, ''), element_type, COALESCE(element_code, ''),
           units, amount, period_start, period_end, created_at
    FROM payroll_inputs
    WHERE employee_id = $1
    ORDER BY period_start, created_at
  `, employeeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []InputLine{}
	for rows.Next() {
		var l InputLine
		if err := rows.Scan(&l.ID, &l.EmployeeID, &l.LeaveRequestID, &l.ElementType, &l.ElementCode,
			&l.Units, &l.Amount, &l.PeriodStart, &l.PeriodEnd, &l.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

type MemoryStore struct {
	mu    sync.Mutex
	lines []InputLine
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) InsertInput(ctx context.Context, line InputLine) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.lines {
		if line.LeaveRequestID != "" && existing.LeaveRequestID == line.LeaveRequestID {
			return nil
		}
	}
	line.ID = uuid.NewString()
	line.CreatedAt = time.Now().UTC()
	m.lines = append(m.lines, line)
	return nil
}

func (m *MemoryStore) ListInputs(ctx context.Context, employeeID string) ([]InputLine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []InputLine{}
	for _, l := range m.lines {
		if l.EmployeeID == employeeID {
			out = append(out, l)
		}
	}
	return out, nil
}
