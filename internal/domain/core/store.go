package core

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"hrleave/internal/platform/querier"
)

// Store reads the employee directory and position tree from Postgres.
type Store struct {
	DB querier.Querier
}

func NewStore(db querier.Querier) *Store {
	return &Store{DB: db}
}

func (s *Store) GetProfile(ctx context.Context, employeeID string) (Profile, error) {
	var p Profile
	err := s.DB.QueryRow(ctx, `
    SELECT e.id, e.first_name || ' ' || e.last_name, e.hire_date, e.status, e.contract_type,
           COALESCE(e.primary_position_id::text, ''),
           COALESCE(pos.supervisor_position_id::text, ''),
           COALESCE(e.work_email, '')
    FROM employees e
    LEFT JOIN positions pos ON pos.id = e.primary_position_id
    WHERE e.id = $1
  `, employeeID).Scan(&p.EmployeeID, &p.FullName, &p.HireDate, &p.Status, &p.ContractType,
		&p.PrimaryPositionID, &p.SupervisorPositionID, &p.WorkEmail)
	if errors.Is(err, pgx.ErrNoRows) {
		return Profile{}, ErrNotFound
	}
	return p, err
}

// GetDirectReports lists employees whose position reports to a position held by managerID.
func (s *Store) GetDirectReports(ctx context.Context, managerID string) ([]string, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT e.id
    FROM employees e
    JOIN positions pos ON pos.id = e.primary_position_id
    JOIN employees m ON m.primary_position_id = pos.supervisor_position_id
    WHERE m.id = $1 AND e.status <> 'TERMINATED'
    ORDER BY e.id
  `, managerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Store) GetEmployeeHoldingPosition(ctx context.Context, positionID string) (string, error) {
	var id string
	err := s.DB.QueryRow(ctx, `
    SELECT id
    FROM employees
    WHERE primary_position_id = $1 AND status <> 'TERMINATED'
    ORDER BY hire_date
    LIMIT 1
  `, positionID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	return id, err
}

func (s *Store) GetPositionByID(ctx context.Context, positionID string) (Position, error) {
	var p Position
	err := s.DB.QueryRow(ctx, `
    SELECT id, title, COALESCE(supervisor_position_id::text, '')
    FROM positions
    WHERE id = $1
  `, positionID).Scan(&p.ID, &p.Title, &p.SupervisorPositionID)
	if errors.Is(err, pgx.ErrNoRows) {
		return Position{}, ErrNotFound
	}
	return p, err
}

// HRContacts returns work e-mails of employees holding positions titled like HR.
func (s *Store) HRContacts(ctx context.Context) ([]string, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT e.work_email
    FROM employees e
    JOIN positions pos ON pos.id = e.primary_position_id
    WHERE pos.title ILIKE 'HR%' AND e.status = 'ACTIVE' AND e.work_email IS NOT NULL
  `)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var emails []string
	for rows.Next() {
		var email string
		if err := rows.Scan(&email); err != nil {
			return nil, err
		}
		emails = append(emails, email)
	}
	return emails, rows.Err()
}
