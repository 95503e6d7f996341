package notifications

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("notification not found")

func (s *Store) CreateNotification(ctx context.Context, employeeID, ntype, title, body string) error {
	_, err := s.DB.Exec(ctx, `
    INSERT INTO notifications (employee_id, type, title, body)
    VALUES ($1,$2,$3,$4)
  `, employeeID, ntype, title, body)
	return err
}

func (s *Store) ListNotifications(ctx context.Context, employeeID string, limit, offset int) ([]Notification, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT id, type, title, body, read_at, created_at
    FROM notifications
    WHERE employee_id = $1
    ORDER BY created_at DESC
    LIMIT $2 OFFSET $3
  `, employeeID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Notification{}
	for rows.Next() {
		var n Notification
		if err := rows.Scan(&n.ID, &n.Type, &n.Title, &n.Body, &n.ReadAt, &n.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *Store) CountNotifications(ctx context.Context, employeeID string) (int, error) {
	var total int
	if err := s.DB.QueryRow(ctx, "SELECT COUNT(1) FROM notifications WHERE employee_id = $1", employeeID).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

func (s *Store) MarkRead(ctx context.Context, employeeID, notificationID string) error {
	tag, err := s.DB.Exec(ctx, `
    UPDATE notifications SET read_at = now()
    WHERE employee_id = $1 AND id = $2
  `, employeeID, notificationID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
