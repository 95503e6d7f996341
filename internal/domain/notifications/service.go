package notifications

import (
	"context"
	"log/slog"

	"hrleave/internal/platform/email"
)

type Service struct {
	store       StoreAPI
	Mailer      email.Mailer
	DefaultFrom string
}

func New(store StoreAPI, mailer email.Mailer, from string) *Service {
	if from == "" {
		from = "no-reply@example.com"
	}
	return &Service{store: store, Mailer: mailer, DefaultFrom: from}
}

// Create records an in-app notification and, when an address is known,
// mails a copy. Mail failures are logged and do not fail the call.
func (s *Service) Create(ctx context.Context, employeeID, address, ntype, title, body string) error {
	if employeeID != "" {
		if err := s.store.CreateNotification(ctx, employeeID, ntype, title, body); err != nil {
			return err
		}
	}
	s.mail(ctx, address, title, body)
	return nil
}

func (s *Service) mail(ctx context.Context, address, subject, body string) {
	if s.Mailer == nil || address == "" {
		return
	}
	if err := s.Mailer.Send(ctx, email.Message{From: s.DefaultFrom, To: address, Subject: subject, Body: body}); err != nil {
		slog.Warn("notification email send failed", "to", address, "err", err)
	}
}

func (s *Service) List(ctx context.Context, employeeID string, limit, offset int) ([]Notification, error) {
	return s.store.ListNotifications(ctx, employeeID, limit, offset)
}

func (s *Service) Count(ctx context.Context, employeeID string) (int, error) {
	return s.store.CountNotifications(ctx, employeeID)
}

func (s *Service) MarkRead(ctx context.Context, employeeID, notificationID string) error {
	return s.store.MarkRead(ctx, employeeID, notificationID)
}
