package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"hrleave/internal/platform/querier"
)

type Event struct {
	ID         string          `json:"id"`
	ActorID    string          `json:"actorId"`
	Action     string          `json:"action"`
	EntityType string          `json:"entityType"`
	EntityID   string          `json:"entityId"`
	RequestID  string          `json:"requestId"`
	CreatedAt  time.Time       `json:"createdAt"`
	Before     json.RawMessage `json:"before,omitempty"`
	After      json.RawMessage `json:"after,omitempty"`
}

type Filter struct {
	Action     string
	EntityType string
	EntityID   string
	ActorID    string
}

// Recorder persists audit events for ledger and workflow changes.
type Recorder interface {
	Record(ctx context.Context, evt Event, before, after any) error
	List(ctx context.Context, filter Filter, limit, offset int) ([]Event, error)
}

func encode(before, after any) (json.RawMessage, json.RawMessage, error) {
	var beforeJSON, afterJSON json.RawMessage
	if before != nil {
		payload, err := json.Marshal(before)
		if err != nil {
			return nil, nil, err
		}
		beforeJSON = payload
	}
	if after != nil {
		payload, err := json.Marshal(after)
		if err != nil {
			return nil, nil, err
		}
		afterJSON = payload
	}
	return beforeJSON, afterJSON, nil
}

type Service struct {
	DB querier.Querier
}

var _ Recorder = (*Service)(nil)

func New(db querier.Querier) *Service {
	return &Service{DB: db}
}

func (s *Service) Record(ctx context.Context, evt Event, before, after any) error {
	beforeJSON, afterJSON, err := encode(before, after)
	if err != nil {
		return err
	}
	_, err = s.DB.Exec(ctx, `
    INSERT INTO audit_events (actor_id, action, entity_type, entity_id, before_json, after_json, request_id)
    VALUES (NULLIF($1,''),$2,$3,NULLIF($4,''),$5,$6,NULLIF($7,''))
  `, evt.ActorID, evt.Action, evt.EntityType, evt.EntityID, []byte(beforeJSON), []byte(afterJSON), evt.RequestID)
	return err
}

func (s *Service) List(ctx context.Context, filter Filter, limit, offset int) ([]Event, error) {
	query, args := buildQuery(filter)
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := s.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Event{}
	for rows.Next() {
		var evt Event
		var before, after []byte
		if err := rows.Scan(&evt.ID, &evt.ActorID, &evt.Action, &evt.EntityType, &evt.EntityID, &evt.RequestID, &evt.CreatedAt, &before, &after); err != nil {
			return nil, err
		}
		evt.Before = before
		evt.After = after
		out = append(out, evt)
	}
	return out, rows.Err()
}

func buildQuery(filter Filter) (string, []any) {
	query := `SELECT id, COALESCE(actor_id, ''), action, entity_type, COALESCE(entity_id, ''), COALESCE(request_id, ''),
       created_at, before_json, after_json
FROM audit_events WHERE true`
	var args []any
	add := func(column, value string) {
		if value == "" {
			return
		}
		args = append(args, value)
		query += fmt.Sprintf(" AND %s = $%d", column, len(args))
	}
	add("action", filter.Action)
	add("entity_type", filter.EntityType)
	add("entity_id", filter.EntityID)
	add("actor_id", filter.ActorID)
	return query, args
}

// Memory keeps events in process for database-less runs and tests.
type Memory struct {
	mu     sync.Mutex
	events []Event
}

var _ Recorder = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Record(ctx context.Context, evt Event, before, after any) error {
	beforeJSON, afterJSON, err := encode(before, after)
	if err != nil {
		return err
	}
	evt.ID = uuid.NewString()
	evt.CreatedAt = time.Now().UTC()
	evt.Before = beforeJSON
	evt.After = afterJSON
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, evt)
	return nil
}

func (m *Memory) List(ctx context.Context, filter Filter, limit, offset int) ([]Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []Event{}
	for i := len(m.events) - 1; i >= 0; i-- {
		evt := m.events[i]
		if (filter.Action != "" && evt.Action != filter.Action) ||
			(filter.EntityType != "" && evt.EntityType != filter.EntityType) ||
			(filter.EntityID != "" && evt.EntityID != filter.EntityID) ||
			(filter.ActorID != "" && evt.ActorID != filter.ActorID) {
			continue
		}
		out = append(out, evt)
	}
	if offset >= len(out) {
		return []Event{}, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}
