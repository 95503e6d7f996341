package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/jackc/pgx/v5"

	"hrleave/internal/platform/querier"
	"hrleave/internal/transport/http/api"
)

var ErrIdempotencyConflict = errors.New("idempotency key conflicts with existing request")

const HeaderIdempotencyKey = "Idempotency-Key"

type StoredResponse struct {
	Status int
	Body   json.RawMessage
}

type IdempotencyStore interface {
	Check(ctx context.Context, userID, endpoint, key, requestHash string) (StoredResponse, bool, error)
	Save(ctx context.Context, userID, endpoint, key, requestHash string, resp StoredResponse) error
}

func RequestHash(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

type PGIdempotencyStore struct {
	db querier.Querier
}

func NewIdempotencyStore(db querier.Querier) *PGIdempotencyStore {
	return &PGIdempotencyStore{db: db}
}

func (s *PGIdempotencyStore) Check(ctx context.Context, userID, endpoint, key, requestHash string) (StoredResponse, bool, error) {
	var storedHash string
	var out StoredResponse
	err := s.db.QueryRow(ctx, `
    SELECT request_hash, status_code, response_json
    FROM idempotency_keys
    WHERE user_id = $1 AND key = $2 AND endpoint = $3
  `, userID, key, endpoint).Scan(&storedHash, &out.Status, &out.Body)
	if errors.Is(err, pgx.ErrNoRows) {
		return StoredResponse{}, false, nil
	}
	if err != nil {
		return StoredResponse{}, false, err
	}
	if storedHash != requestHash {
		return StoredResponse{}, false, ErrIdempotencyConflict
	}
	return out, true, nil
}

func (s *PGIdempotencyStore) Save(ctx context.Context, userID, endpoint, key, requestHash string, resp StoredResponse) error {
	tag, err := s.db.Exec(ctx, `
    INSERT INTO idempotency_keys (user_id, key, endpoint, request_hash, status_code, response_json)
    VALUES ($1, $2, $3, $4, $5, $6)
    ON CONFLICT (user_id, key, endpoint)
    DO UPDATE SET response_json = EXCLUDED.response_json, status_code = EXCLUDED.status_code
    WHERE idempotency_keys.request_hash = EXCLUDED.request_hash
  `, userID, key, endpoint, requestHash, resp.Status, []byte(resp.Body))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrIdempotencyConflict
	}
	return nil
}

type memoryEntry struct {
	hash string
	resp StoredResponse
}

type MemoryIdempotencyStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
}

func NewMemoryIdempotencyStore() *MemoryIdempotencyStore {
	return &MemoryIdempotencyStore{entries: map[string]memoryEntry{}}
}

func (m *MemoryIdempotencyStore) Check(_ context.Context, userID, endpoint, key, requestHash string) (StoredResponse, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[userID+"|"+endpoint+"|"+key]
	if !ok {
		return StoredResponse{}, false, nil
	}
	if e.hash != requestHash {
		return StoredResponse{}, false, ErrIdempotencyConflict
	}
	return e.resp, true, nil
}

func (m *MemoryIdempotencyStore) Save(_ context.Context, userID, endpoint, key, requestHash string, resp StoredResponse) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := userID + "|" + endpoint + "|" + key
	if e, ok := m.entries[k]; ok && e.hash != requestHash {
		return ErrIdempotencyConflict
	}
	m.entries[k] = memoryEntry{hash: requestHash, resp: resp}
	return nil
}

type captureWriter struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (c *captureWriter) WriteHeader(code int) {
	c.status = code
	c.ResponseWriter.WriteHeader(code)
}

func (c *captureWriter) Write(p []byte) (int, error) {
	c.body.Write(p)
	return c.ResponseWriter.Write(p)
}

// Idempotency replays the stored response of a POST carrying an
// Idempotency-Key that was already served for the same caller, endpoint
// and payload. Reusing a key with a different payload is a 409.
func Idempotency(store IdempotencyStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(HeaderIdempotencyKey)
			if store == nil || key == "" || r.Method != http.MethodPost {
				next.ServeHTTP(w, r)
				return
			}
			reqID := GetRequestID(r.Context())
			userID := ""
			if user, ok := GetUser(r.Context()); ok {
				userID = user.UserID
			}
			raw, err := io.ReadAll(r.Body)
			if err != nil {
				api.Fail(w, http.StatusBadRequest, "invalid_body", "request body could not be read", reqID)
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(raw))
			hash := RequestHash(raw)
			endpoint := r.Method + " " + r.URL.Path

			stored, found, err := store.Check(r.Context(), userID, endpoint, key, hash)
			if errors.Is(err, ErrIdempotencyConflict) {
				api.Fail(w, http.StatusConflict, "idempotency_conflict", err.Error(), reqID)
				return
			}
			if err != nil {
				api.Fail(w, http.StatusInternalServerError, "idempotency_error", "idempotency check failed", reqID)
				return
			}
			if found {
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Idempotent-Replayed", "true")
				w.WriteHeader(stored.Status)
				_, _ = w.Write(stored.Body)
				return
			}

			capture := &captureWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(capture, r)
			if capture.status >= 300 {
				return
			}
			resp := StoredResponse{Status: capture.status, Body: append(json.RawMessage(nil), capture.body.Bytes()...)}
			if err := store.Save(r.Context(), userID, endpoint, key, hash, resp); err != nil {
				slog.Warn("idempotency save failed", "endpoint", endpoint, "err", err)
			}
		})
	}
}
