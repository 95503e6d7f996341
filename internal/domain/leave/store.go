package leave

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"hrleave/internal/platform/querier"
)

// Store is the Postgres implementation of StoreAPI.
type Store struct {
	DB   querier.Querier
	pool querier.TxBeginner
}

func NewStore(db querier.TxBeginner) *Store {
	return &Store{DB: db, pool: db}
}

// InTx runs fn against a transaction-scoped store. Calls made on a store
// that is already inside a transaction reuse it.
func (s *Store) InTx(ctx context.Context, fn func(StoreAPI) error) error {
	if s.pool == nil {
		return fn(s)
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	if err := fn(&Store{DB: tx}); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			slog.Warn("leave tx rollback failed", "err", rbErr)
		}
		return err
	}
	return tx.Commit(ctx)
}

func mapErr(err error, what string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return notFound(what)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return fmt.Errorf("%w: %s already exists", ErrConflict, what)
		case "23503":
			return fmt.Errorf("%w: %s references a missing record", ErrBadRequest, what)
		case "23514":
			return &RuleError{Rule: RuleLedger, Message: fmt.Sprintf("%s violates a balance constraint", what)}
		}
	}
	return err
}
