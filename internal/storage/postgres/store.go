// Package postgres is the lib/pq backed review store. Each unit of work runs
// in one SQL transaction; phase config rows are locked with FOR SHARE or
// FOR UPDATE to order review writes against lifecycle operations.
package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"

	apperrors "recruitment-review/internal/common/errors"
	"recruitment-review/internal/common/logger"
	"recruitment-review/internal/review"
)

//go:embed schema.sql
var schema string

var _ review.Store = (*Store)(nil)

type Store struct {
	db     *sql.DB
	logger logger.Logger
}

func New(db *sql.DB, log logger.Logger) *Store {
	return &Store{
		db:     db,
		logger: log.WithFields(map[string]interface{}{"component": "postgres-store"}),
	}
}

// Migrate creates the tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return storageError("migrate", err)
	}
	s.logger.Info("schema applied", nil)
	return nil
}

// View runs fn in a read-only repeatable-read transaction so every query
// sees the same snapshot.
func (s *Store) View(ctx context.Context, fn func(tx review.Tx) error) error {
	return s.run(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true}, fn)
}

func (s *Store) Update(ctx context.Context, fn func(tx review.Tx) error) error {
	return s.run(ctx, nil, fn)
}

func (s *Store) run(ctx context.Context, opts *sql.TxOptions, fn func(tx review.Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, opts)
	if err != nil {
		return storageError("begin", err)
	}

	if err := fn(&tx{tx: sqlTx}); err != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			s.logger.Warn("rollback failed", map[string]interface{}{"error": rbErr.Error()})
		}
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return storageError("commit", err)
	}
	return nil
}

// storageError maps driver failures onto the error codes the workflow layer
// understands. Errors that already carry a code pass through.
func storageError(op string, err error) error {
	var stdErr *apperrors.StandardError
	if errors.As(err, &stdErr) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return apperrors.NewStorageTimeoutError(op)
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "40001", "40P01":
			return apperrors.NewConcurrentModificationError(fmt.Sprintf("%s: %s", op, pqErr.Message))
		case "57014":
			return apperrors.NewStorageTimeoutError(op)
		}
	}
	return apperrors.NewStorageError(op, err)
}

type tx struct {
	tx *sql.Tx
}

func (t *tx) execAffecting(ctx context.Context, op, query string, args ...interface{}) (int64, error) {
	res, err := t.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, storageError(op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, storageError(op, err)
	}
	return n, nil
}

func marshalJSON(op string, v interface{}) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, storageError(op, err)
	}
	return b, nil
}

// unmarshalJSON leaves v untouched for NULL columns.
func unmarshalJSON(op string, data []byte, v interface{}) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return storageError(op, err)
	}
	return nil
}

// where accumulates AND-ed conditions with numbered placeholders.
type where struct {
	clauses []string
	args    []interface{}
}

func (w *where) add(cond string, arg interface{}) {
	w.args = append(w.args, arg)
	w.clauses = append(w.clauses, fmt.Sprintf(cond, len(w.args)))
}

func (w *where) String() string {
	if len(w.clauses) == 0 {
		return ""
	}
	out := " WHERE " + w.clauses[0]
	for _, c := range w.clauses[1:] {
		out += " AND " + c
	}
	return out
}
