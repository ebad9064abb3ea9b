package tablestore

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
)

// DefaultStatementTimeout bounds each statement when no WithStatementTimeout option is given.
const DefaultStatementTimeout = 5 * time.Second

// Session owns the single database handle shared by every store.
//
// The underlying handle is pinned to one connection and all statement
// execution is serialized through a single-slot lock, so a Session is safe
// for concurrent use. Result sets are consumed while the lock is held.
// Waiting for the lock honours the caller's context.
//
// A Session never retries or reconnects. When the connection is lost every
// later statement fails with ErrConnLost and the WithOnConnLost callback
// fires once; callers are expected to treat that as fatal.
type Session struct {
	sem     chan struct{}
	db      *sqlx.DB
	dialect Dialect
	timeout time.Duration
	obs     *ObservabilityConfig

	onConnLost func(error)
	lostOnce   sync.Once
}

// WithStatementTimeout bounds every statement. Zero or negative disables the guard.
func WithStatementTimeout(d time.Duration) SessionOption {
	return func(s *Session) {
		s.timeout = d
	}
}

// WithOnConnLost registers fn to be called once when the connection is lost.
func WithOnConnLost(fn func(error)) SessionOption {
	return func(s *Session) {
		s.onConnLost = fn
	}
}

// NewSession wraps db. The pool is restricted to a single, never-expiring
// connection, which also keeps SQLite ":memory:" databases alive.
func NewSession(db *sql.DB, dialect Dialect, opts ...SessionOption) *Session {
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	s := &Session{
		sem:     make(chan struct{}, 1),
		db:      sqlx.NewDb(db, dialect.Name()),
		dialect: dialect,
		timeout: DefaultStatementTimeout,
		obs:     defaultObservabilityConfig(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open opens driverName/dsn, picks the dialect from the driver name and
// verifies the connection.
func Open(ctx context.Context, driverName, dsn string, opts ...SessionOption) (*Session, error) {
	dialect, err := DialectFor(driverName)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, wrapError("open", err)
	}
	s := NewSession(db, dialect, opts...)
	if err := s.Ping(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Dialect returns the session's dialect.
func (s *Session) Dialect() Dialect { return s.dialect }

// Ping verifies the connection is alive.
func (s *Session) Ping(ctx context.Context) error {
	return s.run(ctx, "ping", func(ctx context.Context) error {
		return s.db.PingContext(ctx)
	})
}

// Close closes the underlying handle.
func (s *Session) Close() error {
	s.sem <- struct{}{}
	defer s.release()
	return s.db.Close()
}

// acquire takes the session lock, giving up when ctx is done first.
func (s *Session) acquire(ctx context.Context) error {
	select {
	case s.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) release() { <-s.sem }

func (s *Session) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	var result sql.Result
	err := s.run(ctx, query, func(ctx context.Context) error {
		var err error
		result, err = s.db.ExecContext(ctx, query, args...)
		return err
	})
	return result, err
}

func (s *Session) Get(ctx context.Context, dest any, query string, args ...any) error {
	return s.run(ctx, query, func(ctx context.Context) error {
		return s.db.GetContext(ctx, dest, query, args...)
	})
}

func (s *Session) Select(ctx context.Context, dest any, query string, args ...any) error {
	return s.run(ctx, query, func(ctx context.Context) error {
		return s.db.SelectContext(ctx, dest, query, args...)
	})
}

// QueryRows runs query and hands the open result set to fn.
// The rows are closed, and their iteration error checked, before QueryRows returns.
func (s *Session) QueryRows(ctx context.Context, query string, args []any, fn func(*sqlx.Rows) error) error {
	return s.run(ctx, query, func(ctx context.Context) error {
		rows, err := s.db.QueryxContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		if err := fn(rows); err != nil {
			return err
		}
		return rows.Err()
	})
}

// run executes fn under the session lock with the statement timeout,
// tracing, metrics and logging applied, and wraps any failure.
func (s *Session) run(ctx context.Context, query string, fn func(context.Context) error) error {
	op := operationOf(query)

	queued := time.Now()
	if err := s.acquire(ctx); err != nil {
		s.logQuery(ctx, op, query, time.Since(queued), err)
		return wrapError(op, err)
	}
	defer s.release()
	s.recordLockWait(ctx, op, time.Since(queued))

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	ctx, span := s.startSpan(ctx, op)
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	duration := time.Since(start)

	s.recordMetrics(ctx, op, duration, err)
	s.logQuery(ctx, op, query, duration, err)

	if err == nil {
		return nil
	}
	if failed(err) {
		span.fail(err)
	}
	err = wrapError(op, err)
	if errors.Is(err, ErrConnLost) && s.onConnLost != nil {
		s.lostOnce.Do(func() { s.onConnLost(err) })
	}
	return err
}

// operationOf returns the lower-cased statement verb, e.g. "select".
func operationOf(query string) string {
	query = strings.TrimSpace(query)
	if i := strings.IndexAny(query, " \t\n("); i > 0 {
		query = query[:i]
	}
	return strings.ToLower(query)
}
