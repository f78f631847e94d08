package database

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("backend/database")

// Pool is the part of *sql.DB the Executor drives.
type Pool interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	PingContext(ctx context.Context) error
	Stats() sql.DBStats
	Close() error
}

// Opener builds a fresh pool.  The Executor calls it when the current pool
// has lost its connections.
type Opener func(ctx context.Context) (Pool, error)

// Scanner is satisfied by *sql.Rows and *sql.Row.
type Scanner interface {
	Scan(dest ...any) error
}

// Options tunes the Executor.  Zero values fall back to the defaults below.
type Options struct {
	MaxRetries      int           // attempts per statement, default 3
	BaseDelay       time.Duration // backoff before attempt n+1 is BaseDelay*n, default 2s
	MaxConns        int           // concurrent statements, default 5
	MaxWaiters      int           // callers allowed to queue for a slot; negative means none
	AcquireTimeout  time.Duration // max time queued for a slot, 0 waits on ctx only
	RecreateTimeout time.Duration // budget for the Opener, default 15s
	Logger          *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.MaxRetries < 1 {
		o.MaxRetries = 3
	}
	if o.BaseDelay <= 0 {
		o.BaseDelay = 2 * time.Second
	}
	if o.MaxConns < 1 {
		o.MaxConns = 5
	}
	if o.MaxWaiters < 0 {
		o.MaxWaiters = 0
	}
	if o.RecreateTimeout <= 0 {
		o.RecreateTimeout = 15 * time.Second
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// poolRef is one generation of the pool.  Statements hold the read lock
// for their whole duration; retiring takes the write lock, so a pool is
// only closed once nothing runs on it.
type poolRef struct {
	mu      sync.RWMutex
	pool    Pool
	gen     uint64
	retired bool
}

// Executor runs statements against the active pool with bounded
// concurrency and linear backoff on transient connection failures.
type Executor struct {
	opts  Options
	open  Opener
	log   *slog.Logger
	sleep func(ctx context.Context, d time.Duration) error

	current    atomic.Pointer[poolRef]
	slots      chan struct{}
	waiters    atomic.Int64
	recreating atomic.Bool

	mu     sync.Mutex // serialises swap against Close
	closed bool
	wg     sync.WaitGroup
}

// NewExecutor wraps pool.  open may be nil, in which case the pool is never
// rebuilt.
func NewExecutor(pool Pool, open Opener, opts Options) *Executor {
	opts = opts.withDefaults()
	e := &Executor{
		opts:  opts,
		open:  open,
		log:   opts.Logger,
		sleep: sleepCtx,
		slots: make(chan struct{}, opts.MaxConns),
	}
	e.current.Store(&poolRef{pool: pool, gen: 1})
	return e
}

// Exec runs a write statement.
func (e *Executor) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	var res sql.Result
	err := e.run(ctx, "exec", query, args, func(ctx context.Context, p Pool) error {
		r, err := p.ExecContext(ctx, query, args...)
		if err != nil {
			return err
		}
		res = r
		return nil
	})
	return res, err
}

// Query runs a read statement and hands the rows to scan.  Query and scan
// form one attempt: on retry scan is called again from scratch, so it must
// reset whatever it accumulates.
func (e *Executor) Query(ctx context.Context, scan func(*sql.Rows) error, query string, args ...any) error {
	return e.run(ctx, "query", query, args, func(ctx context.Context, p Pool) error {
		rows, err := p.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		if err := scan(rows); err != nil {
			return err
		}
		return rows.Err()
	})
}

// QueryRow runs a statement expected to return at most one row.  scan is
// not called and sql.ErrNoRows is returned when the result is empty.
func (e *Executor) QueryRow(ctx context.Context, scan func(Scanner) error, query string, args ...any) error {
	return e.Query(ctx, func(rows *sql.Rows) error {
		if !rows.Next() {
			if err := rows.Err(); err != nil {
				return err
			}
			return sql.ErrNoRows
		}
		return scan(rows)
	}, query, args...)
}

// Ping checks the active pool without retrying.
func (e *Executor) Ping(ctx context.Context) error {
	ref, err := e.lease()
	if err != nil {
		return err
	}
	defer ref.mu.RUnlock()
	return ref.pool.PingContext(ctx)
}

// Stats describes the active pool and the slot queue.
type Stats struct {
	Generation uint64 `json:"generacion"`
	MaxConns   int    `json:"maxConexiones"`
	InUse      int    `json:"enUso"`
	Waiting    int64  `json:"enEspera"`
	Open       int    `json:"abiertas"`
	Idle       int    `json:"inactivas"`
}

func (e *Executor) Stats() Stats {
	ref := e.current.Load()
	s := ref.pool.Stats()
	return Stats{
		Generation: ref.gen,
		MaxConns:   e.opts.MaxConns,
		InUse:      len(e.slots),
		Waiting:    e.waiters.Load(),
		Open:       s.OpenConnections,
		Idle:       s.Idle,
	}
}

// Close waits for a pending pool rebuild and closes the active pool.
func (e *Executor) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mu.Unlock()
	e.wg.Wait()
	return retire(e.current.Load())
}

func (e *Executor) run(ctx context.Context, op, query string, args []any, fn func(context.Context, Pool) error) error {
	ctx, span := tracer.Start(ctx, "db."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("db.statement", query)),
	)
	defer span.End()

	var last error
	attempt := 1
	for ; ; attempt++ {
		last = e.attempt(ctx, fn)
		if last == nil {
			span.SetAttributes(attribute.Int("db.attempts", attempt))
			return nil
		}
		kind := Classify(last)
		e.log.Warn("database attempt failed",
			slog.String("op", op),
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", e.opts.MaxRetries),
			slog.String("class", kind.Error()),
			slog.String("error", last.Error()),
		)
		if kind == ErrTransient && isConnLost(last) {
			e.recreate()
		}
		if kind != ErrTransient || attempt >= e.opts.MaxRetries {
			break
		}
		delay := e.opts.BaseDelay * time.Duration(attempt)
		e.log.Info("retrying statement", slog.String("op", op), slog.Duration("delay", delay))
		if err := e.sleep(ctx, delay); err != nil {
			last = errors.Join(last, err)
			break
		}
	}

	qe := &QueryError{Op: op, Query: query, Args: args, Attempts: attempt, Kind: Classify(last), Err: last}
	span.RecordError(qe)
	span.SetStatus(codes.Error, qe.Kind.Error())
	span.SetAttributes(attribute.Int("db.attempts", attempt))
	if qe.Kind != ErrConstraint {
		e.log.Error("database statement failed",
			slog.String("op", op),
			slog.String("sql", query),
			slog.Any("params", args),
			slog.Int("attempts", attempt),
			slog.String("error", last.Error()),
		)
	}
	return qe
}

// attempt acquires a slot, leases the active pool and runs fn once.
func (e *Executor) attempt(ctx context.Context, fn func(context.Context, Pool) error) error {
	release, err := e.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	ref, err := e.lease()
	if err != nil {
		return err
	}
	defer ref.mu.RUnlock()
	return fn(ctx, ref.pool)
}

func (e *Executor) acquire(ctx context.Context) (func(), error) {
	select {
	case e.slots <- struct{}{}:
		return e.release, nil
	default:
	}

	if n := e.waiters.Add(1); n > int64(e.opts.MaxWaiters) {
		e.waiters.Add(-1)
		return nil, ErrPoolSaturated
	}
	defer e.waiters.Add(-1)
	e.log.Debug("waiting for a database connection slot", slog.Int64("waiting", e.waiters.Load()))

	var timeout <-chan time.Time
	if e.opts.AcquireTimeout > 0 {
		t := time.NewTimer(e.opts.AcquireTimeout)
		defer t.Stop()
		timeout = t.C
	}
	select {
	case e.slots <- struct{}{}:
		return e.release, nil
	case <-timeout:
		return nil, errors.Join(ErrPoolSaturated, errors.New("timed out waiting for a connection slot"))
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (e *Executor) release() { <-e.slots }

// lease returns the active pool read-locked.  A pool retired between the
// pointer load and the lock is skipped in favour of its successor.
func (e *Executor) lease() (*poolRef, error) {
	for {
		ref := e.current.Load()
		ref.mu.RLock()
		if !ref.retired {
			return ref, nil
		}
		ref.mu.RUnlock()
		if e.isClosed() {
			return nil, ErrClosed
		}
	}
}

func (e *Executor) isClosed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

// recreate rebuilds the pool in the background.  At most one rebuild runs
// at a time and callers never wait for it.
func (e *Executor) recreate() {
	if e.open == nil || !e.recreating.CompareAndSwap(false, true) {
		return
	}
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		e.recreating.Store(false)
		return
	}
	e.wg.Add(1)
	e.mu.Unlock()

	go func() {
		defer e.wg.Done()
		defer e.recreating.Store(false)

		e.log.Warn("connection lost, recreating database pool")
		ctx, cancel := context.WithTimeout(context.Background(), e.opts.RecreateTimeout)
		defer cancel()
		next, err := e.open(ctx)
		if err != nil {
			e.log.Error("pool recreation failed", slog.String("error", err.Error()))
			return
		}

		e.mu.Lock()
		if e.closed {
			e.mu.Unlock()
			_ = next.Close()
			return
		}
		old := e.current.Load()
		e.current.Store(&poolRef{pool: next, gen: old.gen + 1})
		e.mu.Unlock()

		if err := retire(old); err != nil {
			e.log.Warn("closing previous pool", slog.String("error", err.Error()))
		}
		e.log.Info("database pool recreated", slog.Uint64("generation", old.gen+1))
	}()
}

func retire(ref *poolRef) error {
	ref.mu.Lock()
	defer ref.mu.Unlock()
	if ref.retired {
		return nil
	}
	ref.retired = true
	return ref.pool.Close()
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
