package storage

import (
	"context"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/jmoiron/sqlx"
)

// Locker grants cross-process mutual exclusion for a named job.
type Locker interface {
	// TryLock returns ok=false without blocking when another holder has the lock.
	TryLock(ctx context.Context, name string) (release func(), ok bool, err error)
}

// NewLocker returns a Postgres advisory locker on pgx, and a no-op locker elsewhere.
func NewLocker(db *sqlx.DB) Locker {
	if db.DriverName() == DriverPostgres {
		return &advisoryLocker{db: db}
	}
	return nopLocker{}
}

type nopLocker struct{}

func (nopLocker) TryLock(context.Context, string) (func(), bool, error) {
	return func() {}, true, nil
}

// advisoryLocker holds a session-level pg advisory lock on a dedicated connection for the
// lifetime of the lock, since the lock belongs to the session that took it.
type advisoryLocker struct {
	db *sqlx.DB
}

func (l *advisoryLocker) TryLock(ctx context.Context, name string) (func(), bool, error) {
	key := lockKey(name)
	conn, err := l.db.Connx(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection for lock %s: %w", name, err)
	}

	var ok bool
	if err := conn.GetContext(ctx, &ok, `SELECT pg_try_advisory_lock($1)`, key); err != nil {
		conn.Close()
		return nil, false, fmt.Errorf("try advisory lock %s: %w", name, err)
	}
	if !ok {
		conn.Close()
		return nil, false, nil
	}

	release := func() {
		unlockCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_, _ = conn.ExecContext(unlockCtx, `SELECT pg_advisory_unlock($1)`, key)
		conn.Close()
	}
	return release, true, nil
}

func lockKey(name string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte("tradenotify:" + name))
	return int64(h.Sum64())
}
