package services

import (
	"context"
	"database/sql"
	"fmt"
	"hash/fnv"
	"sync"

	"gorm.io/gorm"
)

// Locker verhindert, dass zwei Pipeline-Läufe gleichzeitig schreiben.
type Locker interface {
	// TryLock nimmt die Sperre ohne zu warten. Ist sie belegt, kommt
	// ErrLockHeld zurück. release gibt die Sperre wieder frei.
	TryLock(ctx context.Context, name string) (release func(), err error)
}

// PgAdvisoryLocker nutzt pg_try_advisory_lock auf einer eigenen Verbindung,
// damit die Sperre über mehrere Transaktionen hinweg hält.
type PgAdvisoryLocker struct {
	DB *gorm.DB
}

// TryLock implementiert Locker.
func (l *PgAdvisoryLocker) TryLock(ctx context.Context, name string) (func(), error) {
	sqlDB, err := l.DB.DB()
	if err != nil {
		return nil, err
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("lock connection: %w", err)
	}
	key := advisoryKey64(name)

	var ok bool
	if err := conn.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", key).Scan(&ok); err != nil {
		conn.Close()
		return nil, fmt.Errorf("pg_try_advisory_lock: %w", err)
	}
	if !ok {
		conn.Close()
		return nil, ErrLockHeld
	}
	return func() { unlock(conn, key) }, nil
}

func unlock(conn *sql.Conn, key int64) {
	_, _ = conn.ExecContext(context.Background(), "SELECT pg_advisory_unlock($1)", key)
	_ = conn.Close()
}

func advisoryKey64(name string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte("compass-points:"))
	_, _ = h.Write([]byte(name))
	return int64(h.Sum64())
}

// LocalLocker sperrt nur innerhalb des Prozesses (Tests, SQLite).
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]bool
}

// TryLock implementiert Locker.
func (l *LocalLocker) TryLock(_ context.Context, name string) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held == nil {
		l.held = make(map[string]bool)
	}
	if l.held[name] {
		return nil, ErrLockHeld
	}
	l.held[name] = true
	return func() {
		l.mu.Lock()
		delete(l.held, name)
		l.mu.Unlock()
	}, nil
}
