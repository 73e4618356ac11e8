package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Pool sizes the connection pool. One run persists at a time, so the
// defaults stay small.
type Pool struct {
	MaxOpen     int
	MaxIdle     int
	MaxLifetime time.Duration
	PingTimeout time.Duration
}

var DefaultPool = Pool{
	MaxOpen:     10,
	MaxIdle:     5,
	MaxLifetime: 30 * time.Minute,
	PingTimeout: 5 * time.Second,
}

// Open opens driver with dsn, applies p and pings once. The handle is closed
// again when the ping fails.
func Open(ctx context.Context, driver, dsn string, p Pool) (*sql.DB, error) {
	conn, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	conn.SetMaxOpenConns(p.MaxOpen)
	conn.SetMaxIdleConns(p.MaxIdle)
	conn.SetConnMaxLifetime(p.MaxLifetime)

	timeout := p.PingTimeout
	if timeout <= 0 {
		timeout = DefaultPool.PingTimeout
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := conn.PingContext(pingCtx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}
	return conn, nil
}
