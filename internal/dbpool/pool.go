// Package dbpool owns the process-wide PostgreSQL connection pool and the
// migration runner that brings a fresh database up to the schema this
// daemon expects.
package dbpool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pmacquire/daemon/internal/domain"
)

// Config holds connection parameters for the pool.
type Config struct {
	DSN             string
	MinConns        int32
	MaxConns        int32
	CommandTimeout  time.Duration
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// Pool wraps a pgxpool.Pool with an explicit closed flag, per the
// requirement that a closed pool must fail acquire() with a distinguishable
// error rather than the caller probing driver internals.
type Pool struct {
	pool *pgxpool.Pool

	mu     sync.RWMutex
	closed bool
}

// Open parses cfg, dials the database with an IPv4-preferring dialer, and
// returns a ready Pool. The caller must call Close when done.
func Open(ctx context.Context, cfg Config) (*Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("dbpool: parse config: %w", err)
	}

	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		poolCfg.MaxConnIdleTime = cfg.MaxConnIdleTime
	}

	// statement_timeout is sent as a startup runtime parameter so every
	// connection in the pool enforces it server-side: no query issued
	// through this pool can hang indefinitely, regardless of which
	// package issues it or whether it passes a context deadline.
	if cfg.CommandTimeout > 0 {
		ms := cfg.CommandTimeout.Milliseconds()
		if poolCfg.ConnConfig.RuntimeParams == nil {
			poolCfg.ConnConfig.RuntimeParams = map[string]string{}
		}
		poolCfg.ConnConfig.RuntimeParams["statement_timeout"] = strconv.FormatInt(ms, 10)
	}

	// Every connection gets the jsonb codec registered explicitly so reads
	// of orderbook_snapshots.bids/asks decode into native Go values instead
	// of raw JSON strings.
	poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		conn.TypeMap().RegisterType(&pgtype.Type{
			Name:  "jsonb",
			OID:   pgtype.JSONBOID,
			Codec: pgtype.JSONBCodec{Marshal: json.Marshal, Unmarshal: json.Unmarshal},
		})
		return nil
	}

	// Prefer IPv4 when possible, but gracefully handle IPv6-only endpoints.
	poolCfg.ConnConfig.DialFunc = func(ctx context.Context, network, addr string) (net.Conn, error) {
		host, port, err := net.SplitHostPort(addr)
		if err != nil {
			return nil, fmt.Errorf("dbpool: split host/port %q: %w", addr, err)
		}

		dialer := &net.Dialer{}

		if ip := net.ParseIP(host); ip != nil {
			if ip.To4() != nil {
				return dialer.DialContext(ctx, "tcp4", net.JoinHostPort(ip.String(), port))
			}
			return dialer.DialContext(ctx, "tcp6", net.JoinHostPort(ip.String(), port))
		}

		ipv4s, err4 := net.DefaultResolver.LookupIP(ctx, "ip4", host)
		for _, ip := range ipv4s {
			conn, dialErr := dialer.DialContext(ctx, "tcp4", net.JoinHostPort(ip.String(), port))
			if dialErr == nil {
				return conn, nil
			}
		}

		conn, err := dialer.DialContext(ctx, network, addr)
		if err == nil {
			return conn, nil
		}

		if err4 != nil {
			return nil, fmt.Errorf("dbpool: dial %q failed (ipv4 lookup=%v, fallback=%w)", addr, err4, err)
		}
		return nil, fmt.Errorf("dbpool: dial %q failed: %w", addr, errors.Join(err4, err))
	}

	pgxPool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("dbpool: connect: %w", err)
	}

	if err := pgxPool.Ping(ctx); err != nil {
		pgxPool.Close()
		return nil, fmt.Errorf("dbpool: ping: %w", err)
	}

	return &Pool{pool: pgxPool}, nil
}

// Acquire checks out a connection for the duration of the caller's scope.
// The caller must call Release (via the returned conn's Release) on every
// exit path, including failure. Acquire fails fast with ErrPoolClosed once
// Close has been called.
func (p *Pool) Acquire(ctx context.Context) (*pgxpool.Conn, error) {
	p.mu.RLock()
	closed := p.closed
	p.mu.RUnlock()
	if closed {
		return nil, domain.ErrPoolClosed
	}
	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("dbpool: acquire: %w", err)
	}
	return conn, nil
}

// Underlying returns the raw pgxpool.Pool for packages that issue queries
// directly without holding a long-lived connection (pgxpool.Pool methods
// acquire and release internally per call).
func (p *Pool) Underlying() *pgxpool.Pool {
	return p.pool
}

// Close is idempotent. It marks the pool closed so future Acquire calls
// fail immediately, then waits for the pool to drain in-flight connections.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	p.pool.Close()
}

// Closed reports whether Close has been called.
func (p *Pool) Closed() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.closed
}
