// Package session owns the lazily-created MySQL connection pool bound to the
// local end of the tunnel.
package session

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog"
)

// Config holds the fixed connection parameters of the pool.
type Config struct {
	User           string
	Password       string
	DBName         string
	PoolSize       int
	ConnectTimeout time.Duration
}

// Session lazily constructs a *sql.DB on first use. The pool has a fixed
// small capacity; callers queue for a connection rather than being rejected
// under load (database/sql default behavior with MaxOpenConns set).
type Session struct {
	mu     sync.Mutex
	cfg    Config
	addr   string
	db     *sql.DB
	logger zerolog.Logger
}

// New creates a Session that will connect to addr (the tunnel's local
// endpoint) when first used. No I/O happens until DB is called.
func New(cfg Config, addr string, logger zerolog.Logger) *Session {
	return &Session{cfg: cfg, addr: addr, logger: logger}
}

// DB returns the existing pool or constructs one, verifying connectivity
// with a bounded ping. Callers must only invoke this after the tunnel is
// confirmed open.
func (s *Session) DB(ctx context.Context) (*sql.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil {
		return s.db, nil
	}

	dsnCfg := mysql.NewConfig()
	dsnCfg.Net = "tcp"
	dsnCfg.Addr = s.addr
	dsnCfg.User = s.cfg.User
	dsnCfg.Passwd = s.cfg.Password
	dsnCfg.DBName = s.cfg.DBName
	dsnCfg.Timeout = s.cfg.ConnectTimeout
	dsnCfg.ParseTime = true

	db, err := sql.Open("mysql", dsnCfg.FormatDSN())
	if err != nil {
		return nil, fmt.Errorf("opening mysql pool: %w", err)
	}
	db.SetMaxOpenConns(s.cfg.PoolSize)
	db.SetMaxIdleConns(s.cfg.PoolSize)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, s.cfg.ConnectTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("mysql ping failed: %w", err)
	}

	s.logger.Info().
		Str("addr", s.addr).
		Str("database", s.cfg.DBName).
		Int("pool_size", s.cfg.PoolSize).
		Msg("database session established")
	s.db = db
	return s.db, nil
}

// TestConnection issues a trivial query and reports success as a bool.
// Failures are logged, never propagated: this is for health reporting only.
func (s *Session) TestConnection(ctx context.Context) bool {
	db, err := s.DB(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("connection test failed")
		return false
	}
	var one int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		s.logger.Warn().Err(err).Msg("connection test query failed")
		return false
	}
	return true
}

// Close ends the pool and clears the reference. Safe when no pool exists;
// close errors are logged and suppressed.
func (s *Session) Close() {
	s.mu.Lock()
	db := s.db
	s.db = nil
	s.mu.Unlock()

	if db == nil {
		return
	}
	if err := db.Close(); err != nil {
		s.logger.Warn().Err(err).Msg("closing database session")
	}
}
