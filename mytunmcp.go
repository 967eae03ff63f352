package mytunmcp

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/sqlbridge/mysql-tunnel-mcp/internal/hint"
	"github.com/sqlbridge/mysql-tunnel-mcp/internal/sanitize"
	"github.com/sqlbridge/mysql-tunnel-mcp/internal/session"
	"github.com/sqlbridge/mysql-tunnel-mcp/internal/timeout"
	"github.com/sqlbridge/mysql-tunnel-mcp/internal/tunnel"
)

// MysqlTunnelMcp is the core engine providing the ReadQuery, ListTables,
// DescribeTable, and ConnectDB tools over an on-demand SSH tunnel.
// All exported methods are safe for concurrent use from multiple goroutines.
type MysqlTunnelMcp struct {
	config     Config
	orch       *Orchestrator
	semaphore  chan struct{}
	masker     *sanitize.Masker
	hints      *hint.Matcher
	timeoutRes *timeout.Resolver
	logger     zerolog.Logger
}

// Option is a functional option for New().
type Option func(*options)

type options struct {
	dialer      tunnel.Dialer
	openSession func(localAddr string) Session
}

// WithTunnelDialer replaces the SSH dialer, e.g. with a fake in tests or a
// dialer with custom host key handling.
func WithTunnelDialer(d tunnel.Dialer) Option {
	return func(o *options) {
		o.dialer = d
	}
}

// WithSessionOpener replaces the database session factory. The factory is
// invoked with the tunnel's local address each time a fresh session is
// needed after an open.
func WithSessionOpener(open func(localAddr string) Session) Option {
	return func(o *options) {
		o.openSession = open
	}
}

// New creates a MysqlTunnelMcp instance. No tunnel or database I/O happens
// here; both are established lazily by the first operation.
// Panics on invalid config. SSH fields are required; database and tunnel
// fields fall back to defaults (see DatabaseConfig, TunnelConfig).
func New(config Config, logger zerolog.Logger, opts ...Option) (*MysqlTunnelMcp, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	// --- Config validation (panics on invalid config) ---

	if o.dialer == nil {
		if config.SSH.Host == "" {
			panic("mytunmcp: ssh.host must be non-empty")
		}
		if config.SSH.User == "" {
			panic("mytunmcp: ssh.user must be non-empty")
		}
		if config.SSH.KeyPath == "" {
			panic("mytunmcp: ssh.key_path must be non-empty")
		}
	}
	if config.SSH.Port == 0 {
		config.SSH.Port = 22
	}
	if config.SSH.Port < 0 {
		panic("mytunmcp: ssh.port must be > 0")
	}
	if config.Query.DefaultTimeoutSeconds <= 0 {
		panic("mytunmcp: query.default_timeout_seconds must be > 0")
	}
	if config.Query.ListTablesTimeoutSeconds <= 0 {
		panic("mytunmcp: query.list_tables_timeout_seconds must be > 0")
	}
	if config.Query.DescribeTableTimeoutSeconds <= 0 {
		panic("mytunmcp: query.describe_table_timeout_seconds must be > 0")
	}

	// Apply defaults for zero values
	if config.Database.Host == "" {
		config.Database.Host = "127.0.0.1"
	}
	if config.Database.Port == 0 {
		config.Database.Port = 3306
	}
	if config.Database.User == "" {
		config.Database.User = "root"
	}
	if config.Database.PoolSize == 0 {
		config.Database.PoolSize = 5
	}
	if config.Database.ConnectTimeoutSeconds == 0 {
		config.Database.ConnectTimeoutSeconds = 10
	}
	if config.Tunnel.LocalPort == 0 {
		config.Tunnel.LocalPort = 3307
	}
	if config.Tunnel.IdleTimeoutSeconds == 0 {
		config.Tunnel.IdleTimeoutSeconds = 300
	}
	if config.Tunnel.DialTimeoutSeconds == 0 {
		config.Tunnel.DialTimeoutSeconds = 10
	}
	if config.Query.MaxSQLLength == 0 {
		config.Query.MaxSQLLength = 100000
	}
	if config.Query.MaxResultLength == 0 {
		config.Query.MaxResultLength = 100000
	}
	if config.Database.PoolSize < 0 {
		panic("mytunmcp: database.pool_size must be > 0")
	}
	if config.Query.MaxSQLLength < 0 {
		panic("mytunmcp: query.max_sql_length must be > 0")
	}
	if config.Query.MaxResultLength < 0 {
		panic("mytunmcp: query.max_result_length must be > 0")
	}
	for _, rule := range config.Query.TimeoutRules {
		if rule.TimeoutSeconds <= 0 {
			panic("mytunmcp: timeout_rule with pattern " + rule.Pattern + " has timeout_seconds <= 0")
		}
	}

	// --- Initialize internal components ---

	masker, err := sanitize.NewMasker(mapSanitizationRules(config.Sanitization))
	if err != nil {
		return nil, err
	}
	hints, err := hint.NewMatcher(mapHintRules(config.Hints))
	if err != nil {
		return nil, err
	}
	timeoutRules := make([]timeout.Rule, len(config.Query.TimeoutRules))
	for i, r := range config.Query.TimeoutRules {
		timeoutRules[i] = timeout.Rule{
			Pattern: r.Pattern,
			Timeout: time.Duration(r.TimeoutSeconds) * time.Second,
		}
	}
	timeoutRes := timeout.NewResolver(timeout.Config{
		DefaultTimeout: time.Duration(config.Query.DefaultTimeoutSeconds) * time.Second,
		Rules:          timeoutRules,
	})

	dialer := o.dialer
	if dialer == nil {
		dialer = tunnel.NewSSHDialer(tunnel.SSHConfig{
			Host:           config.SSH.Host,
			Port:           config.SSH.Port,
			User:           config.SSH.User,
			KeyPath:        config.SSH.KeyPath,
			KnownHostsPath: config.SSH.KnownHostsPath,
			DialTimeout:    time.Duration(config.Tunnel.DialTimeoutSeconds) * time.Second,
		})
	}

	openSession := o.openSession
	if openSession == nil {
		sessLogger := logger.With().Str("component", "session").Logger()
		openSession = func(localAddr string) Session {
			return session.New(session.Config{
				User:           config.Database.User,
				Password:       config.Database.Password,
				DBName:         config.Database.Name,
				PoolSize:       config.Database.PoolSize,
				ConnectTimeout: time.Duration(config.Database.ConnectTimeoutSeconds) * time.Second,
			}, localAddr, sessLogger)
		}
	}

	orch := newOrchestrator(nil, openSession,
		time.Duration(config.Tunnel.IdleTimeoutSeconds)*time.Second,
		logger.With().Str("component", "orchestrator").Logger())
	// The manager reports unsolicited drops back into the orchestrator's
	// serialized control path; no drop can fire before the first Open.
	orch.tun = tunnel.NewManager(tunnel.Config{
		LocalPort:  config.Tunnel.LocalPort,
		RemoteHost: config.Database.Host,
		RemotePort: config.Database.Port,
	}, dialer, orch.handleDrop, logger.With().Str("component", "tunnel").Logger())

	return &MysqlTunnelMcp{
		config:     config,
		orch:       orch,
		semaphore:  make(chan struct{}, config.Database.PoolSize),
		masker:     masker,
		hints:      hints,
		timeoutRes: timeoutRes,
		logger:     logger,
	}, nil
}

// Close shuts the engine down: the idle timer is cancelled and session and
// tunnel are closed best-effort. Accepts context for API forward-compatibility.
func (m *MysqlTunnelMcp) Close(ctx context.Context) {
	m.orch.Shutdown()
}

// mapSanitizationRules converts config rules to internal sanitize.Rules.
func mapSanitizationRules(rules []SanitizationRule) []sanitize.Rule {
	result := make([]sanitize.Rule, len(rules))
	for i, r := range rules {
		result[i] = sanitize.Rule{
			Pattern:     r.Pattern,
			Replacement: r.Replacement,
		}
	}
	return result
}

// mapHintRules converts config rules to internal hint.Rules.
func mapHintRules(rules []HintRule) []hint.Rule {
	result := make([]hint.Rule, len(rules))
	for i, r := range rules {
		result[i] = hint.Rule{
			Pattern: r.Pattern,
			Message: r.Message,
		}
	}
	return result
}
