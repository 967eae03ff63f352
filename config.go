package mytunmcp

// Config is the base configuration used by library mode via New().
type Config struct {
	SSH          SSHConfig          `json:"ssh"`
	Database     DatabaseConfig     `json:"database"`
	Tunnel       TunnelConfig       `json:"tunnel"`
	Query        QueryConfig        `json:"query"`
	Hints        []HintRule         `json:"hints"`
	Sanitization []SanitizationRule `json:"sanitization"`
}

// ServerConfig embeds Config and adds server-only fields for CLI mode.
type ServerConfig struct {
	Config
	Server  ServerSettings `json:"server"`
	Logging LoggingConfig  `json:"logging"`
}

// SSHConfig holds the bastion connection parameters. All fields except
// KnownHostsPath are required; New panics when any is missing.
type SSHConfig struct {
	Host           string `json:"host"`
	Port           int    `json:"port"`
	User           string `json:"user"`
	KeyPath        string `json:"key_path"`
	KnownHostsPath string `json:"known_hosts_path"` // empty disables host key verification
}

// DatabaseConfig holds the MySQL connection parameters. The host and port
// are as seen from the SSH host. Zero values fall back to defaults:
// host 127.0.0.1, port 3306, user root, pool_size 5, connect_timeout 10s.
type DatabaseConfig struct {
	Host                  string `json:"host"`
	Port                  int    `json:"port"`
	User                  string `json:"user"`
	Password              string `json:"password,omitempty"`
	Name                  string `json:"name"`
	PoolSize              int    `json:"pool_size"`
	ConnectTimeoutSeconds int    `json:"connect_timeout_seconds"`
}

// TunnelConfig holds the forwarded-port settings. Defaults: local_port 3307,
// idle_timeout 300s, dial_timeout 10s.
type TunnelConfig struct {
	LocalPort          int `json:"local_port"`
	IdleTimeoutSeconds int `json:"idle_timeout_seconds"`
	DialTimeoutSeconds int `json:"dial_timeout_seconds"`
}

// QueryConfig holds query execution settings.
type QueryConfig struct {
	DefaultTimeoutSeconds       int           `json:"default_timeout_seconds"`
	ListTablesTimeoutSeconds    int           `json:"list_tables_timeout_seconds"`
	DescribeTableTimeoutSeconds int           `json:"describe_table_timeout_seconds"`
	MaxSQLLength                int           `json:"max_sql_length"`
	MaxResultLength             int           `json:"max_result_length"`
	TimeoutRules                []TimeoutRule `json:"timeout_rules"`
}

// TimeoutRule maps a SQL pattern to a specific timeout duration.
type TimeoutRule struct {
	Pattern        string `json:"pattern"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

// HintRule maps an error message pattern to a guidance message appended to
// the error payload returned to the agent.
type HintRule struct {
	Pattern string `json:"pattern"`
	Message string `json:"message"`
}

// SanitizationRule defines a regex-based field masking rule applied to
// result values.
type SanitizationRule struct {
	Pattern     string `json:"pattern"`
	Replacement string `json:"replacement"`
	Description string `json:"description"`
}

// ServerSettings holds transport settings for CLI mode. Transport is "stdio"
// (default) or "http"; Port and the health check fields apply to http only.
type ServerSettings struct {
	Transport          string `json:"transport"`
	Port               int    `json:"port"`
	HealthCheckEnabled bool   `json:"health_check_enabled"`
	HealthCheckPath    string `json:"health_check_path"`
}

// LoggingConfig holds logging settings for CLI mode.
type LoggingConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // json, text
	Output string `json:"output"` // stdout, stderr, or file path
}
