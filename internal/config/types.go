package config

import (
	"time"

	"relgraph/internal/introspection"
	"relgraph/internal/middleware"
	"relgraph/internal/naming"
	"relgraph/internal/observability"
	"relgraph/internal/schemafilter"
)

// Config holds the application configuration.
type Config struct {
	Database      DatabaseConfig      `mapstructure:"database"`
	Server        ServerConfig        `mapstructure:"server"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	Schema        SchemaConfig        `mapstructure:"schema"`
	Batching      BatchingConfig      `mapstructure:"batching"`
}

// DatabaseConfig holds connection parameters. DSN, when set, replaces the
// discrete fields.
type DatabaseConfig struct {
	ConnectionString string `mapstructure:"dsn"`
	DSNFile          string `mapstructure:"dsn_file"`

	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	PasswordFile   string `mapstructure:"password_file"`
	PasswordPrompt bool   `mapstructure:"password_prompt"`
	Database       string `mapstructure:"database"`

	TLS  DatabaseTLSConfig `mapstructure:"tls"`
	Pool PoolConfig        `mapstructure:"pool"`

	// ConnectionTimeout bounds how long startup waits for the database.
	ConnectionTimeout       time.Duration `mapstructure:"connection_timeout"`
	ConnectionRetryInterval time.Duration `mapstructure:"connection_retry_interval"`
}

// DatabaseTLSConfig selects how the driver secures the connection.
// Mode is one of off, skip-verify, verify-ca or verify-full.
type DatabaseTLSConfig struct {
	Mode       string `mapstructure:"mode"`
	CAFile     string `mapstructure:"ca_file"`
	CertFile   string `mapstructure:"cert_file"`
	KeyFile    string `mapstructure:"key_file"`
	ServerName string `mapstructure:"server_name"`
}

// PoolConfig holds connection pool parameters.
type PoolConfig struct {
	MaxOpen     int           `mapstructure:"max_open"`
	MaxIdle     int           `mapstructure:"max_idle"`
	MaxLifetime time.Duration `mapstructure:"max_lifetime"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Port               int                   `mapstructure:"port"`
	GraphiQLEnabled    bool                  `mapstructure:"graphiql_enabled"`
	ReadTimeout        time.Duration         `mapstructure:"read_timeout"`
	WriteTimeout       time.Duration         `mapstructure:"write_timeout"`
	IdleTimeout        time.Duration         `mapstructure:"idle_timeout"`
	ShutdownTimeout    time.Duration         `mapstructure:"shutdown_timeout"`
	HealthCheckTimeout time.Duration         `mapstructure:"health_check_timeout"`
	CORS               middleware.CORSConfig `mapstructure:"cors"`
	Auth               AuthConfig            `mapstructure:"auth"`
	Admin              AdminConfig           `mapstructure:"admin"`
}

// AuthConfig configures bearer token validation for /graphql.
type AuthConfig struct {
	OIDCEnabled       bool          `mapstructure:"oidc_enabled"`
	OIDCIssuerURL     string        `mapstructure:"oidc_issuer_url"`
	OIDCAudience      string        `mapstructure:"oidc_audience"`
	OIDCClockSkew     time.Duration `mapstructure:"oidc_clock_skew"`
	OIDCSkipTLSVerify bool          `mapstructure:"oidc_skip_tls_verify"`
	OIDCCAFile        string        `mapstructure:"oidc_ca_file"`
}

// AdminConfig controls the schema reload endpoint.
type AdminConfig struct {
	SchemaReloadEnabled bool   `mapstructure:"schema_reload_enabled"`
	AuthToken           string `mapstructure:"auth_token"`
	AuthTokenFile       string `mapstructure:"auth_token_file"`
}

// LoggingConfig holds logging parameters.
type LoggingConfig struct {
	Level          string `mapstructure:"level"`  // debug, info, warn, error
	Format         string `mapstructure:"format"` // json, text
	ExportsEnabled bool   `mapstructure:"exports_enabled"`
}

// ObservabilityConfig holds metrics, tracing and log export parameters.
type ObservabilityConfig struct {
	ServiceName      string  `mapstructure:"service_name"`
	ServiceVersion   string  `mapstructure:"service_version"`
	Environment      string  `mapstructure:"environment"`
	MetricsEnabled   bool    `mapstructure:"metrics_enabled"`
	TracingEnabled   bool    `mapstructure:"tracing_enabled"`
	TraceSampleRatio float64 `mapstructure:"trace_sample_ratio"`
	// SQLCommenterEnabled appends trace context to every SQL statement.
	SQLCommenterEnabled bool                             `mapstructure:"sqlcommenter_enabled"`
	Logging             LoggingConfig                    `mapstructure:"logging"`
	OTLP                observability.OTLPExporterConfig `mapstructure:"otlp"`
}

// SchemaConfig shapes the generated GraphQL schema and its refresh cadence.
type SchemaConfig struct {
	Filters       schemafilter.Config         `mapstructure:"filters"`
	TypeOverrides introspection.TypeOverrides `mapstructure:"type_overrides"`
	Naming        naming.Config               `mapstructure:"naming"`
	// ListTables are exposed as plain lists instead of connections.
	ListTables []string `mapstructure:"list_tables"`
	// RefreshMinInterval of zero disables background refresh.
	RefreshMinInterval time.Duration `mapstructure:"refresh_min_interval"`
	RefreshMaxInterval time.Duration `mapstructure:"refresh_max_interval"`
}

// BatchingConfig controls the relationship batch loader.
type BatchingConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// MaxInClause caps the parent keys sent in one IN list.
	MaxInClause int `mapstructure:"max_in_clause"`
}
