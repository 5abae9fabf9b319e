// Package config loads configuration from files, environment variables and
// flags, and validates it.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"reflect"
	"strings"
	"syscall"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"relgraph/internal/batch"
)

// EnvPrefix prefixes every environment variable, e.g. RELGRAPH_SERVER_PORT.
const EnvPrefix = "RELGRAPH"

// stdin is swapped by tests.
var stdin io.Reader = os.Stdin

// Load resolves configuration with this precedence, highest first: flags,
// environment variables, config file, defaults. Secrets referenced by
// *_file keys are read last and never override inline values.
func Load(args []string) (*Config, error) {
	fs := NewFlagSet()
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return LoadFlags(fs)
}

// LoadFlags is Load for an already parsed flag set.
func LoadFlags(fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	cfgPath, _ := fs.GetString("config")
	if cfgPath != "" {
		v.SetConfigFile(cfgPath)
	} else {
		v.SetConfigName("relgraph")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/relgraph/")
		v.AddConfigPath("$HOME/.relgraph")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgPath != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	fs.Visit(func(f *pflag.Flag) {
		if f.Name == "config" || f.Name == "version" {
			return
		}
		v.Set(f.Name, flagValue(fs, f))
	})

	if err := resolveSecrets(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.UnmarshalExact(&cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		stringToStringSliceHookFunc(","),
	))); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

func flagValue(fs *pflag.FlagSet, f *pflag.Flag) interface{} {
	switch f.Value.Type() {
	case "int":
		n, _ := fs.GetInt(f.Name)
		return n
	case "bool":
		b, _ := fs.GetBool(f.Name)
		return b
	case "float64":
		n, _ := fs.GetFloat64(f.Name)
		return n
	case "duration":
		d, _ := fs.GetDuration(f.Name)
		return d
	case "stringSlice":
		s, _ := fs.GetStringSlice(f.Name)
		return s
	default:
		return f.Value.String()
	}
}

// secretSources maps a value key to the key naming a file that holds it.
var secretSources = []struct {
	key, fileKey string
}{
	{"database.dsn", "database.dsn_file"},
	{"database.password", "database.password_file"},
	{"server.admin.auth_token", "server.admin.auth_token_file"},
}

func resolveSecrets(v *viper.Viper) error {
	if err := validateSingleStdinSource(v); err != nil {
		return err
	}
	for _, src := range secretSources {
		path := strings.TrimSpace(v.GetString(src.fileKey))
		if v.GetString(src.key) != "" || path == "" {
			continue
		}
		value, err := readSecretFile(path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", src.fileKey, err)
		}
		if value == "" {
			return fmt.Errorf("%s %q is empty", src.fileKey, path)
		}
		v.Set(src.key, value)
	}

	if v.GetString("database.dsn") == "" && v.GetString("database.password") == "" && v.GetBool("database.password_prompt") {
		pwd, err := promptPassword()
		if err != nil {
			return fmt.Errorf("failed to read password: %w", err)
		}
		v.Set("database.password", pwd)
	}
	return nil
}

// validateSingleStdinSource allows at most one *_file key to read "@-".
func validateSingleStdinSource(v *viper.Viper) error {
	var configured []string
	for _, src := range secretSources {
		if strings.TrimSpace(v.GetString(src.fileKey)) == "@-" {
			configured = append(configured, src.fileKey)
		}
	}
	if len(configured) > 1 {
		return fmt.Errorf("multiple settings read from stdin (%s); only one @- source is allowed",
			strings.Join(configured, ", "))
	}
	return nil
}

func readSecretFile(path string) (string, error) {
	var data []byte
	var err error
	if path == "@-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

func promptPassword() (string, error) {
	fmt.Fprint(os.Stderr, "Enter database password: ")
	pwd, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return string(pwd), nil
}

// NewFlagSet defines every flag under its canonical dotted key.
func NewFlagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet("relgraph", pflag.ContinueOnError)
	fs.StringP("config", "c", "", "Config file path")
	fs.Bool("version", false, "Print version and exit")

	fs.String("database.dsn", "", "Complete MySQL DSN (user:pass@tcp(host:port)/db)")
	fs.String("database.dsn_file", "", "File containing the database DSN (@- for stdin)")
	fs.String("database.host", "", "Database host")
	fs.Int("database.port", 0, "Database port")
	fs.String("database.user", "", "Database user")
	fs.String("database.password", "", "Database password")
	fs.String("database.password_file", "", "File containing the database password (@- for stdin)")
	fs.Bool("database.password_prompt", false, "Prompt for the database password")
	fs.String("database.database", "", "Database (schema) to expose")
	fs.String("database.tls.mode", "", "TLS mode (off, skip-verify, verify-ca, verify-full)")
	fs.String("database.tls.ca_file", "", "CA certificate for server verification")
	fs.String("database.tls.cert_file", "", "Client certificate for mTLS")
	fs.String("database.tls.key_file", "", "Client private key for mTLS")
	fs.String("database.tls.server_name", "", "Server name expected in the certificate")
	fs.Int("database.pool.max_open", 0, "Maximum open connections")
	fs.Int("database.pool.max_idle", 0, "Maximum idle connections")
	fs.Duration("database.pool.max_lifetime", 0, "Connection max lifetime")
	fs.Duration("database.connection_timeout", 0, "How long startup waits for the database")
	fs.Duration("database.connection_retry_interval", 0, "Initial interval between connection attempts")

	fs.Int("server.port", 0, "HTTP port")
	fs.Bool("server.graphiql_enabled", false, "Serve GraphiQL on GET /graphql")
	fs.Duration("server.read_timeout", 0, "HTTP read timeout")
	fs.Duration("server.write_timeout", 0, "HTTP write timeout")
	fs.Duration("server.idle_timeout", 0, "HTTP idle timeout")
	fs.Duration("server.shutdown_timeout", 0, "Graceful shutdown timeout")
	fs.Duration("server.health_check_timeout", 0, "Database ping timeout for /health")
	fs.Bool("server.cors.enabled", false, "Enable CORS")
	fs.StringSlice("server.cors.allowed_origins", nil, "Allowed CORS origins; glob patterns accepted")
	fs.StringSlice("server.cors.allowed_methods", nil, "Allowed CORS methods")
	fs.StringSlice("server.cors.allowed_headers", nil, "Allowed CORS request headers")
	fs.StringSlice("server.cors.expose_headers", nil, "CORS response headers exposed to browsers")
	fs.Bool("server.cors.allow_credentials", false, "Allow credentialed CORS requests")
	fs.Int("server.cors.max_age", 0, "CORS preflight cache duration in seconds")
	fs.Bool("server.auth.oidc_enabled", false, "Require OIDC bearer tokens on /graphql")
	fs.String("server.auth.oidc_issuer_url", "", "OIDC issuer URL")
	fs.String("server.auth.oidc_audience", "", "Expected token audience")
	fs.Duration("server.auth.oidc_clock_skew", 0, "Allowed clock skew for exp/nbf")
	fs.Bool("server.auth.oidc_skip_tls_verify", false, "Skip issuer TLS verification (development only)")
	fs.String("server.auth.oidc_ca_file", "", "Extra CA bundle trusted for the issuer")
	fs.Bool("server.admin.schema_reload_enabled", false, "Expose POST /admin/reload-schema")
	fs.String("server.admin.auth_token", "", "Token required in X-Admin-Token")
	fs.String("server.admin.auth_token_file", "", "File containing the admin token (@- for stdin)")

	fs.String("observability.service_name", "", "Service name reported to telemetry backends")
	fs.String("observability.service_version", "", "Service version reported to telemetry backends")
	fs.String("observability.environment", "", "Deployment environment")
	fs.Bool("observability.metrics_enabled", false, "Serve Prometheus metrics on /metrics")
	fs.Bool("observability.tracing_enabled", false, "Export traces over OTLP")
	fs.Float64("observability.trace_sample_ratio", 0, "Trace sampling ratio (0..1)")
	fs.Bool("observability.sqlcommenter_enabled", false, "Append trace context to SQL statements")
	fs.String("observability.logging.level", "", "Log level (debug, info, warn, error)")
	fs.String("observability.logging.format", "", "Log format (json, text)")
	fs.Bool("observability.logging.exports_enabled", false, "Export logs over OTLP")
	fs.String("observability.otlp.endpoint", "", "OTLP endpoint")
	fs.String("observability.otlp.protocol", "", "OTLP protocol (grpc, http/protobuf)")
	fs.Bool("observability.otlp.insecure", false, "Disable OTLP TLS")
	fs.String("observability.otlp.ca_file", "", "CA certificate for the OTLP endpoint")
	fs.String("observability.otlp.client_cert_file", "", "Client certificate for OTLP mTLS")
	fs.String("observability.otlp.client_key_file", "", "Client key for OTLP mTLS")
	fs.Duration("observability.otlp.timeout", 0, "OTLP export timeout")
	fs.String("observability.otlp.compression", "", "OTLP compression (none, gzip)")
	fs.Bool("observability.otlp.retry", false, "Retry transient OTLP export failures")

	fs.StringSlice("schema.list_tables", nil, "Tables exposed as plain lists instead of connections")
	fs.Duration("schema.refresh_min_interval", 0, "Minimum schema refresh interval (0 disables refresh)")
	fs.Duration("schema.refresh_max_interval", 0, "Maximum schema refresh interval")
	fs.Bool("schema.filters.scan_views", false, "Expose views")

	fs.Bool("batching.enabled", false, "Batch relationship loads per request")
	fs.Int("batching.max_in_clause", 0, "Maximum parent keys per batched statement")
	return fs
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.dsn_file", "")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 3306)
	v.SetDefault("database.user", "relgraph")
	v.SetDefault("database.password", "")
	v.SetDefault("database.password_file", "")
	v.SetDefault("database.password_prompt", false)
	v.SetDefault("database.database", "")
	v.SetDefault("database.tls.mode", "")
	v.SetDefault("database.tls.ca_file", "")
	v.SetDefault("database.tls.cert_file", "")
	v.SetDefault("database.tls.key_file", "")
	v.SetDefault("database.tls.server_name", "")
	v.SetDefault("database.pool.max_open", 25)
	v.SetDefault("database.pool.max_idle", 5)
	v.SetDefault("database.pool.max_lifetime", 5*time.Minute)
	v.SetDefault("database.connection_timeout", 60*time.Second)
	v.SetDefault("database.connection_retry_interval", 2*time.Second)

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.graphiql_enabled", false)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)
	v.SetDefault("server.health_check_timeout", 2*time.Second)
	v.SetDefault("server.cors.enabled", false)
	v.SetDefault("server.cors.allowed_origins", []string{})
	v.SetDefault("server.cors.allowed_methods", []string{"GET", "POST", "OPTIONS"})
	v.SetDefault("server.cors.allowed_headers", []string{"Content-Type", "Authorization"})
	v.SetDefault("server.cors.expose_headers", []string{"X-Request-ID"})
	v.SetDefault("server.cors.allow_credentials", false)
	v.SetDefault("server.cors.max_age", 86400)
	v.SetDefault("server.auth.oidc_enabled", false)
	v.SetDefault("server.auth.oidc_issuer_url", "")
	v.SetDefault("server.auth.oidc_audience", "")
	v.SetDefault("server.auth.oidc_clock_skew", 2*time.Minute)
	v.SetDefault("server.auth.oidc_skip_tls_verify", false)
	v.SetDefault("server.auth.oidc_ca_file", "")
	v.SetDefault("server.admin.schema_reload_enabled", false)
	v.SetDefault("server.admin.auth_token", "")
	v.SetDefault("server.admin.auth_token_file", "")

	v.SetDefault("observability.service_name", "relgraph")
	v.SetDefault("observability.service_version", "")
	v.SetDefault("observability.environment", "development")
	v.SetDefault("observability.metrics_enabled", true)
	v.SetDefault("observability.tracing_enabled", false)
	v.SetDefault("observability.trace_sample_ratio", 1.0)
	v.SetDefault("observability.sqlcommenter_enabled", true)
	v.SetDefault("observability.logging.level", "info")
	v.SetDefault("observability.logging.format", "json")
	v.SetDefault("observability.logging.exports_enabled", false)
	v.SetDefault("observability.otlp.endpoint", "localhost:4317")
	v.SetDefault("observability.otlp.protocol", "grpc")
	v.SetDefault("observability.otlp.insecure", false)
	v.SetDefault("observability.otlp.ca_file", "")
	v.SetDefault("observability.otlp.client_cert_file", "")
	v.SetDefault("observability.otlp.client_key_file", "")
	v.SetDefault("observability.otlp.headers", map[string]string{})
	v.SetDefault("observability.otlp.timeout", 10*time.Second)
	v.SetDefault("observability.otlp.compression", "gzip")
	v.SetDefault("observability.otlp.retry", true)

	v.SetDefault("schema.filters.allow_tables", []string{"*"})
	v.SetDefault("schema.filters.deny_tables", []string{})
	v.SetDefault("schema.filters.scan_views", false)
	v.SetDefault("schema.filters.allow_columns", map[string][]string{"*": {"*"}})
	v.SetDefault("schema.filters.deny_columns", map[string][]string{})
	v.SetDefault("schema.type_overrides.uuid_columns", map[string][]string{})
	v.SetDefault("schema.type_overrides.composite_columns", map[string]string{})
	v.SetDefault("schema.naming.plural_overrides", map[string]string{})
	v.SetDefault("schema.naming.singular_overrides", map[string]string{})
	v.SetDefault("schema.list_tables", []string{})
	v.SetDefault("schema.refresh_min_interval", 30*time.Second)
	v.SetDefault("schema.refresh_max_interval", 5*time.Minute)

	v.SetDefault("batching.enabled", true)
	v.SetDefault("batching.max_in_clause", batch.DefaultMaxParents)
}

func stringToStringSliceHookFunc(sep string) mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if from.Kind() != reflect.String || to != reflect.TypeOf([]string{}) {
			return data, nil
		}
		raw := strings.TrimSpace(data.(string))
		if raw == "" {
			return []string{}, nil
		}
		parts := strings.Split(raw, sep)
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts, nil
	}
}
