package config

import (
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"
)

// ValidationError is a fatal configuration problem.
type ValidationError struct {
	Field   string
	Message string
	Hint    string
}

func (e ValidationError) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("%s: %s (hint: %s)", e.Field, e.Message, e.Hint)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationWarning is a non-fatal configuration issue.
type ValidationWarning struct {
	Field   string
	Message string
}

// ValidationResult collects every problem found by Validate.
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationWarning
}

// HasErrors reports whether any fatal problem was found.
func (r *ValidationResult) HasErrors() bool {
	return len(r.Errors) > 0
}

// Error joins every validation error.
func (r *ValidationResult) Error() string {
	msgs := make([]string, 0, len(r.Errors))
	for _, e := range r.Errors {
		msgs = append(msgs, e.Error())
	}
	return strings.Join(msgs, "; ")
}

func (r *ValidationResult) addError(field, message, hint string) {
	r.Errors = append(r.Errors, ValidationError{Field: field, Message: message, Hint: hint})
}

func (r *ValidationResult) addWarning(field, message string) {
	r.Warnings = append(r.Warnings, ValidationWarning{Field: field, Message: message})
}

// Validate checks the whole configuration.
func (c *Config) Validate() *ValidationResult {
	result := &ValidationResult{}
	c.Database.validate(result)
	c.Server.validate(result)
	c.Observability.validate(result)
	c.Schema.validate(result)
	if c.Batching.MaxInClause < 0 {
		result.addError("batching.max_in_clause", "must not be negative", "0 selects the default of 1000")
	}
	if !c.Batching.Enabled {
		result.addWarning("batching.enabled", "relationship batching is disabled; nested lists issue one statement per parent")
	}
	return result
}

func (d *DatabaseConfig) validate(result *ValidationResult) {
	if strings.TrimSpace(d.ConnectionString) == "" {
		if d.Host == "" {
			result.addError("database.host", "is required when database.dsn is not set", "")
		}
		if d.Port < 1 || d.Port > 65535 {
			result.addError("database.port", fmt.Sprintf("invalid port %d", d.Port), "use 1-65535")
		}
		if d.User == "" {
			result.addError("database.user", "is required when database.dsn is not set", "")
		}
	}
	if _, _, err := d.EffectiveDatabaseName(); err != nil {
		result.addError("database.database", err.Error(), "")
	}

	switch d.TLS.Mode {
	case "", "off", "skip-verify", "verify-ca", "verify-full":
	default:
		result.addError("database.tls.mode", fmt.Sprintf("unknown mode %q", d.TLS.Mode), "use off, skip-verify, verify-ca or verify-full")
	}
	if (d.TLS.CertFile == "") != (d.TLS.KeyFile == "") {
		result.addError("database.tls", "cert_file and key_file must be set together", "")
	}
	if d.TLS.Mode == "skip-verify" {
		result.addWarning("database.tls.mode", "skip-verify disables certificate verification")
	}

	if d.Pool.MaxOpen < 0 || d.Pool.MaxIdle < 0 {
		result.addError("database.pool", "connection counts must not be negative", "")
	}
	if d.Pool.MaxOpen > 0 && d.Pool.MaxIdle > d.Pool.MaxOpen {
		result.addWarning("database.pool.max_idle", "exceeds max_open and will be capped")
	}
	if d.ConnectionTimeout < 0 || d.ConnectionRetryInterval < 0 {
		result.addError("database.connection_timeout", "durations must not be negative", "")
	}
}

func (s *ServerConfig) validate(result *ValidationResult) {
	if s.Port < 1 || s.Port > 65535 {
		result.addError("server.port", fmt.Sprintf("invalid port %d", s.Port), "use 1-65535")
	}
	for field, d := range map[string]time.Duration{
		"server.read_timeout":         s.ReadTimeout,
		"server.write_timeout":        s.WriteTimeout,
		"server.idle_timeout":         s.IdleTimeout,
		"server.shutdown_timeout":     s.ShutdownTimeout,
		"server.health_check_timeout": s.HealthCheckTimeout,
	} {
		if d < 0 {
			result.addError(field, "must not be negative", "")
		}
	}

	if s.CORS.Enabled {
		if len(s.CORS.AllowedOrigins) == 0 {
			result.addError("server.cors.allowed_origins", "is required when CORS is enabled", "")
		}
		validateGlobList(result, "server.cors.allowed_origins", s.CORS.AllowedOrigins)
		if s.CORS.AllowCredentials {
			for _, origin := range s.CORS.AllowedOrigins {
				if origin == "*" {
					result.addWarning("server.cors.allow_credentials", "credentials with a wildcard origin echo the request origin")
					break
				}
			}
		}
	}

	if s.Auth.OIDCEnabled {
		u, err := url.Parse(s.Auth.OIDCIssuerURL)
		switch {
		case s.Auth.OIDCIssuerURL == "" || err != nil:
			result.addError("server.auth.oidc_issuer_url", "must be a valid URL when OIDC is enabled", "")
		case u.Scheme != "https":
			result.addError("server.auth.oidc_issuer_url", "must use https", "")
		}
		if s.Auth.OIDCAudience == "" {
			result.addError("server.auth.oidc_audience", "is required when OIDC is enabled", "")
		}
		if s.Auth.OIDCSkipTLSVerify {
			result.addWarning("server.auth.oidc_skip_tls_verify", "issuer TLS verification is disabled")
		}
	}
	if s.Auth.OIDCClockSkew < 0 {
		result.addError("server.auth.oidc_clock_skew", "must not be negative", "")
	}

	if s.Admin.SchemaReloadEnabled && s.Admin.AuthToken == "" && !s.Auth.OIDCEnabled {
		result.addError("server.admin.auth_token", "is required when schema reload is enabled without OIDC",
			"set server.admin.auth_token_file or enable server.auth.oidc_enabled")
	}
	if s.Admin.AuthToken != "" && len(s.Admin.AuthToken) < 16 {
		result.addWarning("server.admin.auth_token", "is shorter than 16 characters")
	}
}

func (o *ObservabilityConfig) validate(result *ValidationResult) {
	if o.ServiceName == "" {
		result.addError("observability.service_name", "must not be empty", "")
	}
	if o.TraceSampleRatio < 0 || o.TraceSampleRatio > 1 {
		result.addError("observability.trace_sample_ratio", fmt.Sprintf("%g is outside 0..1", o.TraceSampleRatio), "")
	}
	switch strings.ToLower(o.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		result.addError("observability.logging.level", fmt.Sprintf("unknown level %q", o.Logging.Level), "use debug, info, warn or error")
	}
	switch strings.ToLower(o.Logging.Format) {
	case "json", "text":
	default:
		result.addError("observability.logging.format", fmt.Sprintf("unknown format %q", o.Logging.Format), "use json or text")
	}

	if !o.TracingEnabled && !o.Logging.ExportsEnabled {
		return
	}
	if strings.TrimSpace(o.OTLP.Endpoint) == "" {
		result.addError("observability.otlp.endpoint", "is required when tracing or log export is enabled", "")
	}
	switch strings.ToLower(o.OTLP.Protocol) {
	case "", "grpc", "http", "http/protobuf":
	default:
		result.addError("observability.otlp.protocol", fmt.Sprintf("unknown protocol %q", o.OTLP.Protocol), "use grpc or http/protobuf")
	}
	switch strings.ToLower(o.OTLP.Compression) {
	case "", "none", "gzip":
	default:
		result.addError("observability.otlp.compression", fmt.Sprintf("unknown compression %q", o.OTLP.Compression), "use none or gzip")
	}
	if (o.OTLP.ClientCertFile == "") != (o.OTLP.ClientKeyFile == "") {
		result.addError("observability.otlp", "client_cert_file and client_key_file must be set together", "")
	}
}

func (s *SchemaConfig) validate(result *ValidationResult) {
	validateGlobList(result, "schema.filters.allow_tables", s.Filters.AllowTables)
	validateGlobList(result, "schema.filters.deny_tables", s.Filters.DenyTables)
	validatePatternMap(result, "schema.filters.allow_columns", s.Filters.AllowColumns)
	validatePatternMap(result, "schema.filters.deny_columns", s.Filters.DenyColumns)
	validatePatternMap(result, "schema.type_overrides.uuid_columns", s.TypeOverrides.UUIDColumns)
	for key, class := range s.TypeOverrides.CompositeColumns {
		validateGlobList(result, "schema.type_overrides.composite_columns", []string{key})
		if strings.TrimSpace(class) == "" {
			result.addError("schema.type_overrides.composite_columns."+key, "composite class must not be empty", "")
		}
	}
	validateGlobList(result, "schema.list_tables", s.ListTables)

	for plural, singular := range s.Naming.SingularOverrides {
		if strings.TrimSpace(plural) == "" || strings.TrimSpace(singular) == "" {
			result.addError("schema.naming.singular_overrides", "keys and values must not be empty", "")
		}
	}
	for singular, plural := range s.Naming.PluralOverrides {
		if strings.TrimSpace(plural) == "" || strings.TrimSpace(singular) == "" {
			result.addError("schema.naming.plural_overrides", "keys and values must not be empty", "")
		}
	}

	if s.RefreshMinInterval < 0 || s.RefreshMaxInterval < 0 {
		result.addError("schema.refresh_min_interval", "refresh intervals must not be negative", "")
	}
	if s.RefreshMinInterval > 0 && s.RefreshMaxInterval > 0 && s.RefreshMinInterval > s.RefreshMaxInterval {
		result.addError("schema.refresh_max_interval", "must be at least refresh_min_interval", "")
	}
}

func validateGlobList(result *ValidationResult, field string, patterns []string) {
	for _, pattern := range patterns {
		if strings.TrimSpace(pattern) == "" {
			result.addError(field, "patterns must not be empty", "")
			continue
		}
		if _, err := path.Match(pattern, ""); err != nil {
			result.addError(field, fmt.Sprintf("invalid glob %q: %v", pattern, err), "")
		}
	}
}

func validatePatternMap(result *ValidationResult, field string, patterns map[string][]string) {
	for table, columns := range patterns {
		validateGlobList(result, field, []string{table})
		validateGlobList(result, field+"."+table, columns)
	}
}
