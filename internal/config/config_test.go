package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "relgraph.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load([]string{"-c", writeConfig(t, "database:\n  database: shop\n")})
	require.NoError(t, err)

	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, 3306, cfg.Database.Port)
	assert.Equal(t, "shop", cfg.Database.Database)
	assert.Equal(t, 25, cfg.Database.Pool.MaxOpen)
	assert.Equal(t, 5*time.Minute, cfg.Database.Pool.MaxLifetime)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, []string{"GET", "POST", "OPTIONS"}, cfg.Server.CORS.AllowedMethods)
	assert.Equal(t, 2*time.Minute, cfg.Server.Auth.OIDCClockSkew)
	assert.Equal(t, "relgraph", cfg.Observability.ServiceName)
	assert.True(t, cfg.Observability.MetricsEnabled)
	assert.Equal(t, 1.0, cfg.Observability.TraceSampleRatio)
	assert.Equal(t, []string{"*"}, cfg.Schema.Filters.AllowTables)
	assert.Equal(t, []string{"*"}, cfg.Schema.Filters.AllowColumns["*"])
	assert.Equal(t, 30*time.Second, cfg.Schema.RefreshMinInterval)
	assert.True(t, cfg.Batching.Enabled)
	assert.Equal(t, 1000, cfg.Batching.MaxInClause)
	assert.False(t, cfg.Validate().HasErrors(), cfg.Validate().Error())
}

func TestLoad_Precedence(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 7000
  read_timeout: 45s
database:
  host: filehost
  database: shop
schema:
  list_tables: [audit_log]
`)
	t.Setenv("RELGRAPH_SERVER_PORT", "9090")
	t.Setenv("RELGRAPH_DATABASE_USER", "envuser")
	t.Setenv("RELGRAPH_BATCHING_MAX_IN_CLAUSE", "250")

	cfg, err := Load([]string{"-c", path, "--server.port=9191"})
	require.NoError(t, err)

	assert.Equal(t, 9191, cfg.Server.Port, "flag beats env and file")
	assert.Equal(t, 45*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, "filehost", cfg.Database.Host)
	assert.Equal(t, "envuser", cfg.Database.User)
	assert.Equal(t, 250, cfg.Batching.MaxInClause)
	assert.Equal(t, []string{"audit_log"}, cfg.Schema.ListTables)
}

func TestLoad_EnvStringSlice(t *testing.T) {
	t.Setenv("RELGRAPH_SCHEMA_LIST_TABLES", "audit_log, events")
	cfg, err := Load([]string{"-c", writeConfig(t, "{}\n")})
	require.NoError(t, err)
	assert.Equal(t, []string{"audit_log", "events"}, cfg.Schema.ListTables)
}

func TestLoad_RejectsUnknownKeys(t *testing.T) {
	_, err := Load([]string{"-c", writeConfig(t, "server:\n  prot: 80\n")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "prot")
}

func TestLoad_MissingExplicitConfigFile(t *testing.T) {
	_, err := Load([]string{"-c", filepath.Join(t.TempDir(), "absent.yaml")})
	require.Error(t, err)
}

func TestLoad_SecretFiles(t *testing.T) {
	dir := t.TempDir()
	pwFile := filepath.Join(dir, "pw")
	tokenFile := filepath.Join(dir, "token")
	require.NoError(t, os.WriteFile(pwFile, []byte("s3cret\n"), 0o600))
	require.NoError(t, os.WriteFile(tokenFile, []byte("  admin-token-0123456789  "), 0o600))

	cfg, err := Load([]string{
		"-c", writeConfig(t, "{}\n"),
		"--database.password_file", pwFile,
		"--server.admin.auth_token_file", tokenFile,
	})
	require.NoError(t, err)
	assert.Equal(t, "s3cret", cfg.Database.Password)
	assert.Equal(t, "admin-token-0123456789", cfg.Server.Admin.AuthToken)
}

func TestLoad_InlineSecretWinsOverFile(t *testing.T) {
	cfg, err := Load([]string{
		"-c", writeConfig(t, "{}\n"),
		"--database.password", "inline",
		"--database.password_file", filepath.Join(t.TempDir(), "never-read"),
	})
	require.NoError(t, err)
	assert.Equal(t, "inline", cfg.Database.Password)
}

func TestLoad_EmptySecretFile(t *testing.T) {
	empty := filepath.Join(t.TempDir(), "empty")
	require.NoError(t, os.WriteFile(empty, []byte("\n"), 0o600))
	_, err := Load([]string{"-c", writeConfig(t, "{}\n"), "--database.dsn_file", empty})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "is empty")
}

func TestLoad_StdinSecret(t *testing.T) {
	orig := stdin
	stdin = strings.NewReader("root:pw@tcp(db:4000)/shop\n")
	t.Cleanup(func() { stdin = orig })

	cfg, err := Load([]string{"-c", writeConfig(t, "{}\n"), "--database.dsn_file", "@-"})
	require.NoError(t, err)
	assert.Equal(t, "root:pw@tcp(db:4000)/shop", cfg.Database.ConnectionString)
}

func TestValidateSingleStdinSource(t *testing.T) {
	v := viper.New()
	v.Set("database.dsn_file", "@-")
	v.Set("database.password_file", "/tmp/password")
	require.NoError(t, validateSingleStdinSource(v))

	v.Set("server.admin.auth_token_file", " @- ")
	err := validateSingleStdinSource(v)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database.dsn_file")
	assert.Contains(t, err.Error(), "server.admin.auth_token_file")
}

func TestDSN_DiscreteFields(t *testing.T) {
	d := DatabaseConfig{Host: "db.internal", Port: 4000, User: "app", Password: "p@ss", Database: "shop"}
	dsn, err := d.DSN()
	require.NoError(t, err)

	parsed, err := mysql.ParseDSN(dsn)
	require.NoError(t, err)
	assert.Equal(t, "db.internal:4000", parsed.Addr)
	assert.Equal(t, "app", parsed.User)
	assert.Equal(t, "p@ss", parsed.Passwd)
	assert.Equal(t, "shop", parsed.DBName)
	assert.True(t, parsed.ParseTime)
	assert.Equal(t, time.UTC, parsed.Loc)
	assert.Empty(t, parsed.TLSConfig)
}

func TestDSN_ConnectionStringWithTLS(t *testing.T) {
	d := DatabaseConfig{
		ConnectionString: "root@tcp(127.0.0.1:3306)/shop?wait_timeout=60",
		TLS:              DatabaseTLSConfig{Mode: "skip-verify"},
	}
	dsn, err := d.DSN()
	require.NoError(t, err)

	parsed, err := mysql.ParseDSN(dsn)
	require.NoError(t, err)
	assert.Equal(t, "shop", parsed.DBName)
	assert.True(t, parsed.ParseTime)
	assert.Equal(t, "skip-verify", parsed.TLSConfig)
	assert.Equal(t, "60", parsed.Params["wait_timeout"])
}

func TestDSN_InvalidConnectionString(t *testing.T) {
	d := DatabaseConfig{ConnectionString: "not a dsn"}
	_, err := d.DSN()
	require.Error(t, err)
}

func TestEffectiveDatabaseName(t *testing.T) {
	tests := []struct {
		name       string
		cfg        DatabaseConfig
		wantName   string
		wantSource string
		wantErr    string
	}{
		{name: "configured", cfg: DatabaseConfig{Database: "shop"}, wantName: "shop", wantSource: "database.database"},
		{name: "from dsn", cfg: DatabaseConfig{ConnectionString: "u@tcp(h:1)/blog"}, wantName: "blog", wantSource: "dsn"},
		{name: "agreeing", cfg: DatabaseConfig{Database: "blog", ConnectionString: "u@tcp(h:1)/blog"}, wantName: "blog", wantSource: "database.database"},
		{name: "mismatch", cfg: DatabaseConfig{Database: "shop", ConnectionString: "u@tcp(h:1)/blog"}, wantErr: "database mismatch"},
		{name: "missing", cfg: DatabaseConfig{}, wantErr: "no database configured"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			name, source, err := tt.cfg.EffectiveDatabaseName()
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantName, name)
			assert.Equal(t, tt.wantSource, source)
		})
	}
}

func TestRegisterTLS(t *testing.T) {
	d := DatabaseConfig{TLS: DatabaseTLSConfig{Mode: "skip-verify"}}
	require.NoError(t, d.RegisterTLS())

	d.TLS = DatabaseTLSConfig{Mode: "verify-ca", CAFile: filepath.Join(t.TempDir(), "missing.pem")}
	require.Error(t, d.RegisterTLS())

	d.TLS = DatabaseTLSConfig{Mode: "verify-full", CertFile: "client.pem"}
	err := d.RegisterTLS()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cert_file and key_file")
}

func validConfig(t *testing.T) *Config {
	t.Helper()
	cfg, err := Load([]string{"-c", writeConfig(t, "database:\n  database: shop\n")})
	require.NoError(t, err)
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{name: "database port", mutate: func(c *Config) { c.Database.Port = 0 }, field: "database.port"},
		{name: "tls mode", mutate: func(c *Config) { c.Database.TLS.Mode = "sometimes" }, field: "database.tls.mode"},
		{name: "server port", mutate: func(c *Config) { c.Server.Port = 70000 }, field: "server.port"},
		{name: "negative timeout", mutate: func(c *Config) { c.Server.WriteTimeout = -time.Second }, field: "server.write_timeout"},
		{name: "oidc http issuer", mutate: func(c *Config) {
			c.Server.Auth.OIDCEnabled = true
			c.Server.Auth.OIDCIssuerURL = "http://issuer.test"
			c.Server.Auth.OIDCAudience = "relgraph"
		}, field: "server.auth.oidc_issuer_url"},
		{name: "oidc audience", mutate: func(c *Config) {
			c.Server.Auth.OIDCEnabled = true
			c.Server.Auth.OIDCIssuerURL = "https://issuer.test"
		}, field: "server.auth.oidc_audience"},
		{name: "admin reload without auth", mutate: func(c *Config) { c.Server.Admin.SchemaReloadEnabled = true }, field: "server.admin.auth_token"},
		{name: "sample ratio", mutate: func(c *Config) { c.Observability.TraceSampleRatio = 1.5 }, field: "observability.trace_sample_ratio"},
		{name: "log level", mutate: func(c *Config) { c.Observability.Logging.Level = "loud" }, field: "observability.logging.level"},
		{name: "otlp protocol", mutate: func(c *Config) {
			c.Observability.TracingEnabled = true
			c.Observability.OTLP.Protocol = "carrier-pigeon"
		}, field: "observability.otlp.protocol"},
		{name: "bad glob", mutate: func(c *Config) { c.Schema.Filters.DenyTables = []string{"[unclosed"} }, field: "schema.filters.deny_tables"},
		{name: "refresh bounds", mutate: func(c *Config) {
			c.Schema.RefreshMinInterval = time.Hour
			c.Schema.RefreshMaxInterval = time.Minute
		}, field: "schema.refresh_max_interval"},
		{name: "max in clause", mutate: func(c *Config) { c.Batching.MaxInClause = -1 }, field: "batching.max_in_clause"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(t)
			tt.mutate(cfg)
			result := cfg.Validate()
			require.True(t, result.HasErrors())
			fields := make([]string, 0, len(result.Errors))
			for _, e := range result.Errors {
				fields = append(fields, e.Field)
			}
			assert.Contains(t, fields, tt.field)
		})
	}
}

func TestValidate_Warnings(t *testing.T) {
	cfg := validConfig(t)
	cfg.Batching.Enabled = false
	cfg.Database.TLS.Mode = "skip-verify"

	result := cfg.Validate()
	require.False(t, result.HasErrors(), result.Error())
	fields := make([]string, 0, len(result.Warnings))
	for _, w := range result.Warnings {
		fields = append(fields, w.Field)
	}
	assert.ElementsMatch(t, []string{"batching.enabled", "database.tls.mode"}, fields)
}
