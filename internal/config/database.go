package config

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
)

// tlsConfigName is the name custom TLS settings are registered under with the driver.
const tlsConfigName = "relgraph-custom"

// DSN returns the driver data source name. An explicit database.dsn wins
// over the discrete fields; parseTime and UTC are always forced so
// temporal columns decode as time.Time.
func (d *DatabaseConfig) DSN() (string, error) {
	var cfg *mysql.Config
	if dsn := strings.TrimSpace(d.ConnectionString); dsn != "" {
		parsed, err := mysql.ParseDSN(dsn)
		if err != nil {
			return "", fmt.Errorf("database.dsn is invalid: %w", err)
		}
		cfg = parsed
	} else {
		cfg = mysql.NewConfig()
		cfg.User = d.User
		cfg.Passwd = d.Password
		cfg.Net = "tcp"
		cfg.Addr = net.JoinHostPort(d.Host, strconv.Itoa(d.Port))
		cfg.DBName = d.Database
	}
	if cfg.DBName == "" {
		cfg.DBName = strings.TrimSpace(d.Database)
	}
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	if param := d.tlsParam(); param != "" {
		cfg.TLSConfig = param
	}
	return cfg.FormatDSN(), nil
}

// EffectiveDatabaseName returns the schema to introspect, and whether it
// came from database.database or from the DSN.
func (d *DatabaseConfig) EffectiveDatabaseName() (name, source string, err error) {
	configured := strings.TrimSpace(d.Database)
	var fromDSN string
	if dsn := strings.TrimSpace(d.ConnectionString); dsn != "" {
		parsed, err := mysql.ParseDSN(dsn)
		if err != nil {
			return "", "", fmt.Errorf("database.dsn is invalid: %w", err)
		}
		fromDSN = strings.TrimSpace(parsed.DBName)
	}

	switch {
	case configured != "" && fromDSN != "" && configured != fromDSN:
		return "", "", fmt.Errorf("database mismatch: database.database=%q but database.dsn targets %q", configured, fromDSN)
	case configured != "":
		return configured, "database.database", nil
	case fromDSN != "":
		return fromDSN, "dsn", nil
	}
	return "", "", errors.New("no database configured: set database.database or include /<database> in database.dsn")
}

func (d *DatabaseConfig) tlsParam() string {
	switch d.TLS.Mode {
	case "":
		return ""
	case "off":
		return "false"
	case "skip-verify":
		return "skip-verify"
	case "verify-ca", "verify-full":
		return tlsConfigName
	default:
		return d.TLS.Mode
	}
}

// RegisterTLS registers the custom TLS settings with the driver. It must run
// before the connection is opened and is a no-op for modes the driver
// handles itself.
func (d *DatabaseConfig) RegisterTLS() error {
	if d.TLS.Mode != "verify-ca" && d.TLS.Mode != "verify-full" {
		return nil
	}
	tlsCfg, err := d.TLS.build()
	if err != nil {
		return fmt.Errorf("failed to build TLS config: %w", err)
	}
	if err := mysql.RegisterTLSConfig(tlsConfigName, tlsCfg); err != nil {
		return fmt.Errorf("failed to register TLS config: %w", err)
	}
	return nil
}

func (t DatabaseTLSConfig) build() (*tls.Config, error) {
	tlsCfg := &tls.Config{MinVersion: tls.VersionTLS12}

	if t.CAFile != "" {
		pem, err := os.ReadFile(t.CAFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA file %q: %w", t.CAFile, err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("failed to parse CA certificate from %q", t.CAFile)
		}
		tlsCfg.RootCAs = pool
	}

	switch {
	case t.CertFile != "" && t.KeyFile != "":
		cert, err := tls.LoadX509KeyPair(t.CertFile, t.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load client certificate: %w", err)
		}
		tlsCfg.Certificates = []tls.Certificate{cert}
	case t.CertFile != "" || t.KeyFile != "":
		return nil, errors.New("both cert_file and key_file must be specified for client certificate authentication")
	}

	if t.Mode == "verify-full" {
		tlsCfg.ServerName = t.ServerName
		return tlsCfg, nil
	}

	// verify-ca checks the chain but not the hostname.
	roots := tlsCfg.RootCAs
	tlsCfg.InsecureSkipVerify = true
	tlsCfg.VerifyConnection = func(cs tls.ConnectionState) error {
		if len(cs.PeerCertificates) == 0 {
			return errors.New("server presented no certificate")
		}
		opts := x509.VerifyOptions{Roots: roots, Intermediates: x509.NewCertPool()}
		for _, cert := range cs.PeerCertificates[1:] {
			opts.Intermediates.AddCert(cert)
		}
		_, err := cs.PeerCertificates[0].Verify(opts)
		return err
	}
	return tlsCfg, nil
}
