// Command devtoken mints RS256 bearer tokens for exercising OIDC auth
// against a locally run issuer.
package main

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/pflag"
)

func main() {
	if err := run(os.Args[1:], os.Stdout, time.Now()); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

func run(args []string, stdout io.Writer, now time.Time) error {
	fs := pflag.NewFlagSet("devtoken", pflag.ContinueOnError)
	keyPath := fs.String("key", ".auth/jwt_private.pem", "RSA private key (PEM)")
	issuer := fs.String("issuer", "https://localhost:9000", "Token issuer")
	audience := fs.String("audience", "relgraph", "Token audience, comma-separated")
	subject := fs.String("subject", "dev-user", "Token subject")
	kid := fs.String("kid", "local-key", "Key ID header")
	expires := fs.Duration("expires", time.Hour, "Token lifetime")
	if err := fs.Parse(args); err != nil {
		return err
	}

	key, err := loadPrivateKey(*keyPath)
	if err != nil {
		return err
	}
	signed, err := mint(key, *kid, jwt.MapClaims{
		"iss": *issuer,
		"sub": *subject,
		"aud": splitList(*audience),
		"iat": now.Unix(),
		"nbf": now.Add(-time.Minute).Unix(),
		"exp": now.Add(*expires).Unix(),
	})
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(stdout, signed)
	return err
}

func mint(key *rsa.PrivateKey, kid string, claims jwt.MapClaims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = kid
	return token.SignedString(key)
}

func loadPrivateKey(path string) (*rsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read private key: %w", err)
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("failed to decode private key pem")
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("unsupported private key type %T", parsed)
	}
	return key, nil
}

func splitList(value string) []string {
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
