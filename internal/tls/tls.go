// Package tls builds client TLS settings for talking to the cluster-management server.
package tls

import (
	cryptotls "crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"strings"
)

// Options selects how the server certificate is verified.
type Options struct {
	// CAFile is a PEM bundle added to the system roots.
	CAFile string
	// ServerName overrides the name checked against the certificate.
	ServerName string
	// InsecureSkipVerify disables verification entirely.
	InsecureSkipVerify bool
}

// Empty reports whether opts leaves the default transport untouched.
func (o Options) Empty() bool {
	return strings.TrimSpace(o.CAFile) == "" && strings.TrimSpace(o.ServerName) == "" && !o.InsecureSkipVerify
}

// ClientConfig returns a TLS config for opts, or nil when opts is empty.
func ClientConfig(opts Options) (*cryptotls.Config, error) {
	if opts.Empty() {
		return nil, nil
	}
	cfg := &cryptotls.Config{
		MinVersion:         cryptotls.VersionTLS12,
		ServerName:         strings.TrimSpace(opts.ServerName),
		InsecureSkipVerify: opts.InsecureSkipVerify, //nolint:gosec // explicit opt-in
	}

	caFile := strings.TrimSpace(opts.CAFile)
	if caFile == "" {
		return cfg, nil
	}
	pem, err := os.ReadFile(caFile)
	if err != nil {
		return nil, fmt.Errorf("read CA file %q: %w", caFile, err)
	}
	pool, err := x509.SystemCertPool()
	if err != nil || pool == nil {
		pool = x509.NewCertPool()
	}
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("CA file %q contains no PEM certificates", caFile)
	}
	cfg.RootCAs = pool
	return cfg, nil
}
