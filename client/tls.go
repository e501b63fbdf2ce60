package client

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"

	"github.com/otherjamesbrown/documind-cli/config"
)

// LoadClientTLSConfig builds the tls.Config for the gRPC gateway, or nil when
// TLS is disabled. A client certificate is optional: without one the gateway
// is verified but the CLI does not authenticate at the TLS layer. Without a
// CA certificate the system roots are used.
func LoadClientTLSConfig(cfg *config.TLSConfig) (*tls.Config, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	cfg.ResolvePaths()
	if err := checkCertFiles(cfg); err != nil {
		return nil, err
	}

	tlsConfig := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: cfg.SkipVerify, //nolint:gosec // opt-in for development gateways
	}

	if cfg.ClientCert != "" || cfg.ClientKey != "" {
		cert, err := tls.LoadX509KeyPair(cfg.ClientCert, cfg.ClientKey)
		if err != nil {
			return nil, fmt.Errorf("load client cert: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}

	if cfg.CACert != "" && !cfg.SkipVerify {
		pem, err := os.ReadFile(cfg.CACert)
		if err != nil {
			return nil, fmt.Errorf("read CA cert: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("parse CA cert %s: invalid PEM", cfg.CACert)
		}
		tlsConfig.RootCAs = pool
	}
	return tlsConfig, nil
}

// checkCertFiles reports missing files by name before any TLS parsing so
// the error says which setting is wrong.
func checkCertFiles(cfg *config.TLSConfig) error {
	if (cfg.ClientCert == "") != (cfg.ClientKey == "") {
		return fmt.Errorf("tls.client_cert and tls.client_key must be set together")
	}
	files := []struct{ name, path string }{
		{"CA certificate", cfg.CACert},
		{"client certificate", cfg.ClientCert},
		{"client key", cfg.ClientKey},
	}
	for _, f := range files {
		if f.path == "" {
			continue
		}
		if _, err := os.Stat(f.path); err != nil {
			return fmt.Errorf("%s not found: %s", f.name, f.path)
		}
	}
	return nil
}
