package client

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"

	"github.com/otherjamesbrown/penf-live/config"
)

// TLSFromConfig builds the transport security for the enhancement connection.
// It returns nil when TLS is disabled.
//
// A client certificate and key are presented only when both are configured;
// without them the connection is server-authenticated TLS. Without a CA
// certificate the system roots verify the server.
func TLSFromConfig(cfg config.TLSConfig) (*tls.Config, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	cfg.ResolvePaths()

	if err := checkFiles(cfg); err != nil {
		return nil, err
	}

	tlsConfig := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: cfg.SkipVerify,
	}

	switch {
	case cfg.ClientCert != "" && cfg.ClientKey != "":
		cert, err := tls.LoadX509KeyPair(cfg.ClientCert, cfg.ClientKey)
		if err != nil {
			return nil, fmt.Errorf("loading client certificate: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	case cfg.ClientCert != "" || cfg.ClientKey != "":
		return nil, errors.New("client_cert and client_key must be configured together")
	}

	if cfg.CACert != "" && !cfg.SkipVerify {
		pem, err := os.ReadFile(cfg.CACert)
		if err != nil {
			return nil, fmt.Errorf("reading CA certificate: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("CA certificate %s: no PEM certificates found", cfg.CACert)
		}
		tlsConfig.RootCAs = pool
	}

	return tlsConfig, nil
}

// checkFiles reports the first configured certificate file that is missing.
func checkFiles(cfg config.TLSConfig) error {
	for _, f := range []struct{ name, path string }{
		{"CA certificate", cfg.CACert},
		{"client certificate", cfg.ClientCert},
		{"client key", cfg.ClientKey},
	} {
		if f.path == "" {
			continue
		}
		if _, err := os.Stat(f.path); err != nil {
			return fmt.Errorf("%s not found: %s", f.name, f.path)
		}
	}
	return nil
}
