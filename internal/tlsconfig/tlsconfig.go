// Package tlsconfig builds the client TLS settings shared by the HTTP and
// gRPC builders. TLS 1.2 is the minimum in every configuration.
package tlsconfig

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
)

var (
	// ErrIncompleteKeyPair is returned when only one of CertFile and KeyFile is set.
	ErrIncompleteKeyPair = errors.New("tlsconfig: client certificate and key must be provided together")

	// ErrNoCertificates is returned when the CA file holds no PEM certificate.
	ErrNoCertificates = errors.New("tlsconfig: no certificates found in CA file")
)

// Files names the PEM files of a client TLS configuration. Empty fields are
// skipped: no CAFile means the system roots, no key pair means no mTLS.
type Files struct {
	CAFile   string
	CertFile string
	KeyFile  string

	// ServerName overrides the name verified against the server certificate.
	ServerName string

	// InsecureSkipVerify disables server verification. Tests only.
	InsecureSkipVerify bool
}

// Default returns the configuration used when nothing was configured.
func Default() *tls.Config {
	return &tls.Config{MinVersion: tls.VersionTLS12}
}

// Load reads the files and returns the resulting configuration.
func (f Files) Load() (*tls.Config, error) {
	cfg := Default()
	cfg.ServerName = f.ServerName
	cfg.InsecureSkipVerify = f.InsecureSkipVerify // #nosec G402

	if f.CAFile != "" {
		pem, err := os.ReadFile(f.CAFile)
		if err != nil {
			return nil, fmt.Errorf("tlsconfig: read CA file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("%w: %s", ErrNoCertificates, f.CAFile)
		}
		cfg.RootCAs = pool
	}

	switch {
	case f.CertFile != "" && f.KeyFile != "":
		pair, err := tls.LoadX509KeyPair(f.CertFile, f.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("tlsconfig: load client certificate: %w", err)
		}
		cfg.Certificates = []tls.Certificate{pair}
	case f.CertFile != "" || f.KeyFile != "":
		return nil, ErrIncompleteKeyPair
	}

	return cfg, nil
}
