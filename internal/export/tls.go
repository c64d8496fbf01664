// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package export

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
)

// TLSConfig describes how exporters verify the ingestion endpoint and,
// optionally, authenticate to it with a client certificate.
type TLSConfig struct {
	// CAFile is a PEM bundle used instead of the system roots.
	CAFile string `yaml:"ca_file"`

	// CertFile and KeyFile enable mutual TLS when both are set.
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`

	ServerName string `yaml:"server_name"`

	// InsecureSkipVerify disables certificate verification. Development only.
	InsecureSkipVerify bool `yaml:"insecure_skip_verify"`
}

// IsZero reports whether no TLS settings are present.
func (c TLSConfig) IsZero() bool {
	return c == TLSConfig{}
}

// Build returns a *tls.Config with TLS 1.2 as the floor. A zero TLSConfig
// yields nil so callers keep their transport defaults.
func (c TLSConfig) Build() (*tls.Config, error) {
	if c.IsZero() {
		return nil, nil
	}

	out := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		ServerName:         c.ServerName,
		InsecureSkipVerify: c.InsecureSkipVerify, //nolint:gosec // opt-in for local collectors
	}

	if c.CAFile != "" {
		pem, err := os.ReadFile(c.CAFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA certificate: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("failed to parse CA certificate %s", c.CAFile)
		}
		out.RootCAs = pool
	}

	switch {
	case c.CertFile != "" && c.KeyFile != "":
		cert, err := tls.LoadX509KeyPair(c.CertFile, c.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load client certificate: %w", err)
		}
		out.Certificates = []tls.Certificate{cert}
	case c.CertFile != "" || c.KeyFile != "":
		return nil, fmt.Errorf("client certificate requires both cert_file and key_file")
	}

	return out, nil
}

// ValidateTLS rejects configurations below TLS 1.2.
func ValidateTLS(cfg *tls.Config) error {
	if cfg == nil {
		return nil
	}
	if cfg.MinVersion < tls.VersionTLS12 {
		return fmt.Errorf("minimum TLS version must be 1.2 or higher, got %#x", cfg.MinVersion)
	}
	return nil
}
