package config

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"fmt"
	"math/big"
	"net"
	"os"
	"strings"
	"time"
)

// TLSSettings holds environment-driven TLS configuration.
type TLSSettings struct {
	EnableTLS       bool
	CertPath        string
	KeyPath         string
	Env             string
	AllowSelfSigned bool // generate a self-signed pair in development when files are missing
}

// Vars: ENABLE_TLS, TLS_CERT_PATH / TLS_KEY_PATH, TLS_SELF_SIGNED.
// TLS is always on in production.
func loadTLSSettings(env string) TLSSettings {
	enableTLS := strings.EqualFold(os.Getenv("ENABLE_TLS"), "true")
	if env == "production" {
		enableTLS = true
	}

	return TLSSettings{
		EnableTLS:       enableTLS,
		CertPath:        os.Getenv("TLS_CERT_PATH"),
		KeyPath:         os.Getenv("TLS_KEY_PATH"),
		Env:             env,
		AllowSelfSigned: !strings.EqualFold(os.Getenv("TLS_SELF_SIGNED"), "false"),
	}
}

func (s TLSSettings) Validate() error {
	if s.Env != "production" {
		return nil
	}
	if !s.EnableTLS {
		return fmt.Errorf("TLS must be enabled in production")
	}
	if s.CertPath == "" || s.KeyPath == "" {
		return fmt.Errorf("TLS_CERT_PATH and TLS_KEY_PATH are required in production")
	}
	return nil
}

// Build returns the server TLS config. Certificate files win; development may
// fall back to a self-signed localhost certificate.
func (s TLSSettings) Build() (*tls.Config, error) {
	var cert tls.Certificate
	var err error

	switch {
	case s.CertPath != "" && s.KeyPath != "":
		cert, err = tls.LoadX509KeyPair(s.CertPath, s.KeyPath)
	case s.Env != "production" && s.AllowSelfSigned:
		cert, err = selfSignedCertificate(time.Now())
	default:
		return nil, fmt.Errorf("no TLS certificates available")
	}
	if err != nil {
		return nil, err
	}

	return &tls.Config{Certificates: []tls.Certificate{cert}, MinVersion: tls.VersionTLS12}, nil
}

func selfSignedCertificate(now time.Time) (tls.Certificate, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return tls.Certificate{}, err
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return tls.Certificate{}, err
	}

	tmpl := x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: "localhost"},
		NotBefore:             now.Add(-time.Hour),
		NotAfter:              now.Add(365 * 24 * time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		DNSNames:              []string{"localhost"},
		IPAddresses:           []net.IP{net.ParseIP("127.0.0.1")},
		BasicConstraintsValid: true,
	}

	der, err := x509.CreateCertificate(rand.Reader, &tmpl, &tmpl, &key.PublicKey, key)
	if err != nil {
		return tls.Certificate{}, err
	}

	return tls.Certificate{Certificate: [][]byte{der}, PrivateKey: key}, nil
}
