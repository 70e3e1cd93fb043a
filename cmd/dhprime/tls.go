package main

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/viper"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
)

// A CA file contained no usable PEM certificates.
var errFailedToAppendCACert = errors.New("failed to append CA cert to CA pool")

// The certificate, key and CA pool named by the shared TLS flags. Each
// connection role derives its own tls.Config from the same material.
type tlsMaterial struct {
	certificates []tls.Certificate
	pool         *x509.CertPool
}

// Reads the TLS flags through viper and loads everything they reference. An
// empty material is returned when no flags are set.
func loadTLSMaterial() (*tlsMaterial, error) {
	return newTLSMaterial(viper.GetString(TLSCertFlagName), viper.GetString(TLSKeyFlagName), viper.GetStringSlice(CACertFlagName))
}

func newTLSMaterial(certFile, keyFile string, cacerts []string) (*tlsMaterial, error) {
	logger := logger.V(1).WithValues(TLSCertFlagName, certFile, TLSKeyFlagName, keyFile, CACertFlagName, cacerts)
	material := &tlsMaterial{}
	if certFile != "" && keyFile != "" {
		logger.Info("Loading x509 key pair")
		cert, err := tls.LoadX509KeyPair(certFile, keyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load certificate %s and key %s: %w", certFile, keyFile, err)
		}
		material.certificates = []tls.Certificate{cert}
	}
	if len(cacerts) == 0 {
		return material, nil
	}
	pool, err := x509.SystemCertPool()
	if err != nil {
		return nil, fmt.Errorf("failed to copy system certificate pool: %w", err)
	}
	for _, cacert := range cacerts {
		pem, err := os.ReadFile(cacert)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA file %s: %w", cacert, err)
		}
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("%w: %s", errFailedToAppendCACert, cacert)
		}
	}
	logger.Info("Loaded CA certificate pool", "count", len(cacerts))
	material.pool = pool
	return material, nil
}

// Config for the listening side; the CA pool verifies peer certificates, which
// are demanded only when requireClientCert is true.
func (m *tlsMaterial) serverConfig(requireClientCert bool) *tls.Config {
	config := &tls.Config{
		MinVersion:   tls.VersionTLS12,
		Certificates: m.certificates,
		ClientCAs:    m.pool,
		ClientAuth:   tls.NoClientCert,
	}
	switch {
	case requireClientCert:
		config.ClientAuth = tls.RequireAndVerifyClientCert
	case m.pool != nil:
		config.ClientAuth = tls.VerifyClientCertIfGiven
	}
	return config
}

// Config for the dialing side. A nil pool falls back to the system roots;
// serverName overrides the name checked against the peer certificate.
func (m *tlsMaterial) clientConfig(serverName string) *tls.Config {
	return &tls.Config{
		MinVersion:   tls.VersionTLS12,
		Certificates: m.certificates,
		RootCAs:      m.pool,
		ServerName:   serverName,
	}
}

// Builds client transport credentials from the TLS flags; plaintext is used
// when insecureTransport is true.
func newClientTransportCredentials(insecureTransport bool) (credentials.TransportCredentials, error) {
	if insecureTransport {
		return insecure.NewCredentials(), nil
	}
	material, err := loadTLSMaterial()
	if err != nil {
		return nil, err
	}
	return credentials.NewTLS(material.clientConfig("")), nil
}
