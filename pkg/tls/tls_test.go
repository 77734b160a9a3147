package tls

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	cryptotls "crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// writeSelfSigned writes a self-signed certificate and key usable as both
// leaf and CA.
func writeSelfSigned(t *testing.T) (certFile, keyFile string) {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "plugcast-test"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
		BasicConstraintsValid: true,
		IsCA:                  true,
		DNSNames:              []string{"localhost"},
	}

	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("create certificate: %v", err)
	}
	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		t.Fatalf("marshal key: %v", err)
	}

	dir := t.TempDir()
	certFile = filepath.Join(dir, "cert.pem")
	keyFile = filepath.Join(dir, "key.pem")

	if err := os.WriteFile(certFile, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(keyFile, pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER}), 0o600); err != nil {
		t.Fatal(err)
	}
	return certFile, keyFile
}

func TestConfig_Validate(t *testing.T) {
	certFile, keyFile := writeSelfSigned(t)

	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"disabled", Config{}, false},
		{"disabled ignores paths", Config{CertFile: "/nope"}, false},
		{"server only", Config{Enabled: true, CertFile: certFile, KeyFile: keyFile}, false},
		{"mutual", Config{Enabled: true, CertFile: certFile, KeyFile: keyFile, CAFile: certFile}, false},
		{"missing key", Config{Enabled: true, CertFile: certFile}, true},
		{"unreadable cert", Config{Enabled: true, CertFile: "/nope/cert.pem", KeyFile: keyFile}, true},
		{"unreadable ca", Config{Enabled: true, CertFile: certFile, KeyFile: keyFile, CAFile: "/nope/ca.pem"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_Disabled(t *testing.T) {
	var c Config

	server, err := c.ServerConfig()
	if err != nil || server != nil {
		t.Errorf("ServerConfig() = %v, %v; want nil, nil", server, err)
	}
	client, err := c.ClientConfig()
	if err != nil || client != nil {
		t.Errorf("ClientConfig() = %v, %v; want nil, nil", client, err)
	}
	if c.Mutual() {
		t.Error("Mutual() = true for disabled config")
	}
}

func TestConfig_ServerConfig(t *testing.T) {
	certFile, keyFile := writeSelfSigned(t)

	plain := Config{Enabled: true, CertFile: certFile, KeyFile: keyFile}
	cfg, err := plain.ServerConfig()
	if err != nil {
		t.Fatalf("ServerConfig() error: %v", err)
	}
	if cfg.MinVersion != cryptotls.VersionTLS13 {
		t.Errorf("MinVersion = %x, want TLS 1.3", cfg.MinVersion)
	}
	if cfg.ClientAuth != cryptotls.NoClientCert {
		t.Errorf("ClientAuth = %v, want NoClientCert without CA", cfg.ClientAuth)
	}
	if len(cfg.Certificates) != 1 {
		t.Errorf("Certificates = %d, want 1", len(cfg.Certificates))
	}

	mutual := Config{Enabled: true, CertFile: certFile, KeyFile: keyFile, CAFile: certFile}
	cfg, err = mutual.ServerConfig()
	if err != nil {
		t.Fatalf("ServerConfig() error: %v", err)
	}
	if cfg.ClientAuth != cryptotls.RequireAndVerifyClientCert {
		t.Errorf("ClientAuth = %v, want RequireAndVerifyClientCert", cfg.ClientAuth)
	}
	if cfg.ClientCAs == nil {
		t.Error("ClientCAs not set")
	}
}

func TestConfig_ClientConfig(t *testing.T) {
	certFile, keyFile := writeSelfSigned(t)

	mutual := Config{Enabled: true, CertFile: certFile, KeyFile: keyFile, CAFile: certFile}
	cfg, err := mutual.ClientConfig()
	if err != nil {
		t.Fatalf("ClientConfig() error: %v", err)
	}
	if cfg.RootCAs == nil {
		t.Error("RootCAs not set")
	}
	if len(cfg.Certificates) != 1 {
		t.Errorf("Certificates = %d, want 1", len(cfg.Certificates))
	}

	plain := Config{Enabled: true, CertFile: certFile, KeyFile: keyFile}
	cfg, err = plain.ClientConfig()
	if err != nil {
		t.Fatalf("ClientConfig() error: %v", err)
	}
	if cfg.RootCAs != nil || len(cfg.Certificates) != 0 {
		t.Error("client without CA should use the system pool and no certificate")
	}
}

func TestConfig_BadCA(t *testing.T) {
	certFile, keyFile := writeSelfSigned(t)
	badCA := filepath.Join(t.TempDir(), "ca.pem")
	if err := os.WriteFile(badCA, []byte("not a certificate"), 0o600); err != nil {
		t.Fatal(err)
	}

	c := Config{Enabled: true, CertFile: certFile, KeyFile: keyFile, CAFile: badCA}
	if _, err := c.ServerConfig(); err == nil {
		t.Error("expected error for unparsable CA")
	}
	if _, err := c.ClientConfig(); err == nil {
		t.Error("expected error for unparsable CA")
	}
}
