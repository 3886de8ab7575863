// Package cert manages the local node's identity certificate.
//
// Every node owns a long-lived self-signed certificate whose public-key
// fingerprint is the node's identity on the network. The certificate and
// key live in the node's configuration directory and are generated on
// first use. Peers pin this fingerprint after an out-of-band approval
// step; the certificate itself never leaves the chain-of-trust path.
package cert

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"errors"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/balthild/rune/pkg/fingerprint"
)

// Identity file names inside the configuration directory.
const (
	identityCertFile  = "identity.pem"
	identityKeyFile   = "identity.key"
	certificateIDFile = ".certificate-id"
)

// IdentityValidity is the validity period for self-signed identity
// certificates. Long-lived, since rotation invalidates every pinned
// fingerprint on every peer.
const IdentityValidity = 10 * 365 * 24 * time.Hour

// ErrInvalidCert is returned for nil or unusable certificates.
var ErrInvalidCert = errors.New("invalid certificate")

// Identity is a node's key pair, self-signed certificate, and the
// fingerprint derived from the certificate's public key.
type Identity struct {
	Certificate *x509.Certificate
	PrivateKey  *ecdsa.PrivateKey
	Fingerprint string
}

// TLSCertificate returns the identity as a tls.Certificate for use in
// server or client TLS configurations.
func (id *Identity) TLSCertificate() tls.Certificate {
	return tls.Certificate{
		Certificate: [][]byte{id.Certificate.Raw},
		PrivateKey:  id.PrivateKey,
		Leaf:        id.Certificate,
	}
}

// GenerateIdentity creates a fresh ECDSA P-256 key pair and a
// self-signed certificate with the given common name.
func GenerateIdentity(commonName string) (*Identity, error) {
	if commonName == "" {
		return nil, fmt.Errorf("%w: common name required", ErrInvalidCert)
	}

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate key pair: %w", err)
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, fmt.Errorf("generate serial number: %w", err)
	}

	now := time.Now()
	template := &x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{CommonName: commonName},
		DNSNames:     []string{sanitizeDNSName(commonName)},
		NotBefore:    now.Add(-time.Hour),
		NotAfter:     now.Add(IdentityValidity),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},

		BasicConstraintsValid: true,
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		return nil, fmt.Errorf("create certificate: %w", err)
	}
	parsed, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("parse generated certificate: %w", err)
	}

	fp, err := fingerprint.FromCertificate(parsed)
	if err != nil {
		return nil, err
	}

	return &Identity{
		Certificate: parsed,
		PrivateKey:  key,
		Fingerprint: fp,
	}, nil
}

// LoadOrGenerateIdentity returns the identity stored in configDir,
// generating and persisting a new one when none exists. A partially
// present pair (certificate without key, or vice versa) is an error
// rather than a silent regeneration, since regenerating breaks every
// peer's pinned fingerprint.
func LoadOrGenerateIdentity(configDir, commonName string) (*Identity, error) {
	certPath := filepath.Join(configDir, identityCertFile)
	keyPath := filepath.Join(configDir, identityKeyFile)

	certExists := fileExists(certPath)
	keyExists := fileExists(keyPath)

	switch {
	case certExists && keyExists:
		cert, err := ReadCertFile(certPath)
		if err != nil {
			return nil, fmt.Errorf("read identity certificate: %w", err)
		}
		key, err := ReadKeyFile(keyPath)
		if err != nil {
			return nil, fmt.Errorf("read identity key: %w", err)
		}
		fp, err := fingerprint.FromCertificate(cert)
		if err != nil {
			return nil, err
		}
		return &Identity{Certificate: cert, PrivateKey: key, Fingerprint: fp}, nil

	case certExists != keyExists:
		return nil, fmt.Errorf("%w: incomplete identity pair in %s", ErrInvalidCert, configDir)
	}

	if err := os.MkdirAll(configDir, 0700); err != nil {
		return nil, fmt.Errorf("create config directory: %w", err)
	}

	id, err := GenerateIdentity(commonName)
	if err != nil {
		return nil, err
	}
	if err := WriteCertFile(certPath, id.Certificate); err != nil {
		return nil, fmt.Errorf("write identity certificate: %w", err)
	}
	if err := WriteKeyFile(keyPath, id.PrivateKey); err != nil {
		return nil, fmt.Errorf("write identity key: %w", err)
	}
	return id, nil
}

// CertificateID returns the stable certificate ID persisted in
// configDir, generating one on first call. The ID names the identity
// certificate's subject when no user alias is configured.
func CertificateID(configDir string) (string, error) {
	path := filepath.Join(configDir, certificateIDFile)

	data, err := os.ReadFile(path)
	if err == nil {
		id := strings.TrimSpace(string(data))
		if id != "" {
			return id, nil
		}
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("read certificate id: %w", err)
	}

	if err := os.MkdirAll(configDir, 0700); err != nil {
		return "", fmt.Errorf("create config directory: %w", err)
	}

	id := uuid.NewString()
	if err := os.WriteFile(path, []byte(id+"\n"), 0600); err != nil {
		return "", fmt.Errorf("write certificate id: %w", err)
	}
	return id, nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// sanitizeDNSName lowers the name and replaces characters that are not
// valid in a DNS label, so an arbitrary device alias can serve as a SAN.
func sanitizeDNSName(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '.':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}
	out := strings.Trim(b.String(), "-.")
	if out == "" {
		out = "rune-device"
	}
	return out
}
