// Package trust implements trust-on-first-use (TOFU) certificate
// validation for name-addressed peers.
//
// A peer's public-key fingerprint is pinned to a server identity after
// an out-of-band approval step records it in the Store. Validation first
// delegates to standard chain-of-trust verification, then requires the
// presented end-entity key to match the pinned fingerprint exactly.
// There is no implicit first-use acceptance and no insecure fallback:
// unknown or mismatched peers never complete a handshake.
package trust

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/balthild/rune/pkg/fingerprint"
)

// Validation errors.
var (
	// ErrUnknownServer is returned when no fingerprint has been approved
	// for the peer's identity.
	ErrUnknownServer = errors.New("unknown server")

	// ErrFingerprintMismatch is returned when the presented key does not
	// match the pinned fingerprint. This signals either impersonation or
	// an unapproved key rotation.
	ErrFingerprintMismatch = errors.New("certificate fingerprint mismatch")

	// ErrInvalidServerName is returned for peer identities that are not
	// in DNS-name form. Pinning only supports name-addressed peers.
	ErrInvalidServerName = errors.New("invalid server name")

	// ErrNoCertificates is returned when the peer presents an empty
	// certificate chain.
	ErrNoCertificates = errors.New("no peer certificates presented")
)

// ValidatorConfig configures chain verification for a Validator.
type ValidatorConfig struct {
	// RootCAs is the pool used for chain-of-trust verification.
	// Nil means the system root pool.
	RootCAs *x509.CertPool

	// Now supplies the verification time. Nil means time.Now.
	Now func() time.Time
}

// Validator verifies peer certificate chains and enforces fingerprint
// pinning against a trust Store. Verify is read-only; Trust is the only
// mutator.
type Validator struct {
	store *Store
	roots *x509.CertPool
	now   func() time.Time
}

// NewValidator creates a validator backed by store.
func NewValidator(store *Store, cfg ValidatorConfig) (*Validator, error) {
	roots := cfg.RootCAs
	if roots == nil {
		pool, err := x509.SystemCertPool()
		if err != nil {
			return nil, fmt.Errorf("load system root pool: %w", err)
		}
		roots = pool
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Validator{store: store, roots: roots, now: now}, nil
}

// Trust records fingerprint as the approved identity for every domain in
// domains and persists the trust store before returning.
func (v *Validator) Trust(domains []string, fp string) error {
	return v.store.Trust(domains, fp)
}

// Verify checks a peer certificate chain against serverName at the given
// time. Steps, in order: standard chain-of-trust verification, public
// key fingerprint computation, server name form check, pinned
// fingerprint comparison. Any failure rejects the peer.
func (v *Validator) Verify(rawCerts [][]byte, serverName string, now time.Time) error {
	if len(rawCerts) == 0 {
		return ErrNoCertificates
	}

	leaf, err := x509.ParseCertificate(rawCerts[0])
	if err != nil {
		return fmt.Errorf("parse peer certificate: %w", err)
	}

	intermediates := x509.NewCertPool()
	for _, raw := range rawCerts[1:] {
		intermediate, err := x509.ParseCertificate(raw)
		if err != nil {
			continue
		}
		intermediates.AddCert(intermediate)
	}

	opts := x509.VerifyOptions{
		Roots:         v.roots,
		Intermediates: intermediates,
		CurrentTime:   now,
		KeyUsages:     []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}
	if _, err := leaf.Verify(opts); err != nil {
		return fmt.Errorf("chain verification failed: %w", err)
	}

	fp, err := fingerprint.FromCertificate(leaf)
	if err != nil {
		return err
	}

	if !isDNSName(serverName) {
		return ErrInvalidServerName
	}
	if err := leaf.VerifyHostname(serverName); err != nil {
		return fmt.Errorf("chain verification failed: %w", err)
	}

	pinned, ok := v.store.Fingerprint(serverName)
	switch {
	case !ok:
		return ErrUnknownServer
	case pinned != fp:
		return ErrFingerprintMismatch
	}
	return nil
}

// VerifyPeerCertificate returns a callback for tls.Config that verifies
// the peer chain against serverName using the validator's clock.
func (v *Validator) VerifyPeerCertificate(serverName string) func(rawCerts [][]byte, verifiedChains [][]*x509.Certificate) error {
	return func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
		return v.Verify(rawCerts, serverName, v.now())
	}
}

// ClientTLSConfig builds a TLS client configuration that dials
// serverName with TOFU pinning enforced.
//
// Go's built-in verification is skipped; the pinning callback performs
// chain, hostname, and fingerprint verification itself. Handshake
// signature checks (TLS 1.2/1.3) are unaffected and remain with the TLS
// stack.
func (v *Validator) ClientTLSConfig(serverName string) *tls.Config {
	return &tls.Config{
		MinVersion: tls.VersionTLS12,
		ServerName: serverName,

		InsecureSkipVerify:    true,
		VerifyPeerCertificate: v.VerifyPeerCertificate(serverName),
	}
}

// isDNSName reports whether name is in DNS-name form: a dot-separated
// sequence of valid labels that is not an IP address.
func isDNSName(name string) bool {
	if name == "" || len(name) > 253 {
		return false
	}
	if net.ParseIP(name) != nil {
		return false
	}

	for _, label := range strings.Split(strings.TrimSuffix(name, "."), ".") {
		if len(label) == 0 || len(label) > 63 {
			return false
		}
		if label[0] == '-' || label[len(label)-1] == '-' {
			return false
		}
		for i := 0; i < len(label); i++ {
			c := label[i]
			switch {
			case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-':
			default:
				return false
			}
		}
	}
	return true
}
