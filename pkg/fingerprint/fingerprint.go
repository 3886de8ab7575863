// Package fingerprint derives stable device identities from certificate
// public keys.
//
// A fingerprint is the SHA-256 digest of the certificate's public key in
// PKIX DER form, encoded with Ascii85. Two certificates sharing a
// fingerprint are treated as the same device, independent of hostname or
// IP. Equality is exact string comparison.
package fingerprint

import (
	"crypto/sha256"
	"crypto/x509"
	"encoding/ascii85"
	"fmt"
)

// MaxEncodedLength is the maximum length of an encoded fingerprint.
// Ascii85 encodes the 32-byte SHA-256 digest into at most 40 characters;
// all-zero 4-byte groups collapse to the single character 'z'.
const MaxEncodedLength = 40

// FromPublicKeyDER computes the fingerprint of a public key given in
// PKIX DER form.
func FromPublicKeyDER(pubKeyDER []byte) string {
	digest := sha256.Sum256(pubKeyDER)
	buf := make([]byte, ascii85.MaxEncodedLen(len(digest)))
	n := ascii85.Encode(buf, digest[:])
	return string(buf[:n])
}

// FromCertificate computes the fingerprint of a certificate's public key.
func FromCertificate(cert *x509.Certificate) (string, error) {
	if cert == nil {
		return "", fmt.Errorf("nil certificate")
	}
	pubKeyDER, err := x509.MarshalPKIXPublicKey(cert.PublicKey)
	if err != nil {
		return "", fmt.Errorf("marshal public key: %w", err)
	}
	return FromPublicKeyDER(pubKeyDER), nil
}

// FromRawCertificate parses a DER certificate and computes the
// fingerprint of its public key.
func FromRawCertificate(certDER []byte) (string, error) {
	cert, err := x509.ParseCertificate(certDER)
	if err != nil {
		return "", fmt.Errorf("parse certificate: %w", err)
	}
	return FromCertificate(cert)
}

// Valid reports whether s has the shape of an encoded fingerprint:
// a non-empty string of at most MaxEncodedLength Ascii85 alphabet
// characters.
func Valid(s string) bool {
	if len(s) == 0 || len(s) > MaxEncodedLength {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < '!' || c > 'u' {
			if c != 'z' {
				return false
			}
		}
	}
	return true
}
