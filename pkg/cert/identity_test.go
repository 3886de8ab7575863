package cert

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/balthild/rune/pkg/fingerprint"
)

func TestGenerateIdentity(t *testing.T) {
	id, err := GenerateIdentity("Living Room Speaker")
	if err != nil {
		t.Fatalf("GenerateIdentity() error = %v", err)
	}

	if id.Certificate == nil {
		t.Fatal("Certificate should not be nil")
	}
	if id.PrivateKey == nil {
		t.Fatal("PrivateKey should not be nil")
	}
	if id.Certificate.Subject.CommonName != "Living Room Speaker" {
		t.Errorf("CommonName = %q, want %q", id.Certificate.Subject.CommonName, "Living Room Speaker")
	}
	if !fingerprint.Valid(id.Fingerprint) {
		t.Errorf("fingerprint %q should validate", id.Fingerprint)
	}

	// SAN must be a usable DNS label form of the alias.
	if len(id.Certificate.DNSNames) != 1 || id.Certificate.DNSNames[0] != "living-room-speaker" {
		t.Errorf("DNSNames = %v, want [living-room-speaker]", id.Certificate.DNSNames)
	}
}

func TestGenerateIdentityEmptyName(t *testing.T) {
	if _, err := GenerateIdentity(""); err == nil {
		t.Error("GenerateIdentity(\"\") should fail")
	}
}

func TestGenerateIdentityDistinctFingerprints(t *testing.T) {
	a, err := GenerateIdentity("a")
	if err != nil {
		t.Fatalf("GenerateIdentity() error = %v", err)
	}
	b, err := GenerateIdentity("a")
	if err != nil {
		t.Fatalf("GenerateIdentity() error = %v", err)
	}
	if a.Fingerprint == b.Fingerprint {
		t.Error("two generated identities should not share a fingerprint")
	}
}

func TestLoadOrGenerateIdentityRoundTrip(t *testing.T) {
	dir := t.TempDir()

	first, err := LoadOrGenerateIdentity(dir, "node")
	if err != nil {
		t.Fatalf("LoadOrGenerateIdentity() error = %v", err)
	}

	// Second call must load, not regenerate.
	second, err := LoadOrGenerateIdentity(dir, "node")
	if err != nil {
		t.Fatalf("LoadOrGenerateIdentity() reload error = %v", err)
	}
	if first.Fingerprint != second.Fingerprint {
		t.Errorf("reload changed fingerprint: %q vs %q", first.Fingerprint, second.Fingerprint)
	}
}

func TestLoadOrGenerateIdentityCreatesDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "config")

	if _, err := LoadOrGenerateIdentity(dir, "node"); err != nil {
		t.Fatalf("LoadOrGenerateIdentity() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "identity.pem")); err != nil {
		t.Errorf("identity.pem should exist: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "identity.key")); err != nil {
		t.Errorf("identity.key should exist: %v", err)
	}
}

func TestLoadOrGenerateIdentityIncompletePair(t *testing.T) {
	dir := t.TempDir()

	if _, err := LoadOrGenerateIdentity(dir, "node"); err != nil {
		t.Fatalf("LoadOrGenerateIdentity() error = %v", err)
	}
	if err := os.Remove(filepath.Join(dir, "identity.key")); err != nil {
		t.Fatalf("remove key: %v", err)
	}

	if _, err := LoadOrGenerateIdentity(dir, "node"); err == nil {
		t.Error("incomplete identity pair should fail, not regenerate")
	}
}

func TestCertificateIDStable(t *testing.T) {
	dir := t.TempDir()

	first, err := CertificateID(dir)
	if err != nil {
		t.Fatalf("CertificateID() error = %v", err)
	}
	if first == "" {
		t.Fatal("certificate ID should not be empty")
	}

	second, err := CertificateID(dir)
	if err != nil {
		t.Fatalf("CertificateID() second call error = %v", err)
	}
	if first != second {
		t.Errorf("certificate ID changed between calls: %q vs %q", first, second)
	}
}

func TestPEMRoundTrip(t *testing.T) {
	id, err := GenerateIdentity("pem-test")
	if err != nil {
		t.Fatalf("GenerateIdentity() error = %v", err)
	}

	certPEM := EncodeCertPEM(id.Certificate)
	cert, err := DecodeCertPEM(certPEM)
	if err != nil {
		t.Fatalf("DecodeCertPEM() error = %v", err)
	}
	if !cert.Equal(id.Certificate) {
		t.Error("certificate changed across PEM round trip")
	}

	keyPEM, err := EncodeKeyPEM(id.PrivateKey)
	if err != nil {
		t.Fatalf("EncodeKeyPEM() error = %v", err)
	}
	key, err := DecodeKeyPEM(keyPEM)
	if err != nil {
		t.Fatalf("DecodeKeyPEM() error = %v", err)
	}
	if !key.Equal(id.PrivateKey) {
		t.Error("key changed across PEM round trip")
	}
}

func TestDecodeCertPEMInvalid(t *testing.T) {
	if _, err := DecodeCertPEM([]byte("not pem at all")); err == nil {
		t.Error("DecodeCertPEM() should fail on garbage")
	}
}

func TestSanitizeDNSName(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"Simple", "speaker", "speaker"},
		{"Spaces", "Living Room", "living-room"},
		{"Unicode", "日本語", "rune-device"},
		{"LeadingTrailing", "--box--", "box"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sanitizeDNSName(tt.in); got != tt.want {
				t.Errorf("sanitizeDNSName(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
