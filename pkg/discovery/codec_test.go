package discovery

import (
	"bytes"
	"testing"

	"github.com/fxamacker/cbor/v2"
)

func testDeviceInfo() DeviceInfo {
	return DeviceInfo{
		Alias:       "Living Room Speaker",
		DeviceModel: "RunePod",
		Version:     "1.4.0",
		DeviceType:  DeviceTypeHeadless,
		Fingerprint: "fp-living-room",
		APIPort:     7863,
		Protocol:    "https",
	}
}

func TestEncodeDecodeAnnouncement(t *testing.T) {
	info := testDeviceInfo()

	data, err := EncodeAnnouncement(info)
	if err != nil {
		t.Fatalf("EncodeAnnouncement failed: %v", err)
	}

	decoded, err := DecodeAnnouncement(data)
	if err != nil {
		t.Fatalf("DecodeAnnouncement failed: %v", err)
	}
	if decoded != info {
		t.Errorf("round trip mismatch: got %+v, want %+v", decoded, info)
	}
}

func TestEncodeAnnouncementDeterministic(t *testing.T) {
	info := testDeviceInfo()

	a, err := EncodeAnnouncement(info)
	if err != nil {
		t.Fatalf("first encode failed: %v", err)
	}
	b, err := EncodeAnnouncement(info)
	if err != nil {
		t.Fatalf("second encode failed: %v", err)
	}
	if !bytes.Equal(a, b) {
		t.Error("identical announcements produced different datagrams")
	}
}

func TestEncodeAnnouncementValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*DeviceInfo)
	}{
		{"MissingAlias", func(d *DeviceInfo) { d.Alias = "" }},
		{"MissingFingerprint", func(d *DeviceInfo) { d.Fingerprint = "" }},
		{"MissingPort", func(d *DeviceInfo) { d.APIPort = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info := testDeviceInfo()
			tt.mutate(&info)
			if _, err := EncodeAnnouncement(info); err == nil {
				t.Error("expected validation error, got nil")
			}
		})
	}
}

func TestDecodeAnnouncementMalformed(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"Empty", nil},
		{"Garbage", []byte("not cbor at all")},
		{"WrongShape", mustCBOR(t, []int{1, 2, 3})},
		{"ValidCBORMissingFields", mustCBOR(t, map[string]string{"alias": "x"})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := DecodeAnnouncement(tt.data); err == nil {
				t.Error("expected decode error, got nil")
			}
		})
	}
}

func TestDecodeAnnouncementIgnoresUnknownFields(t *testing.T) {
	payload := map[string]any{
		"alias":       "Newer Peer",
		"version":     "2.0.0",
		"fingerprint": "fp-future",
		"apiPort":     9000,
		"protocol":    "https",
		"futureField": "something the current build does not know",
	}
	data := mustCBOR(t, payload)

	decoded, err := DecodeAnnouncement(data)
	if err != nil {
		t.Fatalf("DecodeAnnouncement failed: %v", err)
	}
	if decoded.Alias != "Newer Peer" || decoded.Fingerprint != "fp-future" {
		t.Errorf("unexpected decode result: %+v", decoded)
	}
}

func mustCBOR(t *testing.T, v any) []byte {
	t.Helper()
	data, err := cbor.Marshal(v)
	if err != nil {
		t.Fatalf("cbor.Marshal failed: %v", err)
	}
	return data
}
