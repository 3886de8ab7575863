package discovery

import (
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Encoding is deterministic so that identical announcements produce
// identical datagrams. Decoding is lenient: unknown fields from newer
// peers are ignored instead of rejected.
var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error

	encOpts := cbor.CoreDetEncOptions()
	encMode, err = encOpts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("discovery: failed to create CBOR encode mode: %v", err))
	}

	decOpts := cbor.DecOptions{
		ExtraReturnErrors: cbor.ExtraDecErrorNone,
		MaxArrayElements:  1024,
		MaxMapPairs:       1024,
	}
	decMode, err = decOpts.DecMode()
	if err != nil {
		panic(fmt.Sprintf("discovery: failed to create CBOR decode mode: %v", err))
	}
}

// EncodeAnnouncement serializes a DeviceInfo for the wire.
func EncodeAnnouncement(info DeviceInfo) ([]byte, error) {
	if err := info.Validate(); err != nil {
		return nil, err
	}
	data, err := encMode.Marshal(info)
	if err != nil {
		return nil, fmt.Errorf("failed to encode announcement: %w", err)
	}
	if len(data) > maxDatagramSize {
		return nil, fmt.Errorf("announcement exceeds %d bytes", maxDatagramSize)
	}
	return data, nil
}

// DecodeAnnouncement parses a datagram into a DeviceInfo. Datagrams that
// decode but fail validation are rejected as malformed.
func DecodeAnnouncement(data []byte) (DeviceInfo, error) {
	var info DeviceInfo
	if len(data) == 0 {
		return info, errors.New("empty announcement")
	}
	if err := decMode.Unmarshal(data, &info); err != nil {
		return info, fmt.Errorf("failed to decode announcement: %w", err)
	}
	if err := info.Validate(); err != nil {
		return info, err
	}
	return info, nil
}
