package discovery

import (
	"errors"
	"time"
)

// Network constants for multicast discovery.
const (
	// DefaultGroup is the multicast group announcements are sent to.
	DefaultGroup = "224.0.0.167"

	// DefaultPort is the UDP port for the multicast group.
	DefaultPort = 57863

	// AnnounceInterval is the pause between periodic announcements.
	AnnounceInterval = 3 * time.Second

	// maxDatagramSize bounds a single announcement datagram.
	maxDatagramSize = 8192
)

// mDNS constants.
const (
	// ServiceType is the DNS-SD service type for the API endpoint.
	ServiceType = "_rune._tcp"

	// Domain is the mDNS domain.
	Domain = "local"
)

// Discovery errors.
var (
	// ErrAlreadyListening is returned when Listen is called on a service
	// that already has an active listener.
	ErrAlreadyListening = errors.New("discovery service is already listening")

	// ErrNoMulticastInterfaces is returned when no usable interface could
	// join the multicast group.
	ErrNoMulticastInterfaces = errors.New("no multicast-capable interfaces")
)

// DeviceType classifies the form factor a node advertises.
type DeviceType string

// Known device types.
const (
	DeviceTypeDesktop  DeviceType = "desktop"
	DeviceTypeMobile   DeviceType = "mobile"
	DeviceTypeWeb      DeviceType = "web"
	DeviceTypeHeadless DeviceType = "headless"
	DeviceTypeServer   DeviceType = "server"
)

// DeviceInfo describes the local node as advertised to peers.
type DeviceInfo struct {
	// Alias is the human-readable device name. Not unique.
	Alias string `cbor:"alias" json:"alias"`

	// DeviceModel is the optional hardware or product model.
	DeviceModel string `cbor:"deviceModel,omitempty" json:"device_model,omitempty"`

	// Version is the application version string.
	Version string `cbor:"version" json:"version"`

	// DeviceType is the advertised form factor.
	DeviceType DeviceType `cbor:"deviceType,omitempty" json:"device_type,omitempty"`

	// Fingerprint is the node's certificate fingerprint and unique
	// identity on the network.
	Fingerprint string `cbor:"fingerprint" json:"fingerprint"`

	// APIPort is the TCP port the node's API server listens on.
	APIPort uint16 `cbor:"apiPort" json:"api_port"`

	// Protocol is the API scheme, "http" or "https".
	Protocol string `cbor:"protocol" json:"protocol"`
}

// Validate checks the fields every announcement must carry.
func (d DeviceInfo) Validate() error {
	if d.Alias == "" {
		return errors.New("device info: alias required")
	}
	if d.Fingerprint == "" {
		return errors.New("device info: fingerprint required")
	}
	if d.APIPort == 0 {
		return errors.New("device info: api port required")
	}
	return nil
}

// DiscoveredDevice is a peer's last-known announcement. The identity key
// is Fingerprint; at most one entry per fingerprint exists in any store.
type DiscoveredDevice struct {
	Alias       string     `json:"alias"`
	DeviceModel string     `json:"device_model,omitempty"`
	DeviceType  DeviceType `json:"device_type,omitempty"`
	Fingerprint string     `json:"fingerprint"`
	LastSeen    time.Time  `json:"last_seen"`
}

// fromAnnouncement maps a decoded announcement to a DiscoveredDevice
// seen at the given time.
func fromAnnouncement(info DeviceInfo, seen time.Time) DiscoveredDevice {
	return DiscoveredDevice{
		Alias:       info.Alias,
		DeviceModel: info.DeviceModel,
		DeviceType:  info.DeviceType,
		Fingerprint: info.Fingerprint,
		LastSeen:    seen,
	}
}
