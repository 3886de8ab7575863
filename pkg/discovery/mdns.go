package discovery

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/enbility/zeroconf/v3"
)

// MDNSConfig configures mDNS advertising and browsing.
type MDNSConfig struct {
	// Interface specifies which network interface to use.
	// Empty string means all interfaces.
	Interface string

	// TTL is the DNS record TTL.
	// Default: 120 seconds.
	TTL time.Duration
}

// DefaultMDNSConfig returns the default mDNS configuration.
func DefaultMDNSConfig() MDNSConfig {
	return MDNSConfig{
		Interface: "",
		TTL:       120 * time.Second,
	}
}

// MDNSAdvertiser publishes the local device as a DNS-SD service so
// peers on networks that filter multicast UDP can still find it.
type MDNSAdvertiser struct {
	config MDNSConfig

	mu     sync.Mutex
	server *zeroconf.Server
}

// NewMDNSAdvertiser creates a new mDNS advertiser.
func NewMDNSAdvertiser(config MDNSConfig) *MDNSAdvertiser {
	return &MDNSAdvertiser{config: config}
}

// Advertise starts advertising the device. A previous advertisement is
// shut down first so updated info replaces rather than duplicates it.
func (a *MDNSAdvertiser) Advertise(info DeviceInfo) error {
	if err := info.Validate(); err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.server != nil {
		a.server.Shutdown()
		a.server = nil
	}

	var opts []zeroconf.ServerOption
	if a.config.TTL > 0 {
		opts = append(opts, zeroconf.TTL(uint32(a.config.TTL.Seconds())))
	}

	server, err := zeroconf.Register(
		info.Alias,
		ServiceType,
		Domain,
		int(info.APIPort),
		encodeTXT(info),
		a.interfaces(),
		opts...,
	)
	if err != nil {
		return fmt.Errorf("failed to register mDNS service: %w", err)
	}

	a.server = server
	return nil
}

// Update replaces the TXT records of an active advertisement.
func (a *MDNSAdvertiser) Update(info DeviceInfo) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.server == nil {
		return fmt.Errorf("mDNS service is not advertised")
	}
	a.server.SetText(encodeTXT(info))
	return nil
}

// Stop shuts down the advertisement. Safe to call when not advertising.
func (a *MDNSAdvertiser) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.server != nil {
		a.server.Shutdown()
		a.server = nil
	}
}

// interfaces returns the network interfaces to advertise on.
// Returns nil to use all interfaces.
func (a *MDNSAdvertiser) interfaces() []net.Interface {
	if a.config.Interface == "" {
		return nil
	}
	iface, err := net.InterfaceByName(a.config.Interface)
	if err != nil {
		return nil
	}
	return []net.Interface{*iface}
}

// MDNSBrowser resolves peers advertised over DNS-SD.
type MDNSBrowser struct {
	config MDNSConfig
}

// NewMDNSBrowser creates a new mDNS browser.
func NewMDNSBrowser(config MDNSConfig) *MDNSBrowser {
	return &MDNSBrowser{config: config}
}

// Browse streams peers as they are resolved, skipping entries whose TXT
// records lack a fingerprint and any entry matching selfFingerprint.
// The returned channel closes when the context is cancelled.
func (b *MDNSBrowser) Browse(ctx context.Context, selfFingerprint string) (<-chan DiscoveredDevice, error) {
	out := make(chan DiscoveredDevice)

	entries := make(chan *zeroconf.ServiceEntry)
	removed := make(chan *zeroconf.ServiceEntry)

	opts := b.browserOptions()

	go func() {
		defer close(out)

		for {
			select {
			case entry, ok := <-entries:
				if !ok {
					return
				}
				device, ok := entryToDevice(entry)
				if !ok || device.Fingerprint == selfFingerprint {
					continue
				}
				select {
				case out <- device:
				case <-ctx.Done():
					return
				}

			case <-removed:
				// Stale peers age out of the device store; no
				// action needed on mDNS goodbye packets.

			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		_ = zeroconf.Browse(ctx, ServiceType, Domain, entries, removed, opts...)
	}()

	return out, nil
}

// browserOptions returns zeroconf client options based on config.
func (b *MDNSBrowser) browserOptions() []zeroconf.ClientOption {
	var opts []zeroconf.ClientOption
	if b.config.Interface != "" {
		iface, err := net.InterfaceByName(b.config.Interface)
		if err == nil {
			opts = append(opts, zeroconf.SelectIfaces([]net.Interface{*iface}))
		}
	}
	return opts
}

// encodeTXT builds the TXT records carried by the advertisement.
func encodeTXT(info DeviceInfo) []string {
	txt := []string{
		"fingerprint=" + info.Fingerprint,
		"version=" + info.Version,
		"protocol=" + info.Protocol,
		"port=" + strconv.Itoa(int(info.APIPort)),
	}
	if info.DeviceModel != "" {
		txt = append(txt, "model="+info.DeviceModel)
	}
	if info.DeviceType != "" {
		txt = append(txt, "type="+string(info.DeviceType))
	}
	return txt
}

// entryToDevice converts a zeroconf entry to a DiscoveredDevice.
// Entries without a fingerprint TXT record are not usable peers.
func entryToDevice(entry *zeroconf.ServiceEntry) (DiscoveredDevice, bool) {
	txt := decodeTXT(entry.Text)

	fp, ok := txt["fingerprint"]
	if !ok || fp == "" {
		return DiscoveredDevice{}, false
	}

	return DiscoveredDevice{
		Alias:       entry.Instance,
		DeviceModel: txt["model"],
		DeviceType:  DeviceType(txt["type"]),
		Fingerprint: fp,
		LastSeen:    time.Now(),
	}, true
}

// decodeTXT parses key=value TXT strings. Keys without a value are
// kept with an empty string, and later duplicates win.
func decodeTXT(records []string) map[string]string {
	txt := make(map[string]string, len(records))
	for _, record := range records {
		for i := 0; i < len(record); i++ {
			if record[i] == '=' {
				txt[record[:i]] = record[i+1:]
				record = ""
				break
			}
		}
		if record != "" {
			txt[record] = ""
		}
	}
	return txt
}
