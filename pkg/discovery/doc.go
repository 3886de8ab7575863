// Package discovery implements zero-configuration presence discovery
// between application instances on the same local network.
//
// # Multicast announcements
//
// The primary mechanism is periodic UDP multicast: a node serializes its
// DeviceInfo and sends it to a fixed group/port (224.0.0.167:57863). A
// single announcement is fire-and-forget; the transport is unordered and
// unreliable, and consumers absorb loss and duplication through
// idempotent upserts keyed by fingerprint. The listen path decodes
// announcements, discards malformed or foreign datagrams, filters out
// the node's own announcements by fingerprint, and emits
// DiscoveredDevice events.
//
// # mDNS (complementary)
//
// Nodes additionally advertise the API service over mDNS/DNS-SD
// (_rune._tcp) with TXT records carrying the same identity fields, so
// mDNS-capable peers and debugging tools can find them. Browse performs
// the inverse mapping from mDNS answers back to DiscoveredDevice.
//
// # Identity
//
// A device is identified by its certificate fingerprint, never by alias
// (aliases are not unique). See the fingerprint and trust packages for
// how the fingerprint is derived and pinned.
package discovery
