package log

import (
	"time"
)

// Event represents a single discovery event.
// CBOR encoding uses integer keys for compactness.
type Event struct {
	// Timestamp when the event occurred (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// Category classifies the event type.
	Category Category `cbor:"2,keyasint"`

	// Fingerprint identifies the peer the event concerns, if any.
	Fingerprint string `cbor:"3,keyasint,omitempty"`

	// Alias is the peer's announced name, if known.
	Alias string `cbor:"4,keyasint,omitempty"`

	// RemoteAddr is the peer address (IP:port), if known.
	RemoteAddr string `cbor:"5,keyasint,omitempty"`

	// Detail carries free-form context, such as an error message.
	Detail string `cbor:"6,keyasint,omitempty"`
}

// Category classifies the event type.
type Category uint8

const (
	// CategoryDeviceSeen indicates an announcement was received.
	CategoryDeviceSeen Category = 0
	// CategoryBroadcastStarted indicates the announcement loop started.
	CategoryBroadcastStarted Category = 1
	// CategoryBroadcastStopped indicates the announcement loop stopped.
	CategoryBroadcastStopped Category = 2
	// CategoryListenerStarted indicates the listener started.
	CategoryListenerStarted Category = 3
	// CategoryListenerStopped indicates the listener stopped.
	CategoryListenerStopped Category = 4
	// CategoryTrustAdded indicates a server was pinned in the trust store.
	CategoryTrustAdded Category = 5
	// CategoryError indicates a discovery error.
	CategoryError Category = 6
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryDeviceSeen:
		return "DEVICE_SEEN"
	case CategoryBroadcastStarted:
		return "BROADCAST_STARTED"
	case CategoryBroadcastStopped:
		return "BROADCAST_STOPPED"
	case CategoryListenerStarted:
		return "LISTENER_STARTED"
	case CategoryListenerStopped:
		return "LISTENER_STOPPED"
	case CategoryTrustAdded:
		return "TRUST_ADDED"
	case CategoryError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// NewEvent creates an event stamped with the current time.
func NewEvent(category Category) Event {
	return Event{Timestamp: time.Now(), Category: category}
}

// WithPeer returns a copy of the event annotated with peer identity.
func (e Event) WithPeer(fingerprint, alias string) Event {
	e.Fingerprint = fingerprint
	e.Alias = alias
	return e
}

// WithDetail returns a copy of the event with detail text attached.
func (e Event) WithDetail(detail string) Event {
	e.Detail = detail
	return e
}
