// Package scanner orchestrates device discovery: it runs the UDP
// announcement loop and listener, tracks discovered peers in memory,
// and forwards updates to a Publisher.
//
// DeviceScanner manages the two background loops independently so a
// node can listen without announcing. Runtime layers persistence on
// top, flushing discovered devices to disk on every update and once
// more during shutdown.
package scanner
