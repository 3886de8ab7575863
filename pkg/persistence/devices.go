package persistence

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/balthild/rune/pkg/discovery"
)

// deviceFileName is the store's file inside the config directory.
const deviceFileName = ".discovered"

// DefaultRetention is how long a device stays eligible for persistence
// after it was last seen.
const DefaultRetention = 30 * time.Second

// DeviceStore keeps the set of discovered devices, keyed by certificate
// fingerprint, and persists them to a JSON file.
type DeviceStore struct {
	path      string
	retention time.Duration
	logger    *slog.Logger
	now       func() time.Time

	mu      sync.RWMutex
	devices map[string]discovery.DiscoveredDevice
}

// DeviceStoreOption configures a DeviceStore.
type DeviceStoreOption func(*DeviceStore)

// WithRetention overrides the persistence retention window.
func WithRetention(d time.Duration) DeviceStoreOption {
	return func(s *DeviceStore) { s.retention = d }
}

// WithLogger sets the logger used for background save failures.
func WithLogger(logger *slog.Logger) DeviceStoreOption {
	return func(s *DeviceStore) { s.logger = logger }
}

// WithClock overrides the time source. Tests use this to control
// staleness without sleeping.
func WithClock(now func() time.Time) DeviceStoreOption {
	return func(s *DeviceStore) { s.now = now }
}

// NewDeviceStore creates a store persisting to baseDir.
func NewDeviceStore(baseDir string, opts ...DeviceStoreOption) *DeviceStore {
	s := &DeviceStore{
		path:      filepath.Join(baseDir, deviceFileName),
		retention: DefaultRetention,
		logger:    slog.Default(),
		now:       time.Now,
		devices:   make(map[string]discovery.DiscoveredDevice),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load reads the device file into the cache. A missing file is not an
// error and leaves the store empty.
func (s *DeviceStore) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}

	var devices []discovery.DiscoveredDevice
	if err := json.Unmarshal(data, &devices); err != nil {
		return err
	}

	for _, device := range devices {
		if device.Fingerprint == "" {
			continue
		}
		s.devices[device.Fingerprint] = device
	}
	return nil
}

// Save writes the devices seen within the retention window to disk.
// Stale devices are omitted from the file but kept in the cache.
func (s *DeviceStore) Save() error {
	s.mu.RLock()
	fresh := s.freshLocked()
	s.mu.RUnlock()

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(fresh, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, append(data, '\n'), 0644)
}

// UpdateDevice inserts or refreshes a device by fingerprint and then
// saves in the background. Save failures are logged, not returned, so
// a full disk cannot break discovery.
func (s *DeviceStore) UpdateDevice(device discovery.DiscoveredDevice) {
	if device.Fingerprint == "" {
		return
	}
	if device.LastSeen.IsZero() {
		device.LastSeen = s.now()
	}

	s.mu.Lock()
	s.devices[device.Fingerprint] = device
	s.mu.Unlock()

	if err := s.Save(); err != nil {
		s.logger.Warn("Failed to save discovered devices", "error", err)
	}
}

// Devices returns a snapshot of every cached device, ordered by alias
// for stable presentation.
func (s *DeviceStore) Devices() []discovery.DiscoveredDevice {
	s.mu.RLock()
	defer s.mu.RUnlock()

	devices := make([]discovery.DiscoveredDevice, 0, len(s.devices))
	for _, device := range s.devices {
		devices = append(devices, device)
	}
	sort.Slice(devices, func(i, j int) bool {
		if devices[i].Alias != devices[j].Alias {
			return devices[i].Alias < devices[j].Alias
		}
		return devices[i].Fingerprint < devices[j].Fingerprint
	})
	return devices
}

// PruneExpired evicts devices outside the retention window from the
// live cache, rewrites the device file without them, and reports how
// many were removed. Save failures are logged, not returned.
func (s *DeviceStore) PruneExpired() int {
	cutoff := s.now().Add(-s.retention)

	s.mu.Lock()
	removed := 0
	for fp, device := range s.devices {
		if !device.LastSeen.After(cutoff) {
			delete(s.devices, fp)
			removed++
		}
	}
	s.mu.Unlock()

	if err := s.Save(); err != nil {
		s.logger.Warn("Failed to save discovered devices", "error", err)
	}
	return removed
}

// Clear removes the device file. The cache is left untouched.
func (s *DeviceStore) Clear() error {
	err := os.Remove(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// freshLocked returns the devices seen strictly within the retention
// window. A device aged exactly the window is already stale. Callers
// must hold at least a read lock.
func (s *DeviceStore) freshLocked() []discovery.DiscoveredDevice {
	cutoff := s.now().Add(-s.retention)

	fresh := make([]discovery.DiscoveredDevice, 0, len(s.devices))
	for _, device := range s.devices {
		if !device.LastSeen.After(cutoff) {
			continue
		}
		fresh = append(fresh, device)
	}
	sort.Slice(fresh, func(i, j int) bool {
		return fresh[i].Fingerprint < fresh[j].Fingerprint
	})
	return fresh
}
