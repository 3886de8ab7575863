package scanner

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/balthild/rune/pkg/discovery"
	"github.com/balthild/rune/pkg/log"
	"github.com/balthild/rune/pkg/persistence"
)

// RuntimeConfig configures a discovery Runtime.
type RuntimeConfig struct {
	// ConfigDir is where discovered devices are persisted.
	ConfigDir string

	// Announce enables the periodic announcement loop on Start.
	Announce bool

	// Publisher receives device list updates. Optional.
	Publisher Publisher

	// EventLogger records discovery events. Optional.
	EventLogger log.Logger

	// Logger defaults to slog.Default.
	Logger *slog.Logger
}

// Runtime ties the scanner to persistent device storage. Devices heard
// on the network are written through to disk, and shutdown flushes the
// store once more so nothing seen is lost.
type Runtime struct {
	scanner *DeviceScanner
	store   *persistence.DeviceStore
	logger  *slog.Logger

	announce bool

	mu      sync.Mutex
	started bool
}

// NewRuntime creates a runtime on top of the discovery service and
// loads previously persisted devices.
func NewRuntime(svc *discovery.Service, cfg RuntimeConfig) (*Runtime, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	store := persistence.NewDeviceStore(cfg.ConfigDir, persistence.WithLogger(logger))
	if err := store.Load(); err != nil {
		return nil, fmt.Errorf("failed to load discovered devices: %w", err)
	}

	r := &Runtime{
		store:    store,
		logger:   logger,
		announce: cfg.Announce,
	}

	// Every discovery event is written through to the store before the
	// configured publisher sees the updated list.
	r.scanner = NewDeviceScanner(svc, cfg.Publisher, logger)
	r.scanner.OnDevice(store.UpdateDevice)
	if cfg.EventLogger != nil {
		r.scanner.SetEventLogger(cfg.EventLogger)
	}

	return r, nil
}

// Scanner exposes the underlying device scanner.
func (r *Runtime) Scanner() *DeviceScanner {
	return r.scanner
}

// Devices returns persisted and live devices merged, newest first.
func (r *Runtime) Devices() []discovery.DiscoveredDevice {
	return r.store.Devices()
}

// PruneExpired evicts devices outside the retention window and
// rewrites the device file without them.
func (r *Runtime) PruneExpired() int {
	return r.store.PruneExpired()
}

// Start begins listening for announcements and, when configured,
// announcing the given device info. Starting twice is an error.
func (r *Runtime) Start(info discovery.DeviceInfo) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.started {
		return fmt.Errorf("discovery runtime is already started")
	}

	if err := r.scanner.StartListening(info.Fingerprint); err != nil {
		return err
	}
	if r.announce {
		if err := r.scanner.StartBroadcast(info, 0); err != nil {
			r.scanner.StopListening()
			return err
		}
	}

	r.started = true
	r.logger.Info("Discovery runtime started", "alias", info.Alias, "announce", r.announce)
	return nil
}

// Shutdown stops both discovery loops and flushes the device store to
// disk. It is safe to call more than once.
func (r *Runtime) Shutdown() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.scanner.Stop()

	if err := r.store.Save(); err != nil {
		return fmt.Errorf("failed to flush discovered devices: %w", err)
	}

	if r.started {
		r.logger.Info("Discovery runtime stopped")
	}
	r.started = false
	return nil
}
