package scanner

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/balthild/rune/pkg/discovery"
	"github.com/balthild/rune/pkg/log"
)

// DeviceMessage is the UI-facing view of a discovered device. LastSeen
// is a Unix timestamp in seconds so frontends need no time parsing.
type DeviceMessage struct {
	Alias       string               `json:"alias"`
	DeviceModel string               `json:"device_model,omitempty"`
	DeviceType  discovery.DeviceType `json:"device_type,omitempty"`
	Fingerprint string               `json:"fingerprint"`
	LastSeen    int64                `json:"last_seen"`
}

// Publisher receives the full device list whenever it changes.
type Publisher interface {
	PublishDevices(devices []DeviceMessage)
}

// PublisherFunc adapts a function to the Publisher interface.
type PublisherFunc func(devices []DeviceMessage)

// PublishDevices calls f.
func (f PublisherFunc) PublishDevices(devices []DeviceMessage) { f(devices) }

// DeviceScanner runs the discovery announce and listen loops and keeps
// the set of peers seen during this process's lifetime.
type DeviceScanner struct {
	svc       *discovery.Service
	publisher Publisher
	onDevice  func(discovery.DiscoveredDevice)
	logger    *slog.Logger
	eventLog  log.Logger

	mu      sync.RWMutex
	devices map[string]discovery.DiscoveredDevice

	isBroadcasting atomic.Bool

	broadcastMu     sync.Mutex
	broadcastCancel context.CancelFunc
	broadcastDone   chan struct{}

	listenMu     sync.Mutex
	listenCancel context.CancelFunc
	listenDone   chan struct{}
}

// NewDeviceScanner creates a scanner on top of the discovery service.
// publisher may be nil when no one consumes device updates.
func NewDeviceScanner(svc *discovery.Service, publisher Publisher, logger *slog.Logger) *DeviceScanner {
	if logger == nil {
		logger = slog.Default()
	}
	return &DeviceScanner{
		svc:       svc,
		publisher: publisher,
		logger:    logger,
		eventLog:  log.NoopLogger{},
		devices:   make(map[string]discovery.DiscoveredDevice),
	}
}

// SetEventLogger routes discovery events to the given logger. It must
// be set before the loops start.
func (s *DeviceScanner) SetEventLogger(l log.Logger) {
	if l == nil {
		l = log.NoopLogger{}
	}
	s.eventLog = l
}

// OnDevice registers a callback invoked once per discovery event,
// before the publisher sees the updated list. It must be set before
// StartListening.
func (s *DeviceScanner) OnDevice(fn func(discovery.DiscoveredDevice)) {
	s.onDevice = fn
}

// IsBroadcasting reports whether the announcement loop is running.
func (s *DeviceScanner) IsBroadcasting() bool {
	return s.isBroadcasting.Load()
}

// StartBroadcast starts the periodic announcement loop. Calling it
// while a loop is already running replaces that loop, so at most one
// announcer exists at a time. A positive duration stops the loop
// automatically once it elapses; zero means announce until stopped.
func (s *DeviceScanner) StartBroadcast(info discovery.DeviceInfo, duration time.Duration) error {
	if err := info.Validate(); err != nil {
		return err
	}

	s.broadcastMu.Lock()
	defer s.broadcastMu.Unlock()

	if s.broadcastCancel != nil {
		s.broadcastCancel()
		<-s.broadcastDone
	}

	var ctx context.Context
	var cancel context.CancelFunc
	if duration > 0 {
		ctx, cancel = context.WithTimeout(context.Background(), duration)
	} else {
		ctx, cancel = context.WithCancel(context.Background())
	}
	done := make(chan struct{})
	s.broadcastCancel = cancel
	s.broadcastDone = done
	s.isBroadcasting.Store(true)

	runID := uuid.NewString()
	s.logger.Info("Starting discovery broadcast", "run_id", runID, "alias", info.Alias, "duration", duration)
	s.eventLog.Log(log.NewEvent(log.CategoryBroadcastStarted).WithPeer(info.Fingerprint, info.Alias))

	go func() {
		defer close(done)
		defer s.isBroadcasting.Store(false)

		err := s.svc.Announce(ctx, info, discovery.AnnounceInterval)
		if err != nil && ctx.Err() == nil {
			s.logger.Warn("Broadcast loop ended unexpectedly", "run_id", runID, "error", err)
			return
		}
		s.logger.Debug("Broadcast loop stopped", "run_id", runID)
	}()

	return nil
}

// StopBroadcast stops the announcement loop and waits for it to exit.
// It is a no-op when no loop is running.
func (s *DeviceScanner) StopBroadcast() {
	s.broadcastMu.Lock()
	defer s.broadcastMu.Unlock()

	if s.broadcastCancel == nil {
		return
	}
	s.broadcastCancel()
	<-s.broadcastDone
	s.broadcastCancel = nil
	s.broadcastDone = nil
	s.eventLog.Log(log.NewEvent(log.CategoryBroadcastStopped))
}

// StartListening starts the announcement listener, replacing any
// previous listener first so the socket is rebound exactly once.
// Announcements matching selfFingerprint are ignored.
func (s *DeviceScanner) StartListening(selfFingerprint string) error {
	s.listenMu.Lock()
	defer s.listenMu.Unlock()

	if s.listenCancel != nil {
		s.listenCancel()
		<-s.listenDone
		s.listenCancel = nil
		s.listenDone = nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	events := make(chan discovery.DiscoveredDevice, 16)
	listenErr := make(chan error, 1)

	go func() {
		listenErr <- s.svc.Listen(ctx, selfFingerprint, events)
	}()

	// Binding happens synchronously inside Listen. Wait for either the
	// socket to appear or a bind failure so callers learn about
	// unusable ports immediately.
	for s.svc.Addr() == nil {
		select {
		case err := <-listenErr:
			cancel()
			return err
		case <-time.After(5 * time.Millisecond):
		}
	}

	done := make(chan struct{})
	s.listenCancel = cancel
	s.listenDone = done
	s.eventLog.Log(log.NewEvent(log.CategoryListenerStarted))

	go func() {
		defer close(done)
		for {
			select {
			case device := <-events:
				s.recordDevice(device)
			case err := <-listenErr:
				if err != nil && ctx.Err() == nil {
					s.logger.Warn("Discovery listener ended unexpectedly", "error", err)
				}
				return
			}
		}
	}()

	return nil
}

// StopListening stops the listener and waits for it to exit. It is a
// no-op when no listener is running.
func (s *DeviceScanner) StopListening() {
	s.listenMu.Lock()
	defer s.listenMu.Unlock()

	if s.listenCancel == nil {
		return
	}
	s.listenCancel()
	<-s.listenDone
	s.listenCancel = nil
	s.listenDone = nil
	s.eventLog.Log(log.NewEvent(log.CategoryListenerStopped))
}

// Stop stops both loops.
func (s *DeviceScanner) Stop() {
	s.StopBroadcast()
	s.StopListening()
}

// Devices returns a snapshot of every peer seen so far, newest first.
func (s *DeviceScanner) Devices() []discovery.DiscoveredDevice {
	s.mu.RLock()
	defer s.mu.RUnlock()

	devices := make([]discovery.DiscoveredDevice, 0, len(s.devices))
	for _, device := range s.devices {
		devices = append(devices, device)
	}
	sort.Slice(devices, func(i, j int) bool {
		return devices[i].LastSeen.After(devices[j].LastSeen)
	})
	return devices
}

// recordDevice upserts a device by fingerprint and publishes the
// updated list.
func (s *DeviceScanner) recordDevice(device discovery.DiscoveredDevice) {
	s.mu.Lock()
	s.devices[device.Fingerprint] = device
	s.mu.Unlock()

	s.logger.Debug("Discovered device", "alias", device.Alias, "fingerprint", device.Fingerprint)
	s.eventLog.Log(log.NewEvent(log.CategoryDeviceSeen).WithPeer(device.Fingerprint, device.Alias))

	if s.onDevice != nil {
		s.onDevice(device)
	}
	if s.publisher != nil {
		s.publisher.PublishDevices(toMessages(s.Devices()))
	}
}

// toMessages converts devices to their UI representation.
func toMessages(devices []discovery.DiscoveredDevice) []DeviceMessage {
	messages := make([]DeviceMessage, len(devices))
	for i, device := range devices {
		messages[i] = DeviceMessage{
			Alias:       device.Alias,
			DeviceModel: device.DeviceModel,
			DeviceType:  device.DeviceType,
			Fingerprint: device.Fingerprint,
			LastSeen:    device.LastSeen.Unix(),
		}
	}
	return messages
}
