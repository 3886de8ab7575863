package discovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"golang.org/x/net/ipv4"
)

// Config holds multicast service configuration.
type Config struct {
	// Group is the IPv4 address announcements are sent to. When the
	// address is not a multicast address the listener binds to it
	// directly, which lets tests exchange datagrams over loopback.
	Group string

	// Port is the UDP port to announce to and listen on. Port 0 binds
	// an ephemeral port, available from Addr after Listen starts.
	Port int

	// Interfaces restricts which interfaces join the multicast group.
	// When empty, all up multicast-capable interfaces are used.
	Interfaces []net.Interface

	// Logger receives listener diagnostics. Defaults to slog.Default.
	Logger *slog.Logger
}

// DefaultConfig returns a Config for the standard announcement group.
func DefaultConfig() Config {
	return Config{
		Group: DefaultGroup,
		Port:  DefaultPort,
	}
}

// Service sends and receives device announcements over UDP.
//
// Announcements are fire and forget: senders never learn whether anyone
// received them, and receivers treat every datagram independently.
type Service struct {
	cfg    Config
	logger *slog.Logger

	mu        sync.Mutex
	listening bool
	conn      *net.UDPConn
}

// NewService creates a multicast discovery service.
func NewService(cfg Config) (*Service, error) {
	if cfg.Group == "" {
		cfg.Group = DefaultGroup
	}
	if ip := net.ParseIP(cfg.Group); ip == nil || ip.To4() == nil {
		return nil, fmt.Errorf("invalid discovery group %q", cfg.Group)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{cfg: cfg, logger: logger}, nil
}

// Addr returns the listener's bound address, or nil when not listening.
func (s *Service) Addr() *net.UDPAddr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	addr, _ := s.conn.LocalAddr().(*net.UDPAddr)
	return addr
}

// AnnounceOnce sends a single announcement datagram to the group.
func (s *Service) AnnounceOnce(info DeviceInfo) error {
	data, err := EncodeAnnouncement(info)
	if err != nil {
		return err
	}
	dst := &net.UDPAddr{IP: net.ParseIP(s.cfg.Group), Port: s.targetPort()}
	conn, err := net.DialUDP("udp4", nil, dst)
	if err != nil {
		return fmt.Errorf("failed to open announcement socket: %w", err)
	}
	defer conn.Close()

	if _, err := conn.Write(data); err != nil {
		return fmt.Errorf("failed to send announcement: %w", err)
	}
	return nil
}

// Announce sends an announcement immediately and then on every tick of
// the interval until the context is cancelled. Individual send failures
// are logged and do not stop the loop.
func (s *Service) Announce(ctx context.Context, info DeviceInfo, interval time.Duration) error {
	if err := info.Validate(); err != nil {
		return err
	}
	if interval <= 0 {
		interval = AnnounceInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := s.AnnounceOnce(info); err != nil {
			s.logger.Debug("Announcement send failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Listen binds the announcement port and forwards decoded announcements
// to events until the context is cancelled. Datagrams that fail to
// decode are discarded, as are the node's own announcements identified
// by selfFingerprint. Listen blocks; it returns ErrAlreadyListening
// when a listener is already active, and the context's error once it
// shuts down cleanly.
func (s *Service) Listen(ctx context.Context, selfFingerprint string, events chan<- DiscoveredDevice) error {
	s.mu.Lock()
	if s.listening {
		s.mu.Unlock()
		return ErrAlreadyListening
	}

	conn, err := s.bind()
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.listening = true
	s.conn = conn
	s.mu.Unlock()

	defer func() {
		conn.Close()
		s.mu.Lock()
		s.listening = false
		s.conn = nil
		s.mu.Unlock()
	}()

	// Unblock the blocking read below when the context ends.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	buf := make([]byte, maxDatagramSize)
	for {
		n, src, err := conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, net.ErrClosed) {
				return fmt.Errorf("failed to read announcement: %w", err)
			}
			// Transient receive errors (ICMP rejections and the like)
			// must not kill the listener.
			s.logger.Debug("Announcement read failed", "error", err)
			continue
		}

		info, err := DecodeAnnouncement(buf[:n])
		if err != nil {
			s.logger.Debug("Discarding malformed announcement", "source", src.String(), "error", err)
			continue
		}
		if info.Fingerprint == selfFingerprint {
			continue
		}

		select {
		case events <- fromAnnouncement(info, time.Now()):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// bind opens the UDP socket and, for multicast groups, joins the group
// on every eligible interface.
func (s *Service) bind() (*net.UDPConn, error) {
	group := net.ParseIP(s.cfg.Group).To4()

	if !group.IsMulticast() {
		conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: group, Port: s.cfg.Port})
		if err != nil {
			return nil, fmt.Errorf("failed to bind discovery port: %w", err)
		}
		return conn, nil
	}

	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4zero, Port: s.cfg.Port})
	if err != nil {
		return nil, fmt.Errorf("failed to bind discovery port: %w", err)
	}

	pc := ipv4.NewPacketConn(conn)
	joined := 0
	for _, iface := range s.interfaces() {
		if err := pc.JoinGroup(&iface, &net.UDPAddr{IP: group}); err != nil {
			s.logger.Debug("Failed to join multicast group", "interface", iface.Name, "error", err)
			continue
		}
		joined++
	}
	if joined == 0 {
		conn.Close()
		return nil, ErrNoMulticastInterfaces
	}
	if err := pc.SetMulticastLoopback(true); err != nil {
		s.logger.Debug("Failed to enable multicast loopback", "error", err)
	}
	return conn, nil
}

// interfaces resolves the configured interface set, or every up
// multicast-capable interface when none were given.
func (s *Service) interfaces() []net.Interface {
	if len(s.cfg.Interfaces) > 0 {
		return s.cfg.Interfaces
	}
	all, err := net.Interfaces()
	if err != nil {
		s.logger.Debug("Failed to enumerate interfaces", "error", err)
		return nil
	}
	eligible := make([]net.Interface, 0, len(all))
	for _, iface := range all {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagMulticast == 0 {
			continue
		}
		eligible = append(eligible, iface)
	}
	return eligible
}

// targetPort is where announcements are sent. When the listener bound
// an ephemeral port it announces to that port so loopback tests can
// observe their own traffic.
func (s *Service) targetPort() int {
	if s.cfg.Port != 0 {
		return s.cfg.Port
	}
	if addr := s.Addr(); addr != nil {
		return addr.Port
	}
	return DefaultPort
}
