package discovery

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// loopbackService binds an ephemeral loopback port so tests can exchange
// real datagrams without touching the multicast group.
func loopbackService(t *testing.T) *Service {
	t.Helper()
	svc, err := NewService(Config{Group: "127.0.0.1", Port: 0})
	require.NoError(t, err)
	return svc
}

// startListener runs Listen in the background and waits for the socket
// to be bound before returning.
func startListener(t *testing.T, svc *Service, self string, events chan<- DiscoveredDevice) (context.CancelFunc, <-chan error) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- svc.Listen(ctx, self, events)
	}()

	require.Eventually(t, func() bool {
		return svc.Addr() != nil
	}, 2*time.Second, 10*time.Millisecond, "listener never bound")

	return cancel, errCh
}

func TestServiceAnnounceAndListen(t *testing.T) {
	svc := loopbackService(t)
	events := make(chan DiscoveredDevice, 1)

	cancel, errCh := startListener(t, svc, "fp-self", events)
	defer cancel()

	info := testDeviceInfo()
	require.NoError(t, svc.AnnounceOnce(info))

	select {
	case device := <-events:
		assert.Equal(t, info.Alias, device.Alias)
		assert.Equal(t, info.Fingerprint, device.Fingerprint)
		assert.Equal(t, info.DeviceType, device.DeviceType)
		assert.WithinDuration(t, time.Now(), device.LastSeen, 5*time.Second)
	case <-time.After(2 * time.Second):
		t.Fatal("announcement was not received")
	}

	cancel()
	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("listener did not stop after cancellation")
	}
}

func TestServiceFiltersOwnAnnouncements(t *testing.T) {
	svc := loopbackService(t)
	events := make(chan DiscoveredDevice, 1)

	info := testDeviceInfo()
	cancel, _ := startListener(t, svc, info.Fingerprint, events)
	defer cancel()

	require.NoError(t, svc.AnnounceOnce(info))

	select {
	case device := <-events:
		t.Fatalf("own announcement was emitted: %+v", device)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestServiceDiscardsMalformedDatagrams(t *testing.T) {
	svc := loopbackService(t)
	events := make(chan DiscoveredDevice, 1)

	cancel, _ := startListener(t, svc, "fp-self", events)
	defer cancel()

	addr := svc.Addr()
	conn, err := net.DialUDP("udp4", nil, addr)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("definitely not a valid announcement"))
	require.NoError(t, err)

	// The listener must survive the junk and still deliver a real
	// announcement afterwards.
	info := testDeviceInfo()
	require.NoError(t, svc.AnnounceOnce(info))

	select {
	case device := <-events:
		assert.Equal(t, info.Fingerprint, device.Fingerprint)
	case <-time.After(2 * time.Second):
		t.Fatal("announcement after malformed datagram was not received")
	}
}

func TestServiceRejectsSecondListener(t *testing.T) {
	svc := loopbackService(t)
	events := make(chan DiscoveredDevice, 1)

	cancel, _ := startListener(t, svc, "fp-self", events)
	defer cancel()

	err := svc.Listen(context.Background(), "fp-self", events)
	assert.ErrorIs(t, err, ErrAlreadyListening)
}

func TestServiceListenRestartsAfterStop(t *testing.T) {
	svc := loopbackService(t)
	events := make(chan DiscoveredDevice, 1)

	cancel, errCh := startListener(t, svc, "fp-self", events)
	cancel()
	select {
	case <-errCh:
	case <-time.After(2 * time.Second):
		t.Fatal("listener did not stop")
	}

	cancel2, _ := startListener(t, svc, "fp-self", events)
	defer cancel2()

	info := testDeviceInfo()
	require.NoError(t, svc.AnnounceOnce(info))

	select {
	case device := <-events:
		assert.Equal(t, info.Fingerprint, device.Fingerprint)
	case <-time.After(2 * time.Second):
		t.Fatal("restarted listener received nothing")
	}
}

func TestNewServiceRejectsInvalidGroup(t *testing.T) {
	_, err := NewService(Config{Group: "not-an-address"})
	assert.Error(t, err)

	_, err = NewService(Config{Group: "2001:db8::1"})
	assert.Error(t, err)
}

func TestAnnounceLoopStopsOnCancel(t *testing.T) {
	svc := loopbackService(t)
	events := make(chan DiscoveredDevice, 4)

	cancel, _ := startListener(t, svc, "fp-self", events)
	defer cancel()

	ctx, stop := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- svc.Announce(ctx, testDeviceInfo(), 50*time.Millisecond)
	}()

	select {
	case <-events:
	case <-time.After(2 * time.Second):
		t.Fatal("periodic announcer sent nothing")
	}

	stop()
	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("announce loop did not stop after cancellation")
	}
}
