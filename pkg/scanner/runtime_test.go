package scanner

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRuntimeStartShutdown(t *testing.T) {
	svc := loopbackService(t)
	rt, err := NewRuntime(svc, RuntimeConfig{ConfigDir: t.TempDir()})
	require.NoError(t, err)

	require.NoError(t, rt.Start(peerInfo("Me", selfFingerprint)))
	require.NoError(t, rt.Shutdown())

	// Shutdown is idempotent.
	require.NoError(t, rt.Shutdown())
}

func TestRuntimeStartTwiceFails(t *testing.T) {
	svc := loopbackService(t)
	rt, err := NewRuntime(svc, RuntimeConfig{ConfigDir: t.TempDir()})
	require.NoError(t, err)
	defer rt.Shutdown()

	require.NoError(t, rt.Start(peerInfo("Me", selfFingerprint)))
	assert.Error(t, rt.Start(peerInfo("Me", selfFingerprint)))
}

func TestRuntimePersistsDiscoveredDevices(t *testing.T) {
	dir := t.TempDir()
	svc := loopbackService(t)
	rt, err := NewRuntime(svc, RuntimeConfig{ConfigDir: dir})
	require.NoError(t, err)

	require.NoError(t, rt.Start(peerInfo("Me", selfFingerprint)))

	require.NoError(t, svc.AnnounceOnce(peerInfo("Kitchen", "fp-kitchen")))
	require.Eventually(t, func() bool {
		return len(rt.Devices()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, rt.Shutdown())

	// A fresh runtime sees the device from disk without any traffic.
	rt2, err := NewRuntime(loopbackService(t), RuntimeConfig{ConfigDir: dir})
	require.NoError(t, err)

	devices := rt2.Devices()
	require.Len(t, devices, 1)
	assert.Equal(t, "Kitchen", devices[0].Alias)
	assert.Equal(t, "fp-kitchen", devices[0].Fingerprint)
}

func TestRuntimeAnnounceLoop(t *testing.T) {
	svcA := loopbackService(t)

	rt, err := NewRuntime(svcA, RuntimeConfig{ConfigDir: t.TempDir(), Announce: true})
	require.NoError(t, err)
	defer rt.Shutdown()

	require.NoError(t, rt.Start(peerInfo("Announcer", "fp-announcer")))
	assert.True(t, rt.Scanner().IsBroadcasting())

	require.NoError(t, rt.Shutdown())
	assert.False(t, rt.Scanner().IsBroadcasting())
}

func TestRuntimePruneExpired(t *testing.T) {
	dir := t.TempDir()
	svc := loopbackService(t)
	rt, err := NewRuntime(svc, RuntimeConfig{ConfigDir: dir})
	require.NoError(t, err)

	require.NoError(t, rt.Start(peerInfo("Me", selfFingerprint)))
	require.NoError(t, svc.AnnounceOnce(peerInfo("Kitchen", "fp-kitchen")))
	require.Eventually(t, func() bool {
		return len(rt.Devices()) == 1
	}, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, rt.Shutdown())

	assert.Equal(t, 0, rt.PruneExpired())
	assert.Len(t, rt.Devices(), 1)
}

func TestRuntimeCorruptDeviceFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".discovered"), []byte("{broken"), 0644))

	_, err := NewRuntime(loopbackService(t), RuntimeConfig{ConfigDir: dir})
	assert.Error(t, err)
}
