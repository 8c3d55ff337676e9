package wol

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/mholzer/restic-backup/internal/models"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockWOLClient struct {
	wakeFunc func(broadcastIP string, mac net.HardwareAddr) error
}

func (m *mockWOLClient) Wake(broadcastIP string, mac net.HardwareAddr) error {
	if m.wakeFunc != nil {
		return m.wakeFunc(broadcastIP, mac)
	}
	return nil
}

type mockHTTPClient struct {
	doFunc func(req *http.Request) (*http.Response, error)
}

func (m *mockHTTPClient) Do(req *http.Request) (*http.Response, error) {
	if m.doFunc != nil {
		return m.doFunc(req)
	}
	return &http.Response{
		StatusCode: http.StatusOK,
		Body:       io.NopCloser(strings.NewReader("")),
	}, nil
}

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

// hostConfig is a typical NAS wake config: the repository host sits on the
// local subnet and runs a rest-server on port 8000.
func hostConfig() models.WOLConfig {
	return models.WOLConfig{
		MACAddress:    "1C:69:7A:0A:2B:3C",
		BroadcastIP:   "10.0.0.255",
		PollURL:       "http://10.0.0.40:8000",
		Timeout:       10 * time.Second,
		PollInterval:  10 * time.Millisecond,
		StabilizeWait: 0,
	}
}

func TestWake_PacketOnly(t *testing.T) {
	var capturedMAC net.HardwareAddr
	var capturedBroadcastIP string

	wolClient := &mockWOLClient{
		wakeFunc: func(broadcastIP string, mac net.HardwareAddr) error {
			capturedMAC = mac
			capturedBroadcastIP = broadcastIP
			return nil
		},
	}

	svc := NewWithClients(testLogger(), wolClient, nil)

	// No poll URL: the packet goes out and the run proceeds straight to
	// the repository probe.
	cfg := hostConfig()
	cfg.PollURL = ""

	result, err := svc.Wake(context.Background(), cfg)

	require.NoError(t, err)
	assert.True(t, result.PacketSent)
	assert.True(t, result.TargetReady)
	assert.Nil(t, result.Error)

	expectedMAC, _ := net.ParseMAC("1C:69:7A:0A:2B:3C")
	assert.Equal(t, expectedMAC, capturedMAC)
	assert.Equal(t, "10.0.0.255", capturedBroadcastIP)
}

func TestWake_InvalidMAC(t *testing.T) {
	svc := NewWithClients(testLogger(), &mockWOLClient{}, nil)

	cfg := hostConfig()
	cfg.MACAddress = "not-a-mac"
	cfg.PollURL = ""

	result, err := svc.Wake(context.Background(), cfg)

	require.NoError(t, err)
	assert.False(t, result.PacketSent)
	assert.NotNil(t, result.Error)
	assert.Contains(t, result.Error.Error(), "invalid MAC address")
}

func TestWake_PacketSendFailed(t *testing.T) {
	wolClient := &mockWOLClient{
		wakeFunc: func(broadcastIP string, mac net.HardwareAddr) error {
			return errors.New("sendto: network is unreachable")
		},
	}

	svc := NewWithClients(testLogger(), wolClient, nil)

	cfg := hostConfig()
	cfg.PollURL = ""

	result, err := svc.Wake(context.Background(), cfg)

	require.NoError(t, err)
	assert.False(t, result.PacketSent)
	assert.NotNil(t, result.Error)
	assert.Contains(t, result.Error.Error(), "network is unreachable")
}

func TestWake_WithPollURL_HostAlreadyUp(t *testing.T) {
	var polledURL string
	httpClient := &mockHTTPClient{
		doFunc: func(req *http.Request) (*http.Response, error) {
			polledURL = req.URL.String()
			return &http.Response{
				StatusCode: http.StatusOK,
				Body:       io.NopCloser(strings.NewReader("")),
			}, nil
		},
	}

	svc := NewWithClients(testLogger(), &mockWOLClient{}, httpClient)

	result, err := svc.Wake(context.Background(), hostConfig())

	require.NoError(t, err)
	assert.True(t, result.PacketSent)
	assert.True(t, result.TargetReady)
	assert.Nil(t, result.Error)
	assert.Equal(t, "http://10.0.0.40:8000", polledURL)
}

func TestWake_WithPollURL_HostComesUpLater(t *testing.T) {
	// The rest-server refuses connections until the host has booted.
	polls := 0
	httpClient := &mockHTTPClient{
		doFunc: func(req *http.Request) (*http.Response, error) {
			polls++
			if polls < 4 {
				return nil, errors.New("connection refused")
			}
			return &http.Response{
				StatusCode: http.StatusOK,
				Body:       io.NopCloser(strings.NewReader("")),
			}, nil
		},
	}

	svc := NewWithClients(testLogger(), &mockWOLClient{}, httpClient)

	result, err := svc.Wake(context.Background(), hostConfig())

	require.NoError(t, err)
	assert.True(t, result.PacketSent)
	assert.True(t, result.TargetReady)
	assert.Nil(t, result.Error)
	assert.GreaterOrEqual(t, polls, 4)
}

func TestWake_WithPollURL_HostNeverUp(t *testing.T) {
	httpClient := &mockHTTPClient{
		doFunc: func(req *http.Request) (*http.Response, error) {
			return nil, errors.New("connection refused")
		},
	}

	svc := NewWithClients(testLogger(), &mockWOLClient{}, httpClient)

	cfg := hostConfig()
	cfg.Timeout = 50 * time.Millisecond

	result, err := svc.Wake(context.Background(), cfg)

	require.NoError(t, err)
	assert.True(t, result.PacketSent)
	assert.False(t, result.TargetReady)
	assert.NotNil(t, result.Error)
	assert.Contains(t, result.Error.Error(), "timeout waiting for repository host")
}

func TestWake_ContextCancelledWhilePolling(t *testing.T) {
	httpClient := &mockHTTPClient{
		doFunc: func(req *http.Request) (*http.Response, error) {
			return nil, errors.New("connection refused")
		},
	}

	svc := NewWithClients(testLogger(), &mockWOLClient{}, httpClient)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()

	result, err := svc.Wake(ctx, hostConfig())

	require.NoError(t, err)
	assert.True(t, result.PacketSent)
	assert.False(t, result.TargetReady)
	assert.Equal(t, context.Canceled, result.Error)
}

func TestWake_StabilizeWaitApplies(t *testing.T) {
	svc := NewWithClients(testLogger(), &mockWOLClient{}, &mockHTTPClient{})

	// The host answers immediately, but services on it (the rest-server,
	// mounted disks) need a moment after boot.
	cfg := hostConfig()
	cfg.StabilizeWait = 50 * time.Millisecond

	start := time.Now()
	result, err := svc.Wake(context.Background(), cfg)
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.True(t, result.TargetReady)
	assert.GreaterOrEqual(t, elapsed, cfg.StabilizeWait)
	assert.GreaterOrEqual(t, result.WaitDuration, cfg.StabilizeWait)
}
