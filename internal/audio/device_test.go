package audio

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandDeviceMissingBinary(t *testing.T) {
	_, err := CommandDevice{Command: []string{"voicechat-no-such-recorder"}}.Start(context.Background())
	var devErr *DeviceError
	require.ErrorAs(t, err, &devErr)
	assert.ErrorIs(t, err, ErrNoDevice)
}

func TestCommandDeviceEmptyCommand(t *testing.T) {
	_, err := CommandDevice{}.Start(context.Background())
	assert.ErrorIs(t, err, ErrNoDevice)
}

func TestCommandDeviceImmediateExit(t *testing.T) {
	dev := CommandDevice{Command: []string{"sh", "-c", "echo 'audio open error: Permission denied' >&2; exit 1"}, Probe: time.Second}
	_, err := dev.Start(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPermissionDenied)
	assert.Contains(t, err.Error(), "Permission denied")
}

func TestCommandDeviceCapturesStdout(t *testing.T) {
	dev := CommandDevice{Command: []string{"sh", "-c", "printf RIFF; exec sleep 30"}, Probe: 50 * time.Millisecond, Grace: time.Second}
	capture, err := dev.Start(context.Background())
	require.NoError(t, err)

	// printf 可能稍晚才写出 / printf may land slightly after the probe window
	time.Sleep(100 * time.Millisecond)
	data, err := capture.Stop()
	require.NoError(t, err)
	assert.Equal(t, "RIFF", string(data))

	again, err := capture.Stop()
	require.NoError(t, err)
	assert.Equal(t, data, again)
}
