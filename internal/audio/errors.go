package audio

import (
	"errors"
	"fmt"
)

var (
	// ErrNoDevice 没有可用的录音设备或录音程序
	ErrNoDevice = errors.New("no recording device")
	// ErrPermissionDenied 设备存在但拒绝访问
	ErrPermissionDenied = errors.New("microphone permission denied")
)

// DeviceError 打开或使用麦克风失败
// DeviceError is a failure to open or use the microphone
type DeviceError struct {
	Op  string
	Err error
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("audio %s: %v", e.Op, e.Err)
}

func (e *DeviceError) Unwrap() error { return e.Err }
