package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"
)

// Device 麦克风 / Device is a microphone
type Device interface {
	Start(ctx context.Context) (Capture, error)
}

// Capture 一次进行中的录音；Stop 结束录音、释放设备并返回完整数据
// Capture is one recording in progress. Stop finalizes it, releases the
// device and returns everything captured.
type Capture interface {
	Stop() ([]byte, error)
}

// CommandDevice 通过外部录音程序（arecord、rec、ffmpeg …）读取麦克风，录音写到 stdout
// CommandDevice records through an external program that writes audio to stdout
type CommandDevice struct {
	Command []string
	// Probe 启动后等待的时间，用于发现立即退出（无设备、无权限）
	// Probe is how long Start watches for an immediate exit (no device, no permission)
	Probe time.Duration
	// Grace 中断后等待退出的时间，超时则强制结束
	// Grace is how long Stop waits after an interrupt before killing the recorder
	Grace time.Duration
}

const (
	defaultProbe = 150 * time.Millisecond
	defaultGrace = 2 * time.Second
)

func (d CommandDevice) Start(ctx context.Context) (Capture, error) {
	if len(d.Command) == 0 || strings.TrimSpace(d.Command[0]) == "" {
		return nil, &DeviceError{Op: "start", Err: ErrNoDevice}
	}
	path, err := exec.LookPath(d.Command[0])
	if err != nil {
		return nil, &DeviceError{Op: "start", Err: fmt.Errorf("%w: %v", ErrNoDevice, err)}
	}

	c := &commandCapture{
		cmd:   exec.Command(path, d.Command[1:]...),
		done:  make(chan struct{}),
		grace: d.Grace,
	}
	if c.grace <= 0 {
		c.grace = defaultGrace
	}
	c.cmd.Stdout = &c.stdout
	c.cmd.Stderr = &c.stderr
	if err := c.cmd.Start(); err != nil {
		if errors.Is(err, os.ErrPermission) {
			err = fmt.Errorf("%w: %v", ErrPermissionDenied, err)
		}
		return nil, &DeviceError{Op: "start", Err: err}
	}
	go func() {
		c.waitErr = c.cmd.Wait()
		close(c.done)
	}()

	probe := d.Probe
	if probe <= 0 {
		probe = defaultProbe
	}
	timer := time.NewTimer(probe)
	defer timer.Stop()
	select {
	case <-c.done:
		return nil, &DeviceError{Op: "start", Err: c.exitReason()}
	case <-ctx.Done():
		_, _ = c.Stop()
		return nil, &DeviceError{Op: "start", Err: ctx.Err()}
	case <-timer.C:
	}
	return c, nil
}

type commandCapture struct {
	cmd     *exec.Cmd
	stdout  bytes.Buffer
	stderr  bytes.Buffer
	done    chan struct{}
	waitErr error
	grace   time.Duration
	once    sync.Once
}

// Stop 先发送中断让录音程序写完文件，超时再强制结束
// Stop interrupts the recorder so it can flush, then kills it after the grace period
func (c *commandCapture) Stop() ([]byte, error) {
	c.once.Do(func() {
		select {
		case <-c.done:
			return
		default:
		}
		_ = c.cmd.Process.Signal(os.Interrupt)
		timer := time.NewTimer(c.grace)
		defer timer.Stop()
		select {
		case <-c.done:
		case <-timer.C:
			_ = c.cmd.Process.Kill()
			<-c.done
		}
	})
	// 进程已退出后 stdout 不再被写入 / stdout is quiescent once the process exited
	data := bytes.Clone(c.stdout.Bytes())
	if len(data) == 0 && c.waitErr != nil {
		return nil, &DeviceError{Op: "stop", Err: c.exitReason()}
	}
	return data, nil
}

func (c *commandCapture) exitReason() error {
	msg := strings.TrimSpace(c.stderr.String())
	lower := strings.ToLower(msg)
	base := ErrNoDevice
	if strings.Contains(lower, "permission") || strings.Contains(lower, "denied") {
		base = ErrPermissionDenied
	}
	if msg == "" {
		if c.waitErr != nil {
			return fmt.Errorf("%w: %v", base, c.waitErr)
		}
		return fmt.Errorf("%w: recorder exited", base)
	}
	return fmt.Errorf("%w: %s", base, msg)
}
