// Package audio 录音流水线：idle → recording → idle，停止后上传并交给会话发送
// Package audio is the capture pipeline. A recording goes idle → recording →
// idle; stopping uploads the artifact and hands its URL to the session store.
package audio

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"voicechat/internal/gateway"
	"voicechat/internal/i18n"
	"voicechat/internal/logging"
	"voicechat/internal/session"
)

// State 录音状态 / State is the recorder state
type State int

const (
	StateIdle State = iota
	StateRecording
)

func (s State) String() string {
	if s == StateRecording {
		return "recording"
	}
	return "idle"
}

// Uploader 上传录音并推导下载地址；*gateway.Client 实现它
// Uploader stores a recording remotely; *gateway.Client implements it
type Uploader interface {
	UploadAudioArtifact(ctx context.Context, data []byte, filename string) (gateway.Upload, error)
	DownloadURL(remoteFilename string) string
}

// Sender 接收录音引用；*session.Store 实现它
// Sender receives the recording reference; *session.Store implements it
type Sender interface {
	SendMessage(ctx context.Context, text, audioRef string) (session.SendOutcome, error)
}

// Alerter 显示阻塞式提示 / Alerter shows a blocking alert
type Alerter interface {
	Alert(message string)
}

// AlertFunc 把函数适配为 Alerter / AlertFunc adapts a function to Alerter
type AlertFunc func(message string)

func (f AlertFunc) Alert(message string) { f(message) }

type Options struct {
	Extension string
	Logger    logrus.FieldLogger
	I18n      *i18n.I18n
	Now       func() time.Time
}

type Recorder struct {
	dev   Device
	up    Uploader
	send  Sender
	alert Alerter
	opts  Options

	mu      sync.Mutex
	state   State
	capture Capture
}

func NewRecorder(dev Device, up Uploader, send Sender, alert Alerter, opts Options) *Recorder {
	if opts.Extension == "" {
		opts.Extension = ".wav"
	}
	if !strings.HasPrefix(opts.Extension, ".") {
		opts.Extension = "." + opts.Extension
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	if opts.I18n == nil {
		opts.I18n = i18n.Global()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if alert == nil {
		alert = AlertFunc(func(string) {})
	}
	return &Recorder{dev: dev, up: up, send: send, alert: alert, opts: opts}
}

func (r *Recorder) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *Recorder) Recording() bool { return r.State() == StateRecording }

// Start 打开麦克风；失败时显示提示并保持 idle。录音中再次调用为空操作
// Start opens the microphone. On failure it raises a blocking alert and stays
// idle. Calling it while recording does nothing.
func (r *Recorder) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == StateRecording {
		return nil
	}
	capture, err := r.dev.Start(ctx)
	if err != nil {
		var devErr *DeviceError
		if !errors.As(err, &devErr) {
			err = &DeviceError{Op: "start", Err: err}
		}
		r.opts.Logger.WithError(err).Warn("microphone unavailable")
		r.alert.Alert(r.opts.I18n.T("audio.mic_denied"))
		return err
	}
	r.capture = capture
	r.state = StateRecording
	r.opts.Logger.Debug("recording started")
	return nil
}

// Stop 结束录音并发送；处理失败时发送一条错误文本而不是返回错误
// Stop ends the recording, uploads it and sends (pendingText, url). Processing
// failures are sent as an error text message instead of being returned.
func (r *Recorder) Stop(ctx context.Context, pendingText string) (session.SendOutcome, error) {
	r.mu.Lock()
	if r.state != StateRecording {
		r.mu.Unlock()
		return session.OutcomeSkipped, nil
	}
	capture := r.capture
	r.capture = nil
	r.state = StateIdle
	r.mu.Unlock()

	data, err := capture.Stop()
	if err == nil && len(data) == 0 {
		err = errors.New(r.opts.I18n.T("audio.empty"))
	}
	if err != nil {
		return r.reportFailure(ctx, err)
	}

	filename := r.filename()
	up, err := r.up.UploadAudioArtifact(ctx, data, filename)
	if err != nil {
		return r.reportFailure(ctx, err)
	}
	url := r.up.DownloadURL(up.RemoteFilename)
	r.opts.Logger.WithFields(logrus.Fields{"file": up.RemoteFilename, "bytes": len(data)}).Info("recording uploaded")
	return r.send.SendMessage(ctx, pendingText, url)
}

func (r *Recorder) reportFailure(ctx context.Context, cause error) (session.SendOutcome, error) {
	r.opts.Logger.WithError(cause).Warn("audio processing failed")
	return r.send.SendMessage(ctx, r.opts.I18n.T("audio.process_failed", reasonOf(cause)), "")
}

// filename recording-<ISO 时间，冒号与点替换为短横线>.wav
func (r *Recorder) filename() string {
	ts := r.opts.Now().UTC().Format("2006-01-02T15:04:05.000Z")
	ts = strings.NewReplacer(":", "-", ".", "-").Replace(ts)
	return fmt.Sprintf("recording-%s%s", ts, r.opts.Extension)
}

func reasonOf(err error) string {
	var statusErr *gateway.StatusError
	if errors.As(err, &statusErr) {
		return "Upload failed: " + strings.TrimSpace(statusErr.Status)
	}
	return err.Error()
}
