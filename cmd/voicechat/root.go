package main

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"voicechat/internal/audio"
	"voicechat/internal/config"
	"voicechat/internal/gateway"
	"voicechat/internal/i18n"
	"voicechat/internal/layout"
	"voicechat/internal/logging"
	"voicechat/internal/session"
)

var (
	version = "dev"
	commit  = "unknown"
)

type rootFlags struct {
	configPath string
	baseURL    string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}
	root := &cobra.Command{
		Use:   "voicechat",
		Short: "Terminal chat client with voice messages",
		Long: `voicechat keeps a list of chat sessions in sync with a remote chat store,
sends text and recorded voice messages, and reconciles each conversation
with the store after every reply.

Quick Start:
  voicechat serve          # local development chat store
  voicechat                # full-screen client (same as "voicechat tui")
  voicechat repl           # line-mode client
  voicechat threads        # list remote threads`,
		Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flags.configPath, "config", "", "Path to config JSON/JSONC/YAML")
	root.PersistentFlags().StringVar(&flags.baseURL, "base-url", "", "Chat store base URL override")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "Log level override (debug, info, warn, error)")
	root.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	tuiCmd := newTUICmd(flags)
	root.RunE = tuiCmd.RunE
	root.AddCommand(tuiCmd, newREPLCmd(flags), newServeCmd(flags), newThreadsCmd(flags))
	return root
}

// loadConfig 读取配置并应用命令行覆盖 / loadConfig reads the config and applies flag overrides
func loadConfig(flags *rootFlags) (config.Config, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	if flags.baseURL != "" {
		cfg.Gateway.BaseURL = flags.baseURL
	}
	if flags.logLevel != "" {
		cfg.Log.Level = flags.logLevel
	}
	i18n.Init(cfg.UI.Locale)
	return cfg, nil
}

// client 客户端组件（tui 与 repl 共用）/ client wires the pieces shared by tui and repl
type client struct {
	gateway  *gateway.Client
	layout   *layout.Controller
	sessions *session.Store
	recorder *audio.Recorder
	log      *logrus.Logger
	closer   io.Closer
}

func (c *client) Close() {
	c.sessions.Close()
	_ = c.closer.Close()
}

// newClient 组装网关、会话存储、布局与录音器；alert 接收麦克风提示
func newClient(cfg config.Config, logPath string, logOut io.Writer, alert audio.Alerter) (*client, error) {
	logger, closer, err := logging.New(cfg.Log.Level, logPath, logOut)
	if err != nil {
		return nil, err
	}

	gw := gateway.NewClient(cfg.Gateway, gateway.WithDownloadBase(cfg.DownloadBaseURL()))
	lay := layout.New(0, cfg.UI.NarrowWidth)
	store := session.New(gw, session.Options{
		RemoteOrder:    cfg.UI.RemoteOrder,
		ReconcileDelay: cfg.UI.ReconcileDelay(),
		Navigator:      lay,
		Logger:         logger.WithField("component", "session"),
		I18n:           i18n.Global(),
	})

	if alert == nil {
		alert = audio.AlertFunc(func(message string) {
			store.RaiseNotice(session.NoticeDevice, message, nil)
		})
	}
	recorder := audio.NewRecorder(audio.CommandDevice{Command: cfg.Audio.Command}, gw, store, alert, audio.Options{
		Extension: cfg.Audio.Extension(),
		Logger:    logger.WithField("component", "audio"),
		I18n:      i18n.Global(),
	})

	logger.WithFields(logrus.Fields{"base_url": gw.BaseURL(), "version": version}).Info("client starting")
	return &client{gateway: gw, layout: lay, sessions: store, recorder: recorder, log: logger, closer: closer}, nil
}

func stderr(cmd *cobra.Command) io.Writer {
	if w := cmd.ErrOrStderr(); w != nil {
		return w
	}
	return os.Stderr
}
