package main

import (
	"github.com/spf13/cobra"

	"voicechat/internal/i18n"
	"voicechat/internal/tokens"
	"voicechat/internal/tui"
)

func newTUICmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "tui",
		Short: "Run the full-screen chat client",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			alerts := tui.NewAlerts()
			// TUI 占用终端，日志只写文件 / the alt screen owns the terminal, so logs go to a file
			c, err := newClient(cfg, cfg.LogPath(), nil, alerts)
			if err != nil {
				return err
			}
			defer c.Close()

			return tui.Run(cmd.Context(), tui.Options{
				Sessions: c.sessions,
				Layout:   c.layout,
				Recorder: c.recorder,
				Alerts:   alerts,
				Tokens:   tokens.Default(),
				I18n:     i18n.Global(),
				Logger:   c.log.WithField("component", "tui"),
			})
		},
	}
}
