package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"voicechat/internal/i18n"
	"voicechat/internal/repl"
)

func newREPLCmd(flags *rootFlags) *cobra.Command {
	var noColor bool
	cmd := &cobra.Command{
		Use:   "repl",
		Short: "Run the line-mode chat client",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			c, err := newClient(cfg, cfg.Log.File, stderr(cmd), nil)
			if err != nil {
				return err
			}
			defer c.Close()

			input, inputErr := repl.NewLineInput(filepath.Join(cfg.Storage.BaseDir, "repl.history"))
			if inputErr != nil {
				fmt.Fprintf(stderr(cmd), "line editor unavailable, fallback to basic input: %v\n", inputErr)
			}
			defer input.Close()

			loop := repl.NewLoop(repl.Options{
				Sessions: c.sessions,
				Recorder: c.recorder,
				Input:    input,
				Out:      cmd.OutOrStdout(),
				I18n:     i18n.Global(),
				Color:    !noColor && isatty.IsTerminal(os.Stdout.Fd()),
			})
			return loop.Run(cmd.Context())
		},
	}
	cmd.Flags().BoolVar(&noColor, "no-color", false, "Disable ANSI colors")
	return cmd
}
