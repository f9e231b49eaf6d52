package main

import (
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"voicechat/internal/chat"
	"voicechat/internal/gateway"
	"voicechat/internal/i18n"
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("62")).
			Padding(0, 1)

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("212"))

	idStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("240")).
		Italic(true)

	dateStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243"))
)

func newThreadsCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "threads",
		Short: "List remote chat threads",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			gw := gateway.NewClient(cfg.Gateway)
			threads, err := gw.ListThreads(cmd.Context())
			if err != nil {
				return err
			}
			printThreads(cmd.OutOrStdout(), threads)
			return nil
		},
	}
}

// printThreads 按创建时间倒序输出 / printThreads prints threads newest first
func printThreads(out io.Writer, threads []gateway.Thread) {
	if len(threads) == 0 {
		fmt.Fprintln(out, dateStyle.Render("no threads"))
		return
	}
	sorted := slices.Clone(threads)
	slices.SortStableFunc(sorted, func(a, b gateway.Thread) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})

	fmt.Fprintln(out, headerStyle.Render(fmt.Sprintf("%s (%d)", i18n.T("sidebar.title"), len(sorted))))
	for i, t := range sorted {
		title := t.Title
		if title == "" {
			title = chat.DefaultTitle(t.ChatID)
		}
		created := "unknown"
		if !t.CreatedAt.IsZero() {
			created = t.CreatedAt.Local().Format(time.DateTime)
		}
		fmt.Fprintf(out, "%3d. %s  %s  %s\n", i+1, titleStyle.Render(title), idStyle.Render(t.ChatID), dateStyle.Render(created))
	}
}
