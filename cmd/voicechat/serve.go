package main

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"voicechat/internal/logging"
	"voicechat/internal/responder"
	"voicechat/internal/server"
	"voicechat/internal/storage"
)

func newServeCmd(flags *rootFlags) *cobra.Command {
	var addr, responderName string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the local development chat store",
		Long: `serve runs an HTTP chat store with the same routes the client uses.
Threads, messages and uploads are kept in SQLite under the data directory.
Replies come from the echo responder or any OpenAI-compatible endpoint.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}
			if responderName != "" {
				cfg.Server.Responder = responderName
			}

			logger, closer, err := logging.New(cfg.Log.Level, cfg.Log.File, stderr(cmd))
			if err != nil {
				return err
			}
			defer closer.Close()

			store, err := storage.NewSQLiteStore(cfg.Storage.DBPath())
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}
			defer store.Close()

			resp, err := responder.New(cfg.Server)
			if err != nil {
				return err
			}
			srv, err := server.New(store, resp, server.Options{
				UploadDir: cfg.Storage.UploadDir(),
				Logger:    logger.WithField("component", "server"),
			})
			if err != nil {
				return err
			}
			logger.WithFields(logrus.Fields{
				"db":        store.Path(),
				"responder": resp.Name(),
			}).Info("chat store ready")
			return srv.Serve(cmd.Context(), cfg.Server.Addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address override")
	cmd.Flags().StringVar(&responderName, "responder", "", "Responder override (echo or openai)")
	return cmd
}
