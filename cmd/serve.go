package main

import (
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/refdata-tools/depara-admin/internal/mapping"
	"github.com/refdata-tools/depara-admin/internal/reconcile"
	"github.com/refdata-tools/depara-admin/internal/server"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the DePara administration server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := newEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		srv := server.New(
			env.Registry,
			env.Dir,
			env.Stores,
			server.NewSessions(time.Duration(cfg.Server.SessionTTLHours)*time.Hour),
			reconcile.NewSyncer(cfg.Golden.SyncWorkers),
			mapping.ImportOptions{
				BatchCommitRows: cfg.Import.BatchCommitRows,
				MaxRowErrors:    cfg.Import.MaxRowErrors,
			},
			cfg.Server.AllowedOrigins,
		)

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		httpSrv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: srv.Router(),
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			httpSrv.Shutdown(ctx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
