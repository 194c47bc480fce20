package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/marwant/zizh/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web server for remote control",
	Long: `Start the zizh web server to control recording and playback over HTTP.
This allows you to control the recorder from your smartphone or any device on the same network.

Prometheus metrics are served on /metrics.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, _ := cmd.Flags().GetString("addr")
		if addr == "" {
			addr = cfg.Server.Address
		}

		svc, err := newService()
		if err != nil {
			return err
		}
		defer svc.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		srv := server.New(addr, svc.ViewModel, svc.Arbiter, svc.Metrics.Handler())
		slog.Info("zizh web server starting", "address", addr, "config", cfgFile)

		err = svc.Run(ctx, func(ctx context.Context) error {
			return srv.Start(ctx)
		})
		if err != nil && ctx.Err() == nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().String("addr", "", "listen address (default from server.address)")
}
