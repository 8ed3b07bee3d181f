package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/me/uthread/internal/execution"
	"github.com/me/uthread/internal/server"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("addr") {
				cfg.Server.Addr = addr
			}

			st, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer st.Close()

			eng := execution.NewEngine(execution.Config{
				Logger:       logger,
				Store:        st,
				Dispatch:     cfg.Scheduler.Dispatch(),
				TickInterval: cfg.Scheduler.TickInterval,
			})
			srv := server.New(cfg.Server, st, eng, logger)

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return server.ListenAndServe(ctx, cfg.Server.Addr, srv.Handler(), logger)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", ":8080", "Listen address")
	return cmd
}
