// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jeranaias/bizartvisor-cli/internal/server"
)

type serveFlags struct {
	addr       string
	chunkSize  int
	chunkDelay time.Duration
	rateLimit  float64
}

func newServeCmd(a *app) *cobra.Command {
	var flags serveFlags

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run a local development backend",
		Long: `Run a development backend that speaks the same protocol as the real one.

Replies echo the input and stream in small chunks so clients can be tried
without model credentials. Threads are kept in memory until exit.`,
		Example: `  bizartvisor serve --addr 127.0.0.1:5000
  bizartvisor --backend http://127.0.0.1:5000 chat`,
		GroupID: "backend",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := a.cfg.Server
			if cmd.Flags().Changed("addr") {
				cfg.Addr = flags.addr
			}
			if cmd.Flags().Changed("chunk-size") {
				cfg.ChunkSize = flags.chunkSize
			}
			if cmd.Flags().Changed("chunk-delay") {
				cfg.ChunkDelayMs = int(flags.chunkDelay / time.Millisecond)
			}
			if cmd.Flags().Changed("rate-limit") {
				cfg.RateLimit = flags.rateLimit
			}

			log, err := a.logger(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer log.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return server.New(server.Options{
				Config: cfg,
				Logger: log.Component("serve"),
			}).Run(ctx)
		},
	}

	cmd.Flags().StringVar(&flags.addr, "addr", "", "Listen address (default server.addr)")
	cmd.Flags().IntVar(&flags.chunkSize, "chunk-size", 0, "Reply bytes per streamed chunk")
	cmd.Flags().DurationVar(&flags.chunkDelay, "chunk-delay", 0, "Pause between chunks, e.g. 30ms")
	cmd.Flags().Float64Var(&flags.rateLimit, "rate-limit", 0, "Requests per second per client (0 disables)")
	return cmd
}
