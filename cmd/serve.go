package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/tabwire/internal/correlation"
	"github.com/xkilldash9x/tabwire/internal/gateway"
	"github.com/xkilldash9x/tabwire/internal/observability"
	"github.com/xkilldash9x/tabwire/internal/signature"
	"github.com/xkilldash9x/tabwire/internal/tools"
	"github.com/xkilldash9x/tabwire/internal/transport"
)

// newServeCmd creates the `serve` command: the front-end side of the bus.
// It listens for the browser agent on every configured port, exposes the
// typed tool surface over a loopback HTTP bridge, and runs until a signal.
func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the tool front-end: accept the browser agent and serve the tool bridge",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := observability.GetLogger()

			codec, err := signature.NewCodec(cfg.Bus.Secret)
			if err != nil {
				return err
			}
			tracker := correlation.NewTracker(logger)

			// The gateway and the listeners reference each other: listeners
			// feed inbound results to the gateway, the gateway sends through
			// the listener group. The handlers close over gw, which is
			// assigned before any listener starts accepting.
			var gw *gateway.Gateway
			handler := func(payload []byte) { gw.HandleInbound(payload) }
			onDown := func() { gw.OnTransportDown(transport.ErrNotConnected) }

			endpoints := make([]transport.Endpoint, 0, len(cfg.Bus.Ports))
			listeners := make([]*transport.Listener, 0, len(cfg.Bus.Ports))
			for _, addr := range cfg.Bus.EndpointAddrs() {
				ln := transport.NewListener(addr, codec, handler, onDown, logger)
				listeners = append(listeners, ln)
				endpoints = append(endpoints, ln)
			}

			group := transport.NewGroup(logger, endpoints...)
			gw = gateway.New(group, tracker, cfg.Bus.CallTimeout, logger)

			// A blocked port is survivable as long as at least one binds;
			// that redundancy is the point of running several.
			bound := 0
			for _, ln := range listeners {
				if err := ln.Start(); err != nil {
					logger.Warn("Failed to bind bus endpoint, continuing with the rest", zap.Error(err))
					continue
				}
				bound++
			}
			if bound == 0 {
				group.Close()
				return fmt.Errorf("serve: no bus endpoint could bind")
			}

			bridge := tools.NewServer(cfg.Tools.ListenAddr, tools.NewBrowser(gw), logger)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			g, gctx := errgroup.WithContext(ctx)
			g.Go(bridge.ListenAndServe)
			g.Go(func() error {
				<-gctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := bridge.Shutdown(shutdownCtx); err != nil {
					logger.Warn("Tool bridge shutdown was not clean", zap.Error(err))
				}
				group.Close()
				tracker.RejectAll(gctx.Err())
				return nil
			})

			err = g.Wait()
			logger.Info("Front-end stopped")
			return err
		},
	}
}
