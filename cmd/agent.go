package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/chromedp/chromedp"
	"github.com/spf13/cobra"

	"github.com/xkilldash9x/tabwire/internal/agent"
	"github.com/xkilldash9x/tabwire/internal/observability"
	"github.com/xkilldash9x/tabwire/internal/signature"
	"github.com/xkilldash9x/tabwire/internal/transport"
)

// newAgentCmd creates the `agent` command: the browser side of the bus. It
// starts Chrome, dials every configured front-end port, and executes
// commands until signalled.
func newAgentCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "agent",
		Short: "Run the browser agent: dial the front-end and execute browser commands",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := observability.GetLogger()

			codec, err := signature.NewCodec(cfg.Bus.Secret)
			if err != nil {
				return err
			}

			history, err := agent.NewHistoryStore(cfg.Agent.HistoryPath, logger)
			if err != nil {
				return err
			}
			defer history.Close()

			allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(),
				agent.AllocatorOptions(cfg.Agent.Headless)...)
			defer allocCancel()

			browser, err := agent.NewBrowser(allocCtx, history, cfg.Agent.ContentMaxChars, logger)
			if err != nil {
				return err
			}
			defer browser.Shutdown()

			// Dialers feed inbound commands to the dispatcher and the
			// dispatcher replies through the dialer group; disp is assigned
			// before any dialer starts.
			var disp *agent.Dispatcher
			handler := func(payload []byte) { disp.HandleInbound(payload) }

			endpoints := make([]transport.Endpoint, 0, len(cfg.Bus.Ports))
			dialers := make([]*transport.Dialer, 0, len(cfg.Bus.Ports))
			for _, url := range cfg.Bus.EndpointURLs() {
				d := transport.NewDialer(url, codec, handler, nil, cfg.Bus.RetryInterval, logger)
				dialers = append(dialers, d)
				endpoints = append(endpoints, d)
			}

			group := transport.NewGroup(logger, endpoints...)
			disp = agent.NewDispatcher(browser, group, cfg.Agent.OperationTimeout, logger)

			for _, d := range dialers {
				d.Start()
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			<-ctx.Done()

			group.Close()
			logger.Info("Browser agent stopped")
			return nil
		},
	}
}
