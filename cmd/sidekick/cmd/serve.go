package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/companygpt/sidekick/internal/app"
	"github.com/companygpt/sidekick/internal/browser"
	"github.com/companygpt/sidekick/internal/config"
)

var listenAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the assistant's message API",
	Long: `Serve starts the assistant and listens for the browser contexts on
the message API. Cookie, tab and page-scripting bridges are fed by the
embedding browser host; a headless run answers with what it has.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath, debug)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		if listenAddr != "" {
			cfg.ListenAddr = listenAddr
		}

		logger := log.NewWithOptions(os.Stderr, log.Options{
			ReportTimestamp: true,
			Prefix:          "sidekick",
		})
		if cfg.Debug {
			logger.SetLevel(log.DebugLevel)
		}

		if err := os.MkdirAll(cfg.Data.Directory, 0o755); err != nil {
			return fmt.Errorf("creating data directory: %w", err)
		}
		storage, err := browser.NewFileStorage(cfg.StateFile())
		if err != nil {
			return fmt.Errorf("opening state file: %w", err)
		}

		host := app.Host{
			Cookies:   browser.NewMemoryCookies(),
			Tabs:      browser.NewMemoryTabs(browser.Tab{}),
			Page:      browser.NoScripting{},
			Clipboard: browser.SystemClipboard{},
			Storage:   storage,
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return app.New(cfg, host, logger).Run(ctx)
	},
}

func init() {
	serveCmd.Flags().StringVarP(&listenAddr, "listen", "l", "", "listen address (overrides config)")
	rootCmd.AddCommand(serveCmd)
}
