package commands

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/mdnaeem95/stupify-extension/config"
	"github.com/mdnaeem95/stupify-extension/errors"
	"github.com/mdnaeem95/stupify-extension/logger"
	"github.com/mdnaeem95/stupify-extension/server"
)

// ServeCmd runs the daemon until interrupted.
var ServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the offline daemon",
	Long: `Run the connectivity monitor, background sync engine, and the local
HTTP/WebSocket server the extension UI connects to. Stops on Ctrl+C.`,
	RunE: runServe,
}

var servePort int

func init() {
	ServeCmd.Flags().IntVar(&servePort, "port", 0, "Listen port (overrides config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	comps, err := openComponents(cmd)
	if err != nil {
		return err
	}
	defer comps.close()

	port := comps.cfg.Server.Port
	if servePort != 0 {
		port = servePort
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	comps.monitor.Start(ctx)
	defer comps.monitor.Stop()
	comps.engine.Start(ctx)
	defer comps.engine.Stop()

	// Watch the user config so limit changes apply without a restart.
	watcher := startConfigWatcher(comps)
	if watcher != nil {
		defer watcher.Stop()
	}

	srv := server.New(comps.gateway, comps.engine, comps.monitor, comps.queue, logger.Logger)

	pterm.Info.Printf("Stupify offline daemon listening on 127.0.0.1:%d\n", port)

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Start(port)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return errors.Wrap(err, "server failed to start")
	case <-sigChan:
		pterm.Info.Println("\nShutting down gracefully (press Ctrl+C again to force)...")

		shutdownDone := make(chan error, 1)
		go func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer shutdownCancel()
			shutdownDone <- srv.Shutdown(shutdownCtx)
		}()

		select {
		case err := <-shutdownDone:
			if err != nil {
				return errors.Wrap(err, "shutdown error")
			}
			pterm.Success.Println("Daemon stopped cleanly")
			return nil
		case <-sigChan:
			pterm.Warning.Println("\nForce shutdown - exiting immediately")
			os.Exit(1)
			return nil // unreachable
		}
	}
}

// startConfigWatcher reloads tunables when the user config file changes.
// Returns nil if the config file doesn't exist yet.
func startConfigWatcher(comps *components) *config.Watcher {
	configPath := filepath.Join(config.UserConfigDir(), "config.toml")
	if _, err := os.Stat(configPath); err != nil {
		return nil
	}

	watcher, err := config.NewWatcher(configPath)
	if err != nil {
		logger.Warnw("Config watcher unavailable", "error", err)
		return nil
	}

	watcher.OnReload(func(cfg *config.Config) error {
		comps.gateway.SetUsageLimit(cfg.Backend.RequestsPerMinute)
		logger.Infow("Applied config reload",
			"requests_per_minute", cfg.Backend.RequestsPerMinute,
		)
		return nil
	})

	watcher.Start()
	return watcher
}
