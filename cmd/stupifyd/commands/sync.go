package commands

import (
	"context"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

// SyncCmd runs a one-shot sync pass.
var SyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run a one-shot sync pass",
	Long: `Drain the pending request queue and flush buffered analytics against
the backend, then exit. Does nothing if the backend is unreachable.`,
	RunE: runSync,
}

func runSync(cmd *cobra.Command, args []string) error {
	comps, err := openComponents(cmd)
	if err != nil {
		return err
	}
	defer comps.close()

	// One probe up front so the engine doesn't run against stale state.
	comps.monitor.Start(cmd.Context())
	defer comps.monitor.Stop()
	time.Sleep(200 * time.Millisecond)

	if comps.monitor.IsOffline() {
		pterm.Warning.Println("Backend unreachable, nothing synced")
		return nil
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
	defer cancel()

	result := comps.engine.SyncNow(ctx)

	if result.Success == 0 && result.Failed == 0 {
		pterm.Info.Println("Queue empty, nothing to sync")
		return nil
	}

	pterm.Success.Printf("Delivered %d request(s)\n", result.Success)
	if result.Failed > 0 {
		pterm.Warning.Printf("%d request(s) not delivered:\n", result.Failed)
		for _, msg := range result.Errors {
			pterm.Warning.Printf("  - %s\n", msg)
		}
	}
	return nil
}
