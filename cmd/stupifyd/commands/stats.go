package commands

import (
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

// StatsCmd shows offline subsystem state.
var StatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show cache, queue, and sync state",
	RunE:  runStats,
}

func runStats(cmd *cobra.Command, args []string) error {
	comps, err := openComponents(cmd)
	if err != nil {
		return err
	}
	defer comps.close()

	stats, err := comps.gateway.Stats()
	if err != nil {
		return err
	}

	pending, err := comps.buffer.Count()
	if err != nil {
		return err
	}

	pterm.DefaultSection.Println("Offline stats")
	pterm.Printf("Cached explanations:  %d\n", stats.CacheSize)
	pterm.Printf("Queued requests:      %d\n", stats.QueueSize)
	pterm.Printf("Buffered analytics:   %d\n", pending)
	pterm.Printf("Sync state:           %s\n", stats.SyncState)
	return nil
}
