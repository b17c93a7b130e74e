package commands

import (
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

// QueueCmd groups queue inspection subcommands.
var QueueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Inspect or clear the pending request queue",
}

var queueListCmd = &cobra.Command{
	Use:   "list",
	Short: "List pending requests, oldest first",
	RunE:  runQueueList,
}

var queueClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Drop all pending requests",
	RunE:  runQueueClear,
}

func init() {
	QueueCmd.AddCommand(queueListCmd)
	QueueCmd.AddCommand(queueClearCmd)
}

func runQueueList(cmd *cobra.Command, args []string) error {
	comps, err := openComponents(cmd)
	if err != nil {
		return err
	}
	defer comps.close()

	entries, err := comps.queue.List()
	if err != nil {
		return err
	}

	if len(entries) == 0 {
		pterm.Info.Println("Queue is empty")
		return nil
	}

	rows := pterm.TableData{{"ID", "Kind", "Endpoint", "Retries", "Enqueued"}}
	for _, entry := range entries {
		rows = append(rows, []string{
			shortID(entry.ID),
			string(entry.Kind),
			entry.Endpoint,
			pterm.Sprintf("%d", entry.RetryCount),
			entry.EnqueuedAt.Format("2006-01-02 15:04:05"),
		})
	}
	return pterm.DefaultTable.WithHasHeader().WithData(rows).Render()
}

func runQueueClear(cmd *cobra.Command, args []string) error {
	comps, err := openComponents(cmd)
	if err != nil {
		return err
	}
	defer comps.close()

	count, err := comps.queue.Count()
	if err != nil {
		return err
	}
	if err := comps.queue.Clear(); err != nil {
		return err
	}

	pterm.Success.Printf("Dropped %d pending request(s)\n", count)
	return nil
}

// shortID truncates an ID to 8 characters for display
func shortID(id string) string {
	if len(id) >= 8 {
		return id[:8]
	}
	return id
}
