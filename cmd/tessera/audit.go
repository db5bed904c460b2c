package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tessera-wm/tessera/internal/audit"
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Inspect the append-only command/fault audit log",
}

var auditTailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Show the most recent audit records, newest first",
	RunE:  tailAudit,
}

func init() {
	auditTailCmd.Flags().String("data-dir", ".", "Directory containing the audit database")
	auditTailCmd.Flags().Int("count", 20, "Number of records to show")
	auditCmd.AddCommand(auditTailCmd)
}

func tailAudit(cmd *cobra.Command, args []string) error {
	dataDir, _ := cmd.Flags().GetString("data-dir")
	count, _ := cmd.Flags().GetInt("count")

	log, err := audit.Open(dataDir)
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}
	defer log.Close()

	records, err := log.Tail(count)
	if err != nil {
		return fmt.Errorf("read audit log: %w", err)
	}

	for _, r := range records {
		fmt.Printf("%s  %-24s %-20s %s\n", r.Timestamp.Format(time.RFC3339), r.Kind, r.PluginID, r.Detail)
	}
	return nil
}
