package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/toolgate-dev/toolgate/api"
	"github.com/spf13/cobra"
)

var (
	auditTool       string
	auditLayer      string
	auditSince      string
	auditDeniedOnly bool
	auditLimit      int
	auditStats      bool
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Query the audit log",
	Long: `Query decision records from the configured audit backend. Records
carry call digests, not raw arguments.`,
	Example: `  toolgate audit -c config.yaml --denied-only --limit 20
  toolgate audit -c config.yaml --tool read_file --since 24h
  toolgate audit -c config.yaml --stats`,
	RunE: runAudit,
}

func init() {
	auditCmd.Flags().StringVar(&auditTool, "tool", "", "filter by tool name")
	auditCmd.Flags().StringVar(&auditLayer, "layer", "", "filter by gate layer")
	auditCmd.Flags().StringVar(&auditSince, "since", "", "only records newer than this duration (e.g. 24h)")
	auditCmd.Flags().BoolVar(&auditDeniedOnly, "denied-only", false, "only denials")
	auditCmd.Flags().IntVar(&auditLimit, "limit", 100, "maximum records returned")
	auditCmd.Flags().BoolVar(&auditStats, "stats", false, "print aggregate statistics instead of records")
	rootCmd.AddCommand(auditCmd)
}

func runAudit(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := openAuditStore(cfg)
	if err != nil {
		return fmt.Errorf("opening audit store: %w", err)
	}
	defer store.Close()

	ctx := context.Background()
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	if auditStats {
		stats, err := store.Stats(ctx)
		if err != nil {
			return fmt.Errorf("reading stats: %w", err)
		}
		return enc.Encode(stats)
	}

	filter := api.QueryFilter{
		Tool:       auditTool,
		Layer:      auditLayer,
		DeniedOnly: auditDeniedOnly,
		Limit:      auditLimit,
	}
	if auditSince != "" {
		d, err := time.ParseDuration(auditSince)
		if err != nil {
			return fmt.Errorf("invalid --since %q: %w", auditSince, err)
		}
		filter.Since = time.Now().Add(-d)
	}

	records, err := store.Query(ctx, filter)
	if err != nil {
		return fmt.Errorf("querying audit log: %w", err)
	}
	return enc.Encode(records)
}
