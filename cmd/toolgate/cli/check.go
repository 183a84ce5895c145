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
	checkTool   string
	checkAgent  string
	checkParams string
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Evaluate a single tool call and print the decision",
	Long: `Evaluate one tool call against the active policy without starting the
decision service. Useful for testing policy changes.`,
	Example: `  toolgate check -c config.yaml --tool read_file --agent coder --params '{"path":"src/main.py"}'
  toolgate check --tool run_command --agent coder --params '{"command":"git status"}'`,
	RunE: runCheck,
}

func init() {
	checkCmd.Flags().StringVar(&checkTool, "tool", "", "tool name")
	checkCmd.Flags().StringVar(&checkAgent, "agent", "", "invoking agent identity")
	checkCmd.Flags().StringVar(&checkParams, "params", "", "JSON parameters")
	_ = checkCmd.MarkFlagRequired("tool")
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	eng, store, err := buildEngine(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	call := &api.ToolCall{
		Name:      checkTool,
		Agent:     checkAgent,
		Timestamp: time.Now(),
	}
	if checkParams != "" {
		if err := json.Unmarshal([]byte(checkParams), &call.Parameters); err != nil {
			return fmt.Errorf("parsing --params: %w", err)
		}
	}

	d := eng.Evaluate(context.Background(), call)

	out := api.CheckResponse{
		Approved:        d.Approved,
		Reason:          d.Reason,
		LayerViolations: d.LayerViolations,
		Confidence:      d.Confidence,
		Class:           eng.Classify(call),
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
