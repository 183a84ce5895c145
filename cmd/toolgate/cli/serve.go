package cli

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/toolgate-dev/toolgate/api"
	"github.com/toolgate-dev/toolgate/internal/engine"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the line-oriented decision service on stdin/stdout",
	Long: `Read one JSON check request per line from stdin and write one JSON
decision per line to stdout. The request {"op":"reset_breaker"} manually
closes the circuit breaker. Malformed lines yield a denial response, never
a crash.`,
	Example: `  echo '{"name":"read_file","agent":"coder","parameters":{"path":"src/main.py"}}' | toolgate serve -c config.yaml`,
	RunE:    runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	eng, store, err := buildEngine(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("shutting down")
		cancel()
	}()

	logger.Info("decision service started",
		"auto_approval", cfg.AutoApprovalEnabled,
		"audit_backend", cfg.AuditBackend,
	)
	return serveLines(ctx, eng, os.Stdin, os.Stdout)
}

const maxLineBytes = 1 << 20

var errOversizedLine = errors.New("input line exceeds size limit")

// serveLines is the protocol loop, split out for tests. A line over the
// size limit is discarded and answered with a denial; the loop then
// resynchronizes at the next newline rather than terminating, so one
// hostile request cannot take the service down.
func serveLines(ctx context.Context, eng *engine.Engine, in io.Reader, out io.Writer) error {
	reader := bufio.NewReaderSize(in, 64*1024)
	enc := json.NewEncoder(out)

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		line, err := readLine(reader)
		if errors.Is(err, errOversizedLine) {
			resp := &api.CheckResponse{
				Approved:        false,
				Reason:          "oversized input",
				LayerViolations: []string{api.LayerContext},
				Confidence:      1.0,
			}
			if encErr := enc.Encode(resp); encErr != nil {
				return fmt.Errorf("writing response: %w", encErr)
			}
			continue
		}
		if trimmed := bytes.TrimSpace(line); len(trimmed) > 0 {
			resp := handleLine(ctx, eng, trimmed)
			if encErr := enc.Encode(resp); encErr != nil {
				return fmt.Errorf("writing response: %w", encErr)
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// readLine returns the next newline-delimited line. Overlong lines are
// drained through the next newline and reported as errOversizedLine, keeping
// memory bounded regardless of input size.
func readLine(r *bufio.Reader) ([]byte, error) {
	var line []byte
	for {
		chunk, err := r.ReadSlice('\n')
		line = append(line, chunk...)
		if err == bufio.ErrBufferFull {
			if len(line) > maxLineBytes {
				if derr := discardLine(r); derr != nil && derr != io.EOF {
					return nil, derr
				}
				return nil, errOversizedLine
			}
			continue
		}
		if len(line) > maxLineBytes {
			return nil, errOversizedLine
		}
		return line, err
	}
}

// discardLine drains input through the next newline.
func discardLine(r *bufio.Reader) error {
	for {
		if _, err := r.ReadSlice('\n'); err != bufio.ErrBufferFull {
			return err
		}
	}
}

func handleLine(ctx context.Context, eng *engine.Engine, line []byte) *api.CheckResponse {
	var req api.CheckRequest
	if err := json.Unmarshal(line, &req); err != nil {
		return &api.CheckResponse{
			Approved:        false,
			Reason:          "malformed input",
			LayerViolations: []string{api.LayerContext},
			Confidence:      1.0,
		}
	}

	if req.Op == "reset_breaker" {
		eng.ResetBreaker()
		return &api.CheckResponse{
			Approved:   true,
			Reason:     "circuit breaker reset",
			Confidence: 1.0,
		}
	}

	call := &api.ToolCall{
		Name:       req.Name,
		Parameters: req.Parameters,
		Agent:      req.Agent,
		Timestamp:  time.Now(),
	}
	d := eng.Evaluate(ctx, call)
	return &api.CheckResponse{
		Approved:        d.Approved,
		Reason:          d.Reason,
		LayerViolations: d.LayerViolations,
		Confidence:      d.Confidence,
		Class:           eng.Classify(call),
	}
}
