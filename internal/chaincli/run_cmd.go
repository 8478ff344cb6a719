package chaincli

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/chainwork/chainwork/chaintypes"
	"github.com/spf13/cobra"
)

var (
	runInputs  []string
	runJSON    string
	runWait    bool
	runTimeout time.Duration
)

var runCmd = &cobra.Command{
	Use:   "run <chain-id>",
	Short: "Start a chain execution.",
	Long: `Start a chain execution. Inputs come from repeated --input key=value
pairs or a single --json object. With --wait the built-in echo worker
processes the job and the command blocks until the run is terminal.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEnv(cmd, func(ctx context.Context, cfg localConfig, e *env) error {
			inputs, err := parseRunInputs(runInputs, runJSON)
			if err != nil {
				return err
			}

			if runWait {
				if err := newEchoWorker(e.bus).Start(ctx); err != nil {
					return err
				}
			}

			execution, err := e.runs.Start(ctx, cfg.UserID, args[0], inputs)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), execution.ID)

			if !runWait {
				return nil
			}
			final, err := waitForTerminal(ctx, cfg, e, execution.ID, runTimeout)
			if err != nil {
				return err
			}
			return printExecution(ctx, cmd, cfg, e, final)
		})
	},
}

var statusCmd = &cobra.Command{
	Use:   "status <execution-id>",
	Short: "Show an execution and its step results.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEnv(cmd, func(ctx context.Context, cfg localConfig, e *env) error {
			execution, err := e.runs.Get(ctx, cfg.UserID, args[0])
			if err != nil {
				return err
			}
			return printExecution(ctx, cmd, cfg, e, execution)
		})
	},
}

var cancelCmd = &cobra.Command{
	Use:   "cancel <execution-id>",
	Short: "Cancel a running execution.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEnv(cmd, func(ctx context.Context, cfg localConfig, e *env) error {
			return e.runs.Cancel(ctx, cfg.UserID, args[0])
		})
	},
}

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recent executions for the acting user.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEnv(cmd, func(ctx context.Context, cfg localConfig, e *env) error {
			executions, err := e.runs.ListByUser(ctx, cfg.UserID, nil, cfg.ListLimit)
			if err != nil {
				return err
			}
			for _, execution := range executions {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\t%s\n",
					execution.ID, execution.ChainID, execution.Status,
					execution.CreatedAt.Format(time.RFC3339))
			}
			return nil
		})
	},
}

func init() {
	runCmd.Flags().StringArrayVar(&runInputs, "input", nil, "input value as key=value (repeatable)")
	runCmd.Flags().StringVar(&runJSON, "json", "", "all input values as one JSON object")
	runCmd.Flags().BoolVar(&runWait, "wait", false, "run the built-in echo worker and block until terminal")
	runCmd.Flags().DurationVar(&runTimeout, "timeout", 2*time.Minute, "how long --wait blocks before giving up")
}

func parseRunInputs(pairs []string, rawJSON string) (map[string]any, error) {
	if rawJSON != "" && len(pairs) > 0 {
		return nil, fmt.Errorf("--input and --json are mutually exclusive")
	}
	if rawJSON != "" {
		var inputs map[string]any
		if err := json.Unmarshal([]byte(rawJSON), &inputs); err != nil {
			return nil, fmt.Errorf("--json: %w", err)
		}
		return inputs, nil
	}
	inputs := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, value, found := strings.Cut(pair, "=")
		if !found || key == "" {
			return nil, fmt.Errorf("--input %q: expected key=value", pair)
		}
		inputs[key] = value
	}
	return inputs, nil
}

func waitForTerminal(ctx context.Context, cfg localConfig, e *env, executionID string, timeout time.Duration) (*chaintypes.Execution, error) {
	deadline := time.Now().Add(timeout)
	for {
		execution, err := e.runs.Get(ctx, cfg.UserID, executionID)
		if err != nil {
			return nil, err
		}
		if execution.Status.Terminal() {
			return execution, nil
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("execution %s still %s after %s", executionID, execution.Status, timeout)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(50 * time.Millisecond):
		}
	}
}

func printExecution(ctx context.Context, cmd *cobra.Command, cfg localConfig, e *env, execution *chaintypes.Execution) error {
	fmt.Fprintf(cmd.OutOrStdout(), "execution %s\tchain %s\t%s", execution.ID, execution.ChainID, execution.Status)
	if execution.Reason != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "\t(%s)", execution.Reason)
	}
	fmt.Fprintln(cmd.OutOrStdout())

	steps, err := e.runs.Steps(ctx, cfg.UserID, execution.ID)
	if err != nil {
		return err
	}
	for _, step := range steps {
		fmt.Fprintf(cmd.OutOrStdout(), "  [%d] %s\t%s", step.Position, step.StepName, step.Status)
		if step.Output != nil {
			fmt.Fprintf(cmd.OutOrStdout(), "\t%s", *step.Output)
		}
		if step.ErrorMessage != nil {
			fmt.Fprintf(cmd.OutOrStdout(), "\terror: %s", *step.ErrorMessage)
		}
		fmt.Fprintln(cmd.OutOrStdout())
	}
	return nil
}
