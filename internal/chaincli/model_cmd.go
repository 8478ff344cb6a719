package chaincli

import (
	"context"
	"fmt"

	"github.com/chainwork/chainwork/chaintypes"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var modelCmd = &cobra.Command{
	Use:   "model",
	Short: "Manage the model catalogue and capability grants.",
}

var modelAddInactive bool

var modelAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Register a model in the catalogue.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEnv(cmd, func(ctx context.Context, cfg localConfig, e *env) error {
			model := &chaintypes.Model{
				ID:     uuid.NewString(),
				Name:   args[0],
				Active: !modelAddInactive,
			}
			if err := e.models.Append(ctx, model); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), model.ID)
			return nil
		})
	},
}

var modelListCmd = &cobra.Command{
	Use:   "list",
	Short: "List catalogued models.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEnv(cmd, func(ctx context.Context, cfg localConfig, e *env) error {
			models, err := e.models.List(ctx, nil, cfg.ListLimit)
			if err != nil {
				return err
			}
			for _, model := range models {
				state := "active"
				if !model.Active {
					state = "inactive"
				}
				caps, err := e.models.ListModelCapabilities(ctx, model.ID)
				if err != nil {
					return err
				}
				names := make([]string, 0, len(caps))
				for _, c := range caps {
					names = append(names, c.Name)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\t%v\n", model.ID, model.Name, state, names)
			}
			return nil
		})
	},
}

var capabilityCreateCmd = &cobra.Command{
	Use:   "capability-create <name>",
	Short: "Add a capability to the global catalogue.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEnv(cmd, func(ctx context.Context, cfg localConfig, e *env) error {
			return e.models.CreateCapability(ctx, &chaintypes.Capability{Name: args[0]})
		})
	},
}

var capabilityAssignCmd = &cobra.Command{
	Use:   "capability-assign <model-id> <capability>",
	Short: "Grant a catalogued capability to a model.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEnv(cmd, func(ctx context.Context, cfg localConfig, e *env) error {
			return e.models.AssignCapability(ctx, args[0], args[1])
		})
	},
}

func init() {
	modelAddCmd.Flags().BoolVar(&modelAddInactive, "inactive", false, "register the model without activating it")

	modelCmd.AddCommand(modelAddCmd)
	modelCmd.AddCommand(modelListCmd)
	modelCmd.AddCommand(capabilityCreateCmd)
	modelCmd.AddCommand(capabilityAssignCmd)
}
