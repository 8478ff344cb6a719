package chaincli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/chainwork/chainwork/chainservice"
	"github.com/chainwork/chainwork/chaintypes"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var chainCmd = &cobra.Command{
	Use:   "chain",
	Short: "Manage chain definitions.",
}

var chainCreateFile string

var chainCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Store a chain definition from a YAML or JSON file.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEnv(cmd, func(ctx context.Context, cfg localConfig, e *env) error {
			chain, err := readChainFile(chainCreateFile)
			if err != nil {
				return err
			}
			if chain.ID == "" {
				chain.ID = uuid.NewString()
			}
			for i := range chain.Steps {
				if chain.Steps[i].ID == "" {
					chain.Steps[i].ID = uuid.NewString()
				}
			}
			if err := e.chains.Create(ctx, chain); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), chain.ID)
			return nil
		})
	},
}

var chainListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored chain definitions.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEnv(cmd, func(ctx context.Context, cfg localConfig, e *env) error {
			chains, err := e.chains.List(ctx, nil, cfg.ListLimit)
			if err != nil {
				return err
			}
			for _, chain := range chains {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%d steps\n", chain.ID, chain.Name, len(chain.Steps))
			}
			return nil
		})
	},
}

var chainDescribeCmd = &cobra.Command{
	Use:   "describe <chain-id>",
	Short: "Print a chain and the JSON schema of its expected inputs.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEnv(cmd, func(ctx context.Context, cfg localConfig, e *env) error {
			chain, err := e.chains.Get(ctx, args[0])
			if err != nil {
				return err
			}
			out, err := json.MarshalIndent(chain, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))

			schema, err := json.MarshalIndent(chainservice.InputSchema(chain), "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "input schema:")
			fmt.Fprintln(cmd.OutOrStdout(), string(schema))
			return nil
		})
	},
}

var chainDeleteCmd = &cobra.Command{
	Use:   "delete <chain-id>",
	Short: "Delete a chain definition.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEnv(cmd, func(ctx context.Context, cfg localConfig, e *env) error {
			return e.chains.Delete(ctx, args[0])
		})
	},
}

func init() {
	chainCreateCmd.Flags().StringVarP(&chainCreateFile, "file", "f", "", "chain definition file (.yaml or .json)")
	_ = chainCreateCmd.MarkFlagRequired("file")

	chainCmd.AddCommand(chainCreateCmd)
	chainCmd.AddCommand(chainListCmd)
	chainCmd.AddCommand(chainDescribeCmd)
	chainCmd.AddCommand(chainDeleteCmd)
}

func readChainFile(path string) (*chaintypes.ChainDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var chain chaintypes.ChainDefinition
	if strings.HasSuffix(path, ".json") {
		if err := json.Unmarshal(data, &chain); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return &chain, nil
	}
	// YAML input goes through a generic decode and a JSON round trip so the
	// chain struct's json tags apply to both formats.
	var generic any
	if err := yaml.Unmarshal(data, &generic); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	encoded, err := json.Marshal(generic)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if err := json.Unmarshal(encoded, &chain); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &chain, nil
}
