package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/toolgate-dev/toolgate/internal/policy"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var profileOut string

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Inspect and export built-in policy profiles",
}

var profileListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the built-in profiles",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(strings.Join(policy.KnownProfiles(), "\n"))
	},
}

var profileShowCmd = &cobra.Command{
	Use:     "show <profile>",
	Short:   "Print a built-in profile as YAML",
	Example: `  toolgate profile show production`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sp, err := builtinProfile(args[0])
		if err != nil {
			return err
		}
		data, err := yaml.Marshal(sp)
		if err != nil {
			return fmt.Errorf("marshaling profile: %w", err)
		}
		_, err = os.Stdout.Write(data)
		return err
	},
}

var profileGenerateCmd = &cobra.Command{
	Use:   "generate <profile>",
	Short: "Write a built-in profile to a policy file",
	Example: `  toolgate profile generate production -o policy.yaml
  toolgate profile generate testing`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sp, err := builtinProfile(args[0])
		if err != nil {
			return err
		}
		out := profileOut
		if out == "" {
			out = ".toolgate/policy.yaml"
		}
		if err := policy.Save(sp, out); err != nil {
			return err
		}
		logger.Info("profile exported", "profile", args[0], "path", out)
		return nil
	},
}

func init() {
	profileGenerateCmd.Flags().StringVarP(&profileOut, "output", "o", "", "destination path (default .toolgate/policy.yaml)")
	profileCmd.AddCommand(profileListCmd)
	profileCmd.AddCommand(profileShowCmd)
	profileCmd.AddCommand(profileGenerateCmd)
	rootCmd.AddCommand(profileCmd)
}

func builtinProfile(name string) (*policy.SecurityPolicy, error) {
	for _, p := range policy.KnownProfiles() {
		if name == p {
			return policy.BuildProfile(name), nil
		}
	}
	return nil, fmt.Errorf("unknown profile %q (known: %s)", name, strings.Join(policy.KnownProfiles(), ", "))
}
