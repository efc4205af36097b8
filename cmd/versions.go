package cmd

import (
	"context"
	"fmt"

	"github.com/greboid/actrun/pkg/versions"
	"github.com/spf13/cobra"
)

var versionsRemote bool

var versionsCmd = &cobra.Command{
	Use:   "versions [spec]",
	Short: "Resolve a python-version spec against the installed interpreters",
	Long: `Finds the newest installed interpreter matching spec (for example 3.8 or 3.x), the
same way actions/setup-python does in a local environment. With --remote the latest
upstream CPython release is reported as well.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runVersions,
}

func init() {
	rootCmd.AddCommand(versionsCmd)

	versionsCmd.Flags().BoolVar(&versionsRemote, "remote", false, "Also report the latest upstream CPython release")
}

func runVersions(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	resolver := versions.New()

	if len(args) == 0 && !versionsRemote {
		return cmd.Usage()
	}

	if len(args) > 0 {
		interpreter, err := resolver.Resolve(ctx, args[0])
		if err != nil {
			return fmt.Errorf("resolving %s: %w", args[0], err)
		}
		fmt.Printf("%s\t%s\n", interpreter.Version, interpreter.Path)
	}

	if versionsRemote {
		latest, err := resolver.Latest(ctx)
		if err != nil {
			return fmt.Errorf("looking up latest release: %w", err)
		}
		fmt.Printf("latest upstream: %s\n", latest)
	}
	return nil
}
