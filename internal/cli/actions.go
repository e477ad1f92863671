package cli

import (
	"context"
	"fmt"

	"github.com/harun/actionserver/pkg/executor"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var actionsCmd = &cobra.Command{
	Use:   "actions [dir]",
	Short: "List the actions defined in a manifest directory",
	Long: `Load the action manifests from a directory, validate them and print the
names of the actions the server would register.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runActions,
}

func init() {
	rootCmd.AddCommand(actionsCmd)
}

func runActions(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	dir := cfg.Actions.Dir
	if len(args) == 1 {
		dir = args[0]
	}

	source, err := executor.NewManifestSource(dir, cfg.Server.ProtocolVersion, zerolog.Nop())
	if err != nil {
		return err
	}
	defer source.Close()

	registry := executor.NewRegistry(zerolog.Nop())
	registry.AddSource(source)
	if err := registry.Reload(context.Background()); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	names := registry.Names()
	if len(names) == 0 {
		fmt.Fprintf(out, "No actions found in %s\n", dir)
		return nil
	}
	for _, name := range names {
		fmt.Fprintln(out, name)
	}
	return nil
}
