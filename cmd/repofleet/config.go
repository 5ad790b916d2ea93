package repofleet

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.yaml.in/yaml/v3"

	"github.com/skaphos/repofleet/internal/config"
)

var errSecretsToStdout = errors.New("refusing to write secrets to stdout; use --output <path> or omit --include-secrets")

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect, export and import the RepoFleet configuration",
	}
	cmd.AddCommand(newConfigPathCmd(), newConfigExportCmd(), newConfigImportCmd())
	return cmd
}

func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the active config file path",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, path, err := loadConfigWithPath(cmd)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), path)
			return err
		},
	}
}

func newConfigExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the configuration, tokens redacted unless asked",
		Args:  cobra.NoArgs,
		RunE:  runConfigExport,
	}
	cmd.Flags().String("output", "-", "file to write, or - for stdout")
	cmd.Flags().Bool("include-secrets", false, "keep server tokens in the export (file output only)")
	return cmd
}

func runConfigExport(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	output := getStringFlag(cmd, "output")
	withSecrets := getBoolFlag(cmd, "include-secrets")
	if withSecrets && (output == "" || output == "-") {
		return errSecretsToStdout
	}

	export := *cfg
	if !withSecrets {
		if cfg.HasSecrets() {
			infof(cmd, "redacted secrets from export; use --include-secrets to keep tokens")
		}
		export = cfg.Redacted()
	}

	if output == "" || output == "-" {
		data, err := yaml.Marshal(export)
		if err != nil {
			return fmt.Errorf("encode config: %w", err)
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	}
	if err := config.Save(&export, output); err != nil {
		return fmt.Errorf("export config: %w", err)
	}
	infof(cmd, "wrote %s", output)
	return nil
}

func newConfigImportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Merge servers from an exported config into the active config",
		Args:  cobra.ExactArgs(1),
		RunE:  runConfigImport,
	}
	cmd.Flags().Bool("replace", false, "replace the configured servers instead of merging")
	return cmd
}

func runConfigImport(cmd *cobra.Command, args []string) error {
	incoming, err := config.Load(args[0])
	if err != nil {
		return fmt.Errorf("read import: %w", err)
	}
	cfg, path, err := loadConfigWithPath(cmd)
	if err != nil {
		return err
	}
	cfg.ImportServers(incoming, getBoolFlag(cmd, "replace"))
	if err := config.Save(cfg, path); err != nil {
		return fmt.Errorf("save config %s: %w", path, err)
	}
	infof(cmd, "updated %s (%d servers)", path, len(cfg.Servers))
	return nil
}
