// Package app provides the command line interface of the catalog sync service.
package app

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/boreal-financial/catalog-sync/internal/config"
	"github.com/boreal-financial/catalog-sync/internal/versions"
)

const (
	formatJSON  = "json"
	formatTable = "table"
)

// rootOptions carries state shared by every subcommand
type rootOptions struct {
	viper *viper.Viper
}

// NewRootCmd creates the root command with all subcommands attached
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{viper: config.NewViper()}

	rootCmd := &cobra.Command{
		Use:               "catalog-sync",
		DisableAutoGenTag: true,
		SilenceUsage:      true,
		Short:             "Lender product catalog sync service",
		Long: `catalog-sync pulls lender products from the staff API, normalizes them, and keeps
a local cache that the rest of the platform reads from. It syncs on startup and at
fixed checkpoints, and serves the cache over HTTP.`,
		Run: func(cmd *cobra.Command, _ []string) {
			// If no subcommand is provided, print help
			if err := cmd.Help(); err != nil {
				slog.Error("Error displaying help", "error", err)
			}
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "Path to configuration file (YAML format)")
	flags.String("env-file", ".env", "Path to a dotenv file loaded before environment overrides")
	flags.String("catalog-endpoint", "", "Staff API base URL")
	flags.String("catalog-file", "", "Read the catalog from a local JSON file instead of the staff API")
	flags.String("storage-type", "", "Cache backend (sqlite, postgres, redis, file, memory)")
	flags.String("sqlite-path", "", "Path of the SQLite cache file")

	bindings := map[string]string{
		"catalog.endpoint":    "catalog-endpoint",
		"catalog.file":        "catalog-file",
		"storage.type":        "storage-type",
		"storage.sqlite.path": "sqlite-path",
	}
	for key, flag := range bindings {
		if err := opts.viper.BindPFlag(key, flags.Lookup(flag)); err != nil {
			slog.Error("Error binding flag", "flag", flag, "error", err)
		}
	}

	rootCmd.AddCommand(
		newServeCmd(opts),
		newSyncCmd(opts),
		newProductsCmd(opts),
		newStatusCmd(opts),
		newMigrateCmd(opts),
		newVersionCmd(),
	)

	return rootCmd
}

// loadConfig reads the configuration named by the persistent flags
func (o *rootOptions) loadConfig(cmd *cobra.Command) (*config.Config, error) {
	loaderOpts := []config.Option{config.WithViper(o.viper)}

	configPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, fmt.Errorf("failed to get config flag: %w", err)
	}
	if configPath != "" {
		loaderOpts = append(loaderOpts, config.WithConfigPath(configPath))
	}

	envFile, err := cmd.Flags().GetString("env-file")
	if err != nil {
		return nil, fmt.Errorf("failed to get env-file flag: %w", err)
	}
	if envFile != "" {
		loaderOpts = append(loaderOpts, config.WithEnvFile(envFile))
	}

	cfg, err := config.LoadConfig(loaderOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

func newVersionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, _ []string) error {
			info := versions.GetVersionInfo()
			format, err := cmd.Flags().GetString("format")
			if err != nil {
				return fmt.Errorf("failed to get format flag: %w", err)
			}

			if format == formatJSON {
				return writeJSON(cmd.OutOrStdout(), info)
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "catalog-sync %s (commit %s, built %s, %s %s)\n",
				info.Version, info.Commit, info.BuildDate, info.GoVersion, info.Platform)
			return err
		},
	}
	cmd.Flags().String("format", "", "Output format (json)")
	return cmd
}

// writeJSON writes v as indented JSON
func writeJSON(w io.Writer, v any) error {
	output, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to format output as JSON: %w", err)
	}
	_, err = fmt.Fprintln(w, string(output))
	return err
}
