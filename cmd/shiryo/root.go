package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/hyperjump/shiryo/internal/cli"
	"github.com/hyperjump/shiryo/internal/config"
	"github.com/hyperjump/shiryo/pkg/utils"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const (
	defaultConfigPath = "/usr/local/etc/shiryo/config.yaml"
	defaultServerURL  = "http://localhost:8080"
)

// globalOptions are the persistent flags shared by every subcommand.
type globalOptions struct {
	configPath string
	debug      bool
	serverURL  string
	owner      string
	output     string
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}
	cmd := &cobra.Command{
		Use:   "shiryo",
		Short: "Document ingestion and visibility-aware semantic retrieval",
		Long: `shiryo ingests PDF, Office and spreadsheet documents, embeds every chunk twice
(summary and full content) and serves owner-aware semantic search over them.

Commands talk to a running server by default. Pass --server "" to open the
stores directly instead.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	cmd.SetVersionTemplate("shiryo version {{.Version}}\n")

	pf := cmd.PersistentFlags()
	pf.StringVar(&opts.configPath, "config", defaultConfigPath, "config file path")
	pf.BoolVar(&opts.debug, "debug", false, "enable debug logging")
	pf.StringVar(&opts.serverURL, "server", defaultServerURL, `server URL ("" = open the stores directly)`)
	pf.StringVar(&opts.owner, "owner", os.Getenv("SHIRYO_OWNER"), "identity to act as (default $SHIRYO_OWNER)")
	pf.StringVarP(&opts.output, "output", "o", "text", "output format: text or json")

	cmd.AddCommand(
		newServerCmd(opts),
		newIngestCmd(opts),
		newSearchCmd(opts),
		newPagesCmd(opts),
		newDocumentsCmd(opts),
		newVisibilityCmd(opts),
		newDeleteCmd(opts),
		newStatusCmd(opts),
		newWatchCmd(opts),
		newMCPCmd(opts),
		newVersionCmd(),
	)
	return cmd
}

func (o *globalOptions) format() (cli.OutputFormat, error) {
	return cli.ParseOutputFormat(o.output)
}

// loadConfig loads config from path. When path is the default and config.yaml exists in the
// current directory, that file is used instead. Returns the path actually loaded.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, err := os.Getwd(); err == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, err := os.Stat(fallback); err == nil {
				path = fallback
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

// setup loads the config and builds the logger.
func (o *globalOptions) setup() (*config.Config, string, *zap.Logger, error) {
	cfg, path, err := loadConfig(o.configPath)
	if err != nil {
		return nil, "", nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger, err := utils.NewLogger(cfg.Debug || o.debug)
	if err != nil {
		return nil, "", nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return cfg, path, logger, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "shiryo version %s\n", version)
		},
	}
}
