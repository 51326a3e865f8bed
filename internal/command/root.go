// Package command implements the chatmirror command line.
package command

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/edgard/chatmirror/internal/app"
	"github.com/edgard/chatmirror/internal/config"
	"github.com/edgard/chatmirror/internal/logger"
)

const AppName = "chatmirror"

// NewRootCmd builds the command tree.
func NewRootCmd(version string) *cobra.Command {
	cmd := &cobra.Command{
		Use:           AppName,
		Short:         "Mirror chat history into a searchable store",
		Long:          "chatmirror incrementally mirrors chat history into SQLite or PostgreSQL and answers full-text searches over it.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	cmd.Version = version
	cmd.SetVersionTemplate(AppName + " version {{.Version}}\n")
	cmd.SetOut(os.Stdout)
	cmd.SetErr(os.Stderr)

	cmd.PersistentFlags().String("config", "", "path to the YAML config file (default ./config.yaml)")

	cmd.AddCommand(
		NewRunCmd(),
		NewSyncCmd(),
		NewSearchCmd(),
		NewNamesCmd(),
		NewGroupsCmd(),
		NewMaintenanceCmd(),
	)
	return cmd
}

// openApp loads the configuration named by --config and wires the app.
func openApp(cmd *cobra.Command) (*app.App, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	log := logger.NewLogger(cfg.Logger.Level, cfg.Logger.JSON)
	return app.New(cmd.Context(), cfg, log)
}
