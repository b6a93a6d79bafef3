package cmd

import (
	"context"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/nhle/jira-worklog/internal/credential"
	"github.com/nhle/jira-worklog/internal/model"
)

func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	return newRootCmd(openCredentials).ExecuteContext(ctx)
}

func openCredentials() (*credential.Store, error) {
	return credential.Open("")
}

func newRootCmd(credentials func() (*credential.Store, error)) *cobra.Command {
	app := &app{openCredentials: credentials}

	rootCmd := &cobra.Command{
		Use:           "jwl",
		Short:         "Jira worklog client: inspect issues, search and log work",
		Long:          "jwl talks to a Jira server: it resolves issues with their subtasks and worklogs, runs JQL searches, logs time and exports worklogs to a local SQLite database.",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return app.load(cmd)
		},
		PersistentPostRunE: func(_ *cobra.Command, _ []string) error {
			return app.close()
		},
	}

	rootCmd.PersistentFlags().StringVar(&app.configPath, "config", model.DefaultConfigPath(), "Path to the YAML config file")
	rootCmd.PersistentFlags().StringVar(&app.logLevel, "log-level", "", "Log level (debug, info, warn, error); overrides log.level")

	rootCmd.AddCommand(
		newLoginCmd(app),
		newLogoutCmd(app),
		newIssueCmd(app),
		newFindCmd(app),
		newWorklogsCmd(app),
		newAddCmd(app),
		newExportCmd(app),
	)

	return rootCmd
}
