package cmd

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/nhle/jira-worklog/internal/model"
	"github.com/nhle/jira-worklog/internal/theme"
)

func newLoginCmd(app *app) *cobra.Command {
	var (
		baseURL string
		token   string
	)

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Store a Jira personal access token and verify it",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if baseURL != "" {
				app.cfg.Jira.BaseURL = strings.TrimRight(baseURL, "/")
				if err := model.SaveConfig(app.configPath, app.cfg); err != nil {
					return err
				}
			}

			if token == "" {
				err := huh.NewInput().
					Title("Jira personal access token").
					Description(app.cfg.Jira.BaseURL).
					EchoMode(huh.EchoModePassword).
					Value(&token).
					Run()
				if err != nil {
					return fmt.Errorf("read token: %w", err)
				}
			}
			token = strings.TrimSpace(token)
			if token == "" {
				return fmt.Errorf("empty token")
			}

			creds, err := app.credentialStore()
			if err != nil {
				return err
			}
			key := app.cfg.Jira.CredentialKey
			if err := creds.Set(key, token); err != nil {
				return err
			}

			client, err := app.connect()
			if err != nil {
				return err
			}
			user, err := client.CurrentUser(cmd.Context())
			if err != nil {
				if delErr := creds.Delete(key); delErr != nil {
					app.logger.Warn().Err(delErr).Msg("discarding rejected token")
				}
				return fmt.Errorf("verify token: %w", err)
			}

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Logged in to %s as %s\n",
				app.cfg.Jira.BaseURL, theme.KeyStyle.Render(user.DisplayName))
			return nil
		},
	}

	cmd.Flags().StringVar(&baseURL, "url", "", "Jira base URL; saved to the config file")
	cmd.Flags().StringVar(&token, "token", "", "Personal access token (prompted when omitted)")

	return cmd
}

func newLogoutCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove the stored Jira token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			creds, err := app.credentialStore()
			if err != nil {
				return err
			}
			if err := creds.Delete(app.cfg.Jira.CredentialKey); err != nil {
				return err
			}

			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
			return nil
		},
	}
}
