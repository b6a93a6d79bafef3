package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/nhle/jira-worklog/internal/credential"
	"github.com/nhle/jira-worklog/internal/logging"
	"github.com/nhle/jira-worklog/internal/model"
	"github.com/nhle/jira-worklog/internal/store"
	"github.com/nhle/jira-worklog/internal/tracker"
)

var errNoBaseURL = errors.New("jira.base_url is not configured; run `jwl login --url <url>`")

type app struct {
	configPath string
	logLevel   string

	cfg             *model.AppConfig
	logger          zerolog.Logger
	openCredentials func() (*credential.Store, error)
	credentials     *credential.Store
	client          *tracker.Client
	store           *store.SQLiteStore
}

// load reads config and builds the logger. Network and keyring access are
// deferred until a command needs them.
func (a *app) load(cmd *cobra.Command) error {
	cfg, err := model.LoadConfig(a.configPath)
	if err != nil {
		return err
	}
	a.cfg = cfg

	level := cfg.Log.Level
	if a.logLevel != "" {
		level = a.logLevel
	}
	a.logger = logging.NewWriter(cmd.ErrOrStderr(), level, cfg.Log.Pretty)

	return nil
}

func (a *app) close() error {
	if a.store == nil {
		return nil
	}
	err := a.store.Close()
	a.store = nil
	return err
}

func (a *app) credentialStore() (*credential.Store, error) {
	if a.credentials != nil {
		return a.credentials, nil
	}
	creds, err := a.openCredentials()
	if err != nil {
		return nil, fmt.Errorf("wire credential store: %w", err)
	}
	a.credentials = creds
	return creds, nil
}

func (a *app) connect() (*tracker.Client, error) {
	if a.client != nil {
		return a.client, nil
	}
	if a.cfg.Jira.BaseURL == "" {
		return nil, errNoBaseURL
	}

	creds, err := a.credentialStore()
	if err != nil {
		return nil, err
	}

	a.client = tracker.Connect(a.cfg, creds.TokenSource(a.cfg.Jira.CredentialKey), a.logger)
	return a.client, nil
}

func (a *app) exportStore(path string) (*store.SQLiteStore, error) {
	if path == "" {
		path = a.cfg.Store.Path
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating store directory: %w", err)
	}

	s, err := store.NewSQLiteStore(path)
	if err != nil {
		return nil, fmt.Errorf("wire export store: %w", err)
	}
	a.store = s
	return s, nil
}
