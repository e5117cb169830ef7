package main

import (
	"fmt"
	"net/http"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/AmmannChristian/go-azauthx/config"
	"github.com/AmmannChristian/go-azauthx/internal/logging"
	"github.com/AmmannChristian/go-azauthx/registry"
)

// app carries the state shared by all commands of one invocation.
type app struct {
	configPath string
	envFile    string
	logLevel   string
	logFormat  string

	// Transports override the network in tests. Nil means the default.
	tokenTransport http.RoundTripper
	apiTransport   http.RoundTripper

	cfg    *config.Config
	logger *logrus.Logger
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "azauthx",
		Short: "Call Azure APIs with client-credentials tokens",
		Long: `azauthx acquires OAuth2 client-credentials tokens per audience,
caches them until shortly before they expire, and attaches them to
requests sent to the resource manager, directory graph and key vault.

Configuration comes from AZURE_* environment variables, an optional
.env file and an optional YAML file.`,
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "path to a YAML configuration file")
	flags.StringVar(&a.envFile, "env-file", "", "path to a .env file loaded before the environment is read")
	flags.StringVar(&a.logLevel, "log-level", "", "log level (overrides AZURE_LOG_LEVEL)")
	flags.StringVar(&a.logFormat, "log-format", "", "log format: text or json (overrides AZURE_LOG_FORMAT)")

	root.AddCommand(
		newAudiencesCmd(a),
		newTokenCmd(a),
		newCallCmd(a),
	)

	return root
}

func (a *app) setup(cmd *cobra.Command, _ []string) error {
	if a.envFile != "" {
		if err := godotenv.Load(a.envFile); err != nil {
			return fmt.Errorf("load env file: %w", err)
		}
	}

	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.LogLevel = a.logLevel
	}
	if a.logFormat != "" {
		cfg.LogFormat = a.logFormat
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	a.cfg = cfg
	a.logger = logger
	return nil
}

func (a *app) registry() (*registry.Registry, error) {
	if !a.cfg.Enabled() {
		return nil, fmt.Errorf("no client credentials configured: set %s_CLIENT_ID", config.EnvPrefix)
	}

	return registry.NewFromConfig(a.cfg,
		registry.WithTokenTransport(a.tokenTransport),
		registry.WithBaseTransport(a.apiTransport),
		registry.WithLogger(a.logger),
	)
}
