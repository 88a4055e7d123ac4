package main

import (
	"errors"
	"log/slog"
	"os"

	"github.com/gachaplan/authsession/internal/autherrors"
	"github.com/gachaplan/authsession/internal/config"
	"github.com/spf13/cobra"
)

const (
	exitCodeError         int    = 1
	exitCodeAuthRequired  int    = 2
	exitCodeAuthFailed    int    = 3
	configLocationEnvName string = "CONFIG_LOCATION"
)

var errLoginFailed = errors.New("the login failed, see the logs for the reason")

var (
	configLocation string
	debugFlag      bool
)

var rootCmd = &cobra.Command{
	Use:   "authsession",
	Short: "Keep an OAuth2 access token fresh with the authorization code flow and PKCE",
	Long: `authsession obtains access and refresh tokens for an OAuth2 public client with the
authorization code flow and PKCE, stores them in redis and renews them before they expire.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configLocation, "config-location", "", "directory with config.yaml and secret_config.yaml")
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false, "log at debug level")
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newLoginCmd())
	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newTokenCmd())
	rootCmd.AddCommand(newLogoutCmd())
	rootCmd.AddCommand(newConfigCmd())
}

func setup(cmd *cobra.Command, args []string) error {
	slog.SetDefault(jsonLogger)
	if debugFlag {
		logLevel.Set(slog.LevelDebug)
	}
	if configLocation != "" {
		return os.Setenv(configLocationEnvName, configLocation)
	}
	return nil
}

func loadConfig() (config.Config, *config.ConfigHandler, error) {
	ch := config.NewConfigHandler()
	cfg, err := ch.Config()
	if err != nil {
		return config.Config{}, nil, err
	}
	// Set log level to "debug" if activated
	if cfg.DebugMode {
		logLevel.Set(slog.LevelDebug)
	}
	slog.Debug("loaded config", "config", cfg.RunningEnvironment, "clientID", cfg.Auth.ClientID)
	return cfg, ch, nil
}

func exitCode(err error) int {
	switch {
	case errors.Is(err, autherrors.ErrNotAuthenticated):
		return exitCodeAuthRequired
	case errors.Is(err, errLoginFailed):
		return exitCodeAuthFailed
	default:
		return exitCodeError
	}
}

func main() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(exitCode(err))
	}
}
