package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/gachaplan/authsession/internal/authservice"
	"github.com/gachaplan/authsession/internal/autherrors"
	"github.com/gachaplan/authsession/internal/config"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

const (
	outputYAML string = "yaml"
	outputJSON string = "json"
)

type status struct {
	Authenticated    bool   `json:"authenticated"              yaml:"authenticated"`
	Pending          bool   `json:"pending"                    yaml:"pending"`
	State            string `json:"state"                      yaml:"state"`
	ExpiresInSeconds *int64 `json:"expiresInSeconds,omitempty" yaml:"expiresInSeconds,omitempty"`
}

// commandManager builds a manager for one shot commands, they never arm a renewal
func commandManager() (*authservice.Manager, error) {
	cfg, _, err := loadConfig()
	if err != nil {
		slog.Error("loading the configuration failed", "error", err)
		return nil, err
	}
	cfg.Auth.AutoRefresh = false
	initSentry(cfg)
	return newManager(cfg, prometheus.NewRegistry())
}

func currentStatus(cmd *cobra.Command, manager *authservice.Manager) status {
	ctx := cmd.Context()
	output := status{
		Authenticated: manager.IsAuthenticated(ctx),
		Pending:       manager.IsPending(ctx),
		State:         manager.State().String(),
	}
	if expiresIn, ok := manager.GetAccessTokenExpiresIn(ctx); ok {
		seconds := int64(expiresIn.Seconds())
		output.ExpiresInSeconds = &seconds
	}
	return output
}

func printStatus(w io.Writer, format string, output status) error {
	switch format {
	case outputYAML:
		return yaml.NewEncoder(w).Encode(output)
	case outputJSON:
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(output)
	default:
		return fmt.Errorf("unknown output format %q (must be one of yaml, json)", format)
	}
}

func newLoginCmd() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Refresh the stored tokens or run the authorization code flow",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			manager, err := commandManager()
			if err != nil {
				return err
			}
			defer manager.Close()
			manager.Login(cmd.Context())
			output := currentStatus(cmd, manager)
			err = printStatus(cmd.OutOrStdout(), format, output)
			if err != nil {
				return err
			}
			if !output.Authenticated {
				return errLoginFailed
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&format, "output", "o", outputYAML, "output format (yaml or json)")
	return cmd
}

func newStatusCmd() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show whether valid tokens are stored",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			manager, err := commandManager()
			if err != nil {
				return err
			}
			defer manager.Close()
			return printStatus(cmd.OutOrStdout(), format, currentStatus(cmd, manager))
		},
	}
	cmd.Flags().StringVarP(&format, "output", "o", outputYAML, "output format (yaml or json)")
	return cmd
}

func newTokenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "token",
		Short: "Print the stored access token, the exit code is 2 when there is no valid one",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			manager, err := commandManager()
			if err != nil {
				return err
			}
			defer manager.Close()
			if !manager.IsAuthenticated(cmd.Context()) {
				return autherrors.ErrNotAuthenticated
			}
			accessToken := manager.GetAccessToken(cmd.Context())
			_, err = fmt.Fprintln(cmd.OutOrStdout(), accessToken)
			return err
		},
	}
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove the stored tokens",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			manager, err := commandManager()
			if err != nil {
				return err
			}
			defer manager.Close()
			return manager.Logout(cmd.Context())
		},
	}
}

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the merged configuration with the secrets redacted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}
			encoder := yaml.NewEncoder(cmd.OutOrStdout())
			encoder.SetIndent(2)
			return encoder.Encode(configView(cfg))
		},
	}
}

// configView mirrors the layout of config.yaml, secrets are printed redacted
func configView(cfg config.Config) map[string]any {
	provider := ""
	if cfg.Auth.Provider != nil {
		provider = cfg.Auth.Provider.String()
	}
	return map[string]any{
		"runningEnvironment": string(cfg.RunningEnvironment),
		"debugMode":          cfg.DebugMode,
		"auth": map[string]any{
			"clientId":         cfg.Auth.ClientID,
			"provider":         provider,
			"redirectUri":      cfg.Auth.RedirectURI,
			"autoRefresh":      cfg.Auth.AutoRefresh,
			"requestTimeoutMs": cfg.Auth.RequestTimeoutMs,
			"verifierLength":   cfg.Auth.VerifierLength,
		},
		"tokenEncryption": map[string]any{
			"enabled":   cfg.TokenEncryption.Enabled,
			"secretKey": cfg.TokenEncryption.SecretKey.String(),
		},
		"lock": map[string]any{
			"mode":            string(cfg.Lock.Mode),
			"scope":           string(cfg.Lock.Scope),
			"leaseTTLSeconds": cfg.Lock.LeaseTTLSeconds,
		},
		"redis": map[string]any{
			"type":       cfg.Redis.Type,
			"addresses":  cfg.Redis.Addresses,
			"isSentinel": cfg.Redis.IsSentinel,
			"password":   cfg.Redis.Password.String(),
			"masterName": cfg.Redis.MasterName,
			"dbIndex":    cfg.Redis.DBIndex,
			"namespace":  cfg.Redis.Namespace,
		},
		"server": map[string]any{
			"host": cfg.Server.Host,
			"port": cfg.Server.Port,
			"rateLimits": map[string]any{
				"enabled": cfg.Server.RateLimits.Enabled,
				"rate":    cfg.Server.RateLimits.Rate,
				"burst":   cfg.Server.RateLimits.Burst,
			},
			"allowOrigin": cfg.Server.AllowOrigin,
		},
		"monitoring": map[string]any{
			"sentry": map[string]any{
				"enabled":     cfg.Monitoring.Sentry.Enabled,
				"dsn":         cfg.Monitoring.Sentry.Dsn.String(),
				"environment": cfg.Monitoring.Sentry.Environment,
				"sampleRate":  cfg.Monitoring.Sentry.SampleRate,
			},
			"prometheus": map[string]any{
				"enabled": cfg.Monitoring.Prometheus.Enabled,
				"port":    cfg.Monitoring.Prometheus.Port,
			},
		},
	}
}
