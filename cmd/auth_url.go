package cmd

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/breezapp/breez/internal/config"
	"github.com/breezapp/breez/internal/google"
	"github.com/breezapp/breez/internal/server"
)

func newAuthURLCmd() *cobra.Command {
	var (
		userID  string
		baseURL string
	)

	cmd := &cobra.Command{
		Use:   "auth-url",
		Short: "Print a Google consent URL for a user",
		Long: `Print the Google consent URL that links a user's calendar.

The URL carries a signed state for the given user and expires after ten
minutes. Open it in a browser; Google redirects back to <base-url>/callback,
so a breez server with the same BREEZ_STATE_SECRET must be running there.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.FromEnv()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("base-url") {
				cfg.BaseURL = baseURL
			}
			cfg.ApplyDefaults()

			url, err := authorizationURL(cfg, userID)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), url)
			return nil
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "breez user id to link (required)")
	cmd.Flags().StringVar(&baseURL, "base-url", "", "Public base URL of the breez server. Can also use BREEZ_BASE_URL env var.")
	_ = cmd.MarkFlagRequired("user")

	return cmd
}

func authorizationURL(cfg config.Config, userID string) (string, error) {
	if userID == "" {
		return "", errors.New("user id is required")
	}

	client, err := google.NewOAuthClient(google.OAuthConfig{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		RedirectURL:  cfg.RedirectURL(),
	}, slog.Default())
	if err != nil {
		return "", err
	}

	states, err := server.NewStateSigner([]byte(cfg.StateSecret), server.DefaultStateTTL)
	if err != nil {
		return "", fmt.Errorf("invalid BREEZ_STATE_SECRET: %w", err)
	}
	return client.AuthorizationURL(states.Sign(userID)), nil
}
