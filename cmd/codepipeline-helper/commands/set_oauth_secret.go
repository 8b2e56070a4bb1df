package commands

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/rs/zerolog"
	"github.com/savaki/codepipeline-helper/internal/services"
	"github.com/urfave/cli/v2"
)

// SecretSetter stores a secret value, creating the secret on first use.
// Implemented by *services.SecretsManagerService.
type SecretSetter interface {
	SetSecret(ctx context.Context, name, description, value string) (services.SecretVersion, error)
}

func SetOAuthSecretCommand(logger *zerolog.Logger) *cli.Command {
	return &cli.Command{
		Name:      "set-oauth-secret",
		Usage:     "Store the GitHub OAuth token read by the custom resource",
		ArgsUsage: "<token>",
		Description: `Stores a GitHub personal access token in Secrets Manager.

The custom resource reads this secret to configure the GitHub source action and
to derive the webhook secret. The secret is created on first use; later calls
add a new version.

Examples:
  # Store the token in the default secret
  codepipeline-helper set-oauth-secret ghp_xxxxxxxx

  # Store the token in another region and secret
  codepipeline-helper set-oauth-secret --region eu-west-1 --secret-id team/github-token ghp_xxxxxxxx`,
		Flags: []cli.Flag{
			regionFlag(),
			&cli.StringFlag{
				Name:    "secret-id",
				Usage:   "Secrets Manager secret name",
				EnvVars: []string{"OAUTH_TOKEN_SECRET_ID"},
				Value:   services.DefaultOAuthTokenSecretID,
			},
		},
		Action: func(c *cli.Context) error {
			return setOAuthSecretAction(c, logger)
		},
	}
}

func setOAuthSecretAction(c *cli.Context, logger *zerolog.Logger) error {
	token := c.Args().First()
	if token == "" {
		return fmt.Errorf("token argument is required")
	}

	cfg, err := loadAWSConfig(c.Context, c.String("region"))
	if err != nil {
		return err
	}

	secrets := services.NewSecretsManagerService(secretsmanager.NewFromConfig(cfg))

	logger.Info().Str("secret_id", c.String("secret-id")).Msg("Storing GitHub OAuth token")
	return setOAuthSecret(c.Context, secrets, c.App.Writer, c.String("secret-id"), token)
}

func setOAuthSecret(ctx context.Context, secrets SecretSetter, w io.Writer, secretID, token string) error {
	version, err := secrets.SetSecret(ctx, secretID, services.OAuthTokenSecretDescription, token)
	if err != nil {
		return fmt.Errorf("failed to store secret %s: %w", secretID, err)
	}

	_, err = fmt.Fprintf(w, "Created secret %s version %s\n", version.Name, version.VersionID)
	return err
}
