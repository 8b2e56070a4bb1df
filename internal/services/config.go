package services

import (
	"os"
)

const (
	// DefaultOAuthTokenSecretID is the secret written by set-oauth-secret.
	DefaultOAuthTokenSecretID = "code-pipeline-helper/access-token"

	// OAuthTokenSecretDescription is attached to the secret when it is first created.
	OAuthTokenSecretDescription = "A Github personal access token for use in a code-pipeline-helper stack"
)

// Config holds the handler configuration
type Config struct {
	// OAuthTokenSecretID selects the Secrets Manager secret holding the GitHub
	// token used by the source stage and to derive the webhook token.
	OAuthTokenSecretID string
}

// NewConfigFromEnv loads configuration from environment variables
func NewConfigFromEnv() *Config {
	config := &Config{
		OAuthTokenSecretID: os.Getenv("OAUTH_TOKEN_SECRET_ID"),
	}

	// Set defaults
	if config.OAuthTokenSecretID == "" {
		config.OAuthTokenSecretID = DefaultOAuthTokenSecretID
	}

	return config
}
