package main

import (
	"context"
	"os"

	"github.com/savaki/codepipeline-helper/cmd/codepipeline-helper/commands"
	"github.com/savaki/codepipeline-helper/internal/di"
	"github.com/urfave/cli/v2"
)

func main() {
	logger := di.ProvideLogger()
	ctx := logger.WithContext(context.Background())

	app := &cli.App{
		Name:  "codepipeline-helper",
		Usage: "Operator tooling for the CodePipeline custom resource",
		Description: `Commands for provisioning the custom resource Lambda.

This tool provides commands for:
  - Storing the GitHub OAuth token in Secrets Manager
  - Uploading the built Lambda bundle to S3`,
		Commands: []*cli.Command{
			commands.SetOAuthSecretCommand(&logger),
			commands.UploadBundleCommand(&logger),
		},
	}

	if err := app.RunContext(ctx, os.Args); err != nil {
		logger.Error().Err(err).Msg("Application error")
		os.Exit(1)
	}
}
