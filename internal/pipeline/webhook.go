package pipeline

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/codepipeline/types"
	"github.com/rs/zerolog"
)

// WebhookName returns the name of the webhook owned by pipelineName.
func WebhookName(pipelineName string) string {
	return pipelineName + "-webhook"
}

// newWebhook builds the webhook that triggers pipelineName on pushes to the
// repository branch, authenticated with token.
func newWebhook(pipelineName string, repository Repository, token string) *types.WebhookDefinition {
	return &types.WebhookDefinition{
		Name:           aws.String(WebhookName(pipelineName)),
		TargetPipeline: aws.String(pipelineName),
		TargetAction:   aws.String(SourceActionName),
		Authentication: types.WebhookAuthenticationTypeGithubHmac,
		AuthenticationConfiguration: &types.WebhookAuthConfiguration{
			SecretToken: aws.String(token),
		},
		Filters: []types.WebhookFilterRule{
			{
				JsonPath:    aws.String("$.ref"),
				MatchEquals: aws.String(repository.Ref()),
			},
		},
	}
}

// addWebhook puts the webhook and, when register is set, arms it at GitHub.
func (r *Reconciler) addWebhook(ctx context.Context, register bool) error {
	logger := zerolog.Ctx(ctx)

	webhook := newWebhook(r.name, r.repository, DeriveToken(r.secret))
	if err := r.orchestrator.PutWebhook(ctx, webhook); err != nil {
		return err
	}

	logger.Info().
		Str("webhook", aws.ToString(webhook.Name)).
		Str("ref", r.repository.Ref()).
		Msg("Put webhook")

	if !register {
		return nil
	}

	if err := r.orchestrator.RegisterWebhook(ctx, aws.ToString(webhook.Name)); err != nil {
		return err
	}

	logger.Info().
		Str("webhook", aws.ToString(webhook.Name)).
		Msg("Registered webhook with GitHub")

	return nil
}

// removeWebhook deregisters the webhook from GitHub and then deletes it. The
// delete is attempted even if deregistration fails.
func (r *Reconciler) removeWebhook(ctx context.Context) error {
	logger := zerolog.Ctx(ctx)
	name := WebhookName(r.name)

	deregisterErr := r.orchestrator.DeregisterWebhook(ctx, name)
	if deregisterErr != nil {
		logger.Warn().Err(deregisterErr).Str("webhook", name).Msg("Failed to deregister webhook")
	}

	deleteErr := r.orchestrator.DeleteWebhook(ctx, name)
	if deleteErr != nil {
		logger.Warn().Err(deleteErr).Str("webhook", name).Msg("Failed to delete webhook")
	}

	switch {
	case deregisterErr != nil && deleteErr != nil:
		return fmt.Errorf("%w; %w", deregisterErr, deleteErr)
	case deregisterErr != nil:
		return deregisterErr
	default:
		return deleteErr
	}
}
