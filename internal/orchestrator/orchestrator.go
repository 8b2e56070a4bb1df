package orchestrator

import (
	"context"
	"errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/codepipeline"
	"github.com/aws/aws-sdk-go-v2/service/codepipeline/types"
	"github.com/aws/smithy-go"
	apperrors "github.com/savaki/codepipeline-helper/internal/errors"
)

// UnknownErrorCode is reported when a failure carries no AWS error code, e.g.
// a transport error.
const UnknownErrorCode = "UnknownError"

// API is the subset of *codepipeline.Client used by the Orchestrator
type API interface {
	CreatePipeline(ctx context.Context, params *codepipeline.CreatePipelineInput, optFns ...func(*codepipeline.Options)) (*codepipeline.CreatePipelineOutput, error)
	UpdatePipeline(ctx context.Context, params *codepipeline.UpdatePipelineInput, optFns ...func(*codepipeline.Options)) (*codepipeline.UpdatePipelineOutput, error)
	DeletePipeline(ctx context.Context, params *codepipeline.DeletePipelineInput, optFns ...func(*codepipeline.Options)) (*codepipeline.DeletePipelineOutput, error)
	PutWebhook(ctx context.Context, params *codepipeline.PutWebhookInput, optFns ...func(*codepipeline.Options)) (*codepipeline.PutWebhookOutput, error)
	RegisterWebhookWithThirdParty(ctx context.Context, params *codepipeline.RegisterWebhookWithThirdPartyInput, optFns ...func(*codepipeline.Options)) (*codepipeline.RegisterWebhookWithThirdPartyOutput, error)
	DeregisterWebhookWithThirdParty(ctx context.Context, params *codepipeline.DeregisterWebhookWithThirdPartyInput, optFns ...func(*codepipeline.Options)) (*codepipeline.DeregisterWebhookWithThirdPartyOutput, error)
	DeleteWebhook(ctx context.Context, params *codepipeline.DeleteWebhookInput, optFns ...func(*codepipeline.Options)) (*codepipeline.DeleteWebhookOutput, error)
}

// Orchestrator issues CodePipeline calls. Every failure is returned as an
// *errors.OrchestrationAPIError.
type Orchestrator struct {
	api API
}

// New creates a new Orchestrator instance
func New(api API) *Orchestrator {
	return &Orchestrator{
		api: api,
	}
}

func (o *Orchestrator) CreatePipeline(ctx context.Context, pipeline *types.PipelineDeclaration) error {
	_, err := o.api.CreatePipeline(ctx, &codepipeline.CreatePipelineInput{
		Pipeline: pipeline,
	})
	return wrap("CreatePipeline", err)
}

func (o *Orchestrator) UpdatePipeline(ctx context.Context, pipeline *types.PipelineDeclaration) error {
	_, err := o.api.UpdatePipeline(ctx, &codepipeline.UpdatePipelineInput{
		Pipeline: pipeline,
	})
	return wrap("UpdatePipeline", err)
}

func (o *Orchestrator) DeletePipeline(ctx context.Context, name string) error {
	_, err := o.api.DeletePipeline(ctx, &codepipeline.DeletePipelineInput{
		Name: aws.String(name),
	})
	return wrap("DeletePipeline", err)
}

func (o *Orchestrator) PutWebhook(ctx context.Context, webhook *types.WebhookDefinition) error {
	_, err := o.api.PutWebhook(ctx, &codepipeline.PutWebhookInput{
		Webhook: webhook,
	})
	return wrap("PutWebhook", err)
}

// RegisterWebhook arms the webhook at GitHub.
func (o *Orchestrator) RegisterWebhook(ctx context.Context, name string) error {
	_, err := o.api.RegisterWebhookWithThirdParty(ctx, &codepipeline.RegisterWebhookWithThirdPartyInput{
		WebhookName: aws.String(name),
	})
	return wrap("RegisterWebhookWithThirdParty", err)
}

func (o *Orchestrator) DeregisterWebhook(ctx context.Context, name string) error {
	_, err := o.api.DeregisterWebhookWithThirdParty(ctx, &codepipeline.DeregisterWebhookWithThirdPartyInput{
		WebhookName: aws.String(name),
	})
	return wrap("DeregisterWebhookWithThirdParty", err)
}

func (o *Orchestrator) DeleteWebhook(ctx context.Context, name string) error {
	_, err := o.api.DeleteWebhook(ctx, &codepipeline.DeleteWebhookInput{
		Name: aws.String(name),
	})
	return wrap("DeleteWebhook", err)
}

func wrap(operation string, err error) error {
	if err == nil {
		return nil
	}

	apiErr := &apperrors.OrchestrationAPIError{
		Operation: operation,
		Code:      UnknownErrorCode,
		Message:   err.Error(),
		Err:       err,
	}

	var smithyErr smithy.APIError
	if errors.As(err, &smithyErr) {
		apiErr.Code = smithyErr.ErrorCode()
		apiErr.Message = smithyErr.ErrorMessage()
	}

	return apiErr
}
