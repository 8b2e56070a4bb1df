// Package pipeline reconciles a CloudFormation described CodePipeline, and the
// GitHub webhook that triggers it, against CodePipeline.
package pipeline

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/codepipeline/types"
	"github.com/rs/zerolog"
	apperrors "github.com/savaki/codepipeline-helper/internal/errors"
	"github.com/savaki/codepipeline-helper/internal/properties"
)

// Orchestrator issues the CodePipeline calls made during reconciliation.
// Implemented by *orchestrator.Orchestrator.
type Orchestrator interface {
	CreatePipeline(ctx context.Context, pipeline *types.PipelineDeclaration) error
	UpdatePipeline(ctx context.Context, pipeline *types.PipelineDeclaration) error
	DeletePipeline(ctx context.Context, name string) error
	PutWebhook(ctx context.Context, webhook *types.WebhookDefinition) error
	RegisterWebhook(ctx context.Context, name string) error
	DeregisterWebhook(ctx context.Context, name string) error
	DeleteWebhook(ctx context.Context, name string) error
}

// SecretGetter reads a secret string by id.
// Implemented by *services.SecretsManagerService.
type SecretGetter interface {
	GetSecret(ctx context.Context, secretID string) (string, error)
}

// Input holds the values needed to build a Reconciler
type Input struct {
	// Properties are the resource properties with Owner, Repo, Branch and
	// ServiceToken already removed.
	Properties   map[string]any
	Repository   Repository
	Orchestrator Orchestrator
	Secrets      SecretGetter
	SecretID     string
}

// Reconciler owns one target pipeline for the duration of a single event.
type Reconciler struct {
	spec         map[string]any
	name         string
	repository   Repository
	orchestrator Orchestrator
	secrets      SecretGetter
	secretID     string

	declaration *types.PipelineDeclaration
	secret      string
}

// New normalizes the resource properties and returns a Reconciler for the
// pipeline they describe.
func New(input Input) *Reconciler {
	spec := properties.NormalizeMap(input.Properties)
	if spec == nil {
		spec = map[string]any{}
	}

	name, _ := spec["name"].(string)

	return &Reconciler{
		spec:         spec,
		name:         name,
		repository:   input.Repository,
		orchestrator: input.Orchestrator,
		secrets:      input.Secrets,
		secretID:     input.SecretID,
	}
}

// Name returns the pipeline name, which doubles as the physical resource id.
func (r *Reconciler) Name() string {
	return r.name
}

// WithName overrides the pipeline name. Used on Delete when the properties no
// longer carry one.
func (r *Reconciler) WithName(name string) *Reconciler {
	r.name = name
	return r
}

// AddSource fetches the OAuth token and puts the GitHub source stage in front
// of the declared stages. It must be called once before Create or Update.
func (r *Reconciler) AddSource(ctx context.Context) error {
	if r.declaration != nil {
		return apperrors.ErrSourceAlreadyAdded
	}

	if err := r.validate(); err != nil {
		return err
	}

	declaration, err := decodeDeclaration(r.spec)
	if err != nil {
		return err
	}

	secret, err := r.secrets.GetSecret(ctx, r.secretID)
	if err != nil {
		return err
	}

	declaration.Stages = append([]types.StageDeclaration{newSourceStage(r.repository, secret)}, declaration.Stages...)

	r.declaration = declaration
	r.secret = secret

	zerolog.Ctx(ctx).Info().
		Str("pipeline", r.name).
		Str("owner", r.repository.Owner).
		Str("repo", r.repository.Repo).
		Str("branch", r.repository.Branch).
		Int("stages", len(declaration.Stages)).
		Msg("Added source stage")

	return nil
}

// Create creates the pipeline and then its webhook. A webhook failure is
// reported even though the pipeline now exists; the stack manager compensates
// with a Delete.
func (r *Reconciler) Create(ctx context.Context) error {
	if r.declaration == nil {
		return apperrors.ErrSourceNotAdded
	}

	if err := r.orchestrator.CreatePipeline(ctx, r.declaration); err != nil {
		return err
	}
	zerolog.Ctx(ctx).Info().Str("pipeline", r.name).Msg("Created pipeline")

	return r.addWebhook(ctx, true)
}

// Update replaces the pipeline definition and re-registers the webhook, which
// restores it if it was removed out of band.
func (r *Reconciler) Update(ctx context.Context) error {
	if r.declaration == nil {
		return apperrors.ErrSourceNotAdded
	}

	if err := r.orchestrator.UpdatePipeline(ctx, r.declaration); err != nil {
		return err
	}
	zerolog.Ctx(ctx).Info().Str("pipeline", r.name).Msg("Updated pipeline")

	return r.addWebhook(ctx, true)
}

// Delete removes the webhook and then the pipeline. The pipeline delete runs
// even when webhook removal fails; both failures are returned.
func (r *Reconciler) Delete(ctx context.Context) error {
	logger := zerolog.Ctx(ctx)

	if r.name == "" {
		return apperrors.Invalid("ResourceProperties.Name", apperrors.ErrMissingProperty)
	}

	webhookErr := r.removeWebhook(ctx)

	pipelineErr := r.orchestrator.DeletePipeline(ctx, r.name)
	if pipelineErr == nil {
		logger.Info().Str("pipeline", r.name).Msg("Deleted pipeline")
	}

	switch {
	case webhookErr != nil && pipelineErr != nil:
		return fmt.Errorf("%w; %w", webhookErr, pipelineErr)
	case webhookErr != nil:
		return webhookErr
	default:
		return pipelineErr
	}
}

// Plan describes the calls Create or Update would make with every credential
// masked. Only valid after AddSource.
type Plan struct {
	Pipeline *types.PipelineDeclaration `json:"pipeline"`
	Webhook  *types.WebhookDefinition   `json:"webhook"`
}

const redacted = "****"

// Plan returns the redacted pipeline and webhook definitions.
func (r *Reconciler) Plan() (Plan, error) {
	if r.declaration == nil {
		return Plan{}, apperrors.ErrSourceNotAdded
	}

	declaration := *r.declaration
	declaration.Stages = append([]types.StageDeclaration(nil), r.declaration.Stages...)

	source := declaration.Stages[0]
	source.Actions = append([]types.ActionDeclaration(nil), source.Actions...)
	source.Actions[0].Configuration = r.repository.configuration(redacted)
	declaration.Stages[0] = source

	return Plan{
		Pipeline: &declaration,
		Webhook:  newWebhook(r.name, r.repository, redacted),
	}, nil
}

func (r *Reconciler) validate() error {
	required := []struct {
		field string
		value string
	}{
		{field: "ResourceProperties.Owner", value: r.repository.Owner},
		{field: "ResourceProperties.Repo", value: r.repository.Repo},
		{field: "ResourceProperties.Branch", value: r.repository.Branch},
		{field: "ResourceProperties.Name", value: r.name},
	}

	for _, item := range required {
		if item.value == "" {
			return apperrors.Invalid(item.field, apperrors.ErrMissingProperty)
		}
	}

	if _, ok := r.spec["stages"].([]any); !ok {
		return apperrors.Invalid("ResourceProperties.Stages", apperrors.ErrMissingProperty)
	}

	return nil
}
