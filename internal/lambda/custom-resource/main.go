package main

import (
	"context"
	"fmt"
	"os"
	"runtime/debug"

	"github.com/aws/aws-lambda-go/cfn"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/rs/zerolog"
	"github.com/savaki/codepipeline-helper/internal/callback"
	"github.com/savaki/codepipeline-helper/internal/di"
	apperrors "github.com/savaki/codepipeline-helper/internal/errors"
	"github.com/savaki/codepipeline-helper/internal/orchestrator"
	"github.com/savaki/codepipeline-helper/internal/pipeline"
	"github.com/savaki/codepipeline-helper/internal/properties"
	"github.com/savaki/codepipeline-helper/internal/services"
	"github.com/segmentio/ksuid"
	"github.com/urfave/cli/v2"
)

// Responder delivers the result envelope for an event.
// Implemented by *callback.Responder.
type Responder interface {
	Send(ctx context.Context, responseURL string, envelope callback.Envelope) error
}

type Handler struct {
	config       *services.Config
	secrets      pipeline.SecretGetter
	orchestrator pipeline.Orchestrator
	responder    Responder

	// responseURL replaces the event's ResponseURL when set. Used when
	// replaying a captured event from the command line.
	responseURL string
}

func NewHandler(
	config *services.Config,
	secrets *services.SecretsManagerService,
	orchestrator *orchestrator.Orchestrator,
	responder *callback.Responder,
) *Handler {
	return &Handler{
		config:       config,
		secrets:      secrets,
		orchestrator: orchestrator,
		responder:    responder,
	}
}

// HandleEvent reconciles the pipeline described by event and reports the
// outcome to the event's response URL. The response is attempted exactly
// once per event whatever the outcome, so HandleEvent only returns nil; a
// Lambda level error would cause the runtime to redeliver the event and
// report twice.
func (h *Handler) HandleEvent(ctx context.Context, event cfn.Event) error {
	logger := zerolog.Ctx(ctx).With().
		Str("request_id", event.RequestID).
		Str("request_type", string(event.RequestType)).
		Str("logical_resource_id", event.LogicalResourceID).
		Logger()
	ctx = logger.WithContext(ctx)

	physicalID, err := h.dispatch(ctx, event)
	if err != nil {
		logger.Error().Err(err).Str("physical_resource_id", physicalID).Msg("Custom resource request failed")
	} else {
		logger.Info().Str("physical_resource_id", physicalID).Msg("Custom resource request succeeded")
	}

	responseURL := event.ResponseURL
	if h.responseURL != "" {
		responseURL = h.responseURL
	}

	envelope := callback.NewEnvelope(event, physicalID, err)
	if err := h.responder.Send(ctx, responseURL, envelope); err != nil {
		logger.Error().Err(err).Msg("Failed to deliver custom resource response")
	}

	return nil
}

func (h *Handler) dispatch(ctx context.Context, event cfn.Event) (physicalID string, err error) {
	logger := zerolog.Ctx(ctx)

	defer func() {
		if r := recover(); r != nil {
			logger.Error().
				Interface("panic", r).
				Str("stack", string(debug.Stack())).
				Msg("Recovered from panic")

			err = fmt.Errorf("internal error: %v", r)
			physicalID = physicalResourceID(event, "", err)
		}
	}()

	if err := validateEvent(event); err != nil {
		return physicalResourceID(event, "", err), err
	}

	repository, props := splitProperties(event.ResourceProperties)
	reconciler := pipeline.New(pipeline.Input{
		Properties:   props,
		Repository:   repository,
		Orchestrator: h.orchestrator,
		Secrets:      h.secrets,
		SecretID:     h.config.OAuthTokenSecretID,
	})

	switch event.RequestType {
	case cfn.RequestCreate:
		err = create(ctx, reconciler)

	case cfn.RequestUpdate:
		if previous := event.PhysicalResourceID; previous != "" && reconciler.Name() != "" && previous != reconciler.Name() {
			logger.Info().
				Str("previous", previous).
				Str("pipeline", reconciler.Name()).
				Msg("Pipeline name changed, creating replacement")
			err = create(ctx, reconciler)
		} else {
			err = update(ctx, reconciler)
		}

	case cfn.RequestDelete:
		if reconciler.Name() == "" {
			reconciler.WithName(event.PhysicalResourceID)
		}
		err = reconciler.Delete(ctx)
	}

	return physicalResourceID(event, reconciler.Name(), err), err
}

func create(ctx context.Context, reconciler *pipeline.Reconciler) error {
	if err := reconciler.AddSource(ctx); err != nil {
		return err
	}
	return reconciler.Create(ctx)
}

func update(ctx context.Context, reconciler *pipeline.Reconciler) error {
	if err := reconciler.AddSource(ctx); err != nil {
		return err
	}
	return reconciler.Update(ctx)
}

func validateEvent(event cfn.Event) error {
	switch event.RequestType {
	case cfn.RequestCreate, cfn.RequestUpdate, cfn.RequestDelete:
	default:
		return apperrors.Invalid("RequestType", fmt.Errorf("%w: %q", apperrors.ErrUnknownRequestType, event.RequestType))
	}

	if event.ResponseURL == "" {
		return apperrors.Invalid("ResponseURL", apperrors.ErrMissingResponseURL)
	}

	return nil
}

// physicalResourceID keeps the id CloudFormation already knows whenever the
// request deletes the resource or failed, since a changed id on Update is
// read as a replacement. Otherwise the pipeline name is the id. A random id is
// used only when neither is available.
func physicalResourceID(event cfn.Event, name string, err error) string {
	if event.PhysicalResourceID != "" && (err != nil || event.RequestType == cfn.RequestDelete) {
		return event.PhysicalResourceID
	}
	if name != "" {
		return name
	}
	if event.PhysicalResourceID != "" {
		return event.PhysicalResourceID
	}
	return ksuid.New().String()
}

// splitProperties separates the repository identity and the ServiceToken
// routing field from the properties that describe the pipeline. The input is
// left untouched.
func splitProperties(in map[string]any) (pipeline.Repository, map[string]any) {
	var repository pipeline.Repository
	out := make(map[string]any, len(in))

	for key, value := range in {
		s, _ := value.(string)

		switch properties.LowerFirst(key) {
		case "owner":
			repository.Owner = s
		case "repo":
			repository.Repo = s
		case "branch":
			repository.Branch = s
		case "serviceToken":
		default:
			out[key] = value
		}
	}

	return repository, out
}

func newHandler(ctx context.Context) (*Handler, error) {
	container, err := di.New(
		di.WithContext(ctx),
		di.WithProviders(NewHandler),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create container: %w", err)
	}

	var handler *Handler
	if err := container.Invoke(func(h *Handler) { handler = h }); err != nil {
		return nil, fmt.Errorf("failed to create handler: %w", err)
	}

	return handler, nil
}

func main() {
	logger := di.ProvideLogger().With().Str("lambda", "custom-resource").Logger()

	if os.Getenv("AWS_LAMBDA_RUNTIME_API") != "" {
		// Lambda mode
		handler, err := newHandler(context.Background())
		if err != nil {
			logger.Error().Err(err).Msg("Failed to create handler")
			os.Exit(1)
		}

		// Wrap handler to inject logger into context
		wrappedHandler := func(ctx context.Context, event cfn.Event) error {
			ctx = logger.WithContext(ctx)
			return handler.HandleEvent(ctx, event)
		}
		lambda.Start(wrappedHandler)
		return
	}

	// CLI mode
	app := &cli.App{
		Name:  "custom-resource",
		Usage: "Replay a CloudFormation custom resource event against CodePipeline",
		Flags: []cli.Flag{
			&cli.PathFlag{
				Name:     "event",
				Usage:    "path to a JSON or YAML custom resource event",
				Required: true,
			},
			&cli.BoolFlag{
				Name:  "dry-run",
				Usage: "print the pipeline and webhook that would be written, with credentials masked",
			},
			&cli.StringFlag{
				Name:  "response-url",
				Usage: "send the response here instead of the event's ResponseURL",
			},
			&cli.StringFlag{
				Name:    "secret-id",
				Usage:   "Secrets Manager secret holding the GitHub OAuth token",
				EnvVars: []string{"OAUTH_TOKEN_SECRET_ID"},
				Value:   services.DefaultOAuthTokenSecretID,
			},
		},
		Action: func(c *cli.Context) error {
			ctx := logger.WithContext(c.Context)

			event, err := loadEvent(c.Path("event"))
			if err != nil {
				return err
			}

			if c.Bool("dry-run") {
				return dryRun(ctx, c.App.Writer, event)
			}

			handler, err := newHandler(ctx)
			if err != nil {
				return err
			}
			handler.config.OAuthTokenSecretID = c.String("secret-id")
			handler.responseURL = c.String("response-url")

			return handler.HandleEvent(ctx, event)
		},
	}

	if err := app.Run(os.Args); err != nil {
		logger.Error().Err(err).Msg("Application error")
		os.Exit(1)
	}
}
