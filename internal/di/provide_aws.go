package di

import (
	"context"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/codepipeline"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/savaki/codepipeline-helper/internal/callback"
	"github.com/savaki/codepipeline-helper/internal/orchestrator"
	"github.com/savaki/codepipeline-helper/internal/services"
)

// callbackTimeout bounds a single PUT to the response URL.
const callbackTimeout = 30 * time.Second

func ProvideAWSConfig(ctx context.Context) (aws.Config, error) {
	return config.LoadDefaultConfig(ctx)
}

func ProvideCodePipelineClient(config aws.Config) *codepipeline.Client {
	return codepipeline.NewFromConfig(config)
}

func ProvideSecretsManagerClient(config aws.Config) *secretsmanager.Client {
	return secretsmanager.NewFromConfig(config)
}

func ProvideS3Client(config aws.Config) *s3.Client {
	return s3.NewFromConfig(config)
}

func ProvideOrchestrator(client *codepipeline.Client) *orchestrator.Orchestrator {
	return orchestrator.New(client)
}

func ProvideSecretsManagerService(client *secretsmanager.Client) *services.SecretsManagerService {
	return services.NewSecretsManagerService(client)
}

func ProvideHTTPClient() *http.Client {
	return &http.Client{Timeout: callbackTimeout}
}

func ProvideResponder(client *http.Client) *callback.Responder {
	return callback.New(client)
}
