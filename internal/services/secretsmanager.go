package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/smithy-go"
	apperrors "github.com/savaki/codepipeline-helper/internal/errors"
)

const (
	ResourceNotFoundException = "ResourceNotFoundException"
	AccessDeniedException     = "AccessDeniedException"
)

// SecretsManagerAPI is the subset of *secretsmanager.Client used here.
type SecretsManagerAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
	DescribeSecret(ctx context.Context, params *secretsmanager.DescribeSecretInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.DescribeSecretOutput, error)
	CreateSecret(ctx context.Context, params *secretsmanager.CreateSecretInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.CreateSecretOutput, error)
	PutSecretValue(ctx context.Context, params *secretsmanager.PutSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.PutSecretValueOutput, error)
}

type SecretsManagerService struct {
	client SecretsManagerAPI
}

// SecretVersion identifies a stored secret value.
type SecretVersion struct {
	Name      string
	VersionID string
}

func NewSecretsManagerService(client SecretsManagerAPI) *SecretsManagerService {
	return &SecretsManagerService{
		client: client,
	}
}

// GetSecret retrieves a secret string by id. Failures are returned as
// *errors.SecretAccessError and never include the secret value.
func (s *SecretsManagerService) GetSecret(ctx context.Context, secretID string) (string, error) {
	result, err := s.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(secretID),
	})
	if err != nil {
		return "", secretAccessError(secretID, err)
	}

	if result.SecretString == nil || *result.SecretString == "" {
		return "", &apperrors.SecretAccessError{
			SecretID: secretID,
			Message:  apperrors.ErrEmptySecret.Error(),
			Err:      apperrors.ErrEmptySecret,
		}
	}

	return *result.SecretString, nil
}

// SecretExists reports whether secretID is known to Secrets Manager.
func (s *SecretsManagerService) SecretExists(ctx context.Context, secretID string) (bool, error) {
	_, err := s.client.DescribeSecret(ctx, &secretsmanager.DescribeSecretInput{
		SecretId: aws.String(secretID),
	})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) && apiErr.ErrorCode() == ResourceNotFoundException {
			return false, nil
		}
		return false, fmt.Errorf("failed to describe secret %s: %w", secretID, err)
	}
	return true, nil
}

// CreateSecret stores a brand new secret.
func (s *SecretsManagerService) CreateSecret(ctx context.Context, name, description, value string) (SecretVersion, error) {
	result, err := s.client.CreateSecret(ctx, &secretsmanager.CreateSecretInput{
		Name:         aws.String(name),
		Description:  aws.String(description),
		SecretString: aws.String(value),
	})
	if err != nil {
		return SecretVersion{}, fmt.Errorf("failed to create secret %s: %w", name, err)
	}

	return SecretVersion{
		Name:      aws.ToString(result.Name),
		VersionID: aws.ToString(result.VersionId),
	}, nil
}

// PutSecret stores a new version of an existing secret.
func (s *SecretsManagerService) PutSecret(ctx context.Context, secretID, value string) (SecretVersion, error) {
	result, err := s.client.PutSecretValue(ctx, &secretsmanager.PutSecretValueInput{
		SecretId:     aws.String(secretID),
		SecretString: aws.String(value),
	})
	if err != nil {
		return SecretVersion{}, fmt.Errorf("failed to put secret value %s: %w", secretID, err)
	}

	return SecretVersion{
		Name:      aws.ToString(result.Name),
		VersionID: aws.ToString(result.VersionId),
	}, nil
}

// SetSecret creates the secret when it does not exist yet, otherwise it puts a
// new version.
func (s *SecretsManagerService) SetSecret(ctx context.Context, name, description, value string) (SecretVersion, error) {
	exists, err := s.SecretExists(ctx, name)
	if err != nil {
		return SecretVersion{}, err
	}

	if exists {
		return s.PutSecret(ctx, name, value)
	}
	return s.CreateSecret(ctx, name, description, value)
}

func secretAccessError(secretID string, err error) error {
	accessErr := &apperrors.SecretAccessError{
		SecretID: secretID,
		Message:  err.Error(),
		Err:      err,
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		accessErr.Code = apiErr.ErrorCode()
		accessErr.Message = apiErr.ErrorMessage()
	}

	return accessErr
}
