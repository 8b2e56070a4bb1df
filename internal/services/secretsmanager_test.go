package services

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/smithy-go"
	apperrors "github.com/savaki/codepipeline-helper/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockSecretsManagerAPI implements SecretsManagerAPI for testing
type mockSecretsManagerAPI struct {
	getSecretValueFunc func(ctx context.Context, params *secretsmanager.GetSecretValueInput) (*secretsmanager.GetSecretValueOutput, error)
	describeSecretFunc func(ctx context.Context, params *secretsmanager.DescribeSecretInput) (*secretsmanager.DescribeSecretOutput, error)
	createSecretFunc   func(ctx context.Context, params *secretsmanager.CreateSecretInput) (*secretsmanager.CreateSecretOutput, error)
	putSecretValueFunc func(ctx context.Context, params *secretsmanager.PutSecretValueInput) (*secretsmanager.PutSecretValueOutput, error)
}

func (m *mockSecretsManagerAPI) GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, _ ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
	if m.getSecretValueFunc != nil {
		return m.getSecretValueFunc(ctx, params)
	}
	return nil, fmt.Errorf("GetSecretValue not implemented")
}

func (m *mockSecretsManagerAPI) DescribeSecret(ctx context.Context, params *secretsmanager.DescribeSecretInput, _ ...func(*secretsmanager.Options)) (*secretsmanager.DescribeSecretOutput, error) {
	if m.describeSecretFunc != nil {
		return m.describeSecretFunc(ctx, params)
	}
	return nil, fmt.Errorf("DescribeSecret not implemented")
}

func (m *mockSecretsManagerAPI) CreateSecret(ctx context.Context, params *secretsmanager.CreateSecretInput, _ ...func(*secretsmanager.Options)) (*secretsmanager.CreateSecretOutput, error) {
	if m.createSecretFunc != nil {
		return m.createSecretFunc(ctx, params)
	}
	return nil, fmt.Errorf("CreateSecret not implemented")
}

func (m *mockSecretsManagerAPI) PutSecretValue(ctx context.Context, params *secretsmanager.PutSecretValueInput, _ ...func(*secretsmanager.Options)) (*secretsmanager.PutSecretValueOutput, error) {
	if m.putSecretValueFunc != nil {
		return m.putSecretValueFunc(ctx, params)
	}
	return nil, fmt.Errorf("PutSecretValue not implemented")
}

func notFound() error {
	return &smithy.GenericAPIError{
		Code:    ResourceNotFoundException,
		Message: "Secrets Manager can't find the specified secret.",
	}
}

func TestGetSecret(t *testing.T) {
	ctx := context.Background()

	t.Run("returns secret string", func(t *testing.T) {
		api := &mockSecretsManagerAPI{
			getSecretValueFunc: func(_ context.Context, params *secretsmanager.GetSecretValueInput) (*secretsmanager.GetSecretValueOutput, error) {
				assert.Equal(t, "code-pipeline-helper/access-token", aws.ToString(params.SecretId))
				return &secretsmanager.GetSecretValueOutput{SecretString: aws.String("ghp_token")}, nil
			},
		}

		got, err := NewSecretsManagerService(api).GetSecret(ctx, "code-pipeline-helper/access-token")
		require.NoError(t, err)
		assert.Equal(t, "ghp_token", got)
	})

	t.Run("not found is a SecretAccessError", func(t *testing.T) {
		api := &mockSecretsManagerAPI{
			getSecretValueFunc: func(context.Context, *secretsmanager.GetSecretValueInput) (*secretsmanager.GetSecretValueOutput, error) {
				return nil, notFound()
			},
		}

		_, err := NewSecretsManagerService(api).GetSecret(ctx, "missing")
		require.Error(t, err)

		var accessErr *apperrors.SecretAccessError
		require.True(t, errors.As(err, &accessErr))
		assert.Equal(t, "missing", accessErr.SecretID)
		assert.Equal(t, ResourceNotFoundException, accessErr.Code)
		assert.Equal(t, "Secrets Manager can't find the specified secret.", accessErr.Message)
	})

	t.Run("access denied is a SecretAccessError", func(t *testing.T) {
		api := &mockSecretsManagerAPI{
			getSecretValueFunc: func(context.Context, *secretsmanager.GetSecretValueInput) (*secretsmanager.GetSecretValueOutput, error) {
				return nil, &smithy.GenericAPIError{Code: AccessDeniedException, Message: "denied"}
			},
		}

		_, err := NewSecretsManagerService(api).GetSecret(ctx, "secret")
		var accessErr *apperrors.SecretAccessError
		require.True(t, errors.As(err, &accessErr))
		assert.Equal(t, AccessDeniedException, accessErr.Code)
	})

	t.Run("transport error keeps message", func(t *testing.T) {
		api := &mockSecretsManagerAPI{
			getSecretValueFunc: func(context.Context, *secretsmanager.GetSecretValueInput) (*secretsmanager.GetSecretValueOutput, error) {
				return nil, errors.New("dial tcp: i/o timeout")
			},
		}

		_, err := NewSecretsManagerService(api).GetSecret(ctx, "secret")
		var accessErr *apperrors.SecretAccessError
		require.True(t, errors.As(err, &accessErr))
		assert.Empty(t, accessErr.Code)
		assert.Equal(t, "dial tcp: i/o timeout", accessErr.Message)
	})

	t.Run("empty secret string", func(t *testing.T) {
		api := &mockSecretsManagerAPI{
			getSecretValueFunc: func(context.Context, *secretsmanager.GetSecretValueInput) (*secretsmanager.GetSecretValueOutput, error) {
				return &secretsmanager.GetSecretValueOutput{}, nil
			},
		}

		_, err := NewSecretsManagerService(api).GetSecret(ctx, "secret")
		assert.ErrorIs(t, err, apperrors.ErrEmptySecret)
	})
}

func TestSetSecret(t *testing.T) {
	ctx := context.Background()

	t.Run("creates when missing", func(t *testing.T) {
		var created *secretsmanager.CreateSecretInput
		api := &mockSecretsManagerAPI{
			describeSecretFunc: func(context.Context, *secretsmanager.DescribeSecretInput) (*secretsmanager.DescribeSecretOutput, error) {
				return nil, notFound()
			},
			createSecretFunc: func(_ context.Context, params *secretsmanager.CreateSecretInput) (*secretsmanager.CreateSecretOutput, error) {
				created = params
				return &secretsmanager.CreateSecretOutput{Name: params.Name, VersionId: aws.String("v1")}, nil
			},
		}

		version, err := NewSecretsManagerService(api).SetSecret(ctx, DefaultOAuthTokenSecretID, OAuthTokenSecretDescription, "ghp_token")
		require.NoError(t, err)
		assert.Equal(t, SecretVersion{Name: DefaultOAuthTokenSecretID, VersionID: "v1"}, version)
		require.NotNil(t, created)
		assert.Equal(t, OAuthTokenSecretDescription, aws.ToString(created.Description))
		assert.Equal(t, "ghp_token", aws.ToString(created.SecretString))
	})

	t.Run("puts when present", func(t *testing.T) {
		api := &mockSecretsManagerAPI{
			describeSecretFunc: func(context.Context, *secretsmanager.DescribeSecretInput) (*secretsmanager.DescribeSecretOutput, error) {
				return &secretsmanager.DescribeSecretOutput{}, nil
			},
			putSecretValueFunc: func(_ context.Context, params *secretsmanager.PutSecretValueInput) (*secretsmanager.PutSecretValueOutput, error) {
				assert.Equal(t, "ghp_new", aws.ToString(params.SecretString))
				return &secretsmanager.PutSecretValueOutput{Name: params.SecretId, VersionId: aws.String("v2")}, nil
			},
		}

		version, err := NewSecretsManagerService(api).SetSecret(ctx, DefaultOAuthTokenSecretID, OAuthTokenSecretDescription, "ghp_new")
		require.NoError(t, err)
		assert.Equal(t, "v2", version.VersionID)
	})

	t.Run("aborts on other describe errors", func(t *testing.T) {
		api := &mockSecretsManagerAPI{
			describeSecretFunc: func(context.Context, *secretsmanager.DescribeSecretInput) (*secretsmanager.DescribeSecretOutput, error) {
				return nil, &smithy.GenericAPIError{Code: AccessDeniedException, Message: "denied"}
			},
		}

		_, err := NewSecretsManagerService(api).SetSecret(ctx, DefaultOAuthTokenSecretID, OAuthTokenSecretDescription, "ghp_token")
		assert.Error(t, err)
	})
}

func TestNewConfigFromEnv(t *testing.T) {
	t.Run("default", func(t *testing.T) {
		t.Setenv("OAUTH_TOKEN_SECRET_ID", "")
		assert.Equal(t, DefaultOAuthTokenSecretID, NewConfigFromEnv().OAuthTokenSecretID)
	})

	t.Run("override", func(t *testing.T) {
		t.Setenv("OAUTH_TOKEN_SECRET_ID", "custom/secret")
		assert.Equal(t, "custom/secret", NewConfigFromEnv().OAuthTokenSecretID)
	})
}
