package pipeline

import (
	"fmt"
	"reflect"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/codepipeline/types"
	"github.com/go-viper/mapstructure/v2"
	apperrors "github.com/savaki/codepipeline-helper/internal/errors"
)

const (
	SourceStageName    = "Source"
	SourceActionName   = "GitHub"
	SourceProvider     = "GitHub"
	SourceArtifactName = "Source"

	// OAuthTokenKey is the GitHub action configuration key holding the token.
	OAuthTokenKey = "OAuthToken"
)

// Repository identifies the GitHub branch a pipeline is built from.
type Repository struct {
	Owner  string
	Repo   string
	Branch string
}

// Ref returns the git ref pushed to when Branch changes.
func (r Repository) Ref() string {
	return "refs/heads/" + r.Branch
}

// configuration returns the GitHub action configuration. Change detection is
// left to the webhook so polling is always disabled.
func (r Repository) configuration(oauthToken string) map[string]string {
	return map[string]string{
		"Owner":                r.Owner,
		"Repo":                 r.Repo,
		"Branch":               r.Branch,
		"PollForSourceChanges": "false",
		OAuthTokenKey:          oauthToken,
	}
}

// newSourceStage builds the single GitHub action stage placed in front of the
// caller's stages.
func newSourceStage(repository Repository, oauthToken string) types.StageDeclaration {
	return types.StageDeclaration{
		Name: aws.String(SourceStageName),
		Actions: []types.ActionDeclaration{
			{
				Name: aws.String(SourceActionName),
				ActionTypeId: &types.ActionTypeId{
					Category: types.ActionCategorySource,
					Owner:    types.ActionOwnerThirdParty,
					Provider: aws.String(SourceProvider),
					Version:  aws.String("1"),
				},
				OutputArtifacts: []types.OutputArtifact{
					{Name: aws.String(SourceArtifactName)},
				},
				Configuration: repository.configuration(oauthToken),
				RunOrder:      aws.Int32(1),
			},
		},
	}
}

// decodeDeclaration converts normalized properties into a pipeline
// declaration. CloudFormation delivers every scalar as a string, so numbers
// and booleans are converted weakly. Unknown keys are rejected.
func decodeDeclaration(spec map[string]any) (*types.PipelineDeclaration, error) {
	var declaration types.PipelineDeclaration
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.DecodeHookFuncKind(boolToString),
		ErrorUnused:      true,
		WeaklyTypedInput: true,
		Result:           &declaration,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}

	if err := decoder.Decode(spec); err != nil {
		return nil, apperrors.Invalid("ResourceProperties", fmt.Errorf("%w: %v", apperrors.ErrInvalidProperty, err))
	}

	for i, stage := range declaration.Stages {
		if aws.ToString(stage.Name) == SourceStageName {
			return nil, apperrors.Invalid(fmt.Sprintf("ResourceProperties.Stages[%d].Name", i), apperrors.ErrSourceStageSupplied)
		}
	}

	return &declaration, nil
}

// boolToString keeps "true"/"false" when a YAML or JSON boolean lands in a
// string field; the weak default would produce "1"/"0".
func boolToString(from reflect.Kind, to reflect.Kind, data any) (any, error) {
	if from == reflect.Bool && to == reflect.String {
		return strconv.FormatBool(data.(bool)), nil
	}
	return data, nil
}
