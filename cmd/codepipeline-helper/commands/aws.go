package commands

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/urfave/cli/v2"
)

func regionFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "region",
		Usage:   "AWS region",
		Value:   "us-east-1",
		EnvVars: []string{"AWS_REGION"},
	}
}

// loadAWSConfig loads the default AWS configuration, pinned to region when one
// is given.
func loadAWSConfig(ctx context.Context, region string) (aws.Config, error) {
	var opts []func(*config.LoadOptions) error
	if region != "" {
		opts = append(opts, config.WithRegion(region))
	}

	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return cfg, nil
}
