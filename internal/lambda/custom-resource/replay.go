package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/aws/aws-lambda-go/cfn"
	"github.com/savaki/codepipeline-helper/internal/pipeline"
	"gopkg.in/yaml.v3"
)

// dryRunSecret stands in for the OAuth token when no AWS call is made.
const dryRunSecret = "dry-run"

type staticSecret string

func (s staticSecret) GetSecret(context.Context, string) (string, error) {
	return string(s), nil
}

func loadEvent(path string) (cfn.Event, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return cfn.Event{}, fmt.Errorf("failed to read event %s: %w", path, err)
	}
	return decodeEvent(data)
}

// decodeEvent accepts an event in either JSON or YAML. YAML is a superset of
// JSON, so both are parsed as YAML and then re-encoded as JSON to pick up the
// cfn.Event field tags.
func decodeEvent(data []byte) (cfn.Event, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return cfn.Event{}, fmt.Errorf("failed to parse event: %w", err)
	}

	encoded, err := json.Marshal(raw)
	if err != nil {
		return cfn.Event{}, fmt.Errorf("failed to encode event: %w", err)
	}

	var event cfn.Event
	if err := json.Unmarshal(encoded, &event); err != nil {
		return cfn.Event{}, fmt.Errorf("failed to decode event: %w", err)
	}

	return event, nil
}

// deletePlan names the resources a Delete would remove.
type deletePlan struct {
	Pipeline string `json:"pipeline"`
	Webhook  string `json:"webhook"`
}

// dryRun writes what event would do to w without contacting AWS.
func dryRun(ctx context.Context, w io.Writer, event cfn.Event) error {
	if err := validateEvent(event); err != nil {
		return err
	}

	repository, props := splitProperties(event.ResourceProperties)
	reconciler := pipeline.New(pipeline.Input{
		Properties: props,
		Repository: repository,
		Secrets:    staticSecret(dryRunSecret),
	})

	var plan any
	if event.RequestType == cfn.RequestDelete {
		name := reconciler.Name()
		if name == "" {
			name = event.PhysicalResourceID
		}
		plan = deletePlan{
			Pipeline: name,
			Webhook:  pipeline.WebhookName(name),
		}
	} else {
		if err := reconciler.AddSource(ctx); err != nil {
			return err
		}
		p, err := reconciler.Plan()
		if err != nil {
			return err
		}
		plan = p
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(plan)
}
