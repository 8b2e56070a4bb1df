// Package callback reports the outcome of a custom resource event to the
// pre-signed CloudFormation response URL.
package callback

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/aws/aws-lambda-go/cfn"
	"github.com/rs/zerolog"
	apperrors "github.com/savaki/codepipeline-helper/internal/errors"
)

// DefaultMaxRetries is the number of retries made after the first attempt
// fails at the transport level.
const DefaultMaxRetries = 5

// Envelope is the body PUT to the response URL.
type Envelope struct {
	PhysicalResourceID string         `json:"PhysicalResourceId"`
	StackID            string         `json:"StackId"`
	LogicalResourceID  string         `json:"LogicalResourceId"`
	RequestID          string         `json:"RequestId"`
	Status             cfn.StatusType `json:"Status"`
	Reason             string         `json:"Reason"`
	Data               map[string]any `json:"Data"`
}

// NewEnvelope builds the envelope for event. A nil err reports SUCCESS,
// anything else FAILED with err as the reason.
func NewEnvelope(event cfn.Event, physicalResourceID string, err error) Envelope {
	envelope := Envelope{
		PhysicalResourceID: physicalResourceID,
		StackID:            event.StackID,
		LogicalResourceID:  event.LogicalResourceID,
		RequestID:          event.RequestID,
		Status:             cfn.StatusSuccess,
		Data:               map[string]any{},
	}

	if err != nil {
		envelope.Status = cfn.StatusFailed
		envelope.Reason = err.Error()
	}

	return envelope
}

// Doer sends HTTP requests. Satisfied by *http.Client.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Responder delivers envelopes. A transport failure is retried immediately
// while the failed attempt count is within maxRetries; an HTTP response of
// any status ends delivery.
type Responder struct {
	client     Doer
	maxRetries int
}

type Option func(*Responder)

// WithMaxRetries overrides DefaultMaxRetries.
func WithMaxRetries(n int) Option {
	return func(r *Responder) {
		r.maxRetries = n
	}
}

func New(client Doer, opts ...Option) *Responder {
	r := &Responder{
		client:     client,
		maxRetries: DefaultMaxRetries,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Send PUTs envelope to responseURL. It returns *errors.CallbackDeliveryError
// when the response is not 200 or every attempt failed; callers have no
// further channel to report it on and should only log it.
func (r *Responder) Send(ctx context.Context, responseURL string, envelope Envelope) error {
	logger := zerolog.Ctx(ctx)

	if responseURL == "" {
		return &apperrors.CallbackDeliveryError{Err: apperrors.ErrMissingResponseURL}
	}
	if _, err := url.ParseRequestURI(responseURL); err != nil {
		return &apperrors.CallbackDeliveryError{Err: fmt.Errorf("invalid response url: %w", err)}
	}

	body, err := json.Marshal(envelope)
	if err != nil {
		return &apperrors.CallbackDeliveryError{Err: fmt.Errorf("failed to marshal response: %w", err)}
	}

	logger.Info().RawJSON("body", body).Msg("Sending custom resource response")

	attempts := 0
	for {
		status, err := r.put(ctx, responseURL, body)
		attempts++

		if err == nil {
			logger.Info().
				Int("status", status).
				Int("attempts", attempts).
				Msg("Custom resource response delivered")

			if status != http.StatusOK {
				return &apperrors.CallbackDeliveryError{
					Attempts:   attempts,
					StatusCode: status,
					Err:        apperrors.ErrCallbackRejected,
				}
			}
			return nil
		}

		logger.Warn().
			Err(err).
			Int("attempt", attempts).
			Msg("Failed to send custom resource response")

		if attempts > r.maxRetries {
			return &apperrors.CallbackDeliveryError{
				Attempts: attempts,
				Err:      errors.Join(apperrors.ErrCallbackExhausted, err),
			}
		}
	}
}

func (r *Responder) put(ctx context.Context, responseURL string, body []byte) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, responseURL, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}

	// The response URL is pre-signed without a content type.
	req.Header.Set("Content-Type", "")
	req.Header.Set("Content-Length", strconv.Itoa(len(body)))
	req.ContentLength = int64(len(body))

	resp, err := r.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	return resp.StatusCode, nil
}
