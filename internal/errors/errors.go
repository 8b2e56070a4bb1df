package errors

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownRequestType  = errors.New("unknown request type")
	ErrMissingResponseURL  = errors.New("ResponseURL is required")
	ErrMissingProperty     = errors.New("missing required property")
	ErrInvalidProperty     = errors.New("invalid property")
	ErrSourceStageSupplied = errors.New("stage name Source is reserved for the injected source stage")
	ErrSourceNotAdded      = errors.New("source stage has not been added")
	ErrSourceAlreadyAdded  = errors.New("source stage has already been added")
	ErrEmptySecret         = errors.New("secret has no string value")
	ErrCallbackRejected    = errors.New("callback rejected by response url")
	ErrCallbackExhausted   = errors.New("callback retries exhausted")
)

// ValidationError indicates a malformed or incomplete lifecycle event.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("ValidationError: %v", e.Err)
	}
	return fmt.Sprintf("ValidationError: %s: %v", e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// Invalid returns a ValidationError for field wrapping err.
func Invalid(field string, err error) error {
	return &ValidationError{Field: field, Err: err}
}

// SecretAccessError indicates the OAuth secret could not be read.
type SecretAccessError struct {
	SecretID string
	Code     string
	Message  string
	Err      error
}

func (e *SecretAccessError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("SecretAccessError: unable to read secret %s: %s", e.SecretID, e.Message)
	}
	return fmt.Sprintf("SecretAccessError: unable to read secret %s: %s: %s", e.SecretID, e.Code, e.Message)
}

func (e *SecretAccessError) Unwrap() error { return e.Err }

// OrchestrationAPIError carries the code and message of a failed CodePipeline call.
type OrchestrationAPIError struct {
	Operation string
	Code      string
	Message   string
	Err       error
}

func (e *OrchestrationAPIError) Error() string {
	return fmt.Sprintf("%s failed: %s: %s", e.Operation, e.Code, e.Message)
}

func (e *OrchestrationAPIError) Unwrap() error { return e.Err }

// CallbackDeliveryError reports that the result envelope could not be delivered.
// StatusCode is zero when every attempt failed at the transport level.
type CallbackDeliveryError struct {
	Attempts   int
	StatusCode int
	Err        error
}

func (e *CallbackDeliveryError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("CallbackDeliveryError: status %d after %d attempt(s): %v", e.StatusCode, e.Attempts, e.Err)
	}
	return fmt.Sprintf("CallbackDeliveryError: %d attempt(s): %v", e.Attempts, e.Err)
}

func (e *CallbackDeliveryError) Unwrap() error { return e.Err }
