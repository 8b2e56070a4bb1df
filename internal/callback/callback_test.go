package callback

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aws/aws-lambda-go/cfn"
	"github.com/rs/zerolog"
	apperrors "github.com/savaki/codepipeline-helper/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flakyDoer fails the first failures calls with a transport error, then
// answers with status
type flakyDoer struct {
	failures int
	status   int
	calls    int
}

func (d *flakyDoer) Do(req *http.Request) (*http.Response, error) {
	d.calls++
	if d.calls <= d.failures {
		return nil, errors.New("connection reset by peer")
	}
	return &http.Response{
		StatusCode: d.status,
		Body:       io.NopCloser(bytes.NewReader(nil)),
		Request:    req,
	}, nil
}

func testEvent() cfn.Event {
	return cfn.Event{
		RequestType:       cfn.RequestCreate,
		RequestID:         "unique-request-id",
		ResponseURL:       "https://cloudformation-custom-resource-response-useast1.s3.amazonaws.com/signed",
		StackID:           "arn:aws:cloudformation:us-east-1:123456789012:stack/widgets/guid",
		LogicalResourceID: "Pipeline",
	}
}

func TestNewEnvelope(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		envelope := NewEnvelope(testEvent(), "widgets-pipeline", nil)

		assert.Equal(t, Envelope{
			PhysicalResourceID: "widgets-pipeline",
			StackID:            "arn:aws:cloudformation:us-east-1:123456789012:stack/widgets/guid",
			LogicalResourceID:  "Pipeline",
			RequestID:          "unique-request-id",
			Status:             cfn.StatusSuccess,
			Data:               map[string]any{},
		}, envelope)
	})

	t.Run("failure", func(t *testing.T) {
		envelope := NewEnvelope(testEvent(), "widgets-pipeline", errors.New("CreatePipeline failed: InvalidStructureException: bad"))

		assert.Equal(t, cfn.StatusFailed, envelope.Status)
		assert.Equal(t, "CreatePipeline failed: InvalidStructureException: bad", envelope.Reason)
	})
}

func TestEnvelope_JSONFields(t *testing.T) {
	data, err := json.Marshal(NewEnvelope(testEvent(), "widgets-pipeline", nil))
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(data, &m))

	for _, key := range []string{"PhysicalResourceId", "StackId", "LogicalResourceId", "RequestId", "Status", "Reason", "Data"} {
		assert.Contains(t, m, key)
	}
	assert.Equal(t, "SUCCESS", m["Status"])
}

func TestSend_Delivers(t *testing.T) {
	var (
		method        string
		contentType   string
		contentLength int64
		body          []byte
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
		contentType = r.Header.Get("Content-Type")
		contentLength = r.ContentLength
		body, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	envelope := NewEnvelope(testEvent(), "widgets-pipeline", nil)
	err := New(server.Client()).Send(context.Background(), server.URL, envelope)
	require.NoError(t, err)

	assert.Equal(t, http.MethodPut, method)
	assert.Empty(t, contentType)
	assert.Equal(t, int64(len(body)), contentLength)

	var got Envelope
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Equal(t, envelope, got)
}

func TestSend_Non200IsTerminal(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	err := New(server.Client()).Send(context.Background(), server.URL, NewEnvelope(testEvent(), "id", nil))

	var deliveryErr *apperrors.CallbackDeliveryError
	require.True(t, errors.As(err, &deliveryErr))
	assert.Equal(t, http.StatusForbidden, deliveryErr.StatusCode)
	assert.Equal(t, 1, deliveryErr.Attempts)
	assert.ErrorIs(t, err, apperrors.ErrCallbackRejected)
	assert.Equal(t, 1, calls)
}

func TestSend_Retries(t *testing.T) {
	tests := []struct {
		name      string
		failures  int
		wantCalls int
		wantErr   bool
	}{
		{name: "first attempt succeeds", failures: 0, wantCalls: 1},
		{name: "one transport failure", failures: 1, wantCalls: 2},
		{name: "five failures then success", failures: 5, wantCalls: 6},
		{name: "six failures exhaust retries", failures: 6, wantCalls: 6, wantErr: true},
		{name: "persistent failure stops at six", failures: 100, wantCalls: 6, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doer := &flakyDoer{failures: tt.failures, status: http.StatusOK}

			err := New(doer).Send(context.Background(), testEvent().ResponseURL, NewEnvelope(testEvent(), "id", nil))

			assert.Equal(t, tt.wantCalls, doer.calls)
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}

			var deliveryErr *apperrors.CallbackDeliveryError
			require.True(t, errors.As(err, &deliveryErr))
			assert.Equal(t, 6, deliveryErr.Attempts)
			assert.Zero(t, deliveryErr.StatusCode)
			assert.ErrorIs(t, err, apperrors.ErrCallbackExhausted)
		})
	}
}

func TestSend_WithMaxRetries(t *testing.T) {
	doer := &flakyDoer{failures: 100, status: http.StatusOK}

	err := New(doer, WithMaxRetries(2)).Send(context.Background(), testEvent().ResponseURL, NewEnvelope(testEvent(), "id", nil))

	assert.Error(t, err)
	assert.Equal(t, 3, doer.calls)
}

func TestSend_InvalidURL(t *testing.T) {
	doer := &flakyDoer{status: http.StatusOK}

	for _, responseURL := range []string{"", "not a url"} {
		err := New(doer).Send(context.Background(), responseURL, NewEnvelope(testEvent(), "id", nil))

		var deliveryErr *apperrors.CallbackDeliveryError
		assert.True(t, errors.As(err, &deliveryErr))
	}
	assert.Zero(t, doer.calls)
}

func TestSend_LogsBody(t *testing.T) {
	var buf bytes.Buffer
	ctx := zerolog.New(&buf).WithContext(context.Background())
	doer := &flakyDoer{status: http.StatusOK}

	require.NoError(t, New(doer).Send(ctx, testEvent().ResponseURL, NewEnvelope(testEvent(), "widgets-pipeline", nil)))

	assert.Contains(t, buf.String(), `"PhysicalResourceId":"widgets-pipeline"`)
	assert.Contains(t, buf.String(), `"status":200`)
}
