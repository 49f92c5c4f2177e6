package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSentinelErrors(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantMsg string
	}{
		{"ErrInvalidArgument", ErrInvalidArgument, "dispatchflow: invalid argument"},
		{"ErrMediatorRequired", ErrMediatorRequired, "dispatchflow: mediator is required"},
		{"ErrRegistryRequired", ErrRegistryRequired, "dispatchflow: registry is required"},
		{"ErrHandlerRequired", ErrHandlerRequired, "dispatchflow: handler is required"},
		{"ErrPublisherRequired", ErrPublisherRequired, "dispatchflow: publisher is required"},
		{"ErrTopicRequired", ErrTopicRequired, "dispatchflow: topic is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.wantMsg {
				t.Errorf("Error() = %q, want %q", got, tt.wantMsg)
			}
		})
	}
}

func TestArgumentError(t *testing.T) {
	err := NewArgumentError("request")

	assert.Equal(t, `dispatchflow: argument "request" is required`, err.Error())
	assert.True(t, errors.Is(err, ErrInvalidArgument))
	assert.False(t, errors.Is(err, ErrConfiguration))

	wrapped := fmt.Errorf("send: %w", err)
	var argErr *ArgumentError
	require.True(t, errors.As(wrapped, &argErr))
	assert.Equal(t, "request", argErr.Name)
}

func TestConfigurationError(t *testing.T) {
	cause := ErrNotRegistered
	err := &ConfigurationError{
		Reason:      "handler of type RequestHandler[app.Ping, string] not found for request app.Ping",
		Capability:  "RequestHandler[app.Ping, string]",
		RequestType: "app.Ping",
		Err:         cause,
	}

	assert.Equal(t, "dispatchflow: handler of type RequestHandler[app.Ping, string] not found for request app.Ping", err.Error())
	assert.True(t, errors.Is(err, ErrConfiguration))
	assert.True(t, errors.Is(err, ErrNotRegistered))
	assert.False(t, errors.Is(err, ErrInvalidArgument))
}

func TestAggregateError(t *testing.T) {
	first := errors.New("mailer down")
	second := errors.New("audit down")

	t.Run("single failure", func(t *testing.T) {
		err := &AggregateError{
			Notification: "app.Created",
			Failures:     []HandlerError{{Handler: "mailer", Err: first}},
		}
		assert.Equal(t, "dispatchflow: notification app.Created: handler mailer: mailer down", err.Error())
		assert.True(t, errors.Is(err, first))
	})

	t.Run("multiple failures", func(t *testing.T) {
		err := &AggregateError{
			Notification: "app.Created",
			Failures: []HandlerError{
				{Handler: "mailer", Index: 0, Err: first},
				{Handler: "audit", Index: 2, Err: second},
			},
		}
		assert.Contains(t, err.Error(), "2 handlers failed")
		assert.True(t, errors.Is(err, first))
		assert.True(t, errors.Is(err, second))
		assert.Len(t, err.Unwrap(), 2)
	})
}

func TestPanicError(t *testing.T) {
	cause := errors.New("nil map")

	withErr := &PanicError{Value: cause}
	assert.Equal(t, "dispatchflow: panic: nil map", withErr.Error())
	assert.True(t, errors.Is(withErr, cause))

	withString := &PanicError{Value: "boom"}
	assert.Nil(t, withString.Unwrap())
}

func TestIsPermanent(t *testing.T) {
	assert.False(t, IsPermanent(nil))
	assert.False(t, IsPermanent(errors.New("transient")))
	assert.True(t, IsPermanent(NewArgumentError("request")))
	assert.True(t, IsPermanent(&ConfigurationError{Reason: "missing"}))
	assert.True(t, IsPermanent(&ValidationError{RequestType: "app.Ping", Err: errors.New("empty")}))
}
