package errors

import (
	sterrors "errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidArgument   = sterrors.New("dispatchflow: invalid argument")
	ErrConfiguration     = sterrors.New("dispatchflow: invalid mediator configuration")
	ErrNotRegistered     = sterrors.New("dispatchflow: no registration for token")
	ErrResponseType      = sterrors.New("dispatchflow: unexpected response type")
	ErrMediatorRequired  = sterrors.New("dispatchflow: mediator is required")
	ErrResolverRequired  = sterrors.New("dispatchflow: resolver is required")
	ErrRegistryRequired  = sterrors.New("dispatchflow: registry is required")
	ErrHandlerRequired   = sterrors.New("dispatchflow: handler is required")
	ErrBehaviorRequired  = sterrors.New("dispatchflow: behavior is required")
	ErrConfigRequired    = sterrors.New("dispatchflow: configuration is required")
	ErrLoggerRequired    = sterrors.New("dispatchflow: logger is required")
	ErrPublisherRequired = sterrors.New("dispatchflow: publisher is required")
	ErrTopicRequired     = sterrors.New("dispatchflow: topic is required")
	ErrMarshalerRequired = sterrors.New("dispatchflow: marshaler is required")
)

// ArgumentError reports a missing or unusable argument passed to a mediator
// entry point. It always matches ErrInvalidArgument.
type ArgumentError struct {
	Name   string
	Reason string
}

// NewArgumentError returns an ArgumentError for a required argument.
func NewArgumentError(name string) *ArgumentError {
	return &ArgumentError{Name: name, Reason: "is required"}
}

func (e *ArgumentError) Error() string {
	reason := e.Reason
	if reason == "" {
		reason = "is invalid"
	}
	return fmt.Sprintf("dispatchflow: argument %q %s", e.Name, reason)
}

func (e *ArgumentError) Is(target error) bool {
	return target == ErrInvalidArgument
}

// ConfigurationError reports a registration problem discovered while
// dispatching, such as a request type without a handler.
type ConfigurationError struct {
	Reason      string
	Capability  string
	RequestType string
	Err         error
}

func (e *ConfigurationError) Error() string {
	return "dispatchflow: " + e.Reason
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

func (e *ConfigurationError) Is(target error) bool {
	return target == ErrConfiguration
}

// HandlerError pairs a failing notification handler with its error.
type HandlerError struct {
	Handler string
	Index   int
	Err     error
}

func (e HandlerError) Error() string {
	return fmt.Sprintf("handler %s: %v", e.Handler, e.Err)
}

func (e HandlerError) Unwrap() error {
	return e.Err
}

// AggregateError is returned by Publish once every handler has completed and
// at least one of them failed. Failures keep the registration order.
type AggregateError struct {
	Notification string
	Failures     []HandlerError
}

func (e *AggregateError) Error() string {
	switch len(e.Failures) {
	case 0:
		return fmt.Sprintf("dispatchflow: notification %s failed", e.Notification)
	case 1:
		return fmt.Sprintf("dispatchflow: notification %s: %v", e.Notification, e.Failures[0])
	}
	parts := make([]string, 0, len(e.Failures))
	for _, failure := range e.Failures {
		parts = append(parts, failure.Error())
	}
	return fmt.Sprintf("dispatchflow: notification %s: %d handlers failed: %s",
		e.Notification, len(e.Failures), strings.Join(parts, "; "))
}

// Unwrap exposes the handler errors so errors.Is and errors.As can reach them.
func (e *AggregateError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures))
	for _, failure := range e.Failures {
		errs = append(errs, failure.Err)
	}
	return errs
}

// PanicError carries a value recovered from a panicking handler or behavior.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("dispatchflow: panic: %v", e.Value)
}

func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// ValidationError is produced by the validation behavior when a request's
// Validate method rejects it.
type ValidationError struct {
	RequestType string
	Err         error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("dispatchflow: request %s failed validation: %v", e.RequestType, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// IsPermanent reports whether err can never succeed on a second attempt.
func IsPermanent(err error) bool {
	if err == nil {
		return false
	}
	var validation *ValidationError
	return sterrors.Is(err, ErrInvalidArgument) ||
		sterrors.Is(err, ErrConfiguration) ||
		sterrors.As(err, &validation)
}
