package runtime

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"runtime/debug"

	errspkg "github.com/drblury/dispatchflow/internal/runtime/errors"
	"github.com/drblury/dispatchflow/internal/runtime/logging"
)

// RecoveryState lets an exception handler substitute a response for a
// failed request. Each handler receives a fresh state.
type RecoveryState[TResponse any] struct {
	handled  bool
	response TResponse
}

// SetHandled marks the failure as handled and records the response returned
// to the caller in place of the error. Once handled, the state stays handled.
func (s *RecoveryState[TResponse]) SetHandled(response TResponse) {
	s.handled = true
	s.response = response
}

// Handled reports whether SetHandled was called.
func (s *RecoveryState[TResponse]) Handled() bool {
	return s.handled
}

// Response returns the substitute response, or the zero value when unhandled.
func (s *RecoveryState[TResponse]) Response() TResponse {
	return s.response
}

type exceptionLink[TResponse any] interface {
	handleFailure(ctx context.Context, request Request[TResponse], err error, state *RecoveryState[TResponse]) (bool, error)
	handlerName() string
}

// failureCause returns the error whose concrete type selects exception
// handlers. A panic carrying an error is keyed by that error.
func failureCause(err error) error {
	if panicErr, ok := err.(*errspkg.PanicError); ok {
		if inner, ok := panicErr.Value.(error); ok {
			return inner
		}
	}
	return err
}

// recoverFailure offers failure to the exception handlers registered for the
// request's concrete error type, then to catch-all handlers, in
// registration order. The first handler that marks its state handled
// decides the response. When none does, failure is returned untouched.
// Argument and configuration errors returned as is are never offered;
// handler errors that merely wrap one are.
func recoverFailure[TResponse any](ctx context.Context, m *Mediator, request Request[TResponse], token Token, failure error) (TResponse, bool, error) {
	var zero TResponse
	switch failure.(type) {
	case *errspkg.ArgumentError, *errspkg.ConfigurationError:
		return zero, false, failure
	}

	cause := failureCause(failure)
	causeType := reflect.TypeOf(cause)
	tokens := []Token{
		exceptionToken(token.Request, token.Response, causeType),
		exceptionToken(token.Request, token.Response, errorType),
	}

	for _, exceptionTok := range tokens {
		for _, instance := range m.resolver.ResolveAll(exceptionTok) {
			handler, ok := instance.(exceptionLink[TResponse])
			if !ok {
				m.Logger.Error("Skipping unusable exception handler", nil, logging.LogFields{
					"capability": exceptionTok.String(),
					"instance":   fmt.Sprintf("%T", instance),
				})
				continue
			}

			state := &RecoveryState[TResponse]{}
			matched, err := invokeExceptionHandler(ctx, handler, request, cause, state)
			if !matched {
				continue
			}
			if err != nil {
				return zero, false, errors.Join(failure, err)
			}
			if state.Handled() {
				m.Logger.Info("Request failure recovered", logging.LogFields{
					"request_type": typeName(token.Request),
					"error_type":   typeName(causeType),
					"handler":      handler.handlerName(),
				})
				return state.Response(), true, nil
			}
		}
	}
	return zero, false, failure
}

// invokeExceptionHandler converts a panicking exception handler into a
// *errors.PanicError so it is joined with the failure it was handling.
func invokeExceptionHandler[TResponse any](ctx context.Context, handler exceptionLink[TResponse], request Request[TResponse], cause error, state *RecoveryState[TResponse]) (matched bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			matched = true
			err = &errspkg.PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return handler.handleFailure(ctx, request, cause, state)
}
