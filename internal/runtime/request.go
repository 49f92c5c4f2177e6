package runtime

import (
	"context"
	"reflect"
)

// Unit is the response of requests that produce no value.
type Unit struct{}

func (Unit) String() string { return "()" }

// Request is implemented by every message dispatched with Send. Types become
// requests by embedding Returns[TResponse] (or Command for Unit responses),
// which also fixes the response type the handler must produce.
type Request[TResponse any] interface {
	responseOf() TResponse
	declaredRequest
}

// declaredRequest is the untyped view of Request used when the caller only
// holds an `any`.
type declaredRequest interface {
	responseType() reflect.Type
	sendUntyped(ctx context.Context, m *Mediator, self any) (any, error)
}

// Returns marks the embedding type as a request answered with TResponse.
//
//	type GetUser struct {
//		dispatchflow.Returns[*User]
//		ID string
//	}
type Returns[TResponse any] struct{}

func (Returns[TResponse]) responseOf() TResponse {
	var zero TResponse
	return zero
}

func (Returns[TResponse]) responseType() reflect.Type {
	return reflect.TypeFor[TResponse]()
}

func (Returns[TResponse]) sendUntyped(ctx context.Context, m *Mediator, self any) (any, error) {
	request, ok := self.(Request[TResponse])
	if !ok {
		return nil, notARequest(self)
	}
	resp, err := Send(ctx, m, request)
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// Command marks a request with no meaningful response.
type Command = Returns[Unit]

// Notification is implemented by every message broadcast with Publish.
// Types become notifications by embedding Event.
type Notification interface {
	notification()
}

// Event marks the embedding type as a notification.
type Event struct{}

func (Event) notification() {}

// Next invokes the remainder of the pipeline.
type Next[TResponse any] func(ctx context.Context) (TResponse, error)

// RequestHandler produces the response for exactly one request type.
type RequestHandler[TRequest Request[TResponse], TResponse any] interface {
	Handle(ctx context.Context, request TRequest) (TResponse, error)
}

// RequestHandlerFunc adapts a function to RequestHandler.
type RequestHandlerFunc[TRequest Request[TResponse], TResponse any] func(ctx context.Context, request TRequest) (TResponse, error)

func (f RequestHandlerFunc[TRequest, TResponse]) Handle(ctx context.Context, request TRequest) (TResponse, error) {
	return f(ctx, request)
}

// PipelineBehavior wraps the handling of one request type. Implementations
// decide whether, when and how often to call next.
type PipelineBehavior[TRequest Request[TResponse], TResponse any] interface {
	Handle(ctx context.Context, request TRequest, next Next[TResponse]) (TResponse, error)
}

// PipelineBehaviorFunc adapts a function to PipelineBehavior.
type PipelineBehaviorFunc[TRequest Request[TResponse], TResponse any] func(ctx context.Context, request TRequest, next Next[TResponse]) (TResponse, error)

func (f PipelineBehaviorFunc[TRequest, TResponse]) Handle(ctx context.Context, request TRequest, next Next[TResponse]) (TResponse, error) {
	return f(ctx, request, next)
}

// Behavior wraps every request regardless of its type. The response handed
// back must be assignable to the request's declared response type.
type Behavior interface {
	Handle(ctx context.Context, request any, next Next[any]) (any, error)
}

// BehaviorFunc adapts a function to Behavior.
type BehaviorFunc func(ctx context.Context, request any, next Next[any]) (any, error)

func (f BehaviorFunc) Handle(ctx context.Context, request any, next Next[any]) (any, error) {
	return f(ctx, request, next)
}

// ExceptionHandler is offered failures of TRequest whose concrete error type
// is TErr. Use error as TErr to be offered every failure of the request
// after the exact-type handlers declined. A returned error or a panic stops
// recovery and is joined with the original failure.
type ExceptionHandler[TRequest Request[TResponse], TResponse any, TErr error] interface {
	Handle(ctx context.Context, request TRequest, err TErr, state *RecoveryState[TResponse]) error
}

// ExceptionHandlerFunc adapts a function to ExceptionHandler.
type ExceptionHandlerFunc[TRequest Request[TResponse], TResponse any, TErr error] func(ctx context.Context, request TRequest, err TErr, state *RecoveryState[TResponse]) error

func (f ExceptionHandlerFunc[TRequest, TResponse, TErr]) Handle(ctx context.Context, request TRequest, err TErr, state *RecoveryState[TResponse]) error {
	return f(ctx, request, err, state)
}

// NotificationHandler reacts to one notification type.
type NotificationHandler[TNotification Notification] interface {
	Handle(ctx context.Context, notification TNotification) error
}

// NotificationHandlerFunc adapts a function to NotificationHandler.
type NotificationHandlerFunc[TNotification Notification] func(ctx context.Context, notification TNotification) error

func (f NotificationHandlerFunc[TNotification]) Handle(ctx context.Context, notification TNotification) error {
	return f(ctx, notification)
}

// Ordered lets a behavior declare its position in the pipeline. Lower values
// run first (outermost). WithOrder overrides it at registration time.
type Ordered interface {
	PipelineOrder() int
}
