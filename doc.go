// Package dispatchflow is an in-process mediator. Requests travel through an
// ordered behavior pipeline to exactly one handler and come back with a typed
// response; notifications fan out to every registered handler concurrently.
//
// A type becomes a request by embedding Returns[T] (or Command when there is
// nothing to return) and a notification by embedding Event:
//
//	type GetUser struct {
//		dispatchflow.Returns[*User]
//		ID string
//	}
//
//	type UserCreated struct {
//		dispatchflow.Event
//		ID string
//	}
//
// Handlers, behaviors and exception handlers live in a Registry, or in any
// Resolver that hands back entries built by the New*Entry constructors.
// Send and Publish resolve what they need per concrete type and cache the
// behavior chain, so later dispatches of the same type skip the lookup.
//
// # Behaviors
//
// The default chain adds correlation IDs, OpenTelemetry spans (when
// TracingEnabled is set), request logging, dispatch hooks, Prometheus metrics
// (when MetricsEnabled is set) and panic recovery. Retry, circuit breaking,
// validation and timeouts are opt-in via MediatorDependencies.Behaviors.
// Lower Order values wrap higher ones.
//
// # Failures
//
// A failed Send is offered to exception handlers registered for the concrete
// error type, then to those registered for error. The first handler that
// calls RecoveryState.SetHandled supplies the response. Publish always waits
// for every handler and reports failures as one *AggregateError.
//
// # Watermill
//
// NewForwarder, BuildRequestHandler and BuildNotificationHandler connect a
// mediator to any Watermill publisher or router, carrying correlation IDs in
// message metadata.
package dispatchflow
