package runtime

import (
	"context"
	"fmt"
	"time"

	loggingpkg "github.com/drblury/dispatchflow/internal/runtime/logging"
	metadatapkg "github.com/drblury/dispatchflow/internal/runtime/metadata"
)

// DispatchContext describes one dispatch to hooks.
type DispatchContext struct {
	// RequestType is the Go type name of the request.
	RequestType string
	// CorrelationID is read from the context metadata, if present.
	CorrelationID string
	// Metadata is a copy of the context metadata.
	Metadata metadatapkg.Metadata
	// Context is the context the dispatch runs with.
	Context context.Context
	// StartedAt is when the hook behavior was entered.
	StartedAt time.Time
	// Duration is only set for OnDispatchDone and OnDispatchError.
	Duration time.Duration
}

// DispatchHooks are optional callbacks around each dispatch. Nil hooks are
// skipped. Hooks run inline and must not block.
type DispatchHooks struct {
	OnDispatchStart func(ctx DispatchContext)
	OnDispatchDone  func(ctx DispatchContext)
	OnDispatchError func(ctx DispatchContext, err error)
}

// IsZero reports whether no hook is set.
func (h DispatchHooks) IsZero() bool {
	return h.OnDispatchStart == nil && h.OnDispatchDone == nil && h.OnDispatchError == nil
}

// Merge returns hooks that call h first, then other.
func (h DispatchHooks) Merge(other DispatchHooks) DispatchHooks {
	return DispatchHooks{
		OnDispatchStart: chain(h.OnDispatchStart, other.OnDispatchStart),
		OnDispatchDone:  chain(h.OnDispatchDone, other.OnDispatchDone),
		OnDispatchError: chainWithErr(h.OnDispatchError, other.OnDispatchError),
	}
}

func chain[T any](a, b func(T)) func(T) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(v T) {
		a(v)
		b(v)
	}
}

func chainWithErr[T any](a, b func(T, error)) func(T, error) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(v T, err error) {
		a(v, err)
		b(v, err)
	}
}

// HooksBehavior invokes hooks around every dispatch.
func HooksBehavior(hooks DispatchHooks) BehaviorRegistration {
	return BehaviorRegistration{
		Name:  "dispatch_hooks",
		Order: OrderHooks,
		Builder: func(*Mediator) (Behavior, error) {
			if hooks.IsZero() {
				return nil, nil
			}
			return hooksBehavior(hooks), nil
		},
	}
}

// configuredHooksBehavior installs MediatorDependencies.Hooks.
func configuredHooksBehavior() BehaviorRegistration {
	return BehaviorRegistration{
		Name:  "dispatch_hooks",
		Order: OrderHooks,
		Builder: func(m *Mediator) (Behavior, error) {
			if m.hooks.IsZero() {
				return nil, nil
			}
			return hooksBehavior(m.hooks), nil
		},
	}
}

func hooksBehavior(hooks DispatchHooks) Behavior {
	return BehaviorFunc(func(ctx context.Context, request any, next Next[any]) (any, error) {
		md := metadatapkg.FromContext(ctx)
		dispatchCtx := DispatchContext{
			RequestType:   fmt.Sprintf("%T", request),
			CorrelationID: md.Get(metadatapkg.KeyCorrelationID),
			Metadata:      md,
			Context:       ctx,
			StartedAt:     time.Now(),
		}

		if hooks.OnDispatchStart != nil {
			hooks.OnDispatchStart(dispatchCtx)
		}

		resp, err := next(ctx)
		dispatchCtx.Duration = time.Since(dispatchCtx.StartedAt)

		if err != nil {
			if hooks.OnDispatchError != nil {
				hooks.OnDispatchError(dispatchCtx, err)
			}
		} else if hooks.OnDispatchDone != nil {
			hooks.OnDispatchDone(dispatchCtx)
		}
		return resp, err
	})
}

// LoggingHooks logs dispatch lifecycle events.
func LoggingHooks(logger loggingpkg.ServiceLogger) DispatchHooks {
	return DispatchHooks{
		OnDispatchStart: func(ctx DispatchContext) {
			logger.Info("Dispatch started", loggingpkg.LogFields{
				"request_type":   ctx.RequestType,
				"correlation_id": ctx.CorrelationID,
			})
		},
		OnDispatchDone: func(ctx DispatchContext) {
			logger.Info("Dispatch completed", loggingpkg.LogFields{
				"request_type":   ctx.RequestType,
				"correlation_id": ctx.CorrelationID,
				"duration_ms":    ctx.Duration.Milliseconds(),
			})
		},
		OnDispatchError: func(ctx DispatchContext, err error) {
			logger.Error("Dispatch failed", err, loggingpkg.LogFields{
				"request_type":   ctx.RequestType,
				"correlation_id": ctx.CorrelationID,
				"duration_ms":    ctx.Duration.Milliseconds(),
			})
		},
	}
}

// MetricsHooks forwards lifecycle events to simple counters keyed by
// request type.
func MetricsHooks(onStart, onDone, onError func(requestType string)) DispatchHooks {
	return DispatchHooks{
		OnDispatchStart: func(ctx DispatchContext) {
			if onStart != nil {
				onStart(ctx.RequestType)
			}
		},
		OnDispatchDone: func(ctx DispatchContext) {
			if onDone != nil {
				onDone(ctx.RequestType)
			}
		},
		OnDispatchError: func(ctx DispatchContext, _ error) {
			if onError != nil {
				onError(ctx.RequestType)
			}
		},
	}
}

// AlertingHooks calls alertFunc for every failed dispatch.
func AlertingHooks(alertFunc func(ctx DispatchContext, err error)) DispatchHooks {
	return DispatchHooks{OnDispatchError: alertFunc}
}
