package runtime

import (
	"context"
	"fmt"
	"reflect"
	"runtime/debug"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	errspkg "github.com/drblury/dispatchflow/internal/runtime/errors"
	"github.com/drblury/dispatchflow/internal/runtime/logging"
	metadatapkg "github.com/drblury/dispatchflow/internal/runtime/metadata"
)

type notificationLink interface {
	invoke(ctx context.Context, notification Notification) error
	handlerName() string
}

// Publish delivers notification to every handler registered for its
// concrete type. Handlers run concurrently and Publish returns once all of
// them finished. Failures are collected into an *errors.AggregateError;
// one failing handler never stops the others.
func Publish[TNotification Notification](ctx context.Context, m *Mediator, notification TNotification) error {
	if m == nil {
		return errspkg.ErrMediatorRequired
	}
	if isNil(notification) {
		return errspkg.NewArgumentError("notification")
	}
	return m.publish(ctx, notification)
}

// PublishAny is Publish for callers that only hold an untyped value.
func (m *Mediator) PublishAny(ctx context.Context, notification any) error {
	if m == nil {
		return errspkg.ErrMediatorRequired
	}
	if isNil(notification) {
		return errspkg.NewArgumentError("notification")
	}
	typed, ok := notification.(Notification)
	if !ok {
		return notANotification(notification)
	}
	return m.publish(ctx, typed)
}

func (m *Mediator) publish(ctx context.Context, notification Notification) (err error) {
	if ctx == nil {
		ctx = context.Background()
	}
	notificationType := reflect.TypeOf(notification)
	name := typeName(notificationType)
	token := notificationToken(notificationType)

	resolved := m.resolver.ResolveAll(token)
	if len(resolved) == 0 {
		m.Logger.Trace("Notification has no handlers", logging.LogFields{"notification_type": name})
		return nil
	}

	handlers := make([]notificationLink, len(resolved))
	for i, instance := range resolved {
		link, ok := instance.(notificationLink)
		if !ok {
			return &errspkg.ConfigurationError{
				Reason:      fmt.Sprintf("resolved %T cannot handle notification %s", instance, name),
				Capability:  token.String(),
				RequestType: name,
			}
		}
		handlers[i] = link
	}

	if m.Conf.TracingEnabled {
		var span trace.Span
		ctx, span = otel.Tracer(tracerName).Start(ctx, "dispatchflow.Publish",
			trace.WithSpanKind(trace.SpanKindInternal),
			trace.WithAttributes(
				attribute.String("dispatchflow.notification_type", name),
				attribute.Int("dispatchflow.handlers", len(handlers)),
			),
		)
		defer span.End()
		defer func() {
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
			}
		}()
	}

	start := time.Now()
	outcomes := m.fanOut(ctx, notification, handlers)

	var failures []errspkg.HandlerError
	for i, outcome := range outcomes {
		if outcome != nil {
			failures = append(failures, errspkg.HandlerError{Handler: handlers[i].handlerName(), Index: i, Err: outcome})
		}
	}
	duration := time.Since(start)
	if m.metrics != nil {
		m.metrics.ObservePublish(name, duration, failures)
	}

	if len(failures) == 0 {
		m.Logger.Debug("Notification published", logging.LogFields{
			"notification_type": name,
			"handlers":          len(handlers),
			"duration_ms":       duration.Milliseconds(),
			"correlation_id":    metadatapkg.CorrelationID(ctx),
		})
		return nil
	}

	aggregate := &errspkg.AggregateError{Notification: name, Failures: failures}
	m.Logger.Error("Notification handlers failed", aggregate, logging.LogFields{
		"notification_type": name,
		"handlers":          len(handlers),
		"failed":            len(failures),
		"correlation_id":    metadatapkg.CorrelationID(ctx),
	})
	return aggregate
}

// fanOut runs every handler and returns their outcomes by index. Goroutines
// never report errors to the group, so no handler is cancelled because a
// sibling failed.
func (m *Mediator) fanOut(ctx context.Context, notification Notification, handlers []notificationLink) []error {
	outcomes := make([]error, len(handlers))
	if len(handlers) == 1 {
		outcomes[0] = invokeHandler(ctx, handlers[0], notification)
		return outcomes
	}

	var group errgroup.Group
	if limit := m.Conf.NotificationConcurrency; limit > 0 {
		group.SetLimit(limit)
	}
	for i, handler := range handlers {
		group.Go(func() error {
			outcomes[i] = invokeHandler(ctx, handler, notification)
			return nil
		})
	}
	_ = group.Wait()
	return outcomes
}

func invokeHandler(ctx context.Context, handler notificationLink, notification Notification) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &errspkg.PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return handler.invoke(ctx, notification)
}
