// Package bridge connects a mediator to Watermill. Forwarder republishes
// notifications on a topic; BuildRequestHandler and BuildNotificationHandler
// turn inbound messages into dispatches. Delivery guarantees are those of
// the Watermill publisher and subscriber in use.
package bridge

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"

	runtimepkg "github.com/drblury/dispatchflow/internal/runtime"
	errspkg "github.com/drblury/dispatchflow/internal/runtime/errors"
	idspkg "github.com/drblury/dispatchflow/internal/runtime/ids"
	metadatapkg "github.com/drblury/dispatchflow/internal/runtime/metadata"
)

// Forwarder is a NotificationHandler that publishes each notification to a
// Watermill topic.
type Forwarder[TNotification runtimepkg.Notification] struct {
	publisher message.Publisher
	topic     string
	marshaler Marshaler
}

// NewForwarder returns a Forwarder. A nil marshaler encodes JSON.
func NewForwarder[TNotification runtimepkg.Notification](publisher message.Publisher, topic string, marshaler Marshaler) (*Forwarder[TNotification], error) {
	if publisher == nil {
		return nil, errspkg.ErrPublisherRequired
	}
	if topic == "" {
		return nil, errspkg.ErrTopicRequired
	}
	if marshaler == nil {
		marshaler = JSONMarshaler{}
	}
	return &Forwarder[TNotification]{publisher: publisher, topic: topic, marshaler: marshaler}, nil
}

func (f *Forwarder[TNotification]) Handle(ctx context.Context, notification TNotification) error {
	msg, err := NewMessage(ctx, notification, f.marshaler)
	if err != nil {
		return err
	}
	if err := f.publisher.Publish(f.topic, msg); err != nil {
		return fmt.Errorf("publish %T to %s: %w", notification, f.topic, err)
	}
	return nil
}

// NewMessage encodes payload into a message carrying the context metadata
// and the payload's type name.
func NewMessage(ctx context.Context, payload any, marshaler Marshaler) (*message.Message, error) {
	if marshaler == nil {
		return nil, errspkg.ErrMarshalerRequired
	}
	data, err := marshaler.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %T payload: %w", payload, err)
	}

	msg := message.NewMessage(idspkg.New(), data)
	if ctx == nil {
		ctx = context.Background()
	}
	metadatapkg.FromContext(ctx).With(metadatapkg.KeyType, fmt.Sprintf("%T", payload)).ApplyTo(msg)
	msg.SetContext(ctx)
	return msg, nil
}

// Option customises the inbound handlers.
type Option func(*options)

type options struct {
	responseMarshaler Marshaler
}

// WithResponseMarshaler encodes responses with a different marshaler than
// the one decoding requests, for example protojson for proto responses.
func WithResponseMarshaler(marshaler Marshaler) Option {
	return func(o *options) {
		if marshaler != nil {
			o.responseMarshaler = marshaler
		}
	}
}

// BuildRequestHandler decodes each message into TRequest, sends it and
// emits the encoded response as a single outgoing message.
func BuildRequestHandler[TRequest runtimepkg.Request[TResponse], TResponse any](m *runtimepkg.Mediator, marshaler Marshaler, opts ...Option) (message.HandlerFunc, error) {
	if m == nil {
		return nil, errspkg.ErrMediatorRequired
	}
	if marshaler == nil {
		return nil, errspkg.ErrMarshalerRequired
	}
	o := options{responseMarshaler: marshaler}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	return func(msg *message.Message) ([]*message.Message, error) {
		request, err := decode[TRequest](marshaler, msg.Payload)
		if err != nil {
			return nil, fmt.Errorf("failed to decode %T payload: %w", request, err)
		}

		ctx := inboundContext(msg)
		resp, err := runtimepkg.Send[TResponse](ctx, m, request)
		if err != nil {
			return nil, err
		}

		out, err := NewMessage(ctx, resp, o.responseMarshaler)
		if err != nil {
			return nil, err
		}
		return []*message.Message{out}, nil
	}, nil
}

// BuildNotificationHandler decodes each message into TNotification and
// publishes it. The message is nacked when any handler fails.
func BuildNotificationHandler[TNotification runtimepkg.Notification](m *runtimepkg.Mediator, marshaler Marshaler) (message.NoPublishHandlerFunc, error) {
	if m == nil {
		return nil, errspkg.ErrMediatorRequired
	}
	if marshaler == nil {
		return nil, errspkg.ErrMarshalerRequired
	}

	return func(msg *message.Message) error {
		notification, err := decode[TNotification](marshaler, msg.Payload)
		if err != nil {
			return fmt.Errorf("failed to decode %T payload: %w", notification, err)
		}
		return runtimepkg.Publish(inboundContext(msg), m, notification)
	}, nil
}

// inboundContext merges the message headers into the context metadata and
// assigns a correlation ID when the sender did not.
func inboundContext(msg *message.Message) context.Context {
	ctx := msg.Context()
	md := metadatapkg.FromContext(ctx).WithAll(metadatapkg.FromMessage(msg))
	delete(md, metadatapkg.KeyType)
	if md.Get(metadatapkg.KeyCorrelationID) == "" {
		md[metadatapkg.KeyCorrelationID] = idspkg.New()
	}
	return metadatapkg.NewContext(ctx, md)
}
