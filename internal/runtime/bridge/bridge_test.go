package bridge

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/wrapperspb"

	runtimepkg "github.com/drblury/dispatchflow/internal/runtime"
	configpkg "github.com/drblury/dispatchflow/internal/runtime/config"
	errspkg "github.com/drblury/dispatchflow/internal/runtime/errors"
	loggingpkg "github.com/drblury/dispatchflow/internal/runtime/logging"
	metadatapkg "github.com/drblury/dispatchflow/internal/runtime/metadata"
)

type greet struct {
	runtimepkg.Returns[string]
	Name string `json:"name"`
}

type greetProto struct {
	runtimepkg.Returns[*wrapperspb.StringValue]
	Name string `json:"name"`
}

type orderPlaced struct {
	runtimepkg.Event
	OrderID string `json:"order_id"`
}

func newMediator(t *testing.T, register func(r *runtimepkg.Registry)) *runtimepkg.Mediator {
	t.Helper()
	registry := runtimepkg.NewRegistry()
	register(registry)
	m, err := runtimepkg.TryNewMediator(&configpkg.Config{ServiceName: "bridge-test"}, loggingpkg.NopLogger(), registry, runtimepkg.MediatorDependencies{})
	require.NoError(t, err)
	return m
}

func newPubSub() *gochannel.GoChannel {
	return gochannel.NewGoChannel(gochannel.Config{}, loggingpkg.NewWatermillAdapter(loggingpkg.NopLogger()))
}

func receive(t *testing.T, messages <-chan *message.Message) *message.Message {
	t.Helper()
	select {
	case msg := <-messages:
		msg.Ack()
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
		return nil
	}
}

func TestNewForwarderValidation(t *testing.T) {
	pubSub := newPubSub()
	defer pubSub.Close()

	_, err := NewForwarder[orderPlaced](nil, "orders", nil)
	assert.ErrorIs(t, err, errspkg.ErrPublisherRequired)

	_, err = NewForwarder[orderPlaced](pubSub, "", nil)
	assert.ErrorIs(t, err, errspkg.ErrTopicRequired)

	forwarder, err := NewForwarder[orderPlaced](pubSub, "orders", nil)
	require.NoError(t, err)
	assert.IsType(t, JSONMarshaler{}, forwarder.marshaler)
}

func TestForwarderPublishesNotifications(t *testing.T) {
	pubSub := newPubSub()
	defer pubSub.Close()

	messages, err := pubSub.Subscribe(context.Background(), "orders")
	require.NoError(t, err)

	forwarder, err := NewForwarder[orderPlaced](pubSub, "orders", JSONMarshaler{})
	require.NoError(t, err)

	m := newMediator(t, func(r *runtimepkg.Registry) {
		require.NoError(t, runtimepkg.RegisterNotificationHandler[orderPlaced](r, forwarder))
	})

	ctx := metadatapkg.NewContext(context.Background(), metadatapkg.New(metadatapkg.KeyCorrelationID, "corr-1"))
	require.NoError(t, runtimepkg.Publish(ctx, m, orderPlaced{OrderID: "o-1"}))

	msg := receive(t, messages)
	assert.JSONEq(t, `{"order_id":"o-1"}`, string(msg.Payload))
	assert.Equal(t, "corr-1", msg.Metadata.Get(metadatapkg.KeyCorrelationID))
	assert.Equal(t, "bridge.orderPlaced", msg.Metadata.Get(metadatapkg.KeyType))
	assert.NotEmpty(t, msg.UUID)
}

func TestBuildRequestHandlerValidation(t *testing.T) {
	_, err := BuildRequestHandler[greet, string](nil, JSONMarshaler{})
	assert.ErrorIs(t, err, errspkg.ErrMediatorRequired)

	m := newMediator(t, func(*runtimepkg.Registry) {})
	_, err = BuildRequestHandler[greet, string](m, nil)
	assert.ErrorIs(t, err, errspkg.ErrMarshalerRequired)

	_, err = BuildNotificationHandler[orderPlaced](nil, JSONMarshaler{})
	assert.ErrorIs(t, err, errspkg.ErrMediatorRequired)
}

func TestBuildRequestHandlerDispatches(t *testing.T) {
	var seenCorrelation string
	m := newMediator(t, func(r *runtimepkg.Registry) {
		require.NoError(t, runtimepkg.RegisterHandlerFunc(r, func(ctx context.Context, req greet) (string, error) {
			seenCorrelation = metadatapkg.CorrelationID(ctx)
			return "hello " + req.Name, nil
		}))
	})

	handler, err := BuildRequestHandler[greet, string](m, JSONMarshaler{})
	require.NoError(t, err)

	in := message.NewMessage("in-1", []byte(`{"name":"ada"}`))
	in.Metadata.Set(metadatapkg.KeyCorrelationID, "corr-42")

	out, err := handler(in)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.JSONEq(t, `"hello ada"`, string(out[0].Payload))
	assert.Equal(t, "corr-42", seenCorrelation)
	assert.Equal(t, "corr-42", out[0].Metadata.Get(metadatapkg.KeyCorrelationID))
	assert.Equal(t, "string", out[0].Metadata.Get(metadatapkg.KeyType))
}

func TestBuildRequestHandlerAssignsCorrelationID(t *testing.T) {
	m := newMediator(t, func(r *runtimepkg.Registry) {
		require.NoError(t, runtimepkg.RegisterHandlerFunc(r, func(_ context.Context, req greet) (string, error) {
			return req.Name, nil
		}))
	})
	handler, err := BuildRequestHandler[greet, string](m, JSONMarshaler{})
	require.NoError(t, err)

	out, err := handler(message.NewMessage("in-1", []byte(`{"name":"ada"}`)))
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.NotEmpty(t, out[0].Metadata.Get(metadatapkg.KeyCorrelationID))
}

func TestBuildRequestHandlerErrors(t *testing.T) {
	boom := errors.New("boom")
	m := newMediator(t, func(r *runtimepkg.Registry) {
		require.NoError(t, runtimepkg.RegisterHandlerFunc(r, func(context.Context, greet) (string, error) {
			return "", boom
		}))
	})
	handler, err := BuildRequestHandler[greet, string](m, JSONMarshaler{})
	require.NoError(t, err)

	_, err = handler(message.NewMessage("bad", []byte(`{`)))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to decode")

	_, err = handler(message.NewMessage("ok", []byte(`{"name":"ada"}`)))
	assert.ErrorIs(t, err, boom)
}

func TestBuildRequestHandlerProtoResponse(t *testing.T) {
	m := newMediator(t, func(r *runtimepkg.Registry) {
		require.NoError(t, runtimepkg.RegisterHandlerFunc(r, func(_ context.Context, req greetProto) (*wrapperspb.StringValue, error) {
			return wrapperspb.String("hello " + req.Name), nil
		}))
	})

	handler, err := BuildRequestHandler[greetProto, *wrapperspb.StringValue](m, JSONMarshaler{}, WithResponseMarshaler(ProtoJSONMarshaler{}))
	require.NoError(t, err)

	out, err := handler(message.NewMessage("in", []byte(`{"name":"bob"}`)))
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.JSONEq(t, `"hello bob"`, string(out[0].Payload))
}

func TestBuildNotificationHandler(t *testing.T) {
	received := make(chan string, 1)
	m := newMediator(t, func(r *runtimepkg.Registry) {
		require.NoError(t, runtimepkg.RegisterNotificationHandlerFunc(r, func(_ context.Context, n orderPlaced) error {
			received <- n.OrderID
			return nil
		}))
	})

	handler, err := BuildNotificationHandler[orderPlaced](m, JSONMarshaler{})
	require.NoError(t, err)
	require.NoError(t, handler(message.NewMessage("n-1", []byte(`{"order_id":"o-9"}`))))
	assert.Equal(t, "o-9", <-received)
}

func TestBuildNotificationHandlerReportsFailures(t *testing.T) {
	m := newMediator(t, func(r *runtimepkg.Registry) {
		require.NoError(t, runtimepkg.RegisterNotificationHandlerFunc(r, func(context.Context, orderPlaced) error {
			return errors.New("projection down")
		}))
	})

	handler, err := BuildNotificationHandler[orderPlaced](m, JSONMarshaler{})
	require.NoError(t, err)

	err = handler(message.NewMessage("n-1", []byte(`{"order_id":"o-9"}`)))
	var aggregate *errspkg.AggregateError
	require.ErrorAs(t, err, &aggregate)
	assert.Len(t, aggregate.Failures, 1)
}

func TestRouterRoundTrip(t *testing.T) {
	pubSub := newPubSub()
	defer pubSub.Close()

	m := newMediator(t, func(r *runtimepkg.Registry) {
		require.NoError(t, runtimepkg.RegisterHandlerFunc(r, func(_ context.Context, req greet) (string, error) {
			return strings.ToUpper(req.Name), nil
		}))
	})
	handler, err := BuildRequestHandler[greet, string](m, JSONMarshaler{})
	require.NoError(t, err)

	router, err := message.NewRouter(message.RouterConfig{}, loggingpkg.NewWatermillAdapter(loggingpkg.NopLogger()))
	require.NoError(t, err)
	router.AddHandler("greet", "greet.requests", pubSub, "greet.responses", pubSub, handler)

	responses, err := pubSub.Subscribe(context.Background(), "greet.responses")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = router.Run(ctx) }()
	<-router.Running()

	require.NoError(t, pubSub.Publish("greet.requests", message.NewMessage("req-1", []byte(`{"name":"grace"}`))))

	msg := receive(t, responses)
	assert.JSONEq(t, `"GRACE"`, string(msg.Payload))
}

func TestProtoJSONMarshalerRejectsPlainValues(t *testing.T) {
	_, err := ProtoJSONMarshaler{}.Marshal(struct{}{})
	assert.ErrorIs(t, err, ErrNotProtoMessage)

	var target struct{}
	assert.ErrorIs(t, ProtoJSONMarshaler{}.Unmarshal([]byte(`{}`), &target), ErrNotProtoMessage)
}

func TestDecodeAllocatesPointerTargets(t *testing.T) {
	value, err := decode[*wrapperspb.StringValue](ProtoJSONMarshaler{}, []byte(`"hi"`))
	require.NoError(t, err)
	assert.Equal(t, "hi", value.GetValue())

	plain, err := decode[greet](JSONMarshaler{}, []byte(`{"name":"x"}`))
	require.NoError(t, err)
	assert.Equal(t, "x", plain.Name)
}
