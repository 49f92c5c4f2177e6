package dispatchflow

import (
	"context"

	"github.com/ThreeDotsLabs/watermill/message"

	runtimepkg "github.com/drblury/dispatchflow/internal/runtime"
	bridgepkg "github.com/drblury/dispatchflow/internal/runtime/bridge"
	configpkg "github.com/drblury/dispatchflow/internal/runtime/config"
	errspkg "github.com/drblury/dispatchflow/internal/runtime/errors"
	idspkg "github.com/drblury/dispatchflow/internal/runtime/ids"
	jsoncodec "github.com/drblury/dispatchflow/internal/runtime/jsoncodec"
	loggingpkg "github.com/drblury/dispatchflow/internal/runtime/logging"
	metadatapkg "github.com/drblury/dispatchflow/internal/runtime/metadata"
)

type (
	Config               = configpkg.Config
	Mediator             = runtimepkg.Mediator
	MediatorDependencies = runtimepkg.MediatorDependencies
	Resolver             = runtimepkg.Resolver
	Registry             = runtimepkg.Registry
	Entry                = runtimepkg.Entry
	Token                = runtimepkg.Token
	Kind                 = runtimepkg.Kind
	RegistrationOption   = runtimepkg.RegistrationOption
	Unit                 = runtimepkg.Unit

	Request[TResponse any]                  = runtimepkg.Request[TResponse]
	Returns[TResponse any]                  = runtimepkg.Returns[TResponse]
	Command                                 = runtimepkg.Command
	Notification                            = runtimepkg.Notification
	Event                                   = runtimepkg.Event
	Next[TResponse any]                     = runtimepkg.Next[TResponse]
	RecoveryState[TResponse any]            = runtimepkg.RecoveryState[TResponse]
	Ordered                                 = runtimepkg.Ordered
	Behavior                                = runtimepkg.Behavior
	BehaviorFunc                            = runtimepkg.BehaviorFunc
	Validator                               = runtimepkg.Validator
	NotificationHandler[N Notification]     = runtimepkg.NotificationHandler[N]
	NotificationHandlerFunc[N Notification] = runtimepkg.NotificationHandlerFunc[N]

	RequestHandler[TRequest Request[TResponse], TResponse any]                   = runtimepkg.RequestHandler[TRequest, TResponse]
	RequestHandlerFunc[TRequest Request[TResponse], TResponse any]               = runtimepkg.RequestHandlerFunc[TRequest, TResponse]
	PipelineBehavior[TRequest Request[TResponse], TResponse any]                 = runtimepkg.PipelineBehavior[TRequest, TResponse]
	PipelineBehaviorFunc[TRequest Request[TResponse], TResponse any]             = runtimepkg.PipelineBehaviorFunc[TRequest, TResponse]
	ExceptionHandler[TRequest Request[TResponse], TResponse any, TErr error]     = runtimepkg.ExceptionHandler[TRequest, TResponse, TErr]
	ExceptionHandlerFunc[TRequest Request[TResponse], TResponse any, TErr error] = runtimepkg.ExceptionHandlerFunc[TRequest, TResponse, TErr]

	BehaviorBuilder      = runtimepkg.BehaviorBuilder
	BehaviorRegistration = runtimepkg.BehaviorRegistration
	RetryBehaviorConfig  = runtimepkg.RetryBehaviorConfig
	BreakerConfig        = runtimepkg.BreakerConfig

	DispatchContext = runtimepkg.DispatchContext
	DispatchHooks   = runtimepkg.DispatchHooks
	DispatchMetrics = runtimepkg.DispatchMetrics

	RequestStats      = runtimepkg.RequestStats
	LatencyMetrics    = runtimepkg.LatencyMetrics
	ThroughputMetrics = runtimepkg.ThroughputMetrics
	ErrorBreakdown    = runtimepkg.ErrorBreakdown

	Marshaler                 = bridgepkg.Marshaler
	JSONMarshaler             = bridgepkg.JSONMarshaler
	ProtoJSONMarshaler        = bridgepkg.ProtoJSONMarshaler
	BridgeOption              = bridgepkg.Option
	Forwarder[N Notification] = bridgepkg.Forwarder[N]

	Metadata = metadatapkg.Metadata

	LogFields     = loggingpkg.LogFields
	ServiceLogger = loggingpkg.ServiceLogger

	ArgumentError      = errspkg.ArgumentError
	ConfigurationError = errspkg.ConfigurationError
	HandlerError       = errspkg.HandlerError
	AggregateError     = errspkg.AggregateError
	PanicError         = errspkg.PanicError
	ValidationError    = errspkg.ValidationError
)

const (
	KindRequestHandler      = runtimepkg.KindRequestHandler
	KindPipelineBehavior    = runtimepkg.KindPipelineBehavior
	KindOpenBehavior        = runtimepkg.KindOpenBehavior
	KindExceptionHandler    = runtimepkg.KindExceptionHandler
	KindNotificationHandler = runtimepkg.KindNotificationHandler

	OrderCorrelationID  = runtimepkg.OrderCorrelationID
	OrderTracer         = runtimepkg.OrderTracer
	OrderValidation     = runtimepkg.OrderValidation
	OrderLogRequests    = runtimepkg.OrderLogRequests
	OrderHooks          = runtimepkg.OrderHooks
	OrderMetrics        = runtimepkg.OrderMetrics
	OrderCircuitBreaker = runtimepkg.OrderCircuitBreaker
	OrderRecoverer      = runtimepkg.OrderRecoverer
	OrderRetry          = runtimepkg.OrderRetry
	OrderTimeout        = runtimepkg.OrderTimeout

	MetadataKeyCorrelationID = metadatapkg.KeyCorrelationID
	MetadataKeyType          = metadatapkg.KeyType
)

var (
	NewMediator    = runtimepkg.NewMediator
	TryNewMediator = runtimepkg.TryNewMediator
	NewRegistry    = runtimepkg.NewRegistry

	ValidateConfig = configpkg.ValidateConfig
	LoadConfig     = configpkg.LoadYAML
	LoadConfigFile = configpkg.LoadFile

	WithOrder             = runtimepkg.WithOrder
	WithName              = runtimepkg.WithName
	RegisterOpenBehavior  = runtimepkg.RegisterOpenBehavior
	NewOpenBehaviorEntry  = runtimepkg.NewOpenBehaviorEntry
	NewDispatchMetrics    = runtimepkg.NewDispatchMetrics
	WithResponseMarshaler = bridgepkg.WithResponseMarshaler
	NewMessage            = bridgepkg.NewMessage
	ErrNotProtoMessage    = bridgepkg.ErrNotProtoMessage

	DefaultBehaviors       = runtimepkg.DefaultBehaviors
	CorrelationIDBehavior  = runtimepkg.CorrelationIDBehavior
	TracerBehavior         = runtimepkg.TracerBehavior
	LogRequestsBehavior    = runtimepkg.LogRequestsBehavior
	MetricsBehavior        = runtimepkg.MetricsBehavior
	RecovererBehavior      = runtimepkg.RecovererBehavior
	RetryBehavior          = runtimepkg.RetryBehavior
	CircuitBreakerBehavior = runtimepkg.CircuitBreakerBehavior
	ValidationBehavior     = runtimepkg.ValidationBehavior
	TimeoutBehavior        = runtimepkg.TimeoutBehavior

	HooksBehavior = runtimepkg.HooksBehavior
	LoggingHooks  = runtimepkg.LoggingHooks
	MetricsHooks  = runtimepkg.MetricsHooks
	AlertingHooks = runtimepkg.AlertingHooks

	Marshal       = jsoncodec.Marshal
	Unmarshal     = jsoncodec.Unmarshal
	Encode        = jsoncodec.Encode
	MarshalString = jsoncodec.MarshalString

	ErrInvalidArgument   = errspkg.ErrInvalidArgument
	ErrConfiguration     = errspkg.ErrConfiguration
	ErrNotRegistered     = errspkg.ErrNotRegistered
	ErrResponseType      = errspkg.ErrResponseType
	ErrMediatorRequired  = errspkg.ErrMediatorRequired
	ErrResolverRequired  = errspkg.ErrResolverRequired
	ErrRegistryRequired  = errspkg.ErrRegistryRequired
	ErrHandlerRequired   = errspkg.ErrHandlerRequired
	ErrBehaviorRequired  = errspkg.ErrBehaviorRequired
	ErrConfigRequired    = errspkg.ErrConfigRequired
	ErrLoggerRequired    = errspkg.ErrLoggerRequired
	ErrPublisherRequired = errspkg.ErrPublisherRequired
	ErrTopicRequired     = errspkg.ErrTopicRequired
	ErrMarshalerRequired = errspkg.ErrMarshalerRequired
	NewArgumentError     = errspkg.NewArgumentError
	IsPermanent          = errspkg.IsPermanent

	NewSlogServiceLogger      = loggingpkg.NewSlogServiceLogger
	NewWatermillServiceLogger = loggingpkg.NewWatermillServiceLogger
	NewWatermillAdapter       = loggingpkg.NewWatermillAdapter
	NopLogger                 = loggingpkg.NopLogger

	NewMetadata         = metadatapkg.New
	ContextWithMetadata = metadatapkg.NewContext
	MetadataFromContext = metadatapkg.FromContext
	CorrelationID       = metadatapkg.CorrelationID

	NewID       = idspkg.New
	IDCreatedAt = idspkg.CreatedAt
)

// Send dispatches request to its single handler through the behavior
// pipeline and returns the typed response.
func Send[TResponse any](ctx context.Context, m *Mediator, request Request[TResponse]) (TResponse, error) {
	return runtimepkg.Send(ctx, m, request)
}

// Publish delivers notification to every registered handler concurrently.
func Publish[TNotification Notification](ctx context.Context, m *Mediator, notification TNotification) error {
	return runtimepkg.Publish(ctx, m, notification)
}

func RegisterHandler[TRequest Request[TResponse], TResponse any](r *Registry, handler RequestHandler[TRequest, TResponse], opts ...RegistrationOption) error {
	return runtimepkg.RegisterHandler(r, handler, opts...)
}

func RegisterHandlerFunc[TRequest Request[TResponse], TResponse any](r *Registry, fn func(ctx context.Context, request TRequest) (TResponse, error), opts ...RegistrationOption) error {
	return runtimepkg.RegisterHandlerFunc(r, fn, opts...)
}

func RegisterBehavior[TRequest Request[TResponse], TResponse any](r *Registry, behavior PipelineBehavior[TRequest, TResponse], opts ...RegistrationOption) error {
	return runtimepkg.RegisterBehavior(r, behavior, opts...)
}

func RegisterBehaviorFunc[TRequest Request[TResponse], TResponse any](r *Registry, fn func(ctx context.Context, request TRequest, next Next[TResponse]) (TResponse, error), opts ...RegistrationOption) error {
	return runtimepkg.RegisterBehaviorFunc(r, fn, opts...)
}

func RegisterExceptionHandler[TRequest Request[TResponse], TResponse any, TErr error](r *Registry, handler ExceptionHandler[TRequest, TResponse, TErr], opts ...RegistrationOption) error {
	return runtimepkg.RegisterExceptionHandler(r, handler, opts...)
}

func RegisterExceptionHandlerFunc[TRequest Request[TResponse], TResponse any, TErr error](r *Registry, fn func(ctx context.Context, request TRequest, err TErr, state *RecoveryState[TResponse]) error, opts ...RegistrationOption) error {
	return runtimepkg.RegisterExceptionHandlerFunc(r, fn, opts...)
}

func RegisterNotificationHandler[TNotification Notification](r *Registry, handler NotificationHandler[TNotification], opts ...RegistrationOption) error {
	return runtimepkg.RegisterNotificationHandler(r, handler, opts...)
}

func RegisterNotificationHandlerFunc[TNotification Notification](r *Registry, fn func(ctx context.Context, notification TNotification) error, opts ...RegistrationOption) error {
	return runtimepkg.RegisterNotificationHandlerFunc(r, fn, opts...)
}

func NewHandlerEntry[TRequest Request[TResponse], TResponse any](handler RequestHandler[TRequest, TResponse], opts ...RegistrationOption) (Entry, error) {
	return runtimepkg.NewHandlerEntry(handler, opts...)
}

func NewBehaviorEntry[TRequest Request[TResponse], TResponse any](behavior PipelineBehavior[TRequest, TResponse], opts ...RegistrationOption) (Entry, error) {
	return runtimepkg.NewBehaviorEntry(behavior, opts...)
}

func NewExceptionHandlerEntry[TRequest Request[TResponse], TResponse any, TErr error](handler ExceptionHandler[TRequest, TResponse, TErr], opts ...RegistrationOption) (Entry, error) {
	return runtimepkg.NewExceptionHandlerEntry(handler, opts...)
}

func NewNotificationHandlerEntry[TNotification Notification](handler NotificationHandler[TNotification], opts ...RegistrationOption) (Entry, error) {
	return runtimepkg.NewNotificationHandlerEntry(handler, opts...)
}

// NewForwarder returns a notification handler that republishes every
// notification of type TNotification on topic.
func NewForwarder[TNotification Notification](publisher message.Publisher, topic string, marshaler Marshaler) (*Forwarder[TNotification], error) {
	return bridgepkg.NewForwarder[TNotification](publisher, topic, marshaler)
}

// BuildRequestHandler adapts Send to a Watermill handler.
func BuildRequestHandler[TRequest Request[TResponse], TResponse any](m *Mediator, marshaler Marshaler, opts ...BridgeOption) (message.HandlerFunc, error) {
	return bridgepkg.BuildRequestHandler[TRequest, TResponse](m, marshaler, opts...)
}

// BuildNotificationHandler adapts Publish to a Watermill consumer handler.
func BuildNotificationHandler[TNotification Notification](m *Mediator, marshaler Marshaler) (message.NoPublishHandlerFunc, error) {
	return bridgepkg.BuildNotificationHandler[TNotification](m, marshaler)
}
