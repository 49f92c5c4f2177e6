package runtime

import (
	"context"
	"fmt"
	"reflect"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	configpkg "github.com/drblury/dispatchflow/internal/runtime/config"
	errspkg "github.com/drblury/dispatchflow/internal/runtime/errors"
	loggingpkg "github.com/drblury/dispatchflow/internal/runtime/logging"
	metadatapkg "github.com/drblury/dispatchflow/internal/runtime/metadata"
)

// MediatorDependencies holds the optional collaborators of a Mediator.
type MediatorDependencies struct {
	// Behaviors are appended after the default chain. They wrap every
	// request type and are sorted together with resolver behaviors.
	Behaviors []BehaviorRegistration
	// DisableDefaultBehaviors skips DefaultBehaviors when true.
	DisableDefaultBehaviors bool
	// Hooks observe each dispatch. Zero hooks add no behavior.
	Hooks DispatchHooks
	// Metrics overrides the collectors registered when MetricsEnabled is set.
	Metrics *DispatchMetrics
}

// Mediator routes requests to their single handler through the behavior
// pipeline and broadcasts notifications to every registered handler. A
// Mediator is safe for concurrent use once constructed.
type Mediator struct {
	Conf   *configpkg.Config
	Logger loggingpkg.ServiceLogger

	resolver  Resolver
	cache     dispatchCache
	behaviors []*openBehavior
	hooks     DispatchHooks
	metrics   *DispatchMetrics
	stats     *statsRegistry
}

// NewMediator is TryNewMediator that panics on error.
func NewMediator(conf *configpkg.Config, log loggingpkg.ServiceLogger, resolver Resolver, deps MediatorDependencies) *Mediator {
	m, err := TryNewMediator(conf, log, resolver, deps)
	if err != nil {
		panic(err)
	}
	return m
}

// TryNewMediator validates conf and builds a Mediator that resolves
// capabilities through resolver.
func TryNewMediator(conf *configpkg.Config, log loggingpkg.ServiceLogger, resolver Resolver, deps MediatorDependencies) (*Mediator, error) {
	if conf == nil {
		return nil, errspkg.ErrConfigRequired
	}
	if log == nil {
		return nil, errspkg.ErrLoggerRequired
	}
	if isNil(resolver) {
		return nil, errspkg.ErrResolverRequired
	}
	if err := conf.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", errspkg.ErrConfiguration, err)
	}

	log.Info("Creating mediator", loggingpkg.LogFields{
		"service_name": conf.ServiceName,
		"config":       conf,
	})

	m := &Mediator{
		Conf:     conf,
		Logger:   log,
		resolver: resolver,
		hooks:    deps.Hooks,
		metrics:  deps.Metrics,
		stats:    newStatsRegistry(),
	}

	if m.metrics == nil && conf.MetricsEnabled {
		m.metrics = NewDispatchMetrics(conf.MetricsNamespace)
		if err := m.metrics.Register(prometheus.DefaultRegisterer); err != nil {
			return nil, fmt.Errorf("register dispatch metrics: %w", err)
		}
	}

	if err := m.registerConfiguredBehaviors(deps); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Mediator) registerConfiguredBehaviors(deps MediatorDependencies) error {
	var defaults []BehaviorRegistration
	if !deps.DisableDefaultBehaviors {
		defaults = DefaultBehaviors()
	} else if !deps.Hooks.IsZero() {
		defaults = []BehaviorRegistration{HooksBehavior(deps.Hooks)}
	}
	registrations := make([]BehaviorRegistration, 0, len(defaults)+len(deps.Behaviors))
	registrations = append(registrations, defaults...)
	registrations = append(registrations, deps.Behaviors...)

	for _, reg := range registrations {
		if err := m.addBehavior(reg); err != nil {
			name := reg.Name
			if name == "" {
				name = "anonymous_behavior"
			}
			return fmt.Errorf("register behavior %s: %w", name, err)
		}
	}
	return nil
}

// Send dispatches request to its handler through the pipeline and returns
// the handler's response, or the substitute response chosen by an
// exception handler.
func Send[TResponse any](ctx context.Context, m *Mediator, request Request[TResponse]) (TResponse, error) {
	var zero TResponse
	if m == nil {
		return zero, errspkg.ErrMediatorRequired
	}
	if isNil(request) {
		return zero, errspkg.NewArgumentError("request")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	requestType := reflect.TypeOf(request)
	start := time.Now()
	resp, recovered, err := dispatch(ctx, m, request, requestType)
	m.stats.record(requestType, time.Since(start), err, recovered)
	return resp, err
}

// SendAny is Send for callers that only hold an untyped value. The response
// is returned as its declared type boxed in any.
func (m *Mediator) SendAny(ctx context.Context, request any) (any, error) {
	if m == nil {
		return nil, errspkg.ErrMediatorRequired
	}
	if isNil(request) {
		return nil, errspkg.NewArgumentError("request")
	}
	declared, ok := request.(declaredRequest)
	if !ok {
		return nil, notARequest(request)
	}
	return declared.sendUntyped(ctx, m, request)
}

func dispatch[TResponse any](ctx context.Context, m *Mediator, request Request[TResponse], requestType reflect.Type) (TResponse, bool, error) {
	var zero TResponse

	token, err := m.cache.handlerToken(requestType, request)
	if err != nil {
		return zero, false, err
	}

	instance, err := m.resolver.ResolveOne(token)
	if err != nil {
		return zero, false, missingHandler(token, err)
	}
	handler, ok := instance.(requestHandlerLink[TResponse])
	if !ok {
		return zero, false, &errspkg.ConfigurationError{
			Reason:      fmt.Sprintf("resolved %T does not implement %s", instance, token),
			Capability:  token.String(),
			RequestType: typeName(requestType),
		}
	}

	links, err := loadPipeline(&m.cache, requestType, func() ([]behaviorLink[TResponse], error) {
		return buildPipeline[TResponse](m, requestType, token.Response)
	})
	if err != nil {
		return zero, false, err
	}

	resp, err := executePipeline(ctx, request, links, func(ctx context.Context) (TResponse, error) {
		return handler.handle(ctx, request)
	})
	if err == nil {
		return resp, false, nil
	}

	recoveredResp, recovered, err := recoverFailure(ctx, m, request, token, err)
	if recovered {
		if m.metrics != nil {
			m.metrics.ObserveRecovery(typeName(requestType))
		}
		return recoveredResp, true, nil
	}
	m.Logger.Error("Request failed", err, loggingpkg.LogFields{
		"request_type":   typeName(requestType),
		"correlation_id": metadatapkg.CorrelationID(ctx),
	})
	return recoveredResp, false, err
}

func missingHandler(token Token, cause error) error {
	return &errspkg.ConfigurationError{
		Reason:      fmt.Sprintf("handler of type %s not found for request %s", token, typeName(token.Request)),
		Capability:  token.String(),
		RequestType: typeName(token.Request),
		Err:         cause,
	}
}
