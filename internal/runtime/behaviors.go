package runtime

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	configpkg "github.com/drblury/dispatchflow/internal/runtime/config"
	errspkg "github.com/drblury/dispatchflow/internal/runtime/errors"
	idspkg "github.com/drblury/dispatchflow/internal/runtime/ids"
	"github.com/drblury/dispatchflow/internal/runtime/jsoncodec"
	loggingpkg "github.com/drblury/dispatchflow/internal/runtime/logging"
	metadatapkg "github.com/drblury/dispatchflow/internal/runtime/metadata"
)

// Pipeline positions of the built-in behaviors. Lower runs first.
const (
	OrderCorrelationID  = -500
	OrderTracer         = -400
	OrderValidation     = -350
	OrderLogRequests    = -300
	OrderHooks          = -250
	OrderMetrics        = -200
	OrderCircuitBreaker = -150
	OrderRecoverer      = -100
	OrderRetry          = -50
	OrderTimeout        = -25
)

const tracerName = "github.com/drblury/dispatchflow"

// BehaviorBuilder constructs a behavior from the mediator being built.
// Returning a nil Behavior skips the registration.
type BehaviorBuilder func(*Mediator) (Behavior, error)

// BehaviorRegistration describes a mediator-level behavior. Either Behavior
// or Builder must be set.
type BehaviorRegistration struct {
	Name     string
	Order    int
	Behavior Behavior
	Builder  BehaviorBuilder
}

// RetryBehaviorConfig customises the retry behavior. Zero fields fall back
// to the mediator configuration, then to library defaults.
type RetryBehaviorConfig struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	RetryIf         func(error) bool
}

func (cfg RetryBehaviorConfig) withDefaults(conf *configpkg.Config) RetryBehaviorConfig {
	if conf != nil {
		if cfg.MaxRetries <= 0 {
			cfg.MaxRetries = conf.RetryMaxRetries
		}
		if cfg.InitialInterval <= 0 {
			cfg.InitialInterval = conf.RetryInitialInterval
		}
		if cfg.MaxInterval <= 0 {
			cfg.MaxInterval = conf.RetryMaxInterval
		}
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = 50 * time.Millisecond
	}
	if cfg.MaxInterval <= 0 {
		cfg.MaxInterval = time.Second
	}
	if cfg.MaxInterval < cfg.InitialInterval {
		cfg.MaxInterval = cfg.InitialInterval
	}
	return cfg
}

func (cfg RetryBehaviorConfig) shouldRetry(err error) bool {
	if errspkg.IsPermanent(err) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if cfg.RetryIf != nil {
		return cfg.RetryIf(err)
	}
	return true
}

// BreakerConfig customises the circuit breaker behavior. Zero fields fall
// back to the mediator configuration, then to library defaults.
type BreakerConfig struct {
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold uint32
}

func (cfg BreakerConfig) withDefaults(conf *configpkg.Config) BreakerConfig {
	if conf != nil {
		if cfg.MaxRequests == 0 {
			cfg.MaxRequests = conf.BreakerMaxRequests
		}
		if cfg.Interval <= 0 {
			cfg.Interval = conf.BreakerInterval
		}
		if cfg.Timeout <= 0 {
			cfg.Timeout = conf.BreakerTimeout
		}
		if cfg.FailureThreshold == 0 {
			cfg.FailureThreshold = conf.BreakerFailureThreshold
		}
	}
	if cfg.MaxRequests == 0 {
		cfg.MaxRequests = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}
	return cfg
}

// DefaultBehaviors returns the chain installed by TryNewMediator unless
// MediatorDependencies.DisableDefaultBehaviors is set.
func DefaultBehaviors() []BehaviorRegistration {
	return []BehaviorRegistration{
		CorrelationIDBehavior(),
		TracerBehavior(),
		LogRequestsBehavior(nil),
		configuredHooksBehavior(),
		MetricsBehavior(),
		RecovererBehavior(),
	}
}

// CorrelationIDBehavior stores a fresh correlation ID in the context
// metadata unless the caller already supplied one.
func CorrelationIDBehavior() BehaviorRegistration {
	return BehaviorRegistration{
		Name:     "correlation_id",
		Order:    OrderCorrelationID,
		Behavior: BehaviorFunc(correlationID),
	}
}

func correlationID(ctx context.Context, request any, next Next[any]) (any, error) {
	if metadatapkg.CorrelationID(ctx) == "" {
		md := metadatapkg.FromContext(ctx).With(metadatapkg.KeyCorrelationID, idspkg.New())
		ctx = metadatapkg.NewContext(ctx, md)
	}
	return next(ctx)
}

// TracerBehavior wraps each dispatch in an OpenTelemetry span when
// TracingEnabled is set.
func TracerBehavior() BehaviorRegistration {
	return BehaviorRegistration{
		Name:  "tracer",
		Order: OrderTracer,
		Builder: func(m *Mediator) (Behavior, error) {
			if !m.Conf.TracingEnabled {
				return nil, nil
			}
			return m.tracerBehavior(otel.Tracer(tracerName)), nil
		},
	}
}

func (m *Mediator) tracerBehavior(tracer trace.Tracer) Behavior {
	return BehaviorFunc(func(ctx context.Context, request any, next Next[any]) (any, error) {
		ctx, span := tracer.Start(ctx, "dispatchflow.Send",
			trace.WithSpanKind(trace.SpanKindInternal),
			trace.WithAttributes(
				attribute.String("dispatchflow.request_type", fmt.Sprintf("%T", request)),
				attribute.String("dispatchflow.service", m.Conf.ServiceName),
			),
		)
		defer span.End()

		if id := metadatapkg.CorrelationID(ctx); id != "" {
			span.SetAttributes(attribute.String("dispatchflow.correlation_id", id))
		}

		resp, err := next(ctx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		return resp, err
	})
}

// LogRequestsBehavior logs every dispatch and pipeline failure at debug
// level. Failures left unrecovered by exception handlers are logged at error
// level by the mediator. A nil logger uses the mediator's.
func LogRequestsBehavior(logger loggingpkg.ServiceLogger) BehaviorRegistration {
	return BehaviorRegistration{
		Name:  "log_requests",
		Order: OrderLogRequests,
		Builder: func(m *Mediator) (Behavior, error) {
			l := logger
			if l == nil {
				l = m.Logger
			}
			if l == nil {
				return nil, errors.New("log requests behavior requires a logger")
			}
			return m.logRequestsBehavior(l), nil
		},
	}
}

func (m *Mediator) logRequestsBehavior(logger loggingpkg.ServiceLogger) Behavior {
	return BehaviorFunc(func(ctx context.Context, request any, next Next[any]) (any, error) {
		requestType := fmt.Sprintf("%T", request)
		fields := loggingpkg.LogFields{
			"request_type":   requestType,
			"correlation_id": metadatapkg.CorrelationID(ctx),
		}
		if m.Conf.LogPayloads {
			fields["payload"] = jsoncodec.MarshalString(request)
		}
		logger.Debug("Dispatching request", fields)

		start := time.Now()
		resp, err := next(ctx)
		done := loggingpkg.LogFields{
			"request_type":   requestType,
			"correlation_id": fields["correlation_id"],
			"duration_ms":    time.Since(start).Milliseconds(),
		}
		if err != nil {
			done["error"] = err.Error()
			logger.Debug("Request pipeline failed", done)
		} else {
			logger.Debug("Request handled", done)
		}
		return resp, err
	})
}

// MetricsBehavior records request counters and latencies when the mediator
// has DispatchMetrics.
func MetricsBehavior() BehaviorRegistration {
	return BehaviorRegistration{
		Name:  "metrics",
		Order: OrderMetrics,
		Builder: func(m *Mediator) (Behavior, error) {
			if m.metrics == nil {
				return nil, nil
			}
			metrics := m.metrics
			return BehaviorFunc(func(ctx context.Context, request any, next Next[any]) (any, error) {
				start := time.Now()
				resp, err := next(ctx)
				metrics.ObserveRequest(fmt.Sprintf("%T", request), time.Since(start), err)
				return resp, err
			}), nil
		},
	}
}

// RecovererBehavior converts panics raised further down the pipeline into
// *errors.PanicError so they reach exception handlers as ordinary failures.
func RecovererBehavior() BehaviorRegistration {
	return BehaviorRegistration{
		Name:     "recoverer",
		Order:    OrderRecoverer,
		Behavior: BehaviorFunc(recoverPanics),
	}
}

func recoverPanics(ctx context.Context, request any, next Next[any]) (resp any, err error) {
	defer func() {
		if r := recover(); r != nil {
			resp = nil
			err = &errspkg.PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return next(ctx)
}

// RetryBehavior re-runs the rest of the pipeline with exponential backoff.
// Argument, configuration, validation and context errors are never retried.
func RetryBehavior(cfg RetryBehaviorConfig) BehaviorRegistration {
	return BehaviorRegistration{
		Name:  "retry",
		Order: OrderRetry,
		Builder: func(m *Mediator) (Behavior, error) {
			return m.retryBehavior(cfg.withDefaults(m.Conf)), nil
		},
	}
}

func (m *Mediator) retryBehavior(cfg RetryBehaviorConfig) Behavior {
	return BehaviorFunc(func(ctx context.Context, request any, next Next[any]) (any, error) {
		policy := backoff.NewExponentialBackOff()
		policy.InitialInterval = cfg.InitialInterval
		policy.MaxInterval = cfg.MaxInterval

		operation := func() (any, error) {
			resp, err := next(ctx)
			if err != nil && !cfg.shouldRetry(err) {
				return resp, backoff.Permanent(err)
			}
			return resp, err
		}
		notify := func(err error, wait time.Duration) {
			m.Logger.Debug("Retrying request", loggingpkg.LogFields{
				"request_type": fmt.Sprintf("%T", request),
				"error":        err.Error(),
				"wait_ms":      wait.Milliseconds(),
			})
		}

		return backoff.Retry(ctx, operation,
			backoff.WithBackOff(policy),
			backoff.WithMaxTries(uint(cfg.MaxRetries)+1),
			backoff.WithNotify(notify),
		)
	})
}

// CircuitBreakerBehavior fails fast with gobreaker.ErrOpenState once a
// request type keeps failing. Each request type has its own breaker.
func CircuitBreakerBehavior(cfg BreakerConfig) BehaviorRegistration {
	return BehaviorRegistration{
		Name:  "circuit_breaker",
		Order: OrderCircuitBreaker,
		Builder: func(m *Mediator) (Behavior, error) {
			return &breakerBehavior{cfg: cfg.withDefaults(m.Conf), logger: m.Logger}, nil
		},
	}
}

type breakerBehavior struct {
	cfg      BreakerConfig
	logger   loggingpkg.ServiceLogger
	breakers sync.Map // request type name -> *gobreaker.CircuitBreaker
}

func (b *breakerBehavior) Handle(ctx context.Context, request any, next Next[any]) (any, error) {
	breaker := b.breakerFor(fmt.Sprintf("%T", request))
	return breaker.Execute(func() (interface{}, error) {
		return next(ctx)
	})
}

func (b *breakerBehavior) breakerFor(name string) *gobreaker.CircuitBreaker {
	if existing, ok := b.breakers.Load(name); ok {
		return existing.(*gobreaker.CircuitBreaker)
	}
	threshold := b.cfg.FailureThreshold
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: b.cfg.MaxRequests,
		Interval:    b.cfg.Interval,
		Timeout:     b.cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errspkg.IsPermanent(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			b.logger.Info("Circuit breaker state changed", loggingpkg.LogFields{
				"request_type": name,
				"from":         from.String(),
				"to":           to.String(),
			})
		},
	})
	actual, _ := b.breakers.LoadOrStore(name, breaker)
	return actual.(*gobreaker.CircuitBreaker)
}

// Validator is implemented by requests that can check themselves.
type Validator interface {
	Validate() error
}

// ValidationBehavior rejects requests whose Validate method fails with an
// *errors.ValidationError before the handler runs.
func ValidationBehavior() BehaviorRegistration {
	return BehaviorRegistration{
		Name:     "validation",
		Order:    OrderValidation,
		Behavior: BehaviorFunc(validateRequest),
	}
}

func validateRequest(ctx context.Context, request any, next Next[any]) (any, error) {
	if v, ok := request.(Validator); ok {
		if err := v.Validate(); err != nil {
			return nil, &errspkg.ValidationError{RequestType: fmt.Sprintf("%T", request), Err: err}
		}
	}
	return next(ctx)
}

// TimeoutBehavior bounds the rest of the pipeline with a deadline.
func TimeoutBehavior(timeout time.Duration) BehaviorRegistration {
	return BehaviorRegistration{
		Name:  "timeout",
		Order: OrderTimeout,
		Builder: func(*Mediator) (Behavior, error) {
			if timeout <= 0 {
				return nil, fmt.Errorf("timeout behavior requires a positive duration, got %s", timeout)
			}
			return BehaviorFunc(func(ctx context.Context, request any, next Next[any]) (any, error) {
				ctx, cancel := context.WithTimeout(ctx, timeout)
				defer cancel()
				return next(ctx)
			}), nil
		},
	}
}

func (m *Mediator) addBehavior(reg BehaviorRegistration) error {
	var behavior Behavior
	switch {
	case reg.Behavior != nil:
		behavior = reg.Behavior
	case reg.Builder != nil:
		var err error
		behavior, err = reg.Builder(m)
		if err != nil {
			return err
		}
	default:
		return errors.New("behavior registration requires Behavior or Builder")
	}

	if isNil(behavior) {
		return nil
	}

	name := reg.Name
	if name == "" {
		name = fmt.Sprintf("%T", behavior)
	}
	m.behaviors = append(m.behaviors, &openBehavior{
		inner: behavior,
		opts:  registrationOptions{order: reg.Order, ordered: true, name: name},
	})
	return nil
}
