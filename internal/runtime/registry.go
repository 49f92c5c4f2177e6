package runtime

import (
	"context"
	"fmt"
	"reflect"
	"slices"
	"sort"
	"sync"

	errspkg "github.com/drblury/dispatchflow/internal/runtime/errors"
)

// RegistrationOption customises a single registration.
type RegistrationOption func(*registrationOptions)

type registrationOptions struct {
	order   int
	ordered bool
	name    string
}

// WithOrder pins a behavior's pipeline position, overriding Ordered.
func WithOrder(order int) RegistrationOption {
	return func(o *registrationOptions) {
		o.order = order
		o.ordered = true
	}
}

// WithName labels a handler in logs, metrics and AggregateError failures.
func WithName(name string) RegistrationOption {
	return func(o *registrationOptions) {
		o.name = name
	}
}

func applyRegistrationOptions(inner any, opts []RegistrationOption) registrationOptions {
	var o registrationOptions
	if ordered, ok := inner.(Ordered); ok {
		o.order = ordered.PipelineOrder()
		o.ordered = true
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if o.name == "" {
		o.name = fmt.Sprintf("%T", inner)
	}
	return o
}

// Entry is a prepared registration. Custom Resolver implementations store
// entries built by the New*Entry constructors and hand back Entry.Instance.
type Entry struct {
	Token    Token
	Instance any
}

type registeredEntry struct {
	seq      uint64
	instance any
}

// Registry is the default in-memory Resolver. Registration and resolution
// are safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	seq     uint64
	entries map[Token][]registeredEntry
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[Token][]registeredEntry)}
}

// Add stores prepared entries in order.
func (r *Registry) Add(entries ...Entry) error {
	if r == nil {
		return errspkg.ErrRegistryRequired
	}
	for _, entry := range entries {
		if isNil(entry.Instance) {
			return errspkg.ErrHandlerRequired
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.entries == nil {
		r.entries = make(map[Token][]registeredEntry)
	}
	for _, entry := range entries {
		r.seq++
		r.entries[entry.Token] = append(r.entries[entry.Token], registeredEntry{seq: r.seq, instance: entry.Instance})
	}
	return nil
}

// ResolveOne returns the most recent registration for token.
func (r *Registry) ResolveOne(token Token) (any, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	registered := r.entries[token]
	if len(registered) == 0 {
		return nil, &errspkg.ConfigurationError{
			Reason:      fmt.Sprintf("%s is not registered", token),
			Capability:  token.String(),
			RequestType: typeName(token.Request),
			Err:         errspkg.ErrNotRegistered,
		}
	}
	return registered[len(registered)-1].instance, nil
}

// ResolveAll returns every registration for token in registration order.
// Pipeline behavior tokens also receive the open behaviors, interleaved by
// registration order.
func (r *Registry) ResolveAll(token Token) []any {
	r.mu.RLock()
	defer r.mu.RUnlock()

	registered := r.entries[token]
	if token.Kind == KindPipelineBehavior {
		open := r.entries[openBehaviorToken()]
		if len(open) > 0 {
			registered = append(slices.Clone(registered), open...)
			sort.Slice(registered, func(i, j int) bool { return registered[i].seq < registered[j].seq })
		}
	}

	out := make([]any, 0, len(registered))
	for _, entry := range registered {
		out = append(out, entry.instance)
	}
	return out
}

// Tokens lists every registered token sorted by name.
func (r *Registry) Tokens() []Token {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tokens := make([]Token, 0, len(r.entries))
	for token := range r.entries {
		tokens = append(tokens, token)
	}
	sort.Slice(tokens, func(i, j int) bool { return tokens[i].String() < tokens[j].String() })
	return tokens
}

// NewHandlerEntry prepares a request handler registration.
func NewHandlerEntry[TRequest Request[TResponse], TResponse any](handler RequestHandler[TRequest, TResponse], opts ...RegistrationOption) (Entry, error) {
	if isNil(handler) {
		return Entry{}, errspkg.ErrHandlerRequired
	}
	o := applyRegistrationOptions(handler, opts)
	return Entry{
		Token:    handlerToken(reflect.TypeFor[TRequest](), reflect.TypeFor[TResponse]()),
		Instance: &handlerAdapter[TRequest, TResponse]{inner: handler, name: o.name},
	}, nil
}

// NewBehaviorEntry prepares a closed pipeline behavior registration.
func NewBehaviorEntry[TRequest Request[TResponse], TResponse any](behavior PipelineBehavior[TRequest, TResponse], opts ...RegistrationOption) (Entry, error) {
	if isNil(behavior) {
		return Entry{}, errspkg.ErrBehaviorRequired
	}
	o := applyRegistrationOptions(behavior, opts)
	return Entry{
		Token:    behaviorToken(reflect.TypeFor[TRequest](), reflect.TypeFor[TResponse]()),
		Instance: &behaviorAdapter[TRequest, TResponse]{inner: behavior, opts: o},
	}, nil
}

// NewOpenBehaviorEntry prepares a behavior that applies to every request type.
func NewOpenBehaviorEntry(behavior Behavior, opts ...RegistrationOption) (Entry, error) {
	if isNil(behavior) {
		return Entry{}, errspkg.ErrBehaviorRequired
	}
	return Entry{
		Token:    openBehaviorToken(),
		Instance: &openBehavior{inner: behavior, opts: applyRegistrationOptions(behavior, opts)},
	}, nil
}

// NewExceptionHandlerEntry prepares an exception handler registration.
func NewExceptionHandlerEntry[TRequest Request[TResponse], TResponse any, TErr error](handler ExceptionHandler[TRequest, TResponse, TErr], opts ...RegistrationOption) (Entry, error) {
	if isNil(handler) {
		return Entry{}, errspkg.ErrHandlerRequired
	}
	o := applyRegistrationOptions(handler, opts)
	return Entry{
		Token:    exceptionToken(reflect.TypeFor[TRequest](), reflect.TypeFor[TResponse](), reflect.TypeFor[TErr]()),
		Instance: &exceptionAdapter[TRequest, TResponse, TErr]{inner: handler, name: o.name},
	}, nil
}

// NewNotificationHandlerEntry prepares a notification handler registration.
func NewNotificationHandlerEntry[TNotification Notification](handler NotificationHandler[TNotification], opts ...RegistrationOption) (Entry, error) {
	if isNil(handler) {
		return Entry{}, errspkg.ErrHandlerRequired
	}
	o := applyRegistrationOptions(handler, opts)
	return Entry{
		Token:    notificationToken(reflect.TypeFor[TNotification]()),
		Instance: &notificationAdapter[TNotification]{inner: handler, name: o.name},
	}, nil
}

// RegisterHandler registers the handler for TRequest. A later registration
// for the same request type replaces the earlier one.
func RegisterHandler[TRequest Request[TResponse], TResponse any](r *Registry, handler RequestHandler[TRequest, TResponse], opts ...RegistrationOption) error {
	if r == nil {
		return errspkg.ErrRegistryRequired
	}
	entry, err := NewHandlerEntry(handler, opts...)
	if err != nil {
		return err
	}
	return r.Add(entry)
}

// RegisterHandlerFunc is RegisterHandler for plain functions.
func RegisterHandlerFunc[TRequest Request[TResponse], TResponse any](r *Registry, fn func(ctx context.Context, request TRequest) (TResponse, error), opts ...RegistrationOption) error {
	if fn == nil {
		return errspkg.ErrHandlerRequired
	}
	return RegisterHandler[TRequest, TResponse](r, RequestHandlerFunc[TRequest, TResponse](fn), opts...)
}

// RegisterBehavior adds a behavior that wraps TRequest only.
func RegisterBehavior[TRequest Request[TResponse], TResponse any](r *Registry, behavior PipelineBehavior[TRequest, TResponse], opts ...RegistrationOption) error {
	if r == nil {
		return errspkg.ErrRegistryRequired
	}
	entry, err := NewBehaviorEntry(behavior, opts...)
	if err != nil {
		return err
	}
	return r.Add(entry)
}

// RegisterBehaviorFunc is RegisterBehavior for plain functions.
func RegisterBehaviorFunc[TRequest Request[TResponse], TResponse any](r *Registry, fn func(ctx context.Context, request TRequest, next Next[TResponse]) (TResponse, error), opts ...RegistrationOption) error {
	if fn == nil {
		return errspkg.ErrBehaviorRequired
	}
	return RegisterBehavior[TRequest, TResponse](r, PipelineBehaviorFunc[TRequest, TResponse](fn), opts...)
}

// RegisterOpenBehavior adds a behavior that wraps every request type.
func RegisterOpenBehavior(r *Registry, behavior Behavior, opts ...RegistrationOption) error {
	if r == nil {
		return errspkg.ErrRegistryRequired
	}
	entry, err := NewOpenBehaviorEntry(behavior, opts...)
	if err != nil {
		return err
	}
	return r.Add(entry)
}

// RegisterExceptionHandler adds a recovery candidate for failures of
// TRequest whose concrete error type is TErr.
func RegisterExceptionHandler[TRequest Request[TResponse], TResponse any, TErr error](r *Registry, handler ExceptionHandler[TRequest, TResponse, TErr], opts ...RegistrationOption) error {
	if r == nil {
		return errspkg.ErrRegistryRequired
	}
	entry, err := NewExceptionHandlerEntry(handler, opts...)
	if err != nil {
		return err
	}
	return r.Add(entry)
}

// RegisterExceptionHandlerFunc is RegisterExceptionHandler for plain functions.
func RegisterExceptionHandlerFunc[TRequest Request[TResponse], TResponse any, TErr error](r *Registry, fn func(ctx context.Context, request TRequest, err TErr, state *RecoveryState[TResponse]) error, opts ...RegistrationOption) error {
	if fn == nil {
		return errspkg.ErrHandlerRequired
	}
	return RegisterExceptionHandler[TRequest, TResponse, TErr](r, ExceptionHandlerFunc[TRequest, TResponse, TErr](fn), opts...)
}

// RegisterNotificationHandler adds a handler for TNotification. Every
// registered handler receives each published notification.
func RegisterNotificationHandler[TNotification Notification](r *Registry, handler NotificationHandler[TNotification], opts ...RegistrationOption) error {
	if r == nil {
		return errspkg.ErrRegistryRequired
	}
	entry, err := NewNotificationHandlerEntry(handler, opts...)
	if err != nil {
		return err
	}
	return r.Add(entry)
}

// RegisterNotificationHandlerFunc is RegisterNotificationHandler for plain functions.
func RegisterNotificationHandlerFunc[TNotification Notification](r *Registry, fn func(ctx context.Context, notification TNotification) error, opts ...RegistrationOption) error {
	if fn == nil {
		return errspkg.ErrHandlerRequired
	}
	return RegisterNotificationHandler[TNotification](r, NotificationHandlerFunc[TNotification](fn), opts...)
}

// The adapters below erase the request type parameter so the dispatch path
// only needs the response type.

type handlerAdapter[TRequest Request[TResponse], TResponse any] struct {
	inner RequestHandler[TRequest, TResponse]
	name  string
}

func (a *handlerAdapter[TRequest, TResponse]) handle(ctx context.Context, request Request[TResponse]) (TResponse, error) {
	typed, ok := request.(TRequest)
	if !ok {
		var zero TResponse
		return zero, mismatchedRequest(request, a.name)
	}
	return a.inner.Handle(ctx, typed)
}

type behaviorAdapter[TRequest Request[TResponse], TResponse any] struct {
	inner PipelineBehavior[TRequest, TResponse]
	opts  registrationOptions
}

func (a *behaviorAdapter[TRequest, TResponse]) handle(ctx context.Context, request Request[TResponse], next Next[TResponse]) (TResponse, error) {
	typed, ok := request.(TRequest)
	if !ok {
		var zero TResponse
		return zero, mismatchedRequest(request, a.opts.name)
	}
	return a.inner.Handle(ctx, typed, next)
}

func (a *behaviorAdapter[TRequest, TResponse]) pipelineOrder() (int, bool) {
	return a.opts.order, a.opts.ordered
}

type openBehavior struct {
	inner Behavior
	opts  registrationOptions
}

func (b *openBehavior) pipelineOrder() (int, bool) {
	return b.opts.order, b.opts.ordered
}

type exceptionAdapter[TRequest Request[TResponse], TResponse any, TErr error] struct {
	inner ExceptionHandler[TRequest, TResponse, TErr]
	name  string
}

func (a *exceptionAdapter[TRequest, TResponse, TErr]) handleFailure(ctx context.Context, request Request[TResponse], err error, state *RecoveryState[TResponse]) (bool, error) {
	typedRequest, ok := request.(TRequest)
	if !ok {
		return false, nil
	}
	typedErr, ok := err.(TErr)
	if !ok {
		return false, nil
	}
	return true, a.inner.Handle(ctx, typedRequest, typedErr, state)
}

func (a *exceptionAdapter[TRequest, TResponse, TErr]) handlerName() string {
	return a.name
}

type notificationAdapter[TNotification Notification] struct {
	inner NotificationHandler[TNotification]
	name  string
}

func (a *notificationAdapter[TNotification]) invoke(ctx context.Context, notification Notification) error {
	typed, ok := notification.(TNotification)
	if !ok {
		return mismatchedRequest(notification, a.name)
	}
	return a.inner.Handle(ctx, typed)
}

func (a *notificationAdapter[TNotification]) handlerName() string {
	return a.name
}

func mismatchedRequest(request any, handler string) error {
	return &errspkg.ConfigurationError{
		Reason:      fmt.Sprintf("%s cannot handle %T", handler, request),
		Capability:  handler,
		RequestType: fmt.Sprintf("%T", request),
	}
}
