package runtime

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	configpkg "github.com/drblury/dispatchflow/internal/runtime/config"
	loggingpkg "github.com/drblury/dispatchflow/internal/runtime/logging"
)

type ping struct {
	Returns[string]
	Msg string
}

type count struct {
	Returns[int]
	N int
}

type reset struct {
	Command
}

type pointerPing struct {
	Returns[string]
	Msg string
}

type notFoundError struct{ key string }

func (e *notFoundError) Error() string { return "not found: " + e.key }

type userCreated struct {
	Event
	ID string
}

type plainStruct struct{ Name string }

type countingResolver struct {
	inner *Registry

	one       atomic.Int64
	all       atomic.Int64
	pipelines atomic.Int64
}

func newCountingResolver() *countingResolver {
	return &countingResolver{inner: NewRegistry()}
}

func (r *countingResolver) ResolveOne(token Token) (any, error) {
	r.one.Add(1)
	return r.inner.ResolveOne(token)
}

func (r *countingResolver) ResolveAll(token Token) []any {
	r.all.Add(1)
	if token.Kind == KindPipelineBehavior {
		r.pipelines.Add(1)
	}
	return r.inner.ResolveAll(token)
}

func testConfig() *configpkg.Config {
	return &configpkg.Config{ServiceName: "dispatch-test"}
}

func newTestMediator(t *testing.T, resolver Resolver, deps MediatorDependencies) *Mediator {
	t.Helper()
	m, err := TryNewMediator(testConfig(), loggingpkg.NopLogger(), resolver, deps)
	require.NoError(t, err)
	return m
}

type traceLog struct {
	mu      sync.Mutex
	entries []string
}

func (l *traceLog) add(entry string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, entry)
}

func (l *traceLog) list() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.entries...)
}

func tracingBehavior(log *traceLog, name string) PipelineBehaviorFunc[ping, string] {
	return func(ctx context.Context, req ping, next Next[string]) (string, error) {
		log.add(name + ">")
		resp, err := next(ctx)
		log.add("<" + name)
		return resp, err
	}
}

func tracingOpenBehavior(log *traceLog, name string) BehaviorFunc {
	return func(ctx context.Context, request any, next Next[any]) (any, error) {
		log.add(name + ">")
		resp, err := next(ctx)
		log.add("<" + name)
		return resp, err
	}
}

func echoHandler(log *traceLog) func(context.Context, ping) (string, error) {
	return func(_ context.Context, req ping) (string, error) {
		if log != nil {
			log.add("H")
		}
		return "echo:" + req.Msg, nil
	}
}

type orderedBehavior struct {
	order int
	log   *traceLog
	name  string
}

func (b orderedBehavior) PipelineOrder() int { return b.order }

func (b orderedBehavior) Handle(ctx context.Context, request any, next Next[any]) (any, error) {
	return tracingOpenBehavior(b.log, b.name)(ctx, request, next)
}
