package runtime

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	metadatapkg "github.com/drblury/dispatchflow/internal/runtime/metadata"
)

func TestDispatchHooksMerge(t *testing.T) {
	var calls []string
	a := DispatchHooks{
		OnDispatchStart: func(DispatchContext) { calls = append(calls, "a-start") },
		OnDispatchError: func(DispatchContext, error) { calls = append(calls, "a-error") },
	}
	b := DispatchHooks{
		OnDispatchStart: func(DispatchContext) { calls = append(calls, "b-start") },
		OnDispatchDone:  func(DispatchContext) { calls = append(calls, "b-done") },
	}

	merged := a.Merge(b)
	merged.OnDispatchStart(DispatchContext{})
	merged.OnDispatchDone(DispatchContext{})
	merged.OnDispatchError(DispatchContext{}, errors.New("x"))

	assert.Equal(t, []string{"a-start", "b-start", "b-done", "a-error"}, calls)
	assert.True(t, DispatchHooks{}.IsZero())
	assert.True(t, DispatchHooks{}.Merge(DispatchHooks{}).IsZero())
	assert.False(t, merged.IsZero())
}

func TestHooksObserveDispatches(t *testing.T) {
	registry := NewRegistry()
	boom := errors.New("boom")
	require.NoError(t, RegisterHandlerFunc(registry, func(_ context.Context, req ping) (string, error) {
		if req.Msg == "fail" {
			return "", boom
		}
		return "ok", nil
	}))

	var (
		mu      sync.Mutex
		started []DispatchContext
		done    []DispatchContext
		failed  []error
	)
	hooks := DispatchHooks{
		OnDispatchStart: func(ctx DispatchContext) {
			mu.Lock()
			defer mu.Unlock()
			started = append(started, ctx)
		},
		OnDispatchDone: func(ctx DispatchContext) {
			mu.Lock()
			defer mu.Unlock()
			done = append(done, ctx)
		},
		OnDispatchError: func(_ DispatchContext, err error) {
			mu.Lock()
			defer mu.Unlock()
			failed = append(failed, err)
		},
	}
	m := newTestMediator(t, registry, MediatorDependencies{Hooks: hooks})

	ctx := metadatapkg.NewContext(context.Background(), metadatapkg.New(metadatapkg.KeyCorrelationID, "corr-7"))
	_, err := Send[string](ctx, m, ping{})
	require.NoError(t, err)
	_, err = Send[string](ctx, m, ping{Msg: "fail"})
	require.ErrorIs(t, err, boom)

	require.Len(t, started, 2)
	require.Len(t, done, 1)
	require.Len(t, failed, 1)
	assert.Equal(t, "runtime.ping", started[0].RequestType)
	assert.Equal(t, "corr-7", started[0].CorrelationID)
	assert.Equal(t, "corr-7", started[0].Metadata.Get(metadatapkg.KeyCorrelationID))
	assert.False(t, done[0].StartedAt.IsZero())
	assert.ErrorIs(t, failed[0], boom)
}

func TestHooksWithoutDefaultBehaviors(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, RegisterHandlerFunc(registry, echoHandler(nil)))

	var started, doneCount, failedCount int
	hooks := MetricsHooks(
		func(string) { started++ },
		func(string) { doneCount++ },
		func(string) { failedCount++ },
	)
	m := newTestMediator(t, registry, MediatorDependencies{DisableDefaultBehaviors: true, Hooks: hooks})
	assert.Equal(t, []string{"dispatch_hooks"}, behaviorNames(m))

	_, err := Send[string](context.Background(), m, ping{})
	require.NoError(t, err)
	assert.Equal(t, 1, started)
	assert.Equal(t, 1, doneCount)
	assert.Zero(t, failedCount)
}

func TestHooksBehaviorRegistration(t *testing.T) {
	reg := HooksBehavior(DispatchHooks{})
	behavior, err := reg.Builder(nil)
	require.NoError(t, err)
	assert.Nil(t, behavior)

	var alerts []string
	reg = HooksBehavior(AlertingHooks(func(ctx DispatchContext, err error) {
		alerts = append(alerts, ctx.RequestType+": "+err.Error())
	}))
	assert.Equal(t, OrderHooks, reg.Order)

	registry := NewRegistry()
	require.NoError(t, RegisterHandlerFunc(registry, func(context.Context, ping) (string, error) {
		return "", errors.New("paged")
	}))
	m := newTestMediator(t, registry, MediatorDependencies{Behaviors: []BehaviorRegistration{reg}})

	_, err = Send[string](context.Background(), m, ping{})
	require.Error(t, err)
	assert.Equal(t, []string{"runtime.ping: paged"}, alerts)
}

func TestLoggingHooks(t *testing.T) {
	logger := &recordingLogger{}
	hooks := LoggingHooks(logger)

	hooks.OnDispatchStart(DispatchContext{RequestType: "runtime.ping", CorrelationID: "c"})
	hooks.OnDispatchDone(DispatchContext{RequestType: "runtime.ping"})
	hooks.OnDispatchError(DispatchContext{RequestType: "runtime.ping"}, errors.New("x"))

	start, ok := logger.find("Dispatch started")
	require.True(t, ok)
	assert.Equal(t, "c", start.fields["correlation_id"])
	_, ok = logger.find("Dispatch completed")
	assert.True(t, ok)
	failed, ok := logger.find("Dispatch failed")
	require.True(t, ok)
	assert.Equal(t, "error", failed.level)
}
