package runtime

import (
	"context"
	"fmt"
	"reflect"
	"sort"

	errspkg "github.com/drblury/dispatchflow/internal/runtime/errors"
)

type requestHandlerLink[TResponse any] interface {
	handle(ctx context.Context, request Request[TResponse]) (TResponse, error)
}

type behaviorLink[TResponse any] interface {
	handle(ctx context.Context, request Request[TResponse], next Next[TResponse]) (TResponse, error)
}

type orderedEntry interface {
	pipelineOrder() (int, bool)
}

type candidateLink[TResponse any] struct {
	link    behaviorLink[TResponse]
	order   int
	ordered bool
}

// buildPipeline resolves the behaviors for one request type and sorts them
// outermost first. Ordered behaviors come before unordered ones; ties keep
// resolution order, with mediator-level behaviors after resolver ones.
func buildPipeline[TResponse any](m *Mediator, requestType, responseType reflect.Type) ([]behaviorLink[TResponse], error) {
	resolved := m.resolver.ResolveAll(behaviorToken(requestType, responseType))
	candidates := make([]candidateLink[TResponse], 0, len(resolved)+len(m.behaviors))

	for _, instance := range resolved {
		candidate, err := toCandidate[TResponse](instance, requestType)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, candidate)
	}
	for _, behavior := range m.behaviors {
		candidate, err := toCandidate[TResponse](behavior, requestType)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, candidate)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.ordered != b.ordered {
			return a.ordered
		}
		return a.ordered && a.order < b.order
	})

	links := make([]behaviorLink[TResponse], len(candidates))
	for i, candidate := range candidates {
		links[i] = candidate.link
	}
	return links, nil
}

func toCandidate[TResponse any](instance any, requestType reflect.Type) (candidateLink[TResponse], error) {
	var candidate candidateLink[TResponse]
	switch v := instance.(type) {
	case behaviorLink[TResponse]:
		candidate.link = v
	case *openBehavior:
		candidate.link = openLink[TResponse]{inner: v.inner}
	case Behavior:
		candidate.link = openLink[TResponse]{inner: v}
	default:
		return candidate, &errspkg.ConfigurationError{
			Reason:      fmt.Sprintf("resolved behavior %T cannot wrap request %s", instance, requestType),
			RequestType: typeName(requestType),
		}
	}

	if entry, ok := instance.(orderedEntry); ok {
		candidate.order, candidate.ordered = entry.pipelineOrder()
	} else if ordered, ok := instance.(Ordered); ok {
		candidate.order, candidate.ordered = ordered.PipelineOrder(), true
	}
	return candidate, nil
}

// openLink runs a type-agnostic Behavior inside a typed pipeline.
type openLink[TResponse any] struct {
	inner Behavior
}

func (l openLink[TResponse]) handle(ctx context.Context, request Request[TResponse], next Next[TResponse]) (TResponse, error) {
	out, err := l.inner.Handle(ctx, request, func(ctx context.Context) (any, error) {
		resp, err := next(ctx)
		return resp, err
	})
	if err != nil {
		var zero TResponse
		if typed, ok := out.(TResponse); ok {
			return typed, err
		}
		return zero, err
	}
	return castResponse[TResponse](out)
}

func castResponse[TResponse any](out any) (TResponse, error) {
	if typed, ok := out.(TResponse); ok {
		return typed, nil
	}
	var zero TResponse
	if out == nil {
		return zero, nil
	}
	return zero, fmt.Errorf("%w: got %T, want %s", errspkg.ErrResponseType, out, reflect.TypeFor[TResponse]())
}

// executePipeline folds links right to left around terminal and runs the
// result, so links[0] is entered first and left last.
func executePipeline[TResponse any](ctx context.Context, request Request[TResponse], links []behaviorLink[TResponse], terminal Next[TResponse]) (TResponse, error) {
	next := terminal
	for i := len(links) - 1; i >= 0; i-- {
		link, inner := links[i], next
		next = func(ctx context.Context) (TResponse, error) {
			return link.handle(ctx, request, inner)
		}
	}
	return next(ctx)
}
