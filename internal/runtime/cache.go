package runtime

import (
	"reflect"
	"sync"
)

// dispatchCache memoises per request type the handler token and the ordered
// behavior chain. Entries are never evicted; the first stored value wins
// when two dispatches populate the same key concurrently.
type dispatchCache struct {
	handlerTokens sync.Map // reflect.Type -> Token
	pipelines     sync.Map // reflect.Type -> []behaviorLink[TResponse]
}

func (c *dispatchCache) handlerToken(requestType reflect.Type, request any) (Token, error) {
	if cached, ok := c.handlerTokens.Load(requestType); ok {
		return cached.(Token), nil
	}
	declared, ok := request.(declaredRequest)
	if !ok {
		return Token{}, notARequest(request)
	}
	actual, _ := c.handlerTokens.LoadOrStore(requestType, handlerToken(requestType, declared.responseType()))
	return actual.(Token), nil
}

func loadPipeline[TResponse any](c *dispatchCache, requestType reflect.Type, build func() ([]behaviorLink[TResponse], error)) ([]behaviorLink[TResponse], error) {
	if cached, ok := c.pipelines.Load(requestType); ok {
		if links, ok := cached.([]behaviorLink[TResponse]); ok {
			return links, nil
		}
	}
	links, err := build()
	if err != nil {
		return nil, err
	}
	actual, loaded := c.pipelines.LoadOrStore(requestType, links)
	if !loaded {
		return links, nil
	}
	if existing, ok := actual.([]behaviorLink[TResponse]); ok {
		return existing, nil
	}
	return links, nil
}
