package runtime

import (
	"fmt"
	"reflect"
)

// Kind identifies the capability a Token asks the resolver for.
type Kind string

const (
	KindRequestHandler      Kind = "request_handler"
	KindPipelineBehavior    Kind = "pipeline_behavior"
	KindOpenBehavior        Kind = "open_behavior"
	KindExceptionHandler    Kind = "exception_handler"
	KindNotificationHandler Kind = "notification_handler"
)

// Token names a capability specialised to concrete types. Tokens are
// comparable and serve as map keys.
type Token struct {
	Kind     Kind
	Request  reflect.Type
	Response reflect.Type
	Err      reflect.Type
}

func (t Token) String() string {
	switch t.Kind {
	case KindRequestHandler:
		return fmt.Sprintf("RequestHandler[%s, %s]", typeName(t.Request), typeName(t.Response))
	case KindPipelineBehavior:
		return fmt.Sprintf("PipelineBehavior[%s, %s]", typeName(t.Request), typeName(t.Response))
	case KindOpenBehavior:
		return "Behavior"
	case KindExceptionHandler:
		return fmt.Sprintf("ExceptionHandler[%s, %s, %s]", typeName(t.Request), typeName(t.Response), typeName(t.Err))
	case KindNotificationHandler:
		return fmt.Sprintf("NotificationHandler[%s]", typeName(t.Request))
	default:
		return fmt.Sprintf("Token(%s)", t.Kind)
	}
}

// Resolver supplies capability instances for tokens. ResolveOne fails when
// nothing is registered; ResolveAll returns registration order and may be
// empty. Implementations must be safe for concurrent use.
type Resolver interface {
	ResolveOne(token Token) (any, error)
	ResolveAll(token Token) []any
}

var errorType = reflect.TypeFor[error]()

func handlerToken(request, response reflect.Type) Token {
	return Token{Kind: KindRequestHandler, Request: request, Response: response}
}

func behaviorToken(request, response reflect.Type) Token {
	return Token{Kind: KindPipelineBehavior, Request: request, Response: response}
}

func openBehaviorToken() Token {
	return Token{Kind: KindOpenBehavior}
}

func exceptionToken(request, response, err reflect.Type) Token {
	return Token{Kind: KindExceptionHandler, Request: request, Response: response, Err: err}
}

func notificationToken(notification reflect.Type) Token {
	return Token{Kind: KindNotificationHandler, Request: notification}
}

func typeName(t reflect.Type) string {
	if t == nil {
		return "<nil>"
	}
	return t.String()
}
