package runtime

import (
	"fmt"
	"reflect"

	errspkg "github.com/drblury/dispatchflow/internal/runtime/errors"
)

// isNil reports whether v is nil or a typed nil pointer, map, slice, func,
// channel or interface.
func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.Interface:
		return rv.IsNil()
	default:
		return false
	}
}

func notARequest(v any) error {
	return &errspkg.ConfigurationError{
		Reason:      fmt.Sprintf("type %T does not declare a response; embed Returns[T] or Command", v),
		RequestType: fmt.Sprintf("%T", v),
	}
}

func notANotification(v any) error {
	return &errspkg.ConfigurationError{
		Reason:      fmt.Sprintf("type %T is not a notification; embed Event", v),
		RequestType: fmt.Sprintf("%T", v),
	}
}
