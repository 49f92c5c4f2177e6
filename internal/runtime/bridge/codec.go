package bridge

import (
	"errors"
	"fmt"
	"reflect"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"

	"github.com/drblury/dispatchflow/internal/runtime/jsoncodec"
)

// ErrNotProtoMessage is returned by ProtoJSONMarshaler for non-proto values.
var ErrNotProtoMessage = errors.New("dispatchflow: value is not a proto.Message")

// Marshaler converts payloads to and from message bodies.
type Marshaler interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

// JSONMarshaler encodes payloads as JSON.
type JSONMarshaler struct{}

func (JSONMarshaler) Marshal(v any) ([]byte, error) {
	return jsoncodec.Marshal(v)
}

func (JSONMarshaler) Unmarshal(data []byte, v any) error {
	return jsoncodec.Unmarshal(data, v)
}

// ProtoJSONMarshaler encodes proto.Message payloads with protojson.
type ProtoJSONMarshaler struct {
	MarshalOptions   protojson.MarshalOptions
	UnmarshalOptions protojson.UnmarshalOptions
}

func (p ProtoJSONMarshaler) Marshal(v any) ([]byte, error) {
	msg, ok := v.(proto.Message)
	if !ok {
		return nil, fmt.Errorf("%w: %T", ErrNotProtoMessage, v)
	}
	return p.MarshalOptions.Marshal(msg)
}

func (p ProtoJSONMarshaler) Unmarshal(data []byte, v any) error {
	msg, ok := v.(proto.Message)
	if !ok {
		return fmt.Errorf("%w: %T", ErrNotProtoMessage, v)
	}
	return p.UnmarshalOptions.Unmarshal(data, msg)
}

// decode allocates a T and fills it from data. Pointer types receive a
// fresh element so proto messages decode in place.
func decode[T any](marshaler Marshaler, data []byte) (T, error) {
	var value T
	typ := reflect.TypeFor[T]()
	if typ.Kind() == reflect.Pointer {
		value = reflect.New(typ.Elem()).Interface().(T)
		return value, marshaler.Unmarshal(data, value)
	}
	err := marshaler.Unmarshal(data, &value)
	return value, err
}
