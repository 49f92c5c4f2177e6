package metadata

import (
	"context"
	"maps"
)

const (
	// KeyCorrelationID links every dispatch triggered by the same inbound call.
	KeyCorrelationID = "correlation_id"
	// KeyType names the Go type of a payload forwarded over the bridge.
	KeyType = "dispatchflow_type"
)

// Metadata holds string headers that travel with a dispatch.
type Metadata map[string]string

// New constructs Metadata from alternating key/value pairs. A trailing key
// without a value is ignored.
func New(pairs ...string) Metadata {
	md := make(Metadata, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		md[pairs[i]] = pairs[i+1]
	}
	return md
}

// Get returns the value stored under key or "".
func (m Metadata) Get(key string) string {
	return m[key]
}

// Clone returns a shallow copy. It never returns nil.
func (m Metadata) Clone() Metadata {
	cloned := make(Metadata, len(m))
	maps.Copy(cloned, m)
	return cloned
}

// With returns a copy containing key=value.
func (m Metadata) With(key, value string) Metadata {
	cloned := make(Metadata, len(m)+1)
	maps.Copy(cloned, m)
	cloned[key] = value
	return cloned
}

// WithAll returns a copy with entries merged over the receiver.
func (m Metadata) WithAll(entries Metadata) Metadata {
	cloned := make(Metadata, len(m)+len(entries))
	maps.Copy(cloned, m)
	maps.Copy(cloned, entries)
	return cloned
}

type contextKey struct{}

// NewContext returns a child context carrying md.
func NewContext(ctx context.Context, md Metadata) context.Context {
	return context.WithValue(ctx, contextKey{}, md)
}

// FromContext returns the metadata stored on ctx, or an empty map. The
// result is a copy and may be modified freely.
func FromContext(ctx context.Context) Metadata {
	if ctx == nil {
		return Metadata{}
	}
	md, _ := ctx.Value(contextKey{}).(Metadata)
	return md.Clone()
}

// CorrelationID is shorthand for FromContext(ctx).Get(KeyCorrelationID).
func CorrelationID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	md, _ := ctx.Value(contextKey{}).(Metadata)
	return md[KeyCorrelationID]
}
