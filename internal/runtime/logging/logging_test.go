package logging

import (
	"bytes"
	"errors"
	"log/slog"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatermillServiceLoggerDelegates(t *testing.T) {
	base := &recordingWatermillLogger{}
	logger := NewWatermillServiceLogger(base)

	logger.Debug("dbg", LogFields{"component": "mediator"})
	logger.Info("info", nil)
	logger.Trace("trace", LogFields{"trace": true})
	logger.Error("oops", errors.New("boom"), LogFields{"failed": true})

	require.Len(t, base.entries, 4)
	assert.Equal(t, "debug", base.entries[0].level)
	assert.Equal(t, "mediator", base.entries[0].fields["component"])
	assert.Nil(t, base.entries[1].fields)
	assert.EqualError(t, base.entries[3].err, "boom")
}

func TestWatermillServiceLoggerWith(t *testing.T) {
	base := &recordingWatermillLogger{}
	logger := NewWatermillServiceLogger(base)

	assert.Same(t, logger, logger.With(nil))

	child := logger.With(LogFields{"request_type": "app.Ping"})
	child.Info("child", nil)

	require.Len(t, base.entries, 2)
	assert.Equal(t, "with", base.entries[0].level)
	assert.Equal(t, "app.Ping", base.entries[0].fields["request_type"])
}

func TestConstructorsPanicOnNil(t *testing.T) {
	assert.Panics(t, func() { NewWatermillServiceLogger(nil) })
	assert.Panics(t, func() { NewSlogServiceLogger(nil) })
	assert.Panics(t, func() { NewWatermillAdapter(nil) })
}

func TestWatermillAdapterDelegates(t *testing.T) {
	base := &recordingServiceLogger{}
	adapter := NewWatermillAdapter(base)

	adapter.Debug("dbg", watermill.LogFields{"k": "v"})
	adapter.Info("info", nil)
	adapter.Trace("trace", nil)
	adapter.Error("err", errors.New("boom"), nil)

	child := adapter.With(watermill.LogFields{"child": "yes"})
	child.Info("child_info", nil)

	require.Len(t, base.entries, 4)
	assert.Equal(t, "v", base.entries[0].fields["k"])
	require.Len(t, base.children, 1)
	require.Len(t, base.children[0].entries, 1)
	assert.Equal(t, "yes", base.children[0].with["child"])
}

func TestSlogServiceLoggerWritesRecords(t *testing.T) {
	var buf bytes.Buffer
	logger := NewSlogServiceLogger(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))

	logger.Info("dispatching", LogFields{"request_type": "app.Ping"})

	assert.Contains(t, buf.String(), "dispatching")
	assert.Contains(t, buf.String(), "request_type=app.Ping")
}

func TestNopLogger(t *testing.T) {
	logger := NopLogger()
	logger.With(LogFields{"a": 1}).Error("ignored", errors.New("boom"), nil)
}

type watermillEntry struct {
	level  string
	fields watermill.LogFields
	err    error
}

type recordingWatermillLogger struct {
	entries []watermillEntry
	parent  *recordingWatermillLogger
}

func (r *recordingWatermillLogger) record(entry watermillEntry) {
	if r.parent != nil {
		r.parent.record(entry)
		return
	}
	r.entries = append(r.entries, entry)
}

func (r *recordingWatermillLogger) Error(_ string, err error, fields watermill.LogFields) {
	r.record(watermillEntry{level: "error", fields: fields, err: err})
}

func (r *recordingWatermillLogger) Info(_ string, fields watermill.LogFields) {
	r.record(watermillEntry{level: "info", fields: fields})
}

func (r *recordingWatermillLogger) Debug(_ string, fields watermill.LogFields) {
	r.record(watermillEntry{level: "debug", fields: fields})
}

func (r *recordingWatermillLogger) Trace(_ string, fields watermill.LogFields) {
	r.record(watermillEntry{level: "trace", fields: fields})
}

func (r *recordingWatermillLogger) With(fields watermill.LogFields) watermill.LoggerAdapter {
	r.record(watermillEntry{level: "with", fields: fields})
	return &recordingWatermillLogger{parent: r}
}

type loggedEntry struct {
	level  string
	msg    string
	fields LogFields
	err    error
}

type recordingServiceLogger struct {
	with     LogFields
	entries  []loggedEntry
	children []*recordingServiceLogger
}

func (r *recordingServiceLogger) With(fields LogFields) ServiceLogger {
	child := &recordingServiceLogger{with: fields}
	r.children = append(r.children, child)
	return child
}

func (r *recordingServiceLogger) Debug(msg string, fields LogFields) {
	r.entries = append(r.entries, loggedEntry{level: "debug", msg: msg, fields: fields})
}

func (r *recordingServiceLogger) Info(msg string, fields LogFields) {
	r.entries = append(r.entries, loggedEntry{level: "info", msg: msg, fields: fields})
}

func (r *recordingServiceLogger) Error(msg string, err error, fields LogFields) {
	r.entries = append(r.entries, loggedEntry{level: "error", msg: msg, fields: fields, err: err})
}

func (r *recordingServiceLogger) Trace(msg string, fields LogFields) {
	r.entries = append(r.entries, loggedEntry{level: "trace", msg: msg, fields: fields})
}
