package jsoncodec

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type payload struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

func TestMarshalUnmarshal(t *testing.T) {
	data, err := Marshal(payload{ID: 42, Name: "ping"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":42,"name":"ping"}`, string(data))

	var out payload
	require.NoError(t, Unmarshal(data, &out))
	assert.Equal(t, payload{ID: 42, Name: "ping"}, out)
}

func TestMarshalString(t *testing.T) {
	assert.Equal(t, `{"id":1,"name":"a"}`, MarshalString(payload{ID: 1, Name: "a"}))
	assert.Contains(t, MarshalString(make(chan int)), "<unencodable")
}

func TestEncode(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, []payload{{ID: 7, Name: "stats"}}))
	assert.JSONEq(t, `[{"id":7,"name":"stats"}]`, buf.String())
}
