package jsoncodec

import (
	"io"

	"github.com/bytedance/sonic"
)

// api matches encoding/json output so payloads stay readable by any consumer.
var api = sonic.ConfigStd

func Marshal(v any) ([]byte, error) {
	return api.Marshal(v)
}

// MarshalString is Marshal for log fields. Failures are reported inline
// instead of aborting the log line.
func MarshalString(v any) string {
	out, err := api.MarshalToString(v)
	if err != nil {
		return "<unencodable: " + err.Error() + ">"
	}
	return out
}

func Unmarshal(data []byte, v any) error {
	return api.Unmarshal(data, v)
}

func Encode(w io.Writer, v any) error {
	return api.NewEncoder(w).Encode(v)
}
