package jsoncodec

import (
	"encoding/json"
	"io"

	"github.com/bytedance/sonic"
)

// ConfigStd sorts map keys, which keeps Canonical output stable.
var defaultConfig = sonic.ConfigStd

// RawMessage is an encoded JSON value written through verbatim.
type RawMessage = json.RawMessage

func Marshal(v any) ([]byte, error) {
	return defaultConfig.Marshal(v)
}

func Unmarshal(data []byte, v any) error {
	return defaultConfig.Unmarshal(data, v)
}

func Encode(w io.Writer, v any) error {
	return defaultConfig.NewEncoder(w).Encode(v)
}

func Decode(r io.Reader, v any) error {
	return defaultConfig.NewDecoder(r).Decode(v)
}

// Valid reports whether data is a single well-formed JSON value.
func Valid(data []byte) bool {
	return defaultConfig.Valid(data)
}

// Canonical converts a JSON value into its canonical text form. A JSON string
// yields its unquoted contents; any other value is re-encoded compactly with
// sorted object keys.
func Canonical(raw []byte) ([]byte, error) {
	var v any
	if err := defaultConfig.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	if s, ok := v.(string); ok {
		return []byte(s), nil
	}
	return defaultConfig.Marshal(v)
}
