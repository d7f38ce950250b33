// Package json selects the JSON implementation at init time: sonic on
// amd64/arm64, encoding/json elsewhere. Callers use the package-level
// Marshal/Unmarshal variables and stay codec-agnostic.
package json

import (
	stdjson "encoding/json"
	"io"
	"runtime"

	"github.com/bytedance/sonic"
)

// Encoder writes JSON values to an output stream.
type Encoder interface {
	Encode(v interface{}) error
}

// Decoder reads JSON values from an input stream.
type Decoder interface {
	Decode(v interface{}) error
}

var (
	// Marshal serializes v into JSON bytes.
	Marshal func(v interface{}) ([]byte, error)

	// Unmarshal deserializes JSON bytes into v.
	Unmarshal func(data []byte, v interface{}) error

	// NewEncoder returns a streaming encoder for w.
	NewEncoder func(w io.Writer) Encoder

	// NewDecoder returns a streaming decoder for r.
	NewDecoder func(r io.Reader) Decoder

	usingSonic bool
)

func init() {
	// Sonic only supports amd64 and arm64 architectures.
	if runtime.GOARCH == "amd64" || runtime.GOARCH == "arm64" {
		Marshal = sonic.Marshal
		Unmarshal = sonic.Unmarshal
		NewEncoder = func(w io.Writer) Encoder {
			return sonic.ConfigDefault.NewEncoder(w)
		}
		NewDecoder = func(r io.Reader) Decoder {
			return sonic.ConfigDefault.NewDecoder(r)
		}
		usingSonic = true
	} else {
		Marshal = stdjson.Marshal
		Unmarshal = stdjson.Unmarshal
		NewEncoder = func(w io.Writer) Encoder {
			return stdjson.NewEncoder(w)
		}
		NewDecoder = func(r io.Reader) Decoder {
			return stdjson.NewDecoder(r)
		}
		usingSonic = false
	}
}

// IsUsingSonic reports whether sonic backs the package-level functions.
func IsUsingSonic() bool {
	return usingSonic
}
