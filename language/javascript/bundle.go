package javascript

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/golang/snappy"
)

var ErrInvalidBundle = errors.New("invalid javascript bundle")

var bundleMagic = []byte("SBXJS\x01")

// Module is one linked reference. Builtin modules are provided by the host
// at run time and carry no source.
type Module struct {
	Name    string `json:"name"`
	Builtin bool   `json:"builtin,omitempty"`
	Source  string `json:"source,omitempty"`
}

// Bundle is the compiled artifact: the entry body plus every module it was
// linked against.
type Bundle struct {
	Assembly   string   `json:"assembly"`
	Dialect    string   `json:"dialect"`
	File       string   `json:"file"`
	Namespaces []string `json:"namespaces,omitempty"`
	Modules    []Module `json:"modules"`
	Entry      string   `json:"entry"`
}

func (b *Bundle) Module(name string) (Module, bool) {
	for _, m := range b.Modules {
		if m.Name == name {
			return m, true
		}
	}
	return Module{}, false
}

// Encode serializes the bundle as magic + snappy(JSON).
func (b *Bundle) Encode() ([]byte, error) {
	data, err := json.Marshal(b)
	if err != nil {
		return nil, fmt.Errorf("encode bundle: %w", err)
	}
	out := append([]byte{}, bundleMagic...)
	return append(out, snappy.Encode(nil, data)...), nil
}

func DecodeBundle(data []byte) (*Bundle, error) {
	if !bytes.HasPrefix(data, bundleMagic) {
		return nil, fmt.Errorf("%w: bad header", ErrInvalidBundle)
	}
	raw, err := snappy.Decode(nil, data[len(bundleMagic):])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBundle, err)
	}
	var b Bundle
	if err := json.Unmarshal(raw, &b); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBundle, err)
	}
	return &b, nil
}
