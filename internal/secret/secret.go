// Package secret holds sensitive credential material for the lifetime of a
// single mirror run.
//
// A Secret is read once from configuration, handed to exactly one credential
// provider, piped into an external credential store over stdin and then
// cleared. It never renders its contents through fmt or slog.
package secret

import (
	"bytes"
	"io"
	"log/slog"
)

const redacted = "[REDACTED]"

// Secret is clearable byte storage for a private key or access token.
// The zero value is an absent secret.
type Secret struct {
	b []byte
}

// New copies s into a new Secret.
func New(s string) Secret {
	if s == "" {
		return Secret{}
	}
	return Secret{b: []byte(s)}
}

// EnvDecode implements envconfig.Decoder so configuration can decode straight
// into clearable storage.
func (s *Secret) EnvDecode(val string) error {
	s.Clear()
	if val != "" {
		s.b = []byte(val)
	}
	return nil
}

// Present reports whether the secret holds any material.
func (s *Secret) Present() bool {
	return s != nil && len(s.b) > 0
}

// Len returns the number of bytes held.
func (s *Secret) Len() int {
	if s == nil {
		return 0
	}
	return len(s.b)
}

// Bytes exposes the underlying material. Callers must not retain the slice
// past Clear.
func (s *Secret) Bytes() []byte {
	if s == nil {
		return nil
	}
	return s.b
}

// Reader returns a reader over the material for stdin handoff.
func (s *Secret) Reader() io.Reader {
	return bytes.NewReader(s.Bytes())
}

// Move transfers ownership of the material to the returned Secret and leaves
// s empty.
func (s *Secret) Move() Secret {
	out := Secret{b: s.b}
	s.b = nil
	return out
}

// Clear overwrites the material with zeros and drops it.
func (s *Secret) Clear() {
	if s == nil {
		return
	}
	for i := range s.b {
		s.b[i] = 0
	}
	s.b = nil
}

// String implements fmt.Stringer without revealing the material.
func (s Secret) String() string {
	if len(s.b) == 0 {
		return ""
	}
	return redacted
}

// GoString implements fmt.GoStringer for %#v.
func (s Secret) GoString() string {
	return "secret.Secret{" + s.String() + "}"
}

// LogValue implements slog.LogValuer.
func (s Secret) LogValue() slog.Value {
	return slog.StringValue(s.String())
}
