package tokenbroker

const redacted = "[REDACTED]"

// Secret wraps a bearer token so it cannot leak through formatting,
// logging or serialization. Only Value returns the real string.
type Secret struct {
	value string
}

// NewSecret wraps value.
func NewSecret(value string) Secret {
	return Secret{value: value}
}

// Value returns the raw token. Use it only to build an Authorization header.
func (s Secret) Value() string {
	return s.value
}

// IsEmpty reports whether the wrapped value is empty.
func (s Secret) IsEmpty() bool {
	return s.value == ""
}

// String implements fmt.Stringer.
func (s Secret) String() string {
	return redacted
}

// GoString implements fmt.GoStringer for %#v.
func (s Secret) GoString() string {
	return "tokenbroker.Secret{" + redacted + "}"
}

// MarshalText implements encoding.TextMarshaler.
func (s Secret) MarshalText() ([]byte, error) {
	return []byte(redacted), nil
}

// MarshalJSON implements json.Marshaler.
func (s Secret) MarshalJSON() ([]byte, error) {
	return []byte(`"` + redacted + `"`), nil
}
