// Package domain defines the core domain models for SockMesh.
package domain

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// Reserved event names. They are delivered through dedicated hooks and
// can never be emitted by either side.
const (
	EventConnect        = "connect"
	EventConnectError   = "connect_error"
	EventDisconnect     = "disconnect"
	EventDisconnecting  = "disconnecting"
	EventError          = "error"
	EventNewListener    = "newListener"
	EventRemoveListener = "removeListener"
)

var reservedEvents = map[string]struct{}{
	EventConnect:        {},
	EventConnectError:   {},
	EventDisconnect:     {},
	EventDisconnecting:  {},
	EventError:          {},
	EventNewListener:    {},
	EventRemoveListener: {},
}

// IsReservedEvent reports whether name is reserved.
func IsReservedEvent(name string) bool {
	_, ok := reservedEvents[name]
	return ok
}

// ValidateEventName checks that name may be emitted.
func ValidateEventName(name string) error {
	if name == "" {
		return ErrInvalidEventName
	}
	if IsReservedEvent(name) {
		return ErrReservedEvent.WithDetails(strconv.Quote(name))
	}
	return nil
}

// Args is the ordered payload of an event or acknowledgement.
// Each element is a raw JSON value as received on the wire.
type Args []json.RawMessage

// NewArgs marshals values into Args.
func NewArgs(values ...any) (Args, error) {
	args := make(Args, 0, len(values))
	for i, v := range values {
		if raw, ok := v.(json.RawMessage); ok {
			if !json.Valid(raw) {
				return nil, ErrInvalidPayload.WithDetails("argument " + strconv.Itoa(i) + " is not valid JSON")
			}
			args = append(args, raw)
			continue
		}
		b, err := json.Marshal(v)
		if err != nil {
			return nil, ErrInvalidPayload.WithCause(err)
		}
		args = append(args, b)
	}
	return args, nil
}

// Len returns the number of arguments.
func (a Args) Len() int {
	return len(a)
}

// At returns argument i, or nil when out of range.
func (a Args) At(i int) json.RawMessage {
	if i < 0 || i >= len(a) {
		return nil
	}
	return a[i]
}

// Decode unmarshals argument i into v.
func (a Args) Decode(i int, v any) error {
	raw := a.At(i)
	if raw == nil {
		return ErrMissingArgument.WithDetails("argument " + strconv.Itoa(i))
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return ErrInvalidPayload.WithCause(err)
	}
	return nil
}

// String returns argument i as a string. JSON strings are unquoted;
// any other value is returned as its JSON text.
func (a Args) String(i int) string {
	raw := a.At(i)
	if raw == nil {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

// Values returns the arguments as generic values for logging.
func (a Args) Values() []any {
	out := make([]any, len(a))
	for i := range a {
		var v any
		if err := json.Unmarshal(a[i], &v); err != nil {
			v = string(a[i])
		}
		out[i] = v
	}
	return out
}

// MarshalJSON renders the arguments as a JSON array; nil becomes [].
func (a Args) MarshalJSON() ([]byte, error) {
	if len(a) == 0 {
		return []byte("[]"), nil
	}
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, raw := range a {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.Write(raw)
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}
