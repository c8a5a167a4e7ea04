package commsutil

import (
	"encoding/json"
	"fmt"
)

// EncodePayload serializes a value to JSON bytes.
func EncodePayload(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

// DecodePayload deserializes JSON bytes into the given target.
func DecodePayload(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}

// Args is an ordered list of encoded method arguments. Arguments are always
// carried encoded, so a callee never shares memory with its caller.
type Args []json.RawMessage

// EncodeArgs encodes each value into its own argument slot.
func EncodeArgs(values ...interface{}) (Args, error) {
	args := make(Args, 0, len(values))
	for i, v := range values {
		data, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("commsutil:codec - argument %d: %w", i, err)
		}
		args = append(args, data)
	}
	return args, nil
}

// Len returns the number of arguments.
func (a Args) Len() int {
	return len(a)
}

// Decode unmarshals argument i into v.
func (a Args) Decode(i int, v interface{}) error {
	if i < 0 || i >= len(a) {
		return fmt.Errorf("commsutil:codec - argument %d out of range (have %d)", i, len(a))
	}
	if err := json.Unmarshal(a[i], v); err != nil {
		return fmt.Errorf("commsutil:codec - argument %d: %w", i, err)
	}
	return nil
}

// Copy returns a deep copy of the argument list.
func (a Args) Copy() Args {
	if a == nil {
		return nil
	}
	out := make(Args, len(a))
	for i, raw := range a {
		out[i] = append(json.RawMessage(nil), raw...)
	}
	return out
}
