package memory

import (
	"encoding/json"
	"fmt"
	"math"

	"google.golang.org/protobuf/types/known/structpb"
)

// NormalizeValue converts a value into its canonical JSON shape (nil, bool,
// float64, string, []any, map[string]any) before it reaches a backend. A
// value that cannot be represented as JSON is rejected with ErrInvalidValue
// at store time rather than failing later inside a snapshot flush.
//
// Normalization makes reads stable across restarts: an int stored through a
// durable backend would come back as float64 after a reload anyway, so it is
// returned as float64 from the first Retrieve onward.
func NormalizeValue(v any) (any, error) {
	switch n := v.(type) {
	case nil:
		return nil, nil
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return nil, fmt.Errorf("%w: non-finite number", ErrInvalidValue)
		}
	case float32:
		f := float64(n)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, fmt.Errorf("%w: non-finite number", ErrInvalidValue)
		}
	}

	// Scalars convert through structpb directly. Containers must take the
	// JSON route below: structpb accepts a non-finite number nested inside
	// one and coerces it to a string instead of rejecting it.
	switch v.(type) {
	case bool, string,
		int, int32, int64, uint, uint32, uint64,
		float32, float64:
		if pv, err := structpb.NewValue(v); err == nil {
			return pv.AsInterface(), nil
		}
	}

	// Everything else (maps, slices, tagged structs) goes through its JSON
	// encoding into a structpb value; encoding errors carry the rejection.
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidValue, err)
	}

	var pv structpb.Value
	if err := pv.UnmarshalJSON(data); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidValue, err)
	}

	return pv.AsInterface(), nil
}

// Stringify renders a value to its textual form: strings verbatim,
// everything else as compact JSON. Replicated backends use this for their
// match-anything search semantics.
func Stringify(v any) string {
	if s, ok := v.(string); ok {
		return s
	}

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}

	return string(data)
}
