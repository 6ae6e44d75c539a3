package memory

import (
	"errors"
	"math"
	"reflect"
	"testing"
)

func TestNormalizeValue(t *testing.T) {
	tests := []struct {
		name  string
		in    any
		want  any
		isErr bool
	}{
		{
			name: "string passes through",
			in:   "dark theme",
			want: "dark theme",
		},
		{
			name: "nil passes through",
			in:   nil,
			want: nil,
		},
		{
			name: "bool passes through",
			in:   true,
			want: true,
		},
		{
			name: "int becomes float64",
			in:   42,
			want: float64(42),
		},
		{
			name: "typed slice becomes []any",
			in:   []string{"a", "b"},
			want: []any{"a", "b"},
		},
		{
			name: "typed map becomes map[string]any",
			in:   map[string]int{"count": 3},
			want: map[string]any{"count": float64(3)},
		},
		{
			name: "nested structures normalize recursively",
			in:   map[string]any{"tags": []string{"x"}, "n": 1},
			want: map[string]any{"tags": []any{"x"}, "n": float64(1)},
		},
		{
			name: "tagged struct becomes a map",
			in: struct {
				Theme string `json:"theme"`
			}{Theme: "dark"},
			want: map[string]any{"theme": "dark"},
		},
		{
			name:  "channel is rejected",
			in:    make(chan int),
			isErr: true,
		},
		{
			name:  "NaN is rejected",
			in:    math.NaN(),
			isErr: true,
		},
		{
			name:  "infinity is rejected",
			in:    math.Inf(1),
			isErr: true,
		},
		{
			name:  "NaN nested in a map is rejected",
			in:    map[string]any{"ratio": math.NaN()},
			isErr: true,
		},
		{
			name:  "infinity nested in a slice is rejected",
			in:    []any{math.Inf(1)},
			isErr: true,
		},
		{
			name:  "non-finite number nested deep is rejected",
			in:    map[string]any{"stats": []any{map[string]any{"p99": math.Inf(-1)}}},
			isErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeValue(tt.in)
			if tt.isErr {
				if !errors.Is(err, ErrInvalidValue) {
					t.Fatalf("NormalizeValue() error = %v, want ErrInvalidValue", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("NormalizeValue() error = %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("NormalizeValue() = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestNormalizeValue_Idempotent(t *testing.T) {
	first, err := NormalizeValue(map[string]any{"n": 7, "s": "x"})
	if err != nil {
		t.Fatalf("NormalizeValue() error = %v", err)
	}

	second, err := NormalizeValue(first)
	if err != nil {
		t.Fatalf("NormalizeValue() second pass error = %v", err)
	}

	if !reflect.DeepEqual(first, second) {
		t.Errorf("NormalizeValue() not idempotent: %#v != %#v", first, second)
	}
}

func TestStringify(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want string
	}{
		{
			name: "string verbatim",
			in:   "user prefers dark theme",
			want: "user prefers dark theme",
		},
		{
			name: "number as JSON",
			in:   float64(3.5),
			want: "3.5",
		},
		{
			name: "map as compact JSON",
			in:   map[string]any{"theme": "dark"},
			want: `{"theme":"dark"}`,
		},
		{
			name: "nil as JSON null",
			in:   nil,
			want: "null",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Stringify(tt.in); got != tt.want {
				t.Errorf("Stringify() = %q, want %q", got, tt.want)
			}
		})
	}
}
