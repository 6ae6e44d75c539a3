// Package filter compiles CEL expressions into predicates over search
// candidates.
//
// Expressions see one candidate entry at a time through six variables:
// scope and key (string), importance and score (double), age_ms and ttl_ms
// (int). A filter must evaluate to a boolean.
//
//	f, err := filter.Compile(`importance >= 0.7 && age_ms < 60000`)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	keep, err := f.Eval(filter.Candidate{Importance: 0.9, AgeMillis: 1200})
package filter

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
)

// Candidate is the variable binding for one entry under evaluation. Score
// is only meaningful when the filter runs inside a search pipeline; other
// callers can leave it zero.
type Candidate struct {
	Scope      string
	Key        string
	Importance float64
	Score      float64
	AgeMillis  int64
	TTLMillis  int64
}

// Filter is a compiled predicate. A Filter is immutable and safe for
// concurrent use.
type Filter struct {
	expr string
	prg  cel.Program
}

// The environment is fixed, so build it once and share it across compiles.
var sharedEnv = sync.OnceValues(func() (*cel.Env, error) {
	return cel.NewEnv(
		cel.Variable("scope", cel.StringType),
		cel.Variable("key", cel.StringType),
		cel.Variable("importance", cel.DoubleType),
		cel.Variable("score", cel.DoubleType),
		cel.Variable("age_ms", cel.IntType),
		cel.Variable("ttl_ms", cel.IntType),
	)
})

// Compile parses and type-checks the expression. Expressions that do not
// produce a boolean are rejected here rather than at evaluation time.
func Compile(expr string) (*Filter, error) {
	env, err := sharedEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to build filter environment: %w", err)
	}

	ast, iss := env.Compile(expr)
	if iss.Err() != nil {
		return nil, fmt.Errorf("failed to compile filter %q: %w", expr, iss.Err())
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("filter %q must evaluate to a boolean, got %s", expr, ast.OutputType())
	}

	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to plan filter %q: %w", expr, err)
	}

	return &Filter{expr: expr, prg: prg}, nil
}

// Eval reports whether the candidate satisfies the filter. Runtime
// evaluation errors (division by zero and the like) are returned, not
// treated as a non-match.
func (f *Filter) Eval(c Candidate) (bool, error) {
	out, _, err := f.prg.Eval(map[string]any{
		"scope":      c.Scope,
		"key":        c.Key,
		"importance": c.Importance,
		"score":      c.Score,
		"age_ms":     c.AgeMillis,
		"ttl_ms":     c.TTLMillis,
	})
	if err != nil {
		return false, fmt.Errorf("failed to evaluate filter %q: %w", f.expr, err)
	}

	keep, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("filter %q produced %T, want boolean", f.expr, out.Value())
	}
	return keep, nil
}

// String returns the source expression.
func (f *Filter) String() string {
	return f.expr
}
