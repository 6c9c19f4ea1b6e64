// Package filter compiles CEL expressions that select log records in queries
// and live listens.
package filter

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/cel-go/cel"
)

// Input is the view of a record an expression is evaluated against.
type Input struct {
	ID    uint64
	TS    time.Time
	Text  string
	JSON  any
	Attrs map[string]any
	Tags  []string
}

// Filter wraps a compiled CEL program. A nil or empty Filter matches everything.
type Filter struct {
	expr string
	prog cel.Program
}

// Compile parses and type-checks expr. An empty expression yields a nil
// Filter, which matches every record.
//
// Variables: id, ts_ms, now_ms (int), text (string), json (dyn),
// attrs (map(string, dyn)), tags (list(string)).
func Compile(expr string) (*Filter, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, nil
	}
	env, err := cel.NewEnv(
		cel.Variable("id", cel.IntType),
		cel.Variable("ts_ms", cel.IntType),
		cel.Variable("text", cel.StringType),
		// structured message, null for text messages
		cel.Variable("json", cel.DynType),
		cel.Variable("attrs", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("tags", cel.ListType(cel.StringType)),
		cel.Variable("now_ms", cel.IntType),
	)
	if err != nil {
		return nil, err
	}
	ast, iss := env.Compile(expr)
	if iss != nil && iss.Err() != nil {
		return nil, fmt.Errorf("filter: %w", iss.Err())
	}
	if out := ast.OutputType(); !out.IsExactType(cel.BoolType) && !out.IsExactType(cel.DynType) {
		return nil, fmt.Errorf("filter: expression must evaluate to bool, got %s", ast.OutputType())
	}
	prog, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("filter: %w", err)
	}
	return &Filter{expr: expr, prog: prog}, nil
}

// String returns the source expression.
func (f *Filter) String() string {
	if f == nil {
		return ""
	}
	return f.expr
}

// Match evaluates the expression. Evaluation errors and non-bool results do
// not match.
func (f *Filter) Match(in Input) bool {
	if f == nil {
		return true
	}
	attrs := in.Attrs
	if attrs == nil {
		attrs = map[string]any{}
	}
	tags := in.Tags
	if tags == nil {
		tags = []string{}
	}
	out, _, err := f.prog.Eval(map[string]any{
		"id":     int64(in.ID),
		"ts_ms":  in.TS.UnixMilli(),
		"text":   in.Text,
		"json":   in.JSON,
		"attrs":  attrs,
		"tags":   tags,
		"now_ms": time.Now().UnixMilli(),
	})
	if err != nil {
		return false
	}
	b, ok := out.Value().(bool)
	return ok && b
}
