// Package eval implements graph.ExpressionEvaluator over jq-style
// expressions: guard clauses on edges, branch/switch/while conditions, and
// LLM prompt templates all compile and run through the same evaluator.
package eval

import (
	"fmt"

	"github.com/dshills/flowmesh/graph"
	"github.com/itchyny/gojq"
)

// JQEvaluator implements graph.ExpressionEvaluator using
// github.com/itchyny/gojq. Compiled queries are cached by expression text
// since the same guard/condition is evaluated once per routed message.
type JQEvaluator struct {
	cache map[string]*gojq.Code
}

// NewJQEvaluator constructs an evaluator with an empty query cache.
func NewJQEvaluator() *JQEvaluator {
	return &JQEvaluator{cache: make(map[string]*gojq.Code)}
}

func (e *JQEvaluator) compile(expr string) (*gojq.Code, error) {
	if code, ok := e.cache[expr]; ok {
		return code, nil
	}
	query, err := gojq.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("parse expression %q: %w", expr, err)
	}
	code, err := gojq.Compile(query)
	if err != nil {
		return nil, fmt.Errorf("compile expression %q: %w", expr, err)
	}
	e.cache[expr] = code
	return code, nil
}

func (e *JQEvaluator) firstResult(expr string, scope graph.Bag) (any, error) {
	code, err := e.compile(expr)
	if err != nil {
		return nil, err
	}

	iter := code.Run(map[string]any(scope))
	v, ok := iter.Next()
	if !ok {
		return nil, fmt.Errorf("expression %q produced no result", expr)
	}
	if err, ok := v.(error); ok {
		return nil, fmt.Errorf("evaluate expression %q: %w", expr, err)
	}
	return v, nil
}

// EvalValue runs expr against scope (typically {globals, input, output})
// and returns its first emitted value.
func (e *JQEvaluator) EvalValue(expr string, scope graph.Bag) (any, error) {
	return e.firstResult(expr, scope)
}

// EvalBool runs expr and coerces its first result to a boolean. Per jq
// truthiness rules, anything other than false or null is true.
func (e *JQEvaluator) EvalBool(expr string, scope graph.Bag) (bool, error) {
	v, err := e.firstResult(expr, scope)
	if err != nil {
		return false, err
	}
	switch t := v.(type) {
	case bool:
		return t, nil
	case nil:
		return false, nil
	default:
		return true, nil
	}
}
