package expr

import (
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
)

// Status is the outcome of everything that ran before the step or job being guarded.
type Status int

const (
	StatusSuccess Status = iota
	StatusFailure
	StatusCancelled
)

func (s Status) String() string {
	switch s {
	case StatusFailure:
		return "failure"
	case StatusCancelled:
		return "cancelled"
	default:
		return "success"
	}
}

// Context holds the named values (matrix, env, github, ...) an expression can reference.
// Values are strings, float64, bool, nil, map[string]string, map[string]any or []any.
type Context struct {
	Values map[string]any
	Status Status
}

func NewContext() *Context {
	return &Context{Values: make(map[string]any)}
}

// With returns a copy of c with name set to value. The receiver is not modified.
func (c *Context) With(name string, value any) *Context {
	values := make(map[string]any, len(c.Values)+1)
	for k, v := range c.Values {
		values[k] = v
	}
	values[strings.ToLower(name)] = value
	return &Context{Values: values, Status: c.Status}
}

type Expression struct {
	source string
	root   node
}

func (e *Expression) String() string {
	return e.source
}

func (e *Expression) Evaluate(ctx *Context) (any, error) {
	if ctx == nil {
		ctx = NewContext()
	}
	value, err := e.root.eval(ctx)
	if err != nil {
		return nil, fmt.Errorf("evaluating %q: %w", e.source, err)
	}
	return value, nil
}

// UsesStatusFunction reports whether the expression calls success(), failure(),
// always() or cancelled().
func (e *Expression) UsesStatusFunction() bool {
	return usesStatusFunction(e.root)
}

func usesStatusFunction(n node) bool {
	switch n := n.(type) {
	case *callNode:
		if functions[n.name].status {
			return true
		}
		return slices.ContainsFunc(n.args, usesStatusFunction)
	case *notNode:
		return usesStatusFunction(n.operand)
	case *binaryNode:
		return usesStatusFunction(n.left) || usesStatusFunction(n.right)
	case *propertyNode:
		return usesStatusFunction(n.target)
	case *indexNode:
		return usesStatusFunction(n.target) || usesStatusFunction(n.index)
	default:
		return false
	}
}

func (n *literalNode) eval(*Context) (any, error) {
	return n.value, nil
}

func (n *contextNode) eval(ctx *Context) (any, error) {
	value, ok := ctx.Values[n.name]
	if !ok {
		return nil, fmt.Errorf("unrecognized named-value: %q", n.name)
	}
	return value, nil
}

func (n *propertyNode) eval(ctx *Context) (any, error) {
	target, err := n.target.eval(ctx)
	if err != nil {
		return nil, err
	}
	return property(target, n.name), nil
}

func (n *indexNode) eval(ctx *Context) (any, error) {
	target, err := n.target.eval(ctx)
	if err != nil {
		return nil, err
	}
	index, err := n.index.eval(ctx)
	if err != nil {
		return nil, err
	}

	if f, ok := index.(float64); ok {
		if items, ok := target.([]any); ok {
			i := int(f)
			if float64(i) != f || i < 0 || i >= len(items) {
				return nil, nil
			}
			return items[i], nil
		}
	}
	return property(target, Stringify(index)), nil
}

func (n *notNode) eval(ctx *Context) (any, error) {
	value, err := n.operand.eval(ctx)
	if err != nil {
		return nil, err
	}
	return !Truthy(value), nil
}

func (n *binaryNode) eval(ctx *Context) (any, error) {
	left, err := n.left.eval(ctx)
	if err != nil {
		return nil, err
	}

	switch n.op {
	case tokAnd:
		if !Truthy(left) {
			return left, nil
		}
		return n.right.eval(ctx)
	case tokOr:
		if Truthy(left) {
			return left, nil
		}
		return n.right.eval(ctx)
	}

	right, err := n.right.eval(ctx)
	if err != nil {
		return nil, err
	}

	switch n.op {
	case tokEq:
		return looseEqual(left, right), nil
	case tokNe:
		return !looseEqual(left, right), nil
	default:
		return compare(n.op, left, right), nil
	}
}

func (n *callNode) eval(ctx *Context) (any, error) {
	args := make([]any, 0, len(n.args))
	for _, arg := range n.args {
		value, err := arg.eval(ctx)
		if err != nil {
			return nil, err
		}
		args = append(args, value)
	}
	return functions[n.name].call(ctx, args)
}

func property(target any, name string) any {
	switch t := target.(type) {
	case map[string]any:
		if name == "*" {
			values := make([]any, 0, len(t))
			for _, key := range sortedKeys(t) {
				values = append(values, t[key])
			}
			return values
		}
		if v, ok := t[name]; ok {
			return v
		}
		for k, v := range t {
			if strings.EqualFold(k, name) {
				return v
			}
		}
	case map[string]string:
		if name == "*" {
			values := make([]any, 0, len(t))
			for _, key := range sortedKeys(t) {
				values = append(values, t[key])
			}
			return values
		}
		if v, ok := t[name]; ok {
			return v
		}
		for k, v := range t {
			if strings.EqualFold(k, name) {
				return v
			}
		}
	case []any:
		if name == "*" {
			return t
		}
		values := make([]any, 0, len(t))
		for _, item := range t {
			values = append(values, property(item, name))
		}
		return values
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Truthy follows the workflow expression rules: false, 0, NaN, "" and null are falsy.
func Truthy(value any) bool {
	switch v := value.(type) {
	case nil:
		return false
	case bool:
		return v
	case float64:
		return v != 0 && !math.IsNaN(v)
	case string:
		return v != ""
	default:
		return true
	}
}

func isObject(value any) bool {
	switch value.(type) {
	case map[string]any, map[string]string, []any:
		return true
	default:
		return false
	}
}

func toNumber(value any) float64 {
	switch v := value.(type) {
	case nil:
		return 0
	case bool:
		if v {
			return 1
		}
		return 0
	case float64:
		return v
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return 0
		}
		if n, err := parseNumber(s); err == nil {
			return n
		}
		return math.NaN()
	default:
		return math.NaN()
	}
}

// looseEqual compares strings case-insensitively and coerces mismatched primitive types
// to numbers, so matrix values such as "3.8" equal both '3.8' and 3.8.
func looseEqual(a, b any) bool {
	if isObject(a) || isObject(b) {
		return false
	}

	switch av := a.(type) {
	case string:
		if bv, ok := b.(string); ok {
			return strings.EqualFold(av, bv)
		}
	case bool:
		if bv, ok := b.(bool); ok {
			return av == bv
		}
	case nil:
		if b == nil {
			return true
		}
	}

	an, bn := toNumber(a), toNumber(b)
	return an == bn
}

func compare(op tokenKind, a, b any) bool {
	if isObject(a) || isObject(b) {
		return false
	}

	var cmp int
	as, aok := a.(string)
	bs, bok := b.(string)
	if aok && bok {
		cmp = strings.Compare(strings.ToLower(as), strings.ToLower(bs))
	} else {
		an, bn := toNumber(a), toNumber(b)
		if math.IsNaN(an) || math.IsNaN(bn) {
			return false
		}
		switch {
		case an < bn:
			cmp = -1
		case an > bn:
			cmp = 1
		}
	}

	switch op {
	case tokLt:
		return cmp < 0
	case tokLe:
		return cmp <= 0
	case tokGt:
		return cmp > 0
	case tokGe:
		return cmp >= 0
	}
	return false
}

// Stringify renders a value the way it appears when interpolated into a string.
func Stringify(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case float64:
		if math.IsNaN(v) {
			return "NaN"
		}
		if v == math.Trunc(v) && math.Abs(v) < 1e15 {
			return strconv.FormatInt(int64(v), 10)
		}
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(data)
	}
}
