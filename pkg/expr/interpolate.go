package expr

import (
	"fmt"
	"strings"
)

const (
	openDelim  = "${{"
	closeDelim = "}}"
)

type segment struct {
	start, end int
	inner      string
}

// findSegments locates every ${{ ... }} in s. A "}}" inside a quoted string does not close it.
func findSegments(s string) ([]segment, error) {
	var segments []segment
	offset := 0
	for {
		start := strings.Index(s[offset:], openDelim)
		if start < 0 {
			return segments, nil
		}
		start += offset

		i := start + len(openDelim)
		inString := false
		end := -1
		for ; i < len(s); i++ {
			switch {
			case s[i] == '\'':
				inString = !inString
			case !inString && strings.HasPrefix(s[i:], closeDelim):
				end = i
			}
			if end >= 0 {
				break
			}
		}
		if end < 0 {
			return nil, fmt.Errorf("unclosed expression starting at position %d", start+1)
		}

		segments = append(segments, segment{
			start: start,
			end:   end + len(closeDelim),
			inner: strings.TrimSpace(s[start+len(openDelim) : end]),
		})
		offset = end + len(closeDelim)
	}
}

// HasExpression reports whether s contains a ${{ }} expression.
func HasExpression(s string) bool {
	return strings.Contains(s, openDelim)
}

// Interpolate replaces every ${{ expr }} in s with its evaluated value.
func Interpolate(s string, ctx *Context) (string, error) {
	if !HasExpression(s) {
		return s, nil
	}

	segments, err := findSegments(s)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	last := 0
	for _, seg := range segments {
		b.WriteString(s[last:seg.start])
		e, err := Parse(seg.inner)
		if err != nil {
			return "", err
		}
		value, err := e.Evaluate(ctx)
		if err != nil {
			return "", err
		}
		b.WriteString(Stringify(value))
		last = seg.end
	}
	b.WriteString(s[last:])
	return b.String(), nil
}

// InterpolateMap interpolates every value of m into a new map.
func InterpolateMap(m map[string]string, ctx *Context) (map[string]string, error) {
	if m == nil {
		return nil, nil
	}
	out := make(map[string]string, len(m))
	for key, value := range m {
		expanded, err := Interpolate(value, ctx)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		out[key] = expanded
	}
	return out, nil
}

// EvaluateCondition evaluates an `if:` guard. An empty condition means success(), and a
// condition that calls none of the status functions is implicitly success() && (condition).
// The ${{ }} wrapper is optional.
func EvaluateCondition(condition string, ctx *Context) (bool, error) {
	if ctx == nil {
		ctx = NewContext()
	}

	cond := strings.TrimSpace(condition)
	if HasExpression(cond) {
		segments, err := findSegments(cond)
		if err != nil {
			return false, fmt.Errorf("condition %q: %w", condition, err)
		}
		if len(segments) == 1 && segments[0].start == 0 && segments[0].end == len(cond) {
			cond = segments[0].inner
		} else {
			// Mixed literal text and expressions evaluate as a string, which is truthy when non-empty.
			rendered, err := Interpolate(cond, ctx)
			if err != nil {
				return false, fmt.Errorf("condition %q: %w", condition, err)
			}
			return ctx.Status == StatusSuccess && rendered != "", nil
		}
	}

	if cond == "" {
		return ctx.Status == StatusSuccess, nil
	}

	e, err := Parse(cond)
	if err != nil {
		return false, err
	}
	value, err := e.Evaluate(ctx)
	if err != nil {
		return false, err
	}

	if !e.UsesStatusFunction() && ctx.Status != StatusSuccess {
		return false, nil
	}
	return Truthy(value), nil
}
