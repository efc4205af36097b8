package expr

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

type function struct {
	minArgs int
	maxArgs int
	// status marks success(), failure(), always() and cancelled().
	status bool
	call   func(ctx *Context, args []any) (any, error)
}

var functions = map[string]function{
	"success": {status: true, call: func(ctx *Context, _ []any) (any, error) {
		return ctx.Status == StatusSuccess, nil
	}},
	"failure": {status: true, call: func(ctx *Context, _ []any) (any, error) {
		return ctx.Status == StatusFailure, nil
	}},
	"cancelled": {status: true, call: func(ctx *Context, _ []any) (any, error) {
		return ctx.Status == StatusCancelled, nil
	}},
	"always": {status: true, call: func(*Context, []any) (any, error) {
		return true, nil
	}},
	"contains":   {minArgs: 2, maxArgs: 2, call: contains},
	"startswith": {minArgs: 2, maxArgs: 2, call: stringPredicate(strings.HasPrefix)},
	"endswith":   {minArgs: 2, maxArgs: 2, call: stringPredicate(strings.HasSuffix)},
	"format":     {minArgs: 1, maxArgs: -1, call: format},
	"join":       {minArgs: 1, maxArgs: 2, call: join},
	"tojson":     {minArgs: 1, maxArgs: 1, call: toJSON},
	"fromjson":   {minArgs: 1, maxArgs: 1, call: fromJSON},
}

func contains(_ *Context, args []any) (any, error) {
	search, item := args[0], args[1]
	if items, ok := search.([]any); ok {
		for _, candidate := range items {
			if looseEqual(candidate, item) {
				return true, nil
			}
		}
		return false, nil
	}
	return strings.Contains(strings.ToLower(Stringify(search)), strings.ToLower(Stringify(item))), nil
}

func stringPredicate(predicate func(s, affix string) bool) func(*Context, []any) (any, error) {
	return func(_ *Context, args []any) (any, error) {
		return predicate(strings.ToLower(Stringify(args[0])), strings.ToLower(Stringify(args[1]))), nil
	}
}

func format(_ *Context, args []any) (any, error) {
	pattern := Stringify(args[0])
	var b strings.Builder
	for i := 0; i < len(pattern); i++ {
		c := pattern[i]
		switch {
		case c == '{' && i+1 < len(pattern) && pattern[i+1] == '{':
			b.WriteByte('{')
			i++
		case c == '}' && i+1 < len(pattern) && pattern[i+1] == '}':
			b.WriteByte('}')
			i++
		case c == '{':
			end := strings.IndexByte(pattern[i:], '}')
			if end < 0 {
				return nil, fmt.Errorf("format: unclosed placeholder in %q", pattern)
			}
			index, err := strconv.Atoi(pattern[i+1 : i+end])
			if err != nil || index < 0 || index+1 >= len(args) {
				return nil, fmt.Errorf("format: invalid placeholder %q", pattern[i:i+end+1])
			}
			b.WriteString(Stringify(args[index+1]))
			i += end
		default:
			b.WriteByte(c)
		}
	}
	return b.String(), nil
}

func join(_ *Context, args []any) (any, error) {
	separator := ","
	if len(args) > 1 {
		separator = Stringify(args[1])
	}
	items, ok := args[0].([]any)
	if !ok {
		return Stringify(args[0]), nil
	}
	parts := make([]string, 0, len(items))
	for _, item := range items {
		parts = append(parts, Stringify(item))
	}
	return strings.Join(parts, separator), nil
}

func toJSON(_ *Context, args []any) (any, error) {
	data, err := json.MarshalIndent(args[0], "", "  ")
	if err != nil {
		return nil, fmt.Errorf("toJSON: %w", err)
	}
	return string(data), nil
}

func fromJSON(_ *Context, args []any) (any, error) {
	var value any
	if err := json.Unmarshal([]byte(Stringify(args[0])), &value); err != nil {
		return nil, fmt.Errorf("fromJSON: %w", err)
	}
	return value, nil
}
