package expr

import (
	"strings"
	"testing"
)

func testContext() *Context {
	ctx := NewContext()
	ctx.Values["matrix"] = map[string]string{"python-version": "3.8", "os": "ubuntu-latest"}
	ctx.Values["env"] = map[string]string{"TOXENV": "py38", "EMPTY": ""}
	ctx.Values["github"] = map[string]any{
		"event_name": "push",
		"ref":        "refs/heads/main",
		"event":      map[string]any{"commits": []any{map[string]any{"id": "a"}, map[string]any{"id": "b"}}},
	}
	ctx.Values["runner"] = map[string]string{"os": "Linux"}
	ctx.Values["steps"] = map[string]any{
		"tests": map[string]any{"outcome": "failure", "conclusion": "success", "outputs": map[string]string{"coverage": "87"}},
	}
	return ctx
}

func evaluate(t *testing.T, input string, ctx *Context) any {
	t.Helper()
	e, err := Parse(input)
	if err != nil {
		t.Fatalf("Parse(%q) error = %v", input, err)
	}
	value, err := e.Evaluate(ctx)
	if err != nil {
		t.Fatalf("Evaluate(%q) error = %v", input, err)
	}
	return value
}

func TestEvaluate(t *testing.T) {
	ctx := testContext()

	tests := []struct {
		input string
		want  any
	}{
		{"matrix.python-version", "3.8"},
		{"matrix.python-version == '3.8'", true},
		{"matrix.python-version == '3.6'", false},
		{"matrix.python-version == 3.8", true},
		{"matrix['python-version'] != '3.7'", true},
		{"matrix.PYTHON-VERSION", "3.8"},
		{"github.event_name == 'push' && github.ref == 'refs/heads/main'", true},
		{"github.event_name == 'PUSH'", true},
		{"env.EMPTY || 'fallback'", "fallback"},
		{"env.TOXENV && 'set'", "set"},
		{"env.MISSING", nil},
		{"!env.MISSING", true},
		{"!(1 == 1)", false},
		{"1 < 2 && 'b' > 'A'", true},
		{"'3.10' > '3.9'", false},
		{"3.10 > 3.9", false},
		{"-1 < 0", true},
		{"0x10 == 16", true},
		{"null == 0", true},
		{"true == 1", true},
		{"'' == 0", true},
		{"'abc' == 0", false},
		{"NaN == NaN", false},
		{"steps.tests.outcome", "failure"},
		{"steps.tests.outputs.coverage >= 80", true},
		{"github.event.commits.*.id", []any{"a", "b"}},
		{"github.event.commits[1].id", "b"},
		{"github.event.commits[5]", nil},
		{"contains('Hello world', 'WORLD')", true},
		{"contains(github.event.commits.*.id, 'b')", true},
		{"startsWith(github.ref, 'refs/heads/')", true},
		{"endsWith(runner.os, 'ux')", true},
		{"format('py{0}-{1} {{x}}', matrix.python-version, runner.os)", "py3.8-Linux {x}"},
		{"join(github.event.commits.*.id, '+')", "a+b"},
		{"fromJSON('{\"a\": [1, 2]}').a[1]", float64(2)},
		{"toJSON(matrix.os)", "\"ubuntu-latest\""},
		{"'it''s'", "it's"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := evaluate(t, tt.input, ctx)
			if Stringify(got) != Stringify(tt.want) {
				t.Errorf("Evaluate(%q) = %#v, want %#v", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		input    string
		errorMsg string
	}{
		{"", "expression is empty"},
		{"'open", "unterminated string"},
		{"matrix.", "expected property name"},
		{"(1 == 1", "expected ')'"},
		{"1 == 1 2", "unexpected \"2\""},
		{"explode()", "unknown function"},
		{"contains('a')", "called with 1 arguments"},
		{"a ~ b", "unexpected character"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			_, err := Parse(tt.input)
			if err == nil || !strings.Contains(err.Error(), tt.errorMsg) {
				t.Errorf("Parse(%q) error = %v, want %q", tt.input, err, tt.errorMsg)
			}
		})
	}
}

func TestEvaluateUnknownContext(t *testing.T) {
	e, err := Parse("secrets.TOKEN")
	if err != nil {
		t.Fatal(err)
	}
	_, err = e.Evaluate(testContext())
	if err == nil || !strings.Contains(err.Error(), "unrecognized named-value") {
		t.Errorf("Evaluate() error = %v", err)
	}
}

func TestEvaluateCondition(t *testing.T) {
	tests := []struct {
		name      string
		condition string
		version   string
		status    Status
		want      bool
	}{
		{name: "empty on success", condition: "", status: StatusSuccess, want: true},
		{name: "empty after failure", condition: "", status: StatusFailure, want: false},
		{name: "coverage guard on 3.8", condition: "${{ matrix.python-version == '3.8' }}", version: "3.8", want: true},
		{name: "coverage guard on 3.6", condition: "${{ matrix.python-version == '3.8' }}", version: "3.6", want: false},
		{name: "coverage guard on 3.7", condition: "matrix.python-version == '3.8'", version: "3.7", want: false},
		{name: "guard after failure is skipped", condition: "${{ matrix.python-version == '3.8' }}", version: "3.8", status: StatusFailure, want: false},
		{name: "always after failure", condition: "always()", status: StatusFailure, want: true},
		{name: "failure after failure", condition: "${{ failure() }}", status: StatusFailure, want: true},
		{name: "failure on success", condition: "failure()", status: StatusSuccess, want: false},
		{name: "combined status guard", condition: "always() && matrix.python-version == '3.8'", version: "3.8", status: StatusFailure, want: true},
		{name: "cancelled", condition: "cancelled()", status: StatusCancelled, want: true},
		{name: "not cancelled", condition: "!cancelled()", status: StatusFailure, want: true},
		{name: "mixed text is a non-empty string", condition: "${{ false }} extra", want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := NewContext()
			ctx.Status = tt.status
			ctx.Values["matrix"] = map[string]string{"python-version": tt.version}

			got, err := EvaluateCondition(tt.condition, ctx)
			if err != nil {
				t.Fatalf("EvaluateCondition() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("EvaluateCondition(%q) = %v, want %v", tt.condition, got, tt.want)
			}
		})
	}
}

func TestInterpolate(t *testing.T) {
	ctx := testContext()

	tests := []struct {
		input    string
		want     string
		errorMsg string
	}{
		{input: "no expressions", want: "no expressions"},
		{input: "${{ matrix.python-version }}", want: "3.8"},
		{input: "py${{ matrix.python-version }} on ${{ runner.os }}", want: "py3.8 on Linux"},
		{input: "${{ '}}' }}", want: "}}"},
		{input: "${{ 1 == 1 }}", want: "true"},
		{input: "${{ 3 }}", want: "3"},
		{input: "${{ matrix.python-version", errorMsg: "unclosed expression"},
		{input: "${{ nope.x }}", errorMsg: "unrecognized named-value"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := Interpolate(tt.input, ctx)
			if tt.errorMsg != "" {
				if err == nil || !strings.Contains(err.Error(), tt.errorMsg) {
					t.Errorf("Interpolate() error = %v, want %q", err, tt.errorMsg)
				}
				return
			}
			if err != nil {
				t.Fatalf("Interpolate() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Interpolate(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestInterpolateMap(t *testing.T) {
	got, err := InterpolateMap(map[string]string{
		"python-version": "${{ matrix.python-version }}",
		"lfs":            "true",
	}, testContext())
	if err != nil {
		t.Fatalf("InterpolateMap() error = %v", err)
	}
	if got["python-version"] != "3.8" || got["lfs"] != "true" {
		t.Errorf("InterpolateMap() = %v", got)
	}
}

func TestContextWith(t *testing.T) {
	base := testContext()
	derived := base.With("job", map[string]string{"status": "success"})

	if _, ok := base.Values["job"]; ok {
		t.Error("With() modified the receiver")
	}
	if got := evaluate(t, "job.status", derived); got != "success" {
		t.Errorf("job.status = %v", got)
	}
}

func TestTokenize(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"matrix.python-version == '3.8'", "identifier:matrix '.':. identifier:python-version '==':== string:'3.8'"},
		{"a&&!b||c", "identifier:a '&&':&& '!':! identifier:b '||':|| identifier:c"},
		{"x<=1 >= .5 != 0xff", "identifier:x '<=':<= number:1 '>=':>= number:.5 '!=':!= number:0xff"},
		{"f(a, b[0]).*", "identifier:f '(':( identifier:a ',':, identifier:b '[':[ number:0 ']':] ')':) '.':. '*':*"},
		{"  'it''s'  ", "string:'it''s'"},
	}

	for _, tt := range tests {
		tokens, err := tokenize(tt.input)
		if err != nil {
			t.Errorf("tokenize(%q) error = %v", tt.input, err)
			continue
		}
		if last := tokens[len(tokens)-1]; last.kind != tokEOF || last.pos != len(tt.input) {
			t.Errorf("tokenize(%q) does not end with EOF at %d", tt.input, len(tt.input))
		}
		var parts []string
		for _, tok := range tokens[:len(tokens)-1] {
			parts = append(parts, tok.kind.String()+":"+tok.text)
		}
		if got := strings.Join(parts, " "); got != tt.want {
			t.Errorf("tokenize(%q) = %s, want %s", tt.input, got, tt.want)
		}
	}

	tokens, err := tokenize("'it''s'")
	if err != nil || tokens[0].value != "it's" || tokens[0].pos != 0 {
		t.Errorf("tokenize string = %+v, %v", tokens, err)
	}
	if _, err := tokenize("'a''"); err == nil || !strings.Contains(err.Error(), "unterminated string") {
		t.Errorf("tokenize unterminated error = %v", err)
	}
	if _, err := tokenize("a # b"); err == nil || !strings.Contains(err.Error(), "unexpected character '#' at position 3") {
		t.Errorf("tokenize bad character error = %v", err)
	}
}
