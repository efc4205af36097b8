package runner

import (
	"bytes"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKeyValueFile(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		want    map[string]string
		wantErr string
	}{
		{
			name: "empty",
			data: "",
			want: map[string]string{},
		},
		{
			name: "simple values",
			data: "A=1\nB=two words\n\nC=\n",
			want: map[string]string{"A": "1", "B": "two words", "C": ""},
		},
		{
			name: "value containing equals",
			data: "URL=https://example.com/?a=b\n",
			want: map[string]string{"URL": "https://example.com/?a=b"},
		},
		{
			name: "later value wins",
			data: "A=1\nA=2\n",
			want: map[string]string{"A": "2"},
		},
		{
			name: "heredoc",
			data: "NOTES<<EOF\nfirst\nsecond\nEOF\nNEXT=x\n",
			want: map[string]string{"NOTES": "first\nsecond", "NEXT": "x"},
		},
		{
			name: "heredoc body containing equals",
			data: "CMD<<END\nA=B\nEND\n",
			want: map[string]string{"CMD": "A=B"},
		},
		{
			name: "crlf line endings",
			data: "A=1\r\nB=2\r\n",
			want: map[string]string{"A": "1", "B": "2"},
		},
		{
			name:    "unterminated heredoc",
			data:    "NOTES<<EOF\nfirst\n",
			wantErr: "missing its closing delimiter",
		},
		{
			name:    "empty delimiter",
			data:    "NOTES<<\n",
			wantErr: "empty delimiter",
		},
		{
			name:    "no separator",
			data:    "JUSTTEXT\n",
			wantErr: "expected NAME=value",
		},
		{
			name:    "missing name",
			data:    "=value\n",
			wantErr: "expected NAME=value",
		},
		{
			name:    "name with space",
			data:    "MY VAR=1\n",
			wantErr: "invalid name",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseKeyValueFile(tt.data)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParsePathFile(t *testing.T) {
	assert.Equal(t, []string{"/opt/a", "/opt/b"}, parsePathFile("/opt/a\n\n  /opt/b  \n"))
	assert.Empty(t, parsePathFile(""))
}

func TestPrefixWriter(t *testing.T) {
	var mu sync.Mutex
	var out bytes.Buffer
	w := newPrefixWriter(&mu, &out, "[lint] ")

	_, err := w.Write([]byte("one\ntw"))
	require.NoError(t, err)
	assert.Equal(t, "[lint] one\n", out.String())

	_, err = w.Write([]byte("o\nthree"))
	require.NoError(t, err)
	assert.Equal(t, "[lint] one\n[lint] two\n", out.String())

	require.NoError(t, w.Flush())
	assert.Equal(t, "[lint] one\n[lint] two\n[lint] three\n", out.String())

	require.NoError(t, w.Flush())
	assert.Equal(t, "[lint] one\n[lint] two\n[lint] three\n", out.String())
}

func TestLogName(t *testing.T) {
	tests := []struct {
		index int
		name  string
		want  string
	}{
		{0, "Test with tox", "01-test-with-tox.log"},
		{9, "Run actions/checkout@v2", "10-run-actions-checkout-v2.log"},
		{2, "!!!", "03-step.log"},
		{0, "A very long step name that keeps on going well past forty characters", "01-a-very-long-step-name-that-keeps-on-goin.log"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, logName(tt.index, tt.name))
		})
	}
}

func TestConclude(t *testing.T) {
	assert.Equal(t, Success, conclude(nil))
	assert.Equal(t, Success, conclude([]Conclusion{Success, Skipped}))
	assert.Equal(t, Cancelled, conclude([]Conclusion{Success, Cancelled}))
	assert.Equal(t, Failure, conclude([]Conclusion{Cancelled, Failure, Success}))
}

func TestNeedResult(t *testing.T) {
	results := func(conclusions ...Conclusion) []*JobResult {
		var out []*JobResult
		for _, c := range conclusions {
			out = append(out, &JobResult{Conclusion: c})
		}
		return out
	}

	assert.Equal(t, Skipped, needResult(nil))
	assert.Equal(t, Skipped, needResult(results(Skipped, Skipped)))
	assert.Equal(t, Success, needResult(results(Success, Skipped)))
	assert.Equal(t, Failure, needResult(results(Success, Failure, Success)))
}

func TestResultRegistryForJob(t *testing.T) {
	registry := NewResultRegistry()
	registry.Record(&JobResult{Key: "build/10", JobID: "build"})
	registry.Record(&JobResult{Key: "build/2", JobID: "build"})
	registry.Record(&JobResult{Key: "lint/1", JobID: "lint"})
	registry.Record(&JobResult{Key: "build/1", JobID: "build"})

	var keys []string
	for _, result := range registry.ForJob("build") {
		keys = append(keys, result.Key)
	}
	assert.Equal(t, []string{"build/1", "build/2", "build/10"}, keys)
	assert.Len(t, registry.GetAll(), 4)

	_, ok := registry.Get("lint/1")
	assert.True(t, ok)
}
