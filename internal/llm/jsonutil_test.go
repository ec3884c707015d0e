package llm

import (
	"errors"
	"testing"

	"github.com/ashureev/studyplan/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		want   string
		wantOK bool
	}{
		{
			name:   "plain object",
			input:  `{"a": 1}`,
			want:   `{"a": 1}`,
			wantOK: true,
		},
		{
			name:   "prose around object",
			input:  "Here is the syllabus:\n{\"a\": {\"b\": 2}}\nLet me know if you need more.",
			want:   "{\"a\": {\"b\": 2}}",
			wantOK: true,
		},
		{
			name:   "markdown code block",
			input:  "```json\n{\"a\": 1}\n```",
			want:   "{\"a\": 1}",
			wantOK: true,
		},
		{
			name:   "first of two regions",
			input:  `first {"x": 1} then {"y": 2}`,
			want:   `{"x": 1}`,
			wantOK: true,
		},
		{
			name:   "braces inside strings",
			input:  `{"note": "use } and { freely", "ok": true} trailing }`,
			want:   `{"note": "use } and { freely", "ok": true}`,
			wantOK: true,
		},
		{
			name:   "escaped quote inside string",
			input:  `{"q": "say \"}\" now"} done`,
			want:   `{"q": "say \"}\" now"}`,
			wantOK: true,
		},
		{
			name:   "unclosed",
			input:  `{"a": 1`,
			wantOK: false,
		},
		{
			name:   "no braces",
			input:  "just words",
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ExtractJSON(tt.input)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeJSONRecoversObject(t *testing.T) {
	t.Parallel()

	text := "Sure! Here you go:\n" +
		`{"courseName":"CS101","assignments":[{"name":"Essay","dueDate":"2025-03-01","weight":20}],"readings":[],"exams":[]}` +
		"\nI hope this helps."

	var syl domain.Syllabus
	require.NoError(t, DecodeJSON(text, &syl))
	assert.Equal(t, "CS101", syl.CourseName)
	require.Len(t, syl.Assignments, 1)
	require.NotNil(t, syl.Assignments[0].Weight)
	assert.InDelta(t, 20.0, *syl.Assignments[0].Weight, 0)
}

func TestDecodeJSONFallsBackToWholeText(t *testing.T) {
	t.Parallel()

	// No object at all, but the whole text is a valid JSON value.
	var v []int
	require.NoError(t, DecodeJSON(" [1, 2, 3] ", &v))
	assert.Equal(t, []int{1, 2, 3}, v)
}

func TestDecodeJSONFailures(t *testing.T) {
	t.Parallel()

	inputs := map[string]string{
		"no json":            "I could not find any assignments.",
		"malformed in braces": `Result: {"courseName": "CS101", "assignments": [,]}`,
		"trailing comma":     `{"courseName": "CS101",}`,
		"empty":              "",
		"wrong type":         `{"courseName": 42}`,
	}
	for name, in := range inputs {
		var syl domain.Syllabus
		err := DecodeJSON(in, &syl)
		require.Error(t, err, name)
		assert.ErrorIs(t, err, domain.ErrExtractionParse, name)

		var perr *domain.ParseError
		require.True(t, errors.As(err, &perr), name)
		assert.Equal(t, in, perr.Text, name)
	}
}
