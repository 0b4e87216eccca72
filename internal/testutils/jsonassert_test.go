package testutils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestJSONAsserter(t *testing.T) {
	tests := []struct {
		name     string
		opts     []JSONOption
		actual   string
		expected string
		match    bool
	}{
		{
			name:     "equal objects",
			actual:   `{"outcome":"eof","bytes":300}`,
			expected: `{"bytes":300,"outcome":"eof"}`,
			match:    true,
		},
		{
			name:     "extra keys ignored by default",
			actual:   `{"outcome":"eof","bytes":300,"elapsed_ms":12}`,
			expected: `{"outcome":"eof"}`,
			match:    true,
		},
		{
			name:     "extra keys reported when strict",
			opts:     []JSONOption{WithIgnoreExtraKeys(false)},
			actual:   `{"outcome":"eof","elapsed_ms":12}`,
			expected: `{"outcome":"eof"}`,
			match:    false,
		},
		{
			name:     "different value",
			actual:   `{"outcome":"timeout"}`,
			expected: `{"outcome":"eof"}`,
			match:    false,
		},
		{
			name:     "presence placeholder",
			actual:   `{"stream_id":"0b6f","outcome":"eof"}`,
			expected: `{"stream_id":"<<PRESENCE>>","outcome":"eof"}`,
			match:    true,
		},
		{
			name:     "presence needs the key",
			actual:   `{"outcome":"eof"}`,
			expected: `{"stream_id":"<<PRESENCE>>","outcome":"eof"}`,
			match:    false,
		},
		{
			name:     "ignored fields at depth",
			opts:     []JSONOption{WithIgnoreExtraKeys(false), WithIgnoredFields("at")},
			actual:   `[{"op":"write","at":"10:00"},{"op":"read","at":"10:01"}]`,
			expected: `[{"op":"write"},{"op":"read"}]`,
			match:    true,
		},
		{
			name:     "array length differs",
			actual:   `[{"op":"write"}]`,
			expected: `[{"op":"write"},{"op":"read"}]`,
			match:    false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rt := &recordingT{}
			ok := NewJSONAsserter(rt, tt.opts...).Assert(tt.actual, tt.expected)
			assert.Equal(t, tt.match, ok)
			assert.Equal(t, !tt.match, len(rt.errors) == 1)
		})
	}
}

func TestJSONAsserter_InvalidInput(t *testing.T) {
	ja := NewJSONAsserter(&recordingT{})
	assert.Contains(t, ja.Diff(`{`, `{}`), "invalid actual JSON")
	assert.Contains(t, ja.Diff(`{}`, `nope`), "invalid expected JSON")
}
