package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name     string
		response string
		want     string
	}{
		{
			name:     "bare object",
			response: `{"score": 5}`,
			want:     `{"score": 5}`,
		},
		{
			name:     "surrounded by prose",
			response: `Sure! Here is my verdict: {"score": 5} Hope that helps.`,
			want:     `{"score": 5}`,
		},
		{
			name:     "json code fence",
			response: "```json\n{\"score\": 5}\n```",
			want:     `{"score": 5}`,
		},
		{
			name:     "generic code fence",
			response: "```\n{\"score\": 5}\n```",
			want:     `{"score": 5}`,
		},
		{
			name:     "nested objects",
			response: `{"a": {"b": 1}, "c": "x"}`,
			want:     `{"a": {"b": 1}, "c": "x"}`,
		},
		{
			name:     "braces inside strings",
			response: `{"reasoning": "uses {curly} braces", "score": 3}`,
			want:     `{"reasoning": "uses {curly} braces", "score": 3}`,
		},
		{
			name:     "no json at all",
			response: "I cannot answer that.",
			want:     "",
		},
		{
			name:     "unterminated object",
			response: `{"score": 5`,
			want:     "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractJSON(tt.response))
		})
	}
}

func TestFirstNumber(t *testing.T) {
	tests := []struct {
		name     string
		response string
		wantVal  float64
		wantOK   bool
	}{
		{"integer", "score: 7 of 10", 7, true},
		{"decimal", "roughly 8.5 points", 8.5, true},
		{"clamped high", "I rate it 42", 10, true},
		{"clamped low", "-3 at best", 0, true},
		{"no number", "splendid work", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			val, ok := FirstNumber(tt.response, 0, 10)
			assert.Equal(t, tt.wantOK, ok)
			if ok {
				assert.InDelta(t, tt.wantVal, val, 1e-9)
			}
		})
	}
}
