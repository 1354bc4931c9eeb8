package vision

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseVerdict(t *testing.T) {
	tests := []struct {
		name           string
		response       string
		wantSimilarity float64
		wantMatch      bool
		wantErr        bool
	}{
		{
			name:           "bare object",
			response:       `{"similarity": 0.85, "feedback": "close match", "overall_match": true}`,
			wantSimilarity: 0.85,
			wantMatch:      true,
		},
		{
			name: "fenced json",
			response: "```json\n" +
				`{"similarity": 0.4, "feedback": "layout differs", "overall_match": false}` +
				"\n```",
			wantSimilarity: 0.4,
		},
		{
			name:           "surrounded by prose",
			response:       `Here is my verdict: {"similarity": 0.92, "overall_match": true} Thanks!`,
			wantSimilarity: 0.92,
			wantMatch:      true,
		},
		{
			name:           "similarity clamped high",
			response:       `{"similarity": 1.7, "overall_match": true}`,
			wantSimilarity: 1.0,
			wantMatch:      true,
		},
		{
			name:           "similarity clamped low",
			response:       `{"similarity": -0.3}`,
			wantSimilarity: 0.0,
		},
		{
			name:     "no json at all",
			response: "I think they look pretty similar.",
			wantErr:  true,
		},
		{
			name:     "malformed json",
			response: `{"similarity": "very",}`,
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verdict, err := parseVerdict(tt.response)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.wantSimilarity, verdict.Similarity, 1e-9)
			assert.Equal(t, tt.wantMatch, verdict.OverallMatch)
		})
	}
}

func TestBuildImagePart(t *testing.T) {
	t.Run("url passes through", func(t *testing.T) {
		part, err := buildImagePart("https://cdn.example.com/design.png")
		require.NoError(t, err)
		require.NotNil(t, part.FileData)
		assert.Equal(t, "https://cdn.example.com/design.png", part.FileData.FileURI)
		assert.Equal(t, "image/png", part.FileData.MIMEType)
	})

	t.Run("jpeg extension detected", func(t *testing.T) {
		part, err := buildImagePart("https://cdn.example.com/design.jpg")
		require.NoError(t, err)
		assert.Equal(t, "image/jpeg", part.FileData.MIMEType)
	})

	t.Run("data uri decoded", func(t *testing.T) {
		part, err := buildImagePart("data:image/jpeg;base64,aGVsbG8=")
		require.NoError(t, err)
		require.NotNil(t, part.InlineData)
		assert.Equal(t, []byte("hello"), part.InlineData.Data)
		assert.Equal(t, "image/jpeg", part.InlineData.MIMEType)
	})

	t.Run("raw base64 defaults to png", func(t *testing.T) {
		part, err := buildImagePart("aGVsbG8=")
		require.NoError(t, err)
		require.NotNil(t, part.InlineData)
		assert.Equal(t, "image/png", part.InlineData.MIMEType)
	})

	t.Run("empty rejected", func(t *testing.T) {
		_, err := buildImagePart("  ")
		require.Error(t, err)
	})

	t.Run("invalid base64 rejected", func(t *testing.T) {
		_, err := buildImagePart("not valid base64!!!")
		require.Error(t, err)
	})
}
