// Package vision grades UI challenges by asking a multimodal model to
// compare a reference design image against generated markup.
package vision

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/api/googleapi"
	"google.golang.org/genai"

	"github.com/arenalabs/go-arena/infrastructure/llm"
	"github.com/arenalabs/go-arena/internal/ports"
	"github.com/arenalabs/go-arena/internal/scoring"
)

// DefaultModel is the multimodal model used when none is configured.
const DefaultModel = "gemini-2.0-flash"

const comparePrompt = `You are a meticulous UI reviewer. Compare the attached reference
design image against the generated implementation below and judge how
closely the implementation reproduces the design.

Challenge description:
%s

Generated implementation:
%s

Respond with ONLY a JSON object in this exact format:
{
  "similarity": <float 0.0-1.0>,
  "feedback": "<one or two sentences>",
  "overall_match": <bool>,
  "element_match": <bool>,
  "layout_match": <bool>,
  "color_match": <bool>,
  "typography_match": <bool>
}`

// GeminiComparer implements ports.VisionComparer using Google's Gemini
// multimodal API.
type GeminiComparer struct {
	client     *genai.Client
	model      string
	logger     *zap.Logger
	classifier *llm.ErrorClassifier
}

var _ ports.VisionComparer = (*GeminiComparer)(nil)

// NewGeminiComparer creates a comparer authenticated with the given API
// key. An empty model selects DefaultModel.
func NewGeminiComparer(ctx context.Context, apiKey, model string, logger *zap.Logger) (*GeminiComparer, error) {
	if apiKey == "" {
		return nil, llm.ErrEmptyAPIKey
	}
	if model == "" {
		model = DefaultModel
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiComparer{
		client:     client,
		model:      model,
		logger:     logger,
		classifier: &llm.ErrorClassifier{Provider: "google"},
	}, nil
}

// Compare implements ports.VisionComparer. The reference image may be a
// URL, a data URI, or raw base64-encoded image bytes.
func (c *GeminiComparer) Compare(ctx context.Context, referenceImage, generated, description string) (ports.VisionResult, error) {
	imagePart, err := buildImagePart(referenceImage)
	if err != nil {
		return ports.VisionResult{}, fmt.Errorf("invalid reference image: %w", err)
	}

	prompt := fmt.Sprintf(comparePrompt, description, generated)
	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			imagePart,
			genai.NewPartFromText(prompt),
		}, genai.RoleUser),
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.model, contents, nil)
	if err != nil {
		return ports.VisionResult{}, c.handleError(err)
	}

	verdict, err := parseVerdict(resp.Text())
	if err != nil {
		c.logger.Warn("vision judge returned unparseable verdict",
			zap.String("model", c.model),
			zap.Error(err))
		return ports.VisionResult{}, err
	}

	return verdict, nil
}

// buildImagePart converts the reference image reference into a genai
// part. Supported forms: http(s) URL, data URI, raw base64.
func buildImagePart(referenceImage string) (*genai.Part, error) {
	referenceImage = strings.TrimSpace(referenceImage)
	if referenceImage == "" {
		return nil, fmt.Errorf("reference image is empty")
	}

	if strings.HasPrefix(referenceImage, "http://") || strings.HasPrefix(referenceImage, "https://") {
		return genai.NewPartFromURI(referenceImage, mimeTypeFor(referenceImage)), nil
	}

	mimeType := "image/png"
	payload := referenceImage
	if strings.HasPrefix(referenceImage, "data:") {
		header, rest, ok := strings.Cut(referenceImage, ",")
		if !ok {
			return nil, fmt.Errorf("malformed data URI")
		}
		payload = rest
		if mt, found := strings.CutPrefix(header, "data:"); found {
			mimeType = strings.TrimSuffix(mt, ";base64")
		}
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return genai.NewPartFromBytes(data, mimeType), nil
}

// mimeTypeFor guesses the image MIME type from a URL's extension.
func mimeTypeFor(url string) string {
	switch {
	case strings.HasSuffix(url, ".jpg"), strings.HasSuffix(url, ".jpeg"):
		return "image/jpeg"
	case strings.HasSuffix(url, ".webp"):
		return "image/webp"
	case strings.HasSuffix(url, ".gif"):
		return "image/gif"
	default:
		return "image/png"
	}
}

// parseVerdict extracts the structured verdict from judge output,
// tolerating code fences and surrounding prose. Similarity is clamped
// to [0,1].
func parseVerdict(text string) (ports.VisionResult, error) {
	jsonStr := scoring.ExtractJSON(text)
	if jsonStr == "" {
		return ports.VisionResult{}, fmt.Errorf("no JSON object in judge response")
	}

	var verdict ports.VisionResult
	if err := json.Unmarshal([]byte(jsonStr), &verdict); err != nil {
		return ports.VisionResult{}, fmt.Errorf("parse judge response: %w", err)
	}

	if verdict.Similarity < 0 {
		verdict.Similarity = 0
	}
	if verdict.Similarity > 1 {
		verdict.Similarity = 1
	}
	return verdict, nil
}

// handleError converts API failures into classified provider errors.
func (c *GeminiComparer) handleError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return c.classifier.ClassifyContextError(err)
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return c.classifier.ClassifyHTTPError(apiErr.Code, apiErr.Message, err)
	}

	return fmt.Errorf("vision comparison failed: %w", err)
}
