package generation

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"github.com/cyberlover-ai/cyberlover/internal/persona"
)

// DefaultModel is the generation model used when none is configured.
const DefaultModel = "gemini-1.5-flash"

// GeminiGenerator implements Generator against the Gemini API.
type GeminiGenerator struct {
	client *genai.Client
	model  string
}

// NewGemini creates a Gemini-backed generator.
func NewGemini(ctx context.Context, apiKey, model string) (*GeminiGenerator, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if model == "" {
		model = DefaultModel
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}

	return &GeminiGenerator{client: client, model: model}, nil
}

// Generate issues one generateContent call with the request's system
// context, safety thresholds, and sampling parameters.
func (g *GeminiGenerator) Generate(ctx context.Context, req Request) (string, error) {
	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(req.SystemContext, genai.RoleUser),
		SafetySettings:    toGenaiSafety(req.Safety),
		Temperature:       genai.Ptr(req.Sampling.Temperature),
		TopP:              genai.Ptr(req.Sampling.TopP),
		MaxOutputTokens:   req.Sampling.MaxOutputTokens,
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(req.Message), cfg)
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}

	return resp.Text(), nil
}

// Close releases client resources. The Gemini client holds no connection
// state that needs closing.
func (g *GeminiGenerator) Close() error {
	return nil
}

var harmCategories = map[persona.HarmCategory]genai.HarmCategory{
	persona.HarmHarassment:       genai.HarmCategoryHarassment,
	persona.HarmHateSpeech:       genai.HarmCategoryHateSpeech,
	persona.HarmSexuallyExplicit: genai.HarmCategorySexuallyExplicit,
	persona.HarmDangerousContent: genai.HarmCategoryDangerousContent,
}

var blockThresholds = map[persona.BlockThreshold]genai.HarmBlockThreshold{
	persona.BlockNone:           genai.HarmBlockThresholdBlockNone,
	persona.BlockOnlyHigh:       genai.HarmBlockThresholdBlockOnlyHigh,
	persona.BlockMediumAndAbove: genai.HarmBlockThresholdBlockMediumAndAbove,
	persona.BlockLowAndAbove:    genai.HarmBlockThresholdBlockLowAndAbove,
}

func toGenaiSafety(settings []persona.SafetySetting) []*genai.SafetySetting {
	out := make([]*genai.SafetySetting, 0, len(settings))
	for _, s := range settings {
		category, ok := harmCategories[s.Category]
		if !ok {
			continue
		}
		threshold, ok := blockThresholds[s.Threshold]
		if !ok {
			threshold = genai.HarmBlockThresholdBlockLowAndAbove
		}
		out = append(out, &genai.SafetySetting{Category: category, Threshold: threshold})
	}
	return out
}
