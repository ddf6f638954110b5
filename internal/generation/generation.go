// Package generation wraps the external text-generation API.
package generation

import (
	"context"
	"log/slog"

	"github.com/cyberlover-ai/cyberlover/internal/domain"
	"github.com/cyberlover-ai/cyberlover/internal/persona"
)

// FallbackReply is returned whenever the generation API fails. Errors never
// propagate past this package.
const FallbackReply = "I'm having a little trouble finding the right words right now... tell me that again?"

// Request carries one generation call: the persona system context, the
// user's message, and the persona's safety and sampling configuration.
type Request struct {
	SystemContext string
	Message       string
	Safety        []persona.SafetySetting
	Sampling      persona.SamplingConfig
}

// Generator issues a single request to the external generative-text API.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
	Close() error
}

// Service orchestrates prompt composition and generation for a companion
// selection.
type Service struct {
	gen Generator
}

// NewService creates a generation service around the given generator.
func NewService(gen Generator) *Service {
	return &Service{gen: gen}
}

// Reply builds the persona context and configuration for the selection and
// generates a response to message. Any generator failure is logged and
// converted into the fixed fallback reply.
func (s *Service) Reply(ctx context.Context, message string, sel domain.CompanionSelection) string {
	req := Request{
		SystemContext: persona.BuildContext(sel.Type, sel.Gender),
		Message:       message,
		Safety:        persona.BuildSafetyConfig(sel.Type),
		Sampling:      persona.BuildSamplingConfig(sel.Type),
	}

	text, err := s.gen.Generate(ctx, req)
	if err != nil {
		slog.Error("Generation request failed", "companion_type", sel.Type, "error", err)
		return FallbackReply
	}
	if text == "" {
		slog.Warn("Generation returned empty response", "companion_type", sel.Type)
		return FallbackReply
	}
	return text
}

// Close releases generator resources.
func (s *Service) Close() {
	if s.gen == nil {
		return
	}
	if err := s.gen.Close(); err != nil {
		slog.Warn("Failed to close generator", "error", err)
	}
}
