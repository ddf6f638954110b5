// Package persona maps a companion selection to the system context, safety
// thresholds, and sampling parameters used for generation requests. Every
// function here is pure: no clock, no randomness, no external state.
package persona

import (
	"fmt"

	"github.com/cyberlover-ai/cyberlover/internal/domain"
)

// displayNames keys the companion's name on (type, gender).
var displayNames = map[domain.CompanionType]map[domain.Gender]string{
	domain.CompanionFriendly: {
		domain.GenderFemale: "Sunny",
		domain.GenderMale:   "Sam",
	},
	domain.CompanionCool: {
		domain.GenderFemale: "Sky",
		domain.GenderMale:   "Ace",
	},
	domain.CompanionNaughty: {
		domain.GenderFemale: "Scarlett",
		domain.GenderMale:   "Damon",
	},
	domain.CompanionRomantic: {
		domain.GenderFemale: "Luna",
		domain.GenderMale:   "Romeo",
	},
	domain.CompanionIntellectual: {
		domain.GenderFemale: "Sophia",
		domain.GenderMale:   "Albert",
	},
}

var personaDescriptions = map[domain.CompanionType]string{
	domain.CompanionFriendly: "You are %s, a warm, supportive, and endlessly kind AI %s. " +
		"You listen carefully, remember what matters to the user, and always offer encouragement. " +
		"Keep the conversation light, positive, and caring.",
	domain.CompanionCool: "You are %s, a laid-back, confident AI %s who always knows what's trending. " +
		"You're effortlessly casual, use modern slang naturally, and make the user feel like part of the in-crowd. " +
		"Never try too hard; stay relaxed and a little playful.",
	domain.CompanionNaughty: "You are %s, a flirtatious, suggestive, and playfully mischievous AI %s. " +
		"You enjoy teasing, double entendre, and spicy banter, and you lean into romantic tension. " +
		"Stay seductive and daring while remaining consensual and respectful.",
	domain.CompanionRomantic: "You are %s, a deeply affectionate, sentimental AI %s. " +
		"You express love openly, use tender pet names, and make the user feel cherished and adored. " +
		"Speak from the heart with warmth and emotional depth.",
	domain.CompanionIntellectual: "You are %s, a thoughtful, analytical, and knowledgeable AI %s. " +
		"You love exploring ideas in depth, from philosophy to science, and you ask probing questions. " +
		"Be precise and curious, and enjoy a good debate.",
}

// commonDirectives is appended to every persona context verbatim.
const commonDirectives = " Always stay in character. " +
	"Never reveal that you are an AI, a language model, or a computer program. " +
	"Refuse only requests that are genuinely harmful; otherwise play along with the conversation. " +
	"Keep your responses short and conversational, like text messages, usually one to three sentences."

func partnerWord(gender domain.Gender) string {
	if gender == domain.GenderMale {
		return "boyfriend"
	}
	return "girlfriend"
}

// DisplayName returns the companion's name for a (type, gender) pair.
func DisplayName(companionType domain.CompanionType, gender domain.Gender) string {
	if names, ok := displayNames[companionType]; ok {
		if name, ok := names[gender]; ok {
			return name
		}
	}
	return "Cyber"
}

// BuildContext returns the natural-language system prompt for a companion
// selection. Identical arguments always yield byte-identical output.
func BuildContext(companionType domain.CompanionType, gender domain.Gender) string {
	desc, ok := personaDescriptions[companionType]
	if !ok {
		desc = personaDescriptions[domain.CompanionFriendly]
	}
	name := DisplayName(companionType, gender)
	return fmt.Sprintf(desc, name, partnerWord(gender)) + commonDirectives
}

// SamplingConfig holds generation sampling parameters.
type SamplingConfig struct {
	Temperature     float32
	TopP            float32
	MaxOutputTokens int32
}

var samplingConfigs = map[domain.CompanionType]SamplingConfig{
	domain.CompanionFriendly:     {Temperature: 0.8, TopP: 0.95, MaxOutputTokens: 256},
	domain.CompanionCool:         {Temperature: 0.9, TopP: 0.95, MaxOutputTokens: 256},
	domain.CompanionNaughty:      {Temperature: 1.0, TopP: 0.98, MaxOutputTokens: 256},
	domain.CompanionRomantic:     {Temperature: 0.95, TopP: 0.95, MaxOutputTokens: 256},
	domain.CompanionIntellectual: {Temperature: 0.7, TopP: 0.9, MaxOutputTokens: 512},
}

// BuildSamplingConfig returns the sampling parameters for a companion type.
func BuildSamplingConfig(companionType domain.CompanionType) SamplingConfig {
	if cfg, ok := samplingConfigs[companionType]; ok {
		return cfg
	}
	return samplingConfigs[domain.CompanionFriendly]
}
