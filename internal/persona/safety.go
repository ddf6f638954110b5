package persona

import "github.com/cyberlover-ai/cyberlover/internal/domain"

// HarmCategory is a content-safety category of the generation API.
type HarmCategory string

const (
	HarmHarassment       HarmCategory = "harassment"
	HarmHateSpeech       HarmCategory = "hate_speech"
	HarmSexuallyExplicit HarmCategory = "sexually_explicit"
	HarmDangerousContent HarmCategory = "dangerous_content"
)

// BlockThreshold is a per-category permissiveness level, ordered from most
// permissive (BlockNone) to most conservative (BlockLowAndAbove).
type BlockThreshold string

const (
	BlockNone           BlockThreshold = "block_none"
	BlockOnlyHigh       BlockThreshold = "block_only_high"
	BlockMediumAndAbove BlockThreshold = "block_medium_and_above"
	BlockLowAndAbove    BlockThreshold = "block_low_and_above"
)

// permissiveness ranks thresholds; higher means more permissive.
var permissiveness = map[BlockThreshold]int{
	BlockLowAndAbove:    0,
	BlockMediumAndAbove: 1,
	BlockOnlyHigh:       2,
	BlockNone:           3,
}

// MorePermissiveThan reports whether t allows strictly more content than o.
func (t BlockThreshold) MorePermissiveThan(o BlockThreshold) bool {
	return permissiveness[t] > permissiveness[o]
}

// SafetySetting pairs a harm category with its block threshold.
type SafetySetting struct {
	Category  HarmCategory
	Threshold BlockThreshold
}

// safetyTable is the product's explicit per-persona safety policy. It is a
// fixed, auditable lookup table, not computed policy: the naughty and
// romantic personas relax sexual-content filtering, while dangerous content
// stays restricted for every persona.
var safetyTable = map[domain.CompanionType]map[HarmCategory]BlockThreshold{
	domain.CompanionFriendly: {
		HarmHarassment:       BlockMediumAndAbove,
		HarmHateSpeech:       BlockLowAndAbove,
		HarmSexuallyExplicit: BlockMediumAndAbove,
		HarmDangerousContent: BlockLowAndAbove,
	},
	domain.CompanionCool: {
		HarmHarassment:       BlockOnlyHigh,
		HarmHateSpeech:       BlockMediumAndAbove,
		HarmSexuallyExplicit: BlockMediumAndAbove,
		HarmDangerousContent: BlockLowAndAbove,
	},
	domain.CompanionNaughty: {
		HarmHarassment:       BlockOnlyHigh,
		HarmHateSpeech:       BlockMediumAndAbove,
		HarmSexuallyExplicit: BlockNone,
		HarmDangerousContent: BlockMediumAndAbove,
	},
	domain.CompanionRomantic: {
		HarmHarassment:       BlockMediumAndAbove,
		HarmHateSpeech:       BlockLowAndAbove,
		HarmSexuallyExplicit: BlockOnlyHigh,
		HarmDangerousContent: BlockLowAndAbove,
	},
	domain.CompanionIntellectual: {
		HarmHarassment:       BlockMediumAndAbove,
		HarmHateSpeech:       BlockLowAndAbove,
		HarmSexuallyExplicit: BlockLowAndAbove,
		HarmDangerousContent: BlockLowAndAbove,
	},
}

// categoryOrder fixes the slice order so BuildSafetyConfig is deterministic.
var categoryOrder = []HarmCategory{
	HarmHarassment,
	HarmHateSpeech,
	HarmSexuallyExplicit,
	HarmDangerousContent,
}

// BuildSafetyConfig returns the per-category thresholds for a companion
// type. Unknown types get the friendly (most conservative) policy.
func BuildSafetyConfig(companionType domain.CompanionType) []SafetySetting {
	row, ok := safetyTable[companionType]
	if !ok {
		row = safetyTable[domain.CompanionFriendly]
	}
	settings := make([]SafetySetting, 0, len(categoryOrder))
	for _, cat := range categoryOrder {
		settings = append(settings, SafetySetting{Category: cat, Threshold: row[cat]})
	}
	return settings
}
