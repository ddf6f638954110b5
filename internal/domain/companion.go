// Package domain contains core domain types for the CyberLover application.
package domain

// CompanionType is one of the five fixed persona categories.
type CompanionType string

const (
	CompanionFriendly     CompanionType = "friendly"
	CompanionCool         CompanionType = "cool"
	CompanionNaughty      CompanionType = "naughty"
	CompanionRomantic     CompanionType = "romantic"
	CompanionIntellectual CompanionType = "intellectual"
)

// CompanionTypes lists every valid companion type in display order.
var CompanionTypes = []CompanionType{
	CompanionFriendly,
	CompanionCool,
	CompanionNaughty,
	CompanionRomantic,
	CompanionIntellectual,
}

// Valid reports whether t is one of the five known companion types.
func (t CompanionType) Valid() bool {
	switch t {
	case CompanionFriendly, CompanionCool, CompanionNaughty, CompanionRomantic, CompanionIntellectual:
		return true
	}
	return false
}

// Gender selects the companion's presentation.
type Gender string

const (
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
)

// Valid reports whether g is a known gender value.
func (g Gender) Valid() bool {
	return g == GenderMale || g == GenderFemale
}

// CompanionSelection is the session-scoped companion configuration.
// The zero value (empty type) means no companion has been chosen yet.
type CompanionSelection struct {
	Type   CompanionType `json:"type"`
	Gender Gender        `json:"gender"`
}

// CompanionInfo describes a companion card shown by the selector UI.
type CompanionInfo struct {
	Type        CompanionType `json:"type"`
	Name        string        `json:"name"`
	Description string        `json:"description"`
}

// CompanionCatalog is the fixed set of companion cards.
var CompanionCatalog = []CompanionInfo{
	{
		Type:        CompanionFriendly,
		Name:        "Friendly",
		Description: "A supportive and kind companion who's always there to listen and offer encouragement.",
	},
	{
		Type:        CompanionCool,
		Name:        "Cool",
		Description: "Laid-back, confident, and always knows what's trending. Will make you feel part of the in-crowd.",
	},
	{
		Type:        CompanionNaughty,
		Name:        "Naughty",
		Description: "Flirtatious, suggestive, and playfully mischievous. Perfect for those who want spicier conversations.",
	},
	{
		Type:        CompanionRomantic,
		Name:        "Romantic",
		Description: "Deeply affectionate, sentimental, and emotionally attuned. Will make you feel cherished and loved.",
	},
	{
		Type:        CompanionIntellectual,
		Name:        "Intellectual",
		Description: "Thoughtful, analytical, and knowledgeable. Engage in deep conversations about any topic.",
	},
}
