// Package prompt builds the fixed prompts sent to on-device and cloud models.
// Every function is pure: the same payload always yields the same prompt.
package prompt

import (
	"encoding/json"
	"strings"

	"github.com/flynn-ai/critic/pkg/protocol"
)

// LocalCritique builds the on-device critique prompt. The reply is plain text.
func LocalCritique(topics []protocol.CritiqueTopic) string {
	return "You are a world-renowned art critic. Provide a general critique focusing on the following topics: " +
		joinTopics(topics) + ". You must respond in plain text."
}

// LocalPalette builds the on-device palette prompt. The local channel cannot
// see the image, so this attempt is expected to fail parsing and fall back.
func LocalPalette() string {
	return "You are an expert color theorist. Analyze the provided image and extract a color palette. Return ONLY a valid JSON object."
}

// LocalRecipes builds the on-device mixing recipe prompt.
func LocalRecipes(p protocol.Palette) string {
	sections := []string{
		"You are a master painter and colorist. Your task is to create plausible paint mixing recipes for the given list of colors.",
		"For EACH color provided, create a recipe using 1 to 3 common base paint colors (e.g., 'Titanium White', 'Phthalo Blue').",
		"The percentages for each recipe MUST sum to exactly 100%.",
		"Return ONLY a valid JSON array matching this exact schema: " + recipeSchemaHint,
		"Color Palette:",
		paletteJSON(p),
	}
	return strings.Join(sections, "\n")
}

const recipeSchemaHint = `[{ "extractedColor": { "name": "...", "hex": "..." }, "recipe": [{ "name": "...", "percent": ... }] }]`

func joinTopics(topics []protocol.CritiqueTopic) string {
	return strings.Join(protocol.TopicStrings(topics), ", ")
}

func paletteJSON(p protocol.Palette) string {
	// Nil groups must still encode as arrays
	normalized := protocol.Palette{
		Primary:   nonNil(p.Primary),
		Secondary: nonNil(p.Secondary),
		Tertiary:  nonNil(p.Tertiary),
	}
	data, err := json.Marshal(normalized)
	if err != nil {
		return "{}"
	}
	return string(data)
}

func nonNil(colors []protocol.Color) []protocol.Color {
	if colors == nil {
		return []protocol.Color{}
	}
	return colors
}
