package prompt

import (
	"fmt"
	"strings"

	"github.com/flynn-ai/critic/pkg/protocol"
)

// CritiqueSystem is the persona for cloud critiques.
const CritiqueSystem = "You are 'CritiqueBot 5000', a highly advanced AI art critic. Your purpose is to provide a structured, concise, and impactful analysis of an artwork based on user-selected metrics."

// PaletteSystem is the persona for cloud palette extraction.
const PaletteSystem = "You are an expert color palette extractor. Analyze the image and extract the color palette."

// RecipesSystem is the persona for cloud recipe generation.
const RecipesSystem = "You are a master painter and colorist."

var expertLogic = map[protocol.CritiqueTopic][]string{
	protocol.TopicColorTheory: {
		"The specific color harmony (complementary, analogous, etc.).",
		"The dominant color temperature and its effect on mood.",
		"The use of saturation and contrast to create a focal point.",
	},
	protocol.TopicComposition: {
		"The primary focal point and how the eye is drawn to it.",
		"The balance of the piece (symmetrical, asymmetrical) and its effect on stability or tension.",
		"The use of leading lines, shapes, and negative space to create flow and depth.",
	},
	protocol.TopicExecution: {
		"The quality and nature of the brushwork or linework (e.g., expressive, controlled).",
		"The rendering of light and shadow to create form and texture.",
		"The apparent mastery and control over the chosen artistic medium.",
	},
	protocol.TopicOriginality: {
		"The uniqueness of the subject matter and concept.",
		"The stylistic influences and how they are combined.",
		"The presence of a distinct artistic voice or point of view.",
	},
}

// CloudCritique builds the cloud critique prompt. The image travels as an
// attachment alongside it.
func CloudCritique(topics []protocol.CritiqueTopic) string {
	var b strings.Builder
	b.WriteString("You MUST adhere to the following strict output format for EACH metric provided. Use Markdown.\n\n")
	b.WriteString("### {Metric Name}: {Score}/10\n")
	b.WriteString("**Key Insight:** A single, bolded sentence that summarizes the most critical observation for this metric.\n")
	b.WriteString("**Justification:** A brief, 2-3 sentence explanation that supports your score and key insight. ")
	b.WriteString("Use the expert logic provided below to inform your justification. ")
	b.WriteString("Do not be conversational or use filler words. Be direct and objective.\n\n---\n\n")
	b.WriteString("**EXPERT LOGIC FOR ANALYSIS:**\n")

	// Only the selected topics, in the order the user picked them
	for _, topic := range topics {
		fmt.Fprintf(&b, "\n**When analyzing %s, you must consider:**\n", topic)
		for _, line := range expertLogic[topic] {
			b.WriteString("- " + line + "\n")
		}
	}

	b.WriteString("\n---\n\n")
	fmt.Fprintf(&b, "Now, analyze the provided image. The user has selected the following metrics for critique: **%s**.\n\n", joinTopics(topics))
	b.WriteString("Begin your critique now.\n")
	return b.String()
}

// CloudPalette builds the cloud palette extraction prompt.
func CloudPalette() string {
	sections := []string{
		"You are an expert color theorist with a deep knowledge of traditional art pigments. Analyze the provided image and identify the 10 most prominent colors.",
		"Categorize these colors into primary, secondary, and tertiary groups based on their role in the artwork. For each color, you MUST provide:",
		"- A common, artist-friendly name (e.g., 'Cadmium Red', 'Ultramarine Blue', 'Yellow Ochre').",
		"- The color's hex code.",
		"",
		`Return ONLY a valid JSON object matching this exact schema: { "primary": [{ "name": "...", "hex": "..." }], "secondary": [...], "tertiary": [...] }`,
	}
	return strings.Join(sections, "\n")
}

// CloudRecipes builds the cloud recipe prompt, listing each color by group.
func CloudRecipes(p protocol.Palette) string {
	var b strings.Builder
	b.WriteString("Your task is to create plausible paint mixing recipes for a given list of colors.\n\n")
	b.WriteString("For EACH color provided in the input, do the following:\n\n")
	b.WriteString("Create a recipe using 1 to 3 common base paint colors (e.g., 'Titanium White', 'Phthalo Blue', 'Alizarin Crimson').\n")
	b.WriteString("Assign a percentage to each base color. The percentages for each recipe MUST sum to exactly 100%. ")
	b.WriteString("For example, a valid recipe for 'Lavender' might be: 'Ultramarine Blue' 10%, 'Alizarin Crimson' 40%, 'Titanium White' 50%.\n")
	b.WriteString("Use only artist-friendly names for all paints.\n\n")
	b.WriteString("Return ONLY a valid JSON array matching this exact schema: " + recipeSchemaHint + "\n\n")
	b.WriteString("Here is the color palette:\n")
	writeGroup(&b, "Primary", p.Primary)
	writeGroup(&b, "Secondary", p.Secondary)
	writeGroup(&b, "Tertiary", p.Tertiary)
	return b.String()
}

func writeGroup(b *strings.Builder, label string, colors []protocol.Color) {
	for _, c := range colors {
		fmt.Fprintf(b, "%s: %s (%s)\n", label, c.Name, c.Hex)
	}
}
