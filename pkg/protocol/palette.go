// Package protocol provides shared data structures used across Critic components.
// These types are the JSON bodies exchanged with the critique, palette and recipe
// endpoints and can be imported by external tools and extensions.
package protocol

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/lucasb-eyer/go-colorful"
)

// RecipeTolerance is the allowed deviation (in percentage points) of a recipe's
// ingredient sum from 100.
const RecipeTolerance = 1.0

// Color is a single named color extracted from an artwork.
type Color struct {
	Name string `json:"name"` // Artist-friendly label, e.g. "Yellow Ochre"
	Hex  string `json:"hex"`
}

// Normalize returns the color with its hex code canonicalised to "#rrggbb".
// A missing leading '#' and the 3-digit short form are accepted.
func (c Color) Normalize() (Color, error) {
	raw := strings.TrimSpace(c.Hex)
	if raw != "" && raw[0] != '#' {
		raw = "#" + raw
	}
	parsed, err := colorful.Hex(raw)
	if err != nil {
		return c, fmt.Errorf("color %q: invalid hex %q: %w", c.Name, c.Hex, err)
	}
	return Color{Name: strings.TrimSpace(c.Name), Hex: parsed.Hex()}, nil
}

// Palette groups extracted colors by their role in the artwork.
// Order within a group reflects prominence as reported by the model.
type Palette struct {
	Primary   []Color `json:"primary"`
	Secondary []Color `json:"secondary"`
	Tertiary  []Color `json:"tertiary"`
}

// Colors flattens the palette in primary, secondary, tertiary order.
func (p Palette) Colors() []Color {
	out := make([]Color, 0, p.Count())
	out = append(out, p.Primary...)
	out = append(out, p.Secondary...)
	out = append(out, p.Tertiary...)
	return out
}

// Count returns the number of colors across all groups.
func (p Palette) Count() int {
	return len(p.Primary) + len(p.Secondary) + len(p.Tertiary)
}

// Normalize canonicalises every hex code in the palette.
// Nil groups become empty slices so the palette always encodes as arrays.
func (p Palette) Normalize() (Palette, error) {
	var err error
	out := Palette{}
	if out.Primary, err = normalizeGroup(p.Primary); err != nil {
		return Palette{}, fmt.Errorf("primary: %w", err)
	}
	if out.Secondary, err = normalizeGroup(p.Secondary); err != nil {
		return Palette{}, fmt.Errorf("secondary: %w", err)
	}
	if out.Tertiary, err = normalizeGroup(p.Tertiary); err != nil {
		return Palette{}, fmt.Errorf("tertiary: %w", err)
	}
	return out, nil
}

func normalizeGroup(colors []Color) ([]Color, error) {
	out := make([]Color, 0, len(colors))
	for _, c := range colors {
		n, err := c.Normalize()
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

// MixingIngredient is one base paint and its share of a recipe.
type MixingIngredient struct {
	Name    string  `json:"name"`
	Percent float64 `json:"percent"`
}

// Recipe describes how to mix an extracted color from base paints.
type Recipe struct {
	ExtractedColor Color              `json:"extractedColor"`
	Recipe         []MixingIngredient `json:"recipe"`
}

// Total returns the sum of the ingredient percentages.
func (r Recipe) Total() float64 {
	var sum float64
	for _, ing := range r.Recipe {
		sum += ing.Percent
	}
	return sum
}

// Validate checks ingredient ranges and that the percentages sum to 100
// within RecipeTolerance.
func (r Recipe) Validate() error {
	if len(r.Recipe) == 0 {
		return fmt.Errorf("recipe for %q has no ingredients", r.ExtractedColor.Name)
	}
	for _, ing := range r.Recipe {
		if ing.Percent < 0 || ing.Percent > 100 {
			return fmt.Errorf("recipe for %q: %q percent %.1f out of range", r.ExtractedColor.Name, ing.Name, ing.Percent)
		}
	}
	if total := r.Total(); math.Abs(total-100) > RecipeTolerance {
		return fmt.Errorf("recipe for %q sums to %.1f%%, want 100%%", r.ExtractedColor.Name, total)
	}
	return nil
}

// NormalizeRecipe rescales the ingredients to whole percentages that sum to
// exactly 100, distributing rounding remainders to the largest fractions.
// Ingredients outside [0,100] are rejected rather than rescaled.
func NormalizeRecipe(r Recipe) (Recipe, error) {
	for _, ing := range r.Recipe {
		if ing.Percent < 0 || ing.Percent > 100 {
			return r, fmt.Errorf("recipe for %q: %q percent %.1f out of range", r.ExtractedColor.Name, ing.Name, ing.Percent)
		}
	}
	total := r.Total()
	if len(r.Recipe) == 0 || total <= 0 {
		return r, fmt.Errorf("recipe for %q has no positive ingredients", r.ExtractedColor.Name)
	}

	type share struct {
		idx  int
		frac float64
	}
	out := Recipe{ExtractedColor: r.ExtractedColor, Recipe: make([]MixingIngredient, len(r.Recipe))}
	shares := make([]share, len(r.Recipe))
	assigned := 0
	for i, ing := range r.Recipe {
		exact := ing.Percent / total * 100
		whole := math.Floor(exact)
		out.Recipe[i] = MixingIngredient{Name: strings.TrimSpace(ing.Name), Percent: whole}
		shares[i] = share{idx: i, frac: exact - whole}
		assigned += int(whole)
	}
	sort.SliceStable(shares, func(a, b int) bool { return shares[a].frac > shares[b].frac })
	for i := 0; assigned < 100; i++ {
		out.Recipe[shares[i%len(shares)].idx].Percent++
		assigned++
	}
	return out, nil
}

// ValidateRecipes checks that there is exactly one valid recipe per palette
// color, matched by normalized hex code.
func ValidateRecipes(p Palette, recipes []Recipe) error {
	colors := p.Colors()
	if len(recipes) != len(colors) {
		return fmt.Errorf("got %d recipes for %d colors", len(recipes), len(colors))
	}
	want := make(map[string]int, len(colors))
	for _, c := range colors {
		n, err := c.Normalize()
		if err != nil {
			return err
		}
		want[n.Hex]++
	}
	for _, r := range recipes {
		if err := r.Validate(); err != nil {
			return err
		}
		n, err := r.ExtractedColor.Normalize()
		if err != nil {
			return err
		}
		if want[n.Hex] == 0 {
			return fmt.Errorf("recipe for %s (%s) does not match any palette color", n.Name, n.Hex)
		}
		want[n.Hex]--
	}
	return nil
}
