package dispatch

import "github.com/flynn-ai/critic/pkg/protocol"

// Kind names a request type.
type Kind string

const (
	KindCritique Kind = "critique"
	KindPalette  Kind = "palette"
	KindRecipes  Kind = "recipes"
)

// Request is one of CritiqueJob, PaletteJob or RecipesJob.
type Request interface {
	Kind() Kind
	// ImageBearing reports whether the payload carries an image the
	// text-only local model cannot see.
	ImageBearing() bool
	sealed()
}

// CritiqueJob asks for a critique of an image along the chosen topics.
type CritiqueJob struct {
	Payload protocol.CritiqueRequest
}

// PaletteJob asks for the image's color palette.
type PaletteJob struct {
	Payload protocol.PaletteRequest
}

// RecipesJob asks for mixing recipes for a palette.
type RecipesJob struct {
	Palette protocol.Palette
}

func (CritiqueJob) Kind() Kind { return KindCritique }
func (PaletteJob) Kind() Kind  { return KindPalette }
func (RecipesJob) Kind() Kind  { return KindRecipes }

// Critique carries an image too, but a text-only critique is still useful.
func (CritiqueJob) ImageBearing() bool { return false }
func (PaletteJob) ImageBearing() bool  { return true }
func (RecipesJob) ImageBearing() bool  { return false }

func (CritiqueJob) sealed() {}
func (PaletteJob) sealed()  {}
func (RecipesJob) sealed()  {}

// Outcome is a completed request. Exactly one result field is set,
// matching Kind.
type Outcome struct {
	RequestID string
	Kind      Kind
	Source    protocol.Source
	Critique  *protocol.CritiqueResponse
	Palette   *protocol.Palette
	Recipes   []protocol.Recipe
}
