// Package schema holds the JSON Schemas for the critique, palette and recipe
// bodies and validates raw payloads against them.
package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"

	apperrors "github.com/flynn-ai/critic/internal/errors"
	"github.com/flynn-ai/critic/pkg/protocol"
)

// Name identifies a body schema.
type Name string

const (
	CritiqueRequest  Name = "critique-request"
	CritiqueResponse Name = "critique-response"
	PaletteRequest   Name = "palette-request"
	Palette          Name = "palette"
	Recipes          Name = "recipes"
)

// DataURIPattern matches "data:<mimetype>;base64,".
const DataURIPattern = `^data:[^;,]+;base64,`

// ValidationError lists every schema violation found in a payload.
type ValidationError struct {
	Schema  Name
	Details []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Schema, strings.Join(e.Details, "; "))
}

var resolved = map[Name]*jsonschema.Resolved{}

func init() {
	for name, s := range Schemas() {
		rs, err := s.Resolve(nil)
		if err != nil {
			panic(fmt.Sprintf("schema %s: %v", name, err))
		}
		resolved[name] = rs
	}
}

// Schemas returns fresh copies of every body schema.
func Schemas() map[Name]*jsonschema.Schema {
	return map[Name]*jsonschema.Schema{
		CritiqueRequest:  critiqueRequestSchema(),
		CritiqueResponse: critiqueResponseSchema(),
		PaletteRequest:   paletteRequestSchema(),
		Palette:          paletteSchema(),
		Recipes:          recipesSchema(),
	}
}

// Validate checks raw JSON against the named schema.
func Validate(name Name, raw []byte) error {
	rs, ok := resolved[name]
	if !ok {
		return fmt.Errorf("unknown schema %q", name)
	}

	var instance any
	if err := json.Unmarshal(raw, &instance); err != nil {
		return &ValidationError{Schema: name, Details: []string{"body is not valid JSON: " + err.Error()}}
	}
	if err := rs.Validate(instance); err != nil {
		return &ValidationError{Schema: name, Details: splitDetails(err)}
	}
	return nil
}

// ValidateValue marshals v and validates it against the named schema.
func ValidateValue(name Name, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", name, err)
	}
	return Validate(name, raw)
}

// Decode validates raw and, when it conforms, unmarshals it into target.
// Nothing is decoded from a non-conforming payload.
func Decode(name Name, raw []byte, target any) error {
	if err := Validate(name, raw); err != nil {
		return err
	}
	return json.Unmarshal(raw, target)
}

// InvalidInput converts a ValidationError into the user-facing
// "Invalid input" AppError. Other errors pass through unchanged.
func InvalidInput(err error) error {
	var verr *ValidationError
	if !errors.As(err, &verr) {
		return err
	}
	return apperrors.NewBuilder(apperrors.CodeValidationFailed, "Invalid input").
		User().
		Wrap(err).
		WithDetails(verr.Details...).
		WithContext("schema", string(verr.Schema)).
		Build()
}

func splitDetails(err error) []string {
	var out []string
	for _, line := range strings.Split(err.Error(), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}

// ============================================================
// Schemas
// ============================================================

func ptr[T any](v T) *T { return &v }

func imageSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type:        "string",
		Description: "Artwork as a data URI: data:<mimetype>;base64,<encoded_data>",
		Pattern:     DataURIPattern,
	}
}

func topicEnum() []any {
	out := make([]any, 0, 4)
	for _, t := range protocol.AllTopics() {
		out = append(out, string(t))
	}
	return out
}

func colorSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"name": {Type: "string", Description: "Artist-friendly color name"},
			"hex":  {Type: "string", Description: "Hex code of the color"},
		},
		Required: []string{"name", "hex"},
	}
}

func colorArray() *jsonschema.Schema {
	return &jsonschema.Schema{Type: "array", Items: colorSchema()}
}

func critiqueRequestSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"image": imageSchema(),
			"topics": {
				Type:        "array",
				Items:       &jsonschema.Schema{Type: "string", Enum: topicEnum()},
				MinItems:    ptr(1),
				UniqueItems: true,
			},
		},
		Required: []string{"image", "topics"},
	}
}

func critiqueResponseSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"critique": {Type: "string", Description: "Critique in Markdown"},
		},
		Required: []string{"critique"},
	}
}

func paletteRequestSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type:       "object",
		Properties: map[string]*jsonschema.Schema{"image": imageSchema()},
		Required:   []string{"image"},
	}
}

func paletteSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"primary":   colorArray(),
			"secondary": colorArray(),
			"tertiary":  colorArray(),
		},
		Required: []string{"primary", "secondary", "tertiary"},
	}
}

func recipesSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type: "array",
		Items: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"extractedColor": colorSchema(),
				"recipe": {
					Type: "array",
					Items: &jsonschema.Schema{
						Type: "object",
						Properties: map[string]*jsonschema.Schema{
							"name":    {Type: "string"},
							"percent": {Type: "number", Minimum: ptr(0.0), Maximum: ptr(100.0)},
						},
						Required: []string{"name", "percent"},
					},
				},
			},
			Required: []string{"extractedColor", "recipe"},
		},
	}
}
