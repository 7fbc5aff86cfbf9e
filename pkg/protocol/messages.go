package protocol

import (
	"fmt"
	"strings"
)

// CritiqueTopic is one of the fixed dimensions a critique can focus on.
type CritiqueTopic string

const (
	TopicColorTheory CritiqueTopic = "Color Theory"
	TopicComposition CritiqueTopic = "Composition"
	TopicOriginality CritiqueTopic = "Originality"
	TopicExecution   CritiqueTopic = "Execution"
)

// AllTopics returns the topics in display order.
func AllTopics() []CritiqueTopic {
	return []CritiqueTopic{TopicColorTheory, TopicComposition, TopicOriginality, TopicExecution}
}

// Valid reports whether t is one of the fixed topics.
func (t CritiqueTopic) Valid() bool {
	for _, known := range AllTopics() {
		if t == known {
			return true
		}
	}
	return false
}

// ParseTopic resolves a topic name case-insensitively. Dashes and underscores
// are treated as spaces so "color-theory" works on the command line.
func ParseTopic(s string) (CritiqueTopic, error) {
	key := strings.NewReplacer("-", " ", "_", " ").Replace(strings.TrimSpace(s))
	for _, known := range AllTopics() {
		if strings.EqualFold(key, string(known)) {
			return known, nil
		}
	}
	return "", fmt.Errorf("unknown critique topic %q (want one of %s)", s, topicList())
}

// TopicStrings converts topics to their wire names.
func TopicStrings(topics []CritiqueTopic) []string {
	out := make([]string, len(topics))
	for i, t := range topics {
		out[i] = string(t)
	}
	return out
}

func topicList() string {
	return strings.Join(TopicStrings(AllTopics()), ", ")
}

// Source records where a result was produced.
type Source string

const (
	SourceOnDevice Source = "on-device"
	SourceCloud    Source = "cloud"
)

// HybridResult is a completed request tagged with its provenance.
type HybridResult[T any] struct {
	Result T      `json:"result"`
	Source Source `json:"source"`
}

// CritiqueRequest is the body of the critique endpoint.
type CritiqueRequest struct {
	Image  string          `json:"image"` // data:<mimetype>;base64,<encoded_data>
	Topics []CritiqueTopic `json:"topics"`
}

// CritiqueResponse is the critique endpoint result.
type CritiqueResponse struct {
	Critique string `json:"critique"` // Markdown
}

// PaletteRequest is the body of the palette extraction endpoint.
type PaletteRequest struct {
	Image string `json:"image"`
}

// ErrorResponse is returned by every endpoint on failure.
type ErrorResponse struct {
	Error     string   `json:"error"`
	Details   []string `json:"details,omitempty"`
	RequestID string   `json:"requestId,omitempty"`
}

// HTTP routes served by the critic service.
const (
	PathCritique   = "/api/generate-art-critique"
	PathPalette    = "/api/extract-color-palette"
	PathRecipes    = "/api/generate-mixing-recipes"
	PathHealth     = "/api/health"
	PathCapability = "/api/capability"
	PathStats      = "/api/stats"
)
