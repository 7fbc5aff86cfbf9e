package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// DecodeJSON unmarshals model output into target. Markdown code fences and
// prose around the JSON value are tolerated.
func DecodeJSON(content string, target any) error {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return errors.New("empty payload")
	}

	directErr := json.Unmarshal([]byte(trimmed), target)
	if directErr == nil {
		return nil
	}

	sanitized := sanitizeJSONPayload(trimmed)
	if sanitized == "" || sanitized == trimmed {
		return fmt.Errorf("%w (payload snippet: %s)", directErr, snippet(trimmed))
	}

	if err := json.Unmarshal([]byte(sanitized), target); err != nil {
		return fmt.Errorf("%w (sanitized payload snippet: %s)", err, snippet(sanitized))
	}
	return nil
}

func sanitizeJSONPayload(content string) string {
	trimmed := strings.TrimSpace(stripCodeFence(content))
	if trimmed == "" {
		return ""
	}
	if trimmed[0] == '{' || trimmed[0] == '[' {
		return trimmed
	}

	// Whichever container opens first wins, so a top-level array of
	// objects is not cut down to its first element.
	open := strings.IndexAny(trimmed, "{[")
	if open < 0 {
		return trimmed
	}
	closer := "}"
	if trimmed[open] == '[' {
		closer = "]"
	}
	if end := strings.LastIndex(trimmed, closer); end > open {
		return strings.TrimSpace(trimmed[open : end+1])
	}
	return trimmed
}

func stripCodeFence(content string) string {
	start := strings.Index(content, "```")
	if start < 0 {
		return content
	}
	body := content[start+3:]
	// Drop the info string (```json)
	if nl := strings.IndexByte(body, '\n'); nl >= 0 {
		body = body[nl+1:]
	}
	if end := strings.Index(body, "```"); end >= 0 {
		body = body[:end]
	}
	return body
}

func snippet(s string) string {
	const limit = 160
	s = strings.Join(strings.Fields(s), " ")
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "..."
}
