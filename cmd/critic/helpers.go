package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/flynn-ai/critic/internal/dataurl"
	"github.com/flynn-ai/critic/internal/errors"
	"github.com/flynn-ai/critic/internal/schema"
	"github.com/flynn-ai/critic/pkg/protocol"
)

// loadImage accepts a data URI or a path to an image file.
func loadImage(arg string) (string, error) {
	if strings.HasPrefix(arg, "data:") {
		if _, err := dataurl.Parse(arg); err != nil {
			return "", err
		}
		return arg, nil
	}
	return dataurl.FromFile(arg, dataurl.DefaultMaxBytes)
}

// parseTopics resolves topic flags. No flags selects every topic.
func parseTopics(values []string) ([]protocol.CritiqueTopic, error) {
	if len(values) == 0 {
		return protocol.AllTopics(), nil
	}
	seen := make(map[protocol.CritiqueTopic]bool, len(values))
	topics := make([]protocol.CritiqueTopic, 0, len(values))
	for _, v := range values {
		t, err := protocol.ParseTopic(v)
		if err != nil {
			return nil, errors.NewBuilder(errors.CodeInvalidInput, err.Error()).
				User().
				WithSuggestion("Use --topic color-theory, composition, originality or execution").
				Build()
		}
		if !seen[t] {
			seen[t] = true
			topics = append(topics, t)
		}
	}
	return topics, nil
}

// loadPalette reads a palette file. Output of `critic palette --json`
// (a result wrapped with its source) is accepted too.
func loadPalette(path string) (protocol.Palette, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return protocol.Palette{}, errors.Wrap(err, errors.CodeInvalidInput, fmt.Sprintf("cannot read palette %s", path), errors.CategoryUser)
	}

	var wrapped struct {
		Result json.RawMessage `json:"result"`
	}
	if json.Unmarshal(raw, &wrapped) == nil && len(wrapped.Result) > 0 {
		raw = wrapped.Result
	}

	var palette protocol.Palette
	if err := schema.Decode(schema.Palette, raw, &palette); err != nil {
		return protocol.Palette{}, schema.InvalidInput(err)
	}
	return palette, nil
}
