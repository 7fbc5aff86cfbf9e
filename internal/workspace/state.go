// Package workspace holds the state of one analysis session: the current
// image, the selected topics and the result of each request kind.
//
// State changes go through pure reducer functions. Every image upload bumps
// the generation and every palette request bumps the palette run. Responses
// carry the Ticket taken when they started and are discarded once it is out
// of date.
package workspace

import (
	"github.com/flynn-ai/critic/internal/dispatch"
	"github.com/flynn-ai/critic/pkg/protocol"
)

// Slot is the state of one request kind.
type Slot[T any] struct {
	Loading bool
	Result  *T
	Source  protocol.Source
	Err     error
}

func (s Slot[T]) start() Slot[T] {
	return Slot[T]{Loading: true}
}

func (s Slot[T]) succeed(v T, src protocol.Source) Slot[T] {
	return Slot[T]{Result: &v, Source: src}
}

func (s Slot[T]) fail(err error) Slot[T] {
	return Slot[T]{Err: err}
}

// State is an immutable snapshot. Reducers return a new value.
type State struct {
	Image      string // data URI
	Topics     []protocol.CritiqueTopic
	Generation uint64
	PaletteRun uint64

	Critique Slot[protocol.CritiqueResponse]
	Palette  Slot[protocol.Palette]
	Recipes  Slot[[]protocol.Recipe]
}

// Ticket identifies the state a request was started against.
type Ticket struct {
	Generation uint64
	PaletteRun uint64
}

// Ticket returns the current ticket.
func (s State) Ticket() Ticket {
	return Ticket{Generation: s.Generation, PaletteRun: s.PaletteRun}
}

// current reports whether a kind response started under t still applies.
// Recipes also go stale when a newer palette request started.
func (s State) current(t Ticket, kind dispatch.Kind) bool {
	if t.Generation != s.Generation {
		return false
	}
	return kind != dispatch.KindRecipes || t.PaletteRun == s.PaletteRun
}

// ImageUploaded replaces the image and clears every result.
func ImageUploaded(s State, image string) State {
	return State{
		Image:      image,
		Topics:     s.Topics,
		Generation: s.Generation + 1,
		PaletteRun: s.PaletteRun,
	}
}

// TopicToggled adds or removes a topic. Topics stay in display order.
func TopicToggled(s State, topic protocol.CritiqueTopic) State {
	if !topic.Valid() {
		return s
	}
	selected := make(map[protocol.CritiqueTopic]bool, len(s.Topics)+1)
	for _, t := range s.Topics {
		selected[t] = true
	}
	selected[topic] = !selected[topic]

	topics := make([]protocol.CritiqueTopic, 0, len(selected))
	for _, t := range protocol.AllTopics() {
		if selected[t] {
			topics = append(topics, t)
		}
	}
	s.Topics = topics
	return s
}

// RequestStarted marks kind as loading. A new palette invalidates recipes.
func RequestStarted(s State, kind dispatch.Kind) State {
	switch kind {
	case dispatch.KindCritique:
		s.Critique = s.Critique.start()
	case dispatch.KindPalette:
		s.Palette = s.Palette.start()
		s.Recipes = Slot[[]protocol.Recipe]{}
		s.PaletteRun++
	case dispatch.KindRecipes:
		s.Recipes = s.Recipes.start()
	}
	return s
}

// RequestSucceeded stores out if ticket t is still current. The boolean
// reports whether the response was applied.
func RequestSucceeded(s State, t Ticket, out dispatch.Outcome) (State, bool) {
	if !s.current(t, out.Kind) {
		return s, false
	}
	switch out.Kind {
	case dispatch.KindCritique:
		if out.Critique == nil {
			return s, false
		}
		s.Critique = s.Critique.succeed(*out.Critique, out.Source)
	case dispatch.KindPalette:
		if out.Palette == nil {
			return s, false
		}
		s.Palette = s.Palette.succeed(*out.Palette, out.Source)
	case dispatch.KindRecipes:
		s.Recipes = s.Recipes.succeed(out.Recipes, out.Source)
	default:
		return s, false
	}
	return s, true
}

// RequestFailed records err for kind if ticket t is still current.
func RequestFailed(s State, t Ticket, kind dispatch.Kind, err error) (State, bool) {
	if !s.current(t, kind) {
		return s, false
	}
	switch kind {
	case dispatch.KindCritique:
		s.Critique = s.Critique.fail(err)
	case dispatch.KindPalette:
		s.Palette = s.Palette.fail(err)
	case dispatch.KindRecipes:
		s.Recipes = s.Recipes.fail(err)
	default:
		return s, false
	}
	return s, true
}

// CanGenerate reports whether kind can be requested. Critique needs an image
// and at least one topic, palette needs an image and recipes need a palette.
// A kind that is already loading cannot be requested again.
func CanGenerate(s State, kind dispatch.Kind) bool {
	switch kind {
	case dispatch.KindCritique:
		return s.Image != "" && len(s.Topics) > 0 && !s.Critique.Loading
	case dispatch.KindPalette:
		return s.Image != "" && !s.Palette.Loading
	case dispatch.KindRecipes:
		return s.Palette.Result != nil && s.Palette.Result.Count() > 0 && !s.Recipes.Loading
	}
	return false
}

// request builds the dispatch request for kind from the current state.
func request(s State, kind dispatch.Kind) dispatch.Request {
	switch kind {
	case dispatch.KindCritique:
		return dispatch.CritiqueJob{Payload: protocol.CritiqueRequest{
			Image:  s.Image,
			Topics: append([]protocol.CritiqueTopic(nil), s.Topics...),
		}}
	case dispatch.KindPalette:
		return dispatch.PaletteJob{Payload: protocol.PaletteRequest{Image: s.Image}}
	case dispatch.KindRecipes:
		return dispatch.RecipesJob{Palette: *s.Palette.Result}
	}
	return nil
}
