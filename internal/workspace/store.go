package workspace

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/flynn-ai/critic/internal/dispatch"
	"github.com/flynn-ai/critic/internal/errors"
	"github.com/flynn-ai/critic/internal/logging"
	"github.com/flynn-ai/critic/pkg/protocol"
)

// ErrStaleResponse is returned by Run when the image, or for recipes the
// palette, changed while the request was in flight. The response was
// discarded.
var ErrStaleResponse = stderrors.New("workspace: response discarded after state change")

// Dispatcher runs requests. *dispatch.Dispatcher implements it.
type Dispatcher interface {
	Dispatch(ctx context.Context, req dispatch.Request) (dispatch.Outcome, error)
}

// Store is a mutex-guarded State.
type Store struct {
	mu     sync.Mutex
	state  State
	logger *zap.Logger
}

// NewStore creates an empty store.
func NewStore(logger *zap.Logger) *Store {
	return &Store{logger: logging.OrNop(logger).Named("workspace")}
}

// Snapshot returns the current state.
func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// UploadImage sets a new image and returns the new generation.
func (s *Store) UploadImage(image string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = ImageUploaded(s.state, image)
	return s.state.Generation
}

// ToggleTopic adds or removes a critique topic.
func (s *Store) ToggleTopic(topic protocol.CritiqueTopic) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = TopicToggled(s.state, topic)
}

// SelectTopics makes topics the exact selection.
func (s *Store) SelectTopics(topics ...protocol.CritiqueTopic) {
	want := make(map[protocol.CritiqueTopic]bool, len(topics))
	for _, t := range topics {
		want[t] = true
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range protocol.AllTopics() {
		has := false
		for _, cur := range s.state.Topics {
			has = has || cur == t
		}
		if has != want[t] {
			s.state = TopicToggled(s.state, t)
		}
	}
}

// Run dispatches kind using the current state and applies the result unless
// the request went stale in the meantime.
func (s *Store) Run(ctx context.Context, d Dispatcher, kind dispatch.Kind) error {
	s.mu.Lock()
	if !CanGenerate(s.state, kind) {
		s.mu.Unlock()
		return errors.NewBuilder(errors.CodeInvalidInput, fmt.Sprintf("cannot generate %s yet", kind)).
			User().
			WithSuggestion(prerequisite(kind)).
			Build()
	}
	req := request(s.state, kind)
	s.state = RequestStarted(s.state, kind)
	ticket := s.state.Ticket()
	s.mu.Unlock()

	out, err := d.Dispatch(ctx, req)

	s.mu.Lock()
	var applied bool
	if err != nil {
		s.state, applied = RequestFailed(s.state, ticket, kind, err)
	} else {
		s.state, applied = RequestSucceeded(s.state, ticket, out)
	}
	current := s.state.Ticket()
	s.mu.Unlock()

	if !applied {
		s.logger.Debug("discarding stale response",
			zap.String("kind", string(kind)),
			zap.Uint64("generation", ticket.Generation),
			zap.Uint64("current_generation", current.Generation),
			zap.Uint64("palette_run", ticket.PaletteRun),
			zap.Uint64("current_palette_run", current.PaletteRun))
		return ErrStaleResponse
	}
	return err
}

func prerequisite(kind dispatch.Kind) string {
	switch kind {
	case dispatch.KindCritique:
		return "Upload an image and select at least one topic"
	case dispatch.KindPalette:
		return "Upload an image first"
	default:
		return "Extract a palette first"
	}
}
