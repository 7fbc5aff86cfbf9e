package dispatch

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/flynn-ai/critic/internal/errors"
	"github.com/flynn-ai/critic/internal/ondevice"
	"github.com/flynn-ai/critic/internal/stats"
	"github.com/flynn-ai/critic/pkg/protocol"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const testImage = "data:image/png;base64,iVBORw0KGgo="

// events is a shared, ordered log of calls across fakes.
type events struct {
	mu  sync.Mutex
	log []string
}

func (e *events) add(s string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.log = append(e.log, s)
}

func (e *events) list() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.log...)
}

type fakeProvider struct {
	ev       *events
	avail    ondevice.Availability
	probeErr error
	openErr  error
	reply    string
	replyErr error
	prompts  []string
}

func (p *fakeProvider) Probe(context.Context) (ondevice.Availability, error) {
	p.ev.add("probe")
	return p.avail, p.probeErr
}

func (p *fakeProvider) Open(context.Context) (ondevice.Session, error) {
	p.ev.add("open")
	if p.openErr != nil {
		return nil, p.openErr
	}
	return &fakeSession{p: p}, nil
}

type fakeSession struct {
	p *fakeProvider
}

func (s *fakeSession) Complete(_ context.Context, prompt string) (string, error) {
	s.p.ev.add("complete")
	s.p.prompts = append(s.p.prompts, prompt)
	return s.p.reply, s.p.replyErr
}

func (s *fakeSession) Close() error {
	s.p.ev.add("close")
	return nil
}

type fakeRemote struct {
	ev       *events
	critique protocol.CritiqueResponse
	palette  protocol.Palette
	recipes  []protocol.Recipe
	err      error
}

func (r *fakeRemote) CritiqueArtwork(context.Context, protocol.CritiqueRequest) (protocol.CritiqueResponse, error) {
	r.ev.add("remote")
	return r.critique, r.err
}

func (r *fakeRemote) ExtractPalette(context.Context, protocol.PaletteRequest) (protocol.Palette, error) {
	r.ev.add("remote")
	return r.palette, r.err
}

func (r *fakeRemote) GenerateMixingRecipes(context.Context, protocol.Palette) ([]protocol.Recipe, error) {
	r.ev.add("remote")
	return r.recipes, r.err
}

func count(log []string, name string) int {
	n := 0
	for _, s := range log {
		if s == name {
			n++
		}
	}
	return n
}

func newTestDispatcher(local ondevice.Provider, remote Remote, opts Options) (*Dispatcher, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	opts.Logger = zap.New(core)
	return New(local, remote, opts), logs
}

func critiqueRequest() *protocol.CritiqueRequest {
	return &protocol.CritiqueRequest{
		Image:  testImage,
		Topics: []protocol.CritiqueTopic{protocol.TopicComposition, protocol.TopicColorTheory},
	}
}

func TestCritiqueOnDeviceWhenReady(t *testing.T) {
	ev := &events{}
	local := &fakeProvider{ev: ev, avail: ondevice.Ready, reply: "### Composition: 7/10"}
	remote := &fakeRemote{ev: ev}
	d, _ := newTestDispatcher(local, remote, Options{})

	got, err := d.Critique(context.Background(), critiqueRequest())
	require.NoError(t, err)

	assert.Equal(t, protocol.SourceOnDevice, got.Source)
	assert.Equal(t, "### Composition: 7/10", got.Result.Critique)
	assert.Equal(t, 0, count(ev.list(), "remote"))
	assert.Equal(t, []string{"probe", "open", "complete", "close"}, ev.list())
	require.Len(t, local.prompts, 1)
	assert.Contains(t, local.prompts[0], "Composition")
}

func TestNotReadyGoesToCloudOnce(t *testing.T) {
	for _, avail := range []ondevice.Availability{ondevice.Unsupported, ondevice.DownloadPending} {
		t.Run(string(avail), func(t *testing.T) {
			ev := &events{}
			local := &fakeProvider{ev: ev, avail: avail}
			remote := &fakeRemote{ev: ev, critique: protocol.CritiqueResponse{Critique: "cloud critique"}}
			d, logs := newTestDispatcher(local, remote, Options{})

			got, err := d.Critique(context.Background(), critiqueRequest())
			require.NoError(t, err)

			assert.Equal(t, protocol.SourceCloud, got.Source)
			assert.Equal(t, "cloud critique", got.Result.Critique)
			assert.Equal(t, []string{"probe", "remote"}, ev.list())
			assert.Zero(t, logs.FilterMessage("on-device inference failed, falling back to cloud").Len())
		})
	}
}

func TestProbeErrorCountsAsUnsupported(t *testing.T) {
	ev := &events{}
	local := &fakeProvider{ev: ev, avail: ondevice.Ready, probeErr: stderrors.New("boom")}
	remote := &fakeRemote{ev: ev, critique: protocol.CritiqueResponse{Critique: "ok"}}
	d, _ := newTestDispatcher(local, remote, Options{})

	got, err := d.Critique(context.Background(), critiqueRequest())
	require.NoError(t, err)
	assert.Equal(t, protocol.SourceCloud, got.Source)
	assert.Equal(t, 0, count(ev.list(), "open"))
	assert.Equal(t, ondevice.Unsupported, d.Probe(context.Background()))
}

func TestLocalFailureClosesSessionBeforeCloud(t *testing.T) {
	cases := []struct {
		name  string
		local *fakeProvider
	}{
		{"completion error", &fakeProvider{avail: ondevice.Ready, replyErr: stderrors.New("model crashed")}},
		{"empty critique", &fakeProvider{avail: ondevice.Ready, reply: "   "}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ev := &events{}
			tc.local.ev = ev
			remote := &fakeRemote{ev: ev, critique: protocol.CritiqueResponse{Critique: "cloud"}}
			d, logs := newTestDispatcher(tc.local, remote, Options{})

			got, err := d.Critique(context.Background(), critiqueRequest())
			require.NoError(t, err)
			assert.Equal(t, protocol.SourceCloud, got.Source)

			assert.Equal(t, []string{"probe", "open", "complete", "close", "remote"}, ev.list())
			warn := logs.FilterMessage("on-device inference failed, falling back to cloud")
			require.Equal(t, 1, warn.Len())
			assert.Equal(t, zapcore.WarnLevel, warn.All()[0].Level)
		})
	}
}

func TestOpenFailureFallsBack(t *testing.T) {
	ev := &events{}
	local := &fakeProvider{ev: ev, avail: ondevice.Ready, openErr: stderrors.New("no session")}
	remote := &fakeRemote{ev: ev, critique: protocol.CritiqueResponse{Critique: "cloud"}}
	d, _ := newTestDispatcher(local, remote, Options{})

	got, err := d.Critique(context.Background(), critiqueRequest())
	require.NoError(t, err)
	assert.Equal(t, protocol.SourceCloud, got.Source)
	assert.Equal(t, []string{"probe", "open", "remote"}, ev.list())
}

func TestUnparseableLocalPaletteFallsBack(t *testing.T) {
	ev := &events{}
	local := &fakeProvider{ev: ev, avail: ondevice.Ready, reply: "I see lots of blue."}
	remote := &fakeRemote{ev: ev, palette: protocol.Palette{
		Primary: []protocol.Color{{Name: "Blue", Hex: "#0000ff"}},
	}}
	d, _ := newTestDispatcher(local, remote, Options{SkipLocalForImages: false})

	got, err := d.Palette(context.Background(), &protocol.PaletteRequest{Image: testImage})
	require.NoError(t, err)
	assert.Equal(t, protocol.SourceCloud, got.Source)
	assert.Equal(t, []string{"probe", "open", "complete", "close", "remote"}, ev.list())
}

func TestLocalPaletteNormalized(t *testing.T) {
	ev := &events{}
	local := &fakeProvider{ev: ev, avail: ondevice.Ready, reply: "```json\n" +
		`{"primary":[{"name":"Sky","hex":"8ab"}],"secondary":[],"tertiary":[]}` + "\n```"}
	d, _ := newTestDispatcher(local, &fakeRemote{ev: ev}, Options{SkipLocalForImages: false})

	got, err := d.Palette(context.Background(), &protocol.PaletteRequest{Image: testImage})
	require.NoError(t, err)
	assert.Equal(t, protocol.SourceOnDevice, got.Source)
	assert.Equal(t, "#88aabb", got.Result.Primary[0].Hex)
}

func TestPaletteSkipsLocalForImages(t *testing.T) {
	ev := &events{}
	local := &fakeProvider{ev: ev, avail: ondevice.Ready}
	remote := &fakeRemote{ev: ev, palette: protocol.Palette{
		Primary: []protocol.Color{{Name: "Red", Hex: "#ff0000"}},
	}}
	d, logs := newTestDispatcher(local, remote, DefaultOptions())

	got, err := d.Palette(context.Background(), &protocol.PaletteRequest{Image: testImage})
	require.NoError(t, err)
	assert.Equal(t, protocol.SourceCloud, got.Source)
	assert.Equal(t, []string{"remote"}, ev.list())
	assert.Equal(t, 1, logs.FilterMessage("skipping on-device model for image-bearing request").Len())
}

func TestLocalRecipesValidated(t *testing.T) {
	palette := protocol.Palette{
		Primary:   []protocol.Color{{Name: "Red", Hex: "#ff0000"}},
		Secondary: []protocol.Color{{Name: "Teal", Hex: "#008080"}},
	}
	good := `[
		{"extractedColor":{"name":"Red","hex":"#ff0000"},"recipe":[{"name":"Cadmium Red","percent":100}]},
		{"extractedColor":{"name":"Teal","hex":"#008080"},"recipe":[{"name":"Phthalo Blue","percent":40},{"name":"Phthalo Green","percent":60.5}]}
	]`

	t.Run("valid", func(t *testing.T) {
		ev := &events{}
		local := &fakeProvider{ev: ev, avail: ondevice.Ready, reply: good}
		d, _ := newTestDispatcher(local, &fakeRemote{ev: ev}, Options{})

		got, err := d.Recipes(context.Background(), &palette)
		require.NoError(t, err)
		assert.Equal(t, protocol.SourceOnDevice, got.Source)
		require.Len(t, got.Result, palette.Count())
		for _, r := range got.Result {
			assert.InDelta(t, 100, r.Total(), protocol.RecipeTolerance)
		}
	})

	t.Run("sum out of tolerance", func(t *testing.T) {
		bad := `[
			{"extractedColor":{"name":"Red","hex":"#ff0000"},"recipe":[{"name":"Cadmium Red","percent":80}]},
			{"extractedColor":{"name":"Teal","hex":"#008080"},"recipe":[{"name":"Phthalo Blue","percent":50},{"name":"Phthalo Green","percent":50}]}
		]`
		ev := &events{}
		local := &fakeProvider{ev: ev, avail: ondevice.Ready, reply: bad}
		cloud := []protocol.Recipe{
			{ExtractedColor: palette.Primary[0], Recipe: []protocol.MixingIngredient{{Name: "Cadmium Red", Percent: 100}}},
			{ExtractedColor: palette.Secondary[0], Recipe: []protocol.MixingIngredient{{Name: "Phthalo Blue", Percent: 100}}},
		}
		d, _ := newTestDispatcher(local, &fakeRemote{ev: ev, recipes: cloud}, Options{})

		got, err := d.Recipes(context.Background(), &palette)
		require.NoError(t, err)
		assert.Equal(t, protocol.SourceCloud, got.Source)
		assert.Len(t, got.Result, palette.Count())
	})

	t.Run("missing color", func(t *testing.T) {
		partial := `[{"extractedColor":{"name":"Red","hex":"#ff0000"},"recipe":[{"name":"Cadmium Red","percent":100}]}]`
		ev := &events{}
		local := &fakeProvider{ev: ev, avail: ondevice.Ready, reply: partial}
		d, _ := newTestDispatcher(local, &fakeRemote{ev: ev}, Options{})

		got, err := d.Recipes(context.Background(), &palette)
		require.NoError(t, err)
		assert.Equal(t, protocol.SourceCloud, got.Source)
		assert.Equal(t, 1, count(ev.list(), "remote"))
	})
}

func TestCloudFailureIsGeneric(t *testing.T) {
	ev := &events{}
	local := &fakeProvider{ev: ev, avail: ondevice.Unsupported}
	remote := &fakeRemote{ev: ev, err: errors.Temporary(errors.CodeModelUnavailable, "upstream 503")}
	d, logs := newTestDispatcher(local, remote, Options{})

	_, err := d.Critique(context.Background(), critiqueRequest())
	require.Error(t, err)

	var appErr *errors.AppError
	require.True(t, stderrors.As(err, &appErr))
	assert.Equal(t, errors.CodeCloudRequestFailed, appErr.Code)
	assert.Equal(t, CloudFailureMessage, appErr.Message)
	assert.Equal(t, 1, count(ev.list(), "remote"))
	assert.Equal(t, 1, logs.FilterMessage("cloud request failed").Len())
}

func TestCloudValidationErrorKeepsDetails(t *testing.T) {
	ev := &events{}
	local := &fakeProvider{ev: ev, avail: ondevice.Unsupported}
	remote := &fakeRemote{ev: ev, err: errors.NewBuilder(errors.CodeValidationFailed, "Invalid input").
		User().
		WithDetails("topics: minItems 1").
		Build()}
	d, _ := newTestDispatcher(local, remote, Options{})

	_, err := d.Critique(context.Background(), critiqueRequest())
	require.Error(t, err)
	assert.Equal(t, errors.CodeValidationFailed, errors.GetCode(err))
	assert.Equal(t, []string{"topics: minItems 1"}, errors.GetDetails(err))
}

func TestInvalidCritiqueRejectedBeforeEitherModel(t *testing.T) {
	ev := &events{}
	local := &fakeProvider{ev: ev, avail: ondevice.Ready, reply: "local critique"}
	remote := &fakeRemote{ev: ev, critique: protocol.CritiqueResponse{Critique: "cloud critique"}}
	d, _ := newTestDispatcher(local, remote, Options{})

	for name, req := range map[string]*protocol.CritiqueRequest{
		"no topics":      {Image: testImage},
		"empty topics":   {Image: testImage, Topics: []protocol.CritiqueTopic{}},
		"unknown topic":  {Image: testImage, Topics: []protocol.CritiqueTopic{"Vibes"}},
		"not a data uri": {Image: "https://example.com/a.png", Topics: []protocol.CritiqueTopic{protocol.TopicComposition}},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := d.Critique(context.Background(), req)
			require.Error(t, err)
			assert.Equal(t, errors.CodeValidationFailed, errors.GetCode(err))
			assert.Equal(t, errors.CategoryUser, errors.GetCategory(err))
			assert.NotEmpty(t, errors.GetDetails(err))
		})
	}
	assert.Empty(t, ev.list())
}

func TestNilRemote(t *testing.T) {
	d, _ := newTestDispatcher(ondevice.Disabled{}, nil, Options{})

	_, err := d.Recipes(context.Background(), &protocol.Palette{})
	require.Error(t, err)
	assert.Equal(t, errors.CodeCloudRequestFailed, errors.GetCode(err))
}

func TestNilPayload(t *testing.T) {
	d, _ := newTestDispatcher(nil, &fakeRemote{ev: &events{}}, Options{})

	_, err := d.Critique(context.Background(), nil)
	assert.Equal(t, errors.CategoryUser, errors.GetCategory(err))

	_, err = d.Dispatch(context.Background(), nil)
	require.Error(t, err)
	assert.Equal(t, errors.CodeInvalidInput, errors.GetCode(err))
}

func TestLocalTimeoutFallsBack(t *testing.T) {
	ev := &events{}
	local := &slowProvider{fakeProvider: fakeProvider{ev: ev, avail: ondevice.Ready}}
	remote := &fakeRemote{ev: ev, critique: protocol.CritiqueResponse{Critique: "cloud"}}
	d, _ := newTestDispatcher(local, remote, Options{LocalTimeout: 20 * time.Millisecond})

	got, err := d.Critique(context.Background(), critiqueRequest())
	require.NoError(t, err)
	assert.Equal(t, protocol.SourceCloud, got.Source)
	assert.Equal(t, []string{"probe", "open", "close", "remote"}, ev.list())
}

// slowProvider opens sessions that block until the context expires.
type slowProvider struct {
	fakeProvider
}

func (p *slowProvider) Open(ctx context.Context) (ondevice.Session, error) {
	p.ev.add("open")
	return &slowSession{ev: p.ev}, nil
}

type slowSession struct {
	ev *events
}

func (s *slowSession) Complete(ctx context.Context, _ string) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func (s *slowSession) Close() error {
	s.ev.add("close")
	return nil
}

func TestConcurrentDispatchRecordsStats(t *testing.T) {
	collector := stats.NewCollector()
	remote := &fakeRemote{
		ev:       &events{},
		critique: protocol.CritiqueResponse{Critique: "cloud"},
		palette:  protocol.Palette{Primary: []protocol.Color{{Name: "Red", Hex: "#ff0000"}}},
	}
	local := &fakeProvider{ev: &events{}, avail: ondevice.Unsupported}
	d, _ := newTestDispatcher(local, remote, Options{Stats: collector, SkipLocalForImages: true})

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := d.Critique(context.Background(), critiqueRequest())
			assert.NoError(t, err)
		}()
		go func() {
			defer wg.Done()
			_, err := d.Palette(context.Background(), &protocol.PaletteRequest{Image: testImage})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	s := collector.Collect()
	assert.Equal(t, int64(8), s.RequestCount)
	assert.Equal(t, int64(8), s.CloudCount)
	assert.Equal(t, int64(4), s.Kinds["critique"].Requests)
	assert.Equal(t, int64(4), s.Kinds["palette"].Requests)
}

func TestDispatchAssignsRequestID(t *testing.T) {
	ev := &events{}
	local := &fakeProvider{ev: ev, avail: ondevice.Ready, reply: "fine"}
	d, logs := newTestDispatcher(local, &fakeRemote{ev: ev}, Options{})

	out, err := d.Dispatch(context.Background(), CritiqueJob{Payload: *critiqueRequest()})
	require.NoError(t, err)
	assert.NotEmpty(t, out.RequestID)
	assert.Equal(t, KindCritique, out.Kind)

	done := logs.FilterMessage("dispatch complete").All()
	require.Len(t, done, 1)
	assert.Equal(t, out.RequestID, done[0].ContextMap()["request_id"])
}
