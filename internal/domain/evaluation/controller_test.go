package evaluation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gestor-t/neuroeval/internal/assistant"
	"github.com/gestor-t/neuroeval/internal/catalog"
	"github.com/gestor-t/neuroeval/internal/locale"
	"github.com/gestor-t/neuroeval/internal/patient"
	"github.com/gestor-t/neuroeval/pkg/workerpool"
)

type synthResult struct {
	text string
	err  error
}

// fakeSynth answers from a scripted list; the last entry repeats. When gated,
// calls block until release is closed, ignoring cancellation if deaf is set.
type fakeSynth struct {
	mu      sync.Mutex
	calls   int
	langs   []locale.Language
	results []synthResult
	gated   bool
	deaf    bool
	release chan struct{}
	once    sync.Once
}

func newFakeSynth(results ...synthResult) *fakeSynth {
	return &fakeSynth{results: results, release: make(chan struct{})}
}

func (f *fakeSynth) Release() { f.once.Do(func() { close(f.release) }) }

func (f *fakeSynth) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeSynth) DiagnosticSynthesis(ctx context.Context, _, _ string, lang locale.Language) (string, error) {
	f.mu.Lock()
	f.calls++
	f.langs = append(f.langs, lang)
	res := f.results[len(f.results)-1]
	if f.calls <= len(f.results) {
		res = f.results[f.calls-1]
	}
	f.mu.Unlock()

	if f.gated {
		if f.deaf {
			<-f.release
		} else {
			select {
			case <-f.release:
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}
	}
	return res.text, res.err
}

type fakeObserver struct {
	mu       sync.Mutex
	outcomes []string
	recorded []string
	switches int
}

func (o *fakeObserver) AdministrationRecorded(id string) {
	o.mu.Lock()
	o.recorded = append(o.recorded, id)
	o.mu.Unlock()
}

func (o *fakeObserver) PatientSwitched() {
	o.mu.Lock()
	o.switches++
	o.mu.Unlock()
}

func (o *fakeObserver) SynthesisStarted() {}
func (o *fakeObserver) SessionOpened() {}
func (o *fakeObserver) SessionClosed() {}

func (o *fakeObserver) SynthesisFinished(outcome string, _ time.Duration) {
	o.mu.Lock()
	o.outcomes = append(o.outcomes, outcome)
	o.mu.Unlock()
}

func (o *fakeObserver) has(outcome string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, got := range o.outcomes {
		if got == outcome {
			return true
		}
	}
	return false
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []EventType
}

func (p *recordingPublisher) Publish(_ context.Context, e *Event) {
	p.mu.Lock()
	p.events = append(p.events, e.EventType)
	p.mu.Unlock()
}

type rejectingDispatcher struct{}

func (rejectingDispatcher) Submit(*workerpool.Job) error { return workerpool.ErrQueueFull }

type fixture struct {
	ctrl      *Controller
	synth     *fakeSynth
	observer  *fakeObserver
	publisher *recordingPublisher
}

func newFixture(t *testing.T, synth *fakeSynth) *fixture {
	t.Helper()

	pool := workerpool.New(workerpool.Config{Workers: 2, QueueSize: 4}, nil)
	pool.Start()
	t.Cleanup(pool.Stop)
	t.Cleanup(synth.Release)

	obs := &fakeObserver{}
	pub := &recordingPublisher{}
	dir := patient.NewMemoryDirectory(patient.SeedPatients())
	first, err := dir.First(context.Background())
	require.NoError(t, err)

	ctrl := NewController("session-1", Deps{
		Catalog:     catalog.Default(),
		Patients:    dir,
		Synthesizer: synth,
		Dispatcher:  pool,
		Publisher:   pub,
		Observer:    obs,
	}, first, locale.PortugueseBR)

	return &fixture{ctrl: ctrl, synth: synth, observer: obs, publisher: pub}
}

func (f *fixture) record(t *testing.T, instrumentID string, in ScoreInput) TestAdministration {
	t.Helper()
	require.NoError(t, f.ctrl.SelectInstrument(instrumentID))
	admin, err := f.ctrl.SaveScores(in)
	require.NoError(t, err)
	return admin
}

func waitForState(t *testing.T, c *Controller, want State) {
	t.Helper()
	require.Eventually(t, func() bool { return c.State() == want }, 2*time.Second, 5*time.Millisecond,
		"state never reached %s", want)
}

func TestInitialState(t *testing.T) {
	f := newFixture(t, newFakeSynth(synthResult{text: "ok"}))

	snap := f.ctrl.Snapshot()
	assert.Equal(t, StateBrowsingCatalog, snap.State)
	assert.Equal(t, "1", snap.Patient.ID)
	assert.Empty(t, snap.Results)
	assert.Equal(t, locale.PortugueseBR, snap.Language)
}

func TestScoreEntryFlow(t *testing.T) {
	f := newFixture(t, newFakeSynth(synthResult{text: "ok"}))

	require.NoError(t, f.ctrl.SelectInstrument("stroop-ad"))
	assert.Equal(t, StateEnteringScores, f.ctrl.State())
	require.NotNil(t, f.ctrl.Snapshot().Instrument)

	_, err := f.ctrl.SaveScores(ScoreInput{StandardScore: num(100)})
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, StateEnteringScores, f.ctrl.State())
	assert.Empty(t, f.ctrl.Results())

	admin, err := f.ctrl.SaveScores(scores(45, 105, 63, ""))
	require.NoError(t, err)
	assert.Equal(t, "stroop-ad", admin.InstrumentID)
	assert.Equal(t, StateBrowsingCatalog, f.ctrl.State())
	assert.Nil(t, f.ctrl.Snapshot().Instrument)
	assert.Equal(t, []string{"stroop-ad"}, f.observer.recorded)
}

func TestCancelEntryLeavesStoreUntouched(t *testing.T) {
	f := newFixture(t, newFakeSynth(synthResult{text: "ok"}))

	require.NoError(t, f.ctrl.SelectInstrument("wasi"))
	require.NoError(t, f.ctrl.CancelEntry())
	assert.Equal(t, StateBrowsingCatalog, f.ctrl.State())
	assert.Empty(t, f.ctrl.Results())
}

func TestSelectUnknownInstrument(t *testing.T) {
	f := newFixture(t, newFakeSynth(synthResult{text: "ok"}))

	var vErr *ValidationError
	require.ErrorAs(t, f.ctrl.SelectInstrument("nope"), &vErr)
	assert.Equal(t, StateBrowsingCatalog, f.ctrl.State())
}

func TestInvalidTransitions(t *testing.T) {
	f := newFixture(t, newFakeSynth(synthResult{text: "ok"}))

	_, err := f.ctrl.SaveScores(scores(1, 100, 50, ""))
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.ErrorIs(t, f.ctrl.CancelEntry(), ErrInvalidTransition)
	assert.ErrorIs(t, f.ctrl.CancelSynthesis(), ErrInvalidTransition)
	_, err = f.ctrl.RemoveResult("x")
	assert.ErrorIs(t, err, ErrInvalidTransition)

	require.NoError(t, f.ctrl.SelectInstrument("wasi"))
	assert.ErrorIs(t, f.ctrl.ReviewResults(), ErrInvalidTransition)
	assert.ErrorIs(t, f.ctrl.BrowseCatalog(), ErrInvalidTransition)
	_, err = f.ctrl.RequestSynthesis(context.Background())
	var tErr *TransitionError
	require.ErrorAs(t, err, &tErr)
	assert.Equal(t, StateEnteringScores, tErr.From)
}

func TestRemoveResultWhileReviewing(t *testing.T) {
	f := newFixture(t, newFakeSynth(synthResult{text: "ok"}))
	a := f.record(t, "rey", scores(20, 95, 40, ""))
	b := f.record(t, "tol", scores(30, 102, 55, ""))

	require.NoError(t, f.ctrl.ReviewResults())
	removed, err := f.ctrl.RemoveResult(a.ID)
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = f.ctrl.RemoveResult("missing")
	require.NoError(t, err)
	assert.False(t, removed)

	results := f.ctrl.Results()
	require.Len(t, results, 1)
	assert.Equal(t, b.ID, results[0].ID)
	assert.Equal(t, StateReviewingResults, f.ctrl.State())
}

func TestPatientSwitchResetsResults(t *testing.T) {
	f := newFixture(t, newFakeSynth(synthResult{text: "ok"}))

	f.record(t, "stroop-ad", scores(45, 105, 63, ""))
	require.Len(t, f.ctrl.Results(), 1)

	require.NoError(t, f.ctrl.SelectPatient(context.Background(), "2"))
	assert.Empty(t, f.ctrl.Results())
	assert.Equal(t, "2", f.ctrl.Patient().ID)
	assert.Equal(t, StateBrowsingCatalog, f.ctrl.State())
	assert.Equal(t, 1, f.observer.switches)
}

func TestSelectUnknownPatientChangesNothing(t *testing.T) {
	f := newFixture(t, newFakeSynth(synthResult{text: "ok"}))
	f.record(t, "wasi", scores(30, 98, 45, ""))

	err := f.ctrl.SelectPatient(context.Background(), "404")
	assert.ErrorIs(t, err, ErrPatientNotFound)
	assert.Equal(t, "1", f.ctrl.Patient().ID)
	assert.Len(t, f.ctrl.Results(), 1)
}

func TestCatalogAppliedFlags(t *testing.T) {
	f := newFixture(t, newFakeSynth(synthResult{text: "ok"}))
	f.record(t, "tol", scores(30, 102, 55, ""))

	entries := f.ctrl.Catalog()
	require.Len(t, entries, catalog.Default().Len())
	for _, e := range entries {
		assert.Equal(t, e.ID == "tol", e.Applied, e.ID)
	}
}

func TestRequestSynthesisWithoutResults(t *testing.T) {
	f := newFixture(t, newFakeSynth(synthResult{text: "ok"}))
	require.NoError(t, f.ctrl.ReviewResults())

	started, err := f.ctrl.RequestSynthesis(context.Background())
	assert.False(t, started)

	var pErr *PreconditionError
	require.ErrorAs(t, err, &pErr)
	assert.Equal(t, locale.Message(locale.PortugueseBR, locale.MsgNoResultsForSynthesis), pErr.Message)
	assert.Equal(t, StateReviewingResults, f.ctrl.State())
	assert.Zero(t, f.synth.Calls())
}

func TestSynthesisSuccess(t *testing.T) {
	f := newFixture(t, newFakeSynth(synthResult{text: "Síntese"}))
	f.record(t, "stroop-ad", scores(45, 105, 63, ""))
	f.ctrl.SetLanguage(locale.EnglishUS)
	require.NoError(t, f.ctrl.ReviewResults())

	started, err := f.ctrl.RequestSynthesis(context.Background())
	require.NoError(t, err)
	assert.True(t, started)

	waitForState(t, f.ctrl, StateSynthesisReady)
	assert.Equal(t, "Síntese", f.ctrl.Snapshot().Synthesis)
	assert.Equal(t, []locale.Language{locale.EnglishUS}, f.synth.langs)
	assert.True(t, f.observer.has(OutcomeSuccess))
}

func TestDuplicateRequestIsSuppressed(t *testing.T) {
	synth := newFakeSynth(synthResult{text: "done"})
	synth.gated = true
	f := newFixture(t, synth)
	f.record(t, "wasi", scores(30, 98, 45, ""))

	started, err := f.ctrl.RequestSynthesis(context.Background())
	require.NoError(t, err)
	require.True(t, started)
	assert.Equal(t, StateAwaitingSynthesis, f.ctrl.State())

	started, err = f.ctrl.RequestSynthesis(context.Background())
	require.NoError(t, err)
	assert.False(t, started)

	synth.Release()
	waitForState(t, f.ctrl, StateSynthesisReady)
	assert.Equal(t, 1, synth.Calls())
}

func TestLateResponseAfterPatientSwitchIsDiscarded(t *testing.T) {
	synth := newFakeSynth(synthResult{text: "stale analysis"})
	synth.gated = true
	synth.deaf = true
	f := newFixture(t, synth)
	f.record(t, "wasi", scores(30, 98, 45, ""))

	started, err := f.ctrl.RequestSynthesis(context.Background())
	require.NoError(t, err)
	require.True(t, started)
	require.Eventually(t, func() bool { return synth.Calls() == 1 }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, f.ctrl.SelectPatient(context.Background(), "2"))
	synth.Release()

	require.Eventually(t, func() bool { return f.observer.has(OutcomeDiscarded) }, 2*time.Second, 5*time.Millisecond)
	snap := f.ctrl.Snapshot()
	assert.Equal(t, StateBrowsingCatalog, snap.State)
	assert.Empty(t, snap.Synthesis)
	assert.Equal(t, "2", snap.Patient.ID)
}

func TestFailureThenExplicitRetry(t *testing.T) {
	synth := newFakeSynth(
		synthResult{err: &assistant.GatewayError{Task: assistant.TaskDiagnosticSynthesis, StatusCode: 503, Err: errors.New("unavailable")}},
		synthResult{text: "second try"},
	)
	f := newFixture(t, synth)
	f.record(t, "fdt", scores(10, 90, 25, ""))

	_, err := f.ctrl.RequestSynthesis(context.Background())
	require.NoError(t, err)
	waitForState(t, f.ctrl, StateSynthesisFailed)

	snap := f.ctrl.Snapshot()
	assert.Equal(t, locale.Message(locale.PortugueseBR, locale.MsgSynthesisFailed), snap.Error)
	require.NotNil(t, f.ctrl.Failure())
	assert.Equal(t, 503, f.ctrl.Failure().StatusCode)

	started, err := f.ctrl.RequestSynthesis(context.Background())
	require.NoError(t, err)
	assert.True(t, started)
	waitForState(t, f.ctrl, StateSynthesisReady)
	assert.Equal(t, "second try", f.ctrl.Snapshot().Synthesis)
	assert.Nil(t, f.ctrl.Failure())
	assert.Equal(t, 2, synth.Calls())
}

func TestPlainErrorsBecomeGatewayErrors(t *testing.T) {
	f := newFixture(t, newFakeSynth(synthResult{err: errors.New("connection reset")}))
	f.record(t, "rey", scores(20, 95, 40, ""))

	_, err := f.ctrl.RequestSynthesis(context.Background())
	require.NoError(t, err)
	waitForState(t, f.ctrl, StateSynthesisFailed)

	gwErr := f.ctrl.Failure()
	require.NotNil(t, gwErr)
	assert.Equal(t, assistant.TaskDiagnosticSynthesis, gwErr.Task)
	assert.EqualError(t, gwErr.Err, "connection reset")
}

func TestCancelSynthesis(t *testing.T) {
	synth := newFakeSynth(synthResult{text: "never"})
	synth.gated = true
	f := newFixture(t, synth)
	f.record(t, "tol", scores(30, 102, 55, ""))

	_, err := f.ctrl.RequestSynthesis(context.Background())
	require.NoError(t, err)
	require.NoError(t, f.ctrl.CancelSynthesis())
	assert.Equal(t, StateReviewingResults, f.ctrl.State())

	require.Eventually(t, func() bool { return f.observer.has(OutcomeDiscarded) }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, StateReviewingResults, f.ctrl.State())
	assert.Empty(t, f.ctrl.Snapshot().Synthesis)
}

func TestDispatchFailureFailsSynthesis(t *testing.T) {
	synth := newFakeSynth(synthResult{text: "unused"})
	dir := patient.NewMemoryDirectory(patient.SeedPatients())
	p, err := dir.Get(context.Background(), "1")
	require.NoError(t, err)

	ctrl := NewController("s", Deps{
		Catalog:     catalog.Default(),
		Patients:    dir,
		Synthesizer: synth,
		Dispatcher:  rejectingDispatcher{},
	}, p, locale.PortugueseBR)

	require.NoError(t, ctrl.SelectInstrument("wasi"))
	_, err = ctrl.SaveScores(scores(30, 98, 45, ""))
	require.NoError(t, err)

	started, err := ctrl.RequestSynthesis(context.Background())
	assert.False(t, started)
	var gwErr *assistant.GatewayError
	require.ErrorAs(t, err, &gwErr)
	assert.ErrorIs(t, err, workerpool.ErrQueueFull)
	assert.Equal(t, StateSynthesisFailed, ctrl.State())
	assert.Zero(t, synth.Calls())
}

func TestEventsArePublished(t *testing.T) {
	f := newFixture(t, newFakeSynth(synthResult{text: "ok"}))
	f.record(t, "wasi", scores(30, 98, 45, ""))
	require.NoError(t, f.ctrl.SelectPatient(context.Background(), "2"))

	f.publisher.mu.Lock()
	defer f.publisher.mu.Unlock()
	assert.Equal(t, []EventType{EventSessionStarted, EventScoresRecorded, EventPatientSelected}, f.publisher.events)
}

func TestClosedSessionRejectsWork(t *testing.T) {
	synth := newFakeSynth(synthResult{text: "late"})
	synth.gated, synth.deaf = true, true
	f := newFixture(t, synth)
	f.record(t, "wasi", scores(30, 98, 45, ""))

	started, err := f.ctrl.RequestSynthesis(context.Background())
	require.NoError(t, err)
	require.True(t, started)
	require.Eventually(t, func() bool { return synth.Calls() == 1 }, 2*time.Second, 5*time.Millisecond)

	f.ctrl.Close()
	f.ctrl.Close()

	started, err = f.ctrl.RequestSynthesis(context.Background())
	assert.False(t, started)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.ErrorIs(t, f.ctrl.SelectInstrument("stroop-ad"), ErrSessionNotFound)
	assert.ErrorIs(t, f.ctrl.ReviewResults(), ErrSessionNotFound)
	assert.ErrorIs(t, f.ctrl.BrowseCatalog(), ErrSessionNotFound)
	assert.ErrorIs(t, f.ctrl.CancelSynthesis(), ErrSessionNotFound)
	assert.ErrorIs(t, f.ctrl.SelectPatient(context.Background(), "2"), ErrSessionNotFound)
	_, err = f.ctrl.RemoveResult("x")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	synth.Release()
	require.Eventually(t, func() bool { return f.observer.has(OutcomeDiscarded) }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, synth.Calls())
	assert.Empty(t, f.ctrl.Snapshot().Synthesis)

	f.publisher.mu.Lock()
	defer f.publisher.mu.Unlock()
	assert.Equal(t, EventSessionEnded, f.publisher.events[len(f.publisher.events)-1])
	ended := 0
	for _, e := range f.publisher.events {
		if e == EventSessionEnded {
			ended++
		}
	}
	assert.Equal(t, 1, ended)
}
