package evaluation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/gestor-t/neuroeval/internal/assistant"
	"github.com/gestor-t/neuroeval/internal/catalog"
	"github.com/gestor-t/neuroeval/internal/locale"
	"github.com/gestor-t/neuroeval/internal/patient"
	"github.com/gestor-t/neuroeval/pkg/workerpool"
)

// State represents the workflow state of an evaluation session
type State string

const (
	StateBrowsingCatalog   State = "browsing_catalog"
	StateEnteringScores    State = "entering_scores"
	StateReviewingResults  State = "reviewing_results"
	StateAwaitingSynthesis State = "awaiting_synthesis"
	StateSynthesisReady    State = "synthesis_ready"
	StateSynthesisFailed   State = "synthesis_failed"
)

// Synthesis outcomes reported to the Observer
const (
	OutcomeSuccess    = "success"
	OutcomeFailure    = "failure"
	OutcomeCancelled  = "cancelled"
	OutcomeDiscarded  = "discarded"
	OutcomeSuppressed = "suppressed"
)

// DefaultSynthesisTimeout bounds a single synthesis call
const DefaultSynthesisTimeout = 3 * time.Minute

// Synthesizer produces the diagnostic synthesis text
type Synthesizer interface {
	DiagnosticSynthesis(ctx context.Context, anamnesis, resultsSummary string, lang locale.Language) (string, error)
}

// Dispatcher runs jobs off the caller's goroutine. Submit must not block.
type Dispatcher interface {
	Submit(job *workerpool.Job) error
}

// Observer receives workflow measurements
type Observer interface {
	AdministrationRecorded(instrumentID string)
	PatientSwitched()
	SynthesisStarted()
	SynthesisFinished(outcome string, elapsed time.Duration)
	SessionOpened()
	SessionClosed()
}

type nopObserver struct{}

func (nopObserver) AdministrationRecorded(string) {}
func (nopObserver) PatientSwitched() {}
func (nopObserver) SynthesisStarted() {}
func (nopObserver) SynthesisFinished(string, time.Duration) {}
func (nopObserver) SessionOpened() {}
func (nopObserver) SessionClosed() {}

// Deps are the collaborators shared by every controller
type Deps struct {
	Catalog          *catalog.Catalog
	Patients         patient.Directory
	Synthesizer      Synthesizer
	Dispatcher       Dispatcher
	Publisher        EventPublisher
	Observer         Observer
	Logger           *zap.Logger
	SynthesisTimeout time.Duration
}

func (d Deps) withDefaults() Deps {
	if d.Publisher == nil {
		d.Publisher = NopPublisher{}
	}
	if d.Observer == nil {
		d.Observer = nopObserver{}
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.SynthesisTimeout <= 0 {
		d.SynthesisTimeout = DefaultSynthesisTimeout
	}
	return d
}

// Controller drives one clinician's evaluation session. All methods are safe
// for concurrent use; synthesis completions arrive on worker goroutines.
type Controller struct {
	id     string
	deps   Deps
	logger *zap.Logger
	lang   *locale.Setting

	mu         sync.Mutex
	state      State
	patient    patient.Patient
	store      *ResultStore
	instrument *catalog.Instrument
	synthesis  string
	failure    *assistant.GatewayError
	generation uint64
	cancel     context.CancelFunc
	startedAt  time.Time
	closed     bool
}

// NewController creates a session in browsing_catalog for the given patient
func NewController(id string, deps Deps, p patient.Patient, lang locale.Language) *Controller {
	deps = deps.withDefaults()
	c := &Controller{
		id:      id,
		deps:    deps,
		logger:  deps.Logger.With(zap.String("session_id", id)),
		lang:    locale.NewSetting(lang),
		state:   StateBrowsingCatalog,
		patient: p,
		store:   NewResultStore(deps.Catalog, p.ID),
	}
	c.publish(context.Background(), EventSessionStarted, nil)
	return c
}

// ID returns the session id
func (c *Controller) ID() string { return c.id }

// Language returns the session language
func (c *Controller) Language() locale.Language { return c.lang.Language() }

// SetLanguage changes the session language. A synthesis already in flight
// keeps the language it was requested in.
func (c *Controller) SetLanguage(lang locale.Language) { c.lang.Set(lang) }

// State returns the current workflow state
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SelectInstrument opens the score form for an instrument
func (c *Controller) SelectInstrument(instrumentID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrSessionNotFound
	}

	if c.state != StateBrowsingCatalog {
		return &TransitionError{From: c.state, Action: "select_instrument"}
	}
	inst, ok := c.deps.Catalog.Lookup(instrumentID)
	if !ok {
		return &ValidationError{Field: "instrument_id", Reason: "unknown instrument " + instrumentID}
	}
	c.instrument = &inst
	c.state = StateEnteringScores
	return nil
}

// CancelEntry closes the score form without recording anything
func (c *Controller) CancelEntry() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrSessionNotFound
	}

	if c.state != StateEnteringScores {
		return &TransitionError{From: c.state, Action: "cancel_entry"}
	}
	c.instrument = nil
	c.state = StateBrowsingCatalog
	return nil
}

// SaveScores records the form for the selected instrument and returns to the
// catalog. On a ValidationError the form stays open.
func (c *Controller) SaveScores(in ScoreInput) (TestAdministration, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return TestAdministration{}, ErrSessionNotFound
	}

	if c.state != StateEnteringScores {
		return TestAdministration{}, &TransitionError{From: c.state, Action: "save_scores"}
	}
	admin, err := c.store.Record(c.instrument.ID, in)
	if err != nil {
		return TestAdministration{}, err
	}
	c.instrument = nil
	c.state = StateBrowsingCatalog

	c.deps.Observer.AdministrationRecorded(admin.InstrumentID)
	c.publish(context.Background(), EventScoresRecorded, ScoresRecordedData{
		AdministrationID: admin.ID,
		InstrumentID:     admin.InstrumentID,
		StandardScore:    admin.StandardScore,
	})
	c.logger.Debug("scores recorded",
		zap.String("administration_id", admin.ID),
		zap.String("instrument_id", admin.InstrumentID))
	return admin, nil
}

// ReviewResults shows the session results
func (c *Controller) ReviewResults() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrSessionNotFound
	}

	switch c.state {
	case StateBrowsingCatalog, StateReviewingResults, StateSynthesisReady, StateSynthesisFailed:
		c.state = StateReviewingResults
		return nil
	}
	return &TransitionError{From: c.state, Action: "review_results"}
}

// BrowseCatalog returns to the instrument list
func (c *Controller) BrowseCatalog() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrSessionNotFound
	}

	switch c.state {
	case StateBrowsingCatalog, StateReviewingResults, StateSynthesisReady, StateSynthesisFailed:
		c.state = StateBrowsingCatalog
		return nil
	}
	return &TransitionError{From: c.state, Action: "browse_catalog"}
}

// RemoveResult deletes one administration while reviewing results.
// It reports whether anything was removed.
func (c *Controller) RemoveResult(administrationID string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false, ErrSessionNotFound
	}

	if c.state != StateReviewingResults {
		return false, &TransitionError{From: c.state, Action: "remove_result"}
	}
	removed := c.store.Remove(administrationID)
	if removed {
		c.publish(context.Background(), EventAdministrationRemoved, map[string]string{"administration_id": administrationID})
	}
	return removed, nil
}

// SelectPatient switches the active patient. The result set is discarded and
// any synthesis in flight is cancelled; its late response will be ignored.
func (c *Controller) SelectPatient(ctx context.Context, patientID string) error {
	p, err := c.deps.Patients.Get(ctx, patientID)
	if err != nil {
		if errors.Is(err, patient.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrPatientNotFound, patientID)
		}
		return fmt.Errorf("failed to load patient: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrSessionNotFound
	}
	inFlight := c.abortSynthesisLocked()
	c.patient = p
	c.store.Reset(p.ID)
	c.instrument = nil
	c.synthesis = ""
	c.failure = nil
	c.state = StateBrowsingCatalog

	if inFlight {
		c.deps.Observer.SynthesisFinished(OutcomeCancelled, time.Since(c.startedAt))
	}
	c.deps.Observer.PatientSwitched()
	c.publish(ctx, EventPatientSelected, nil)
	c.logger.Info("patient selected", zap.String("patient_id", p.ID), zap.Bool("synthesis_cancelled", inFlight))
	return nil
}

// RequestSynthesis starts a diagnostic synthesis on the dispatcher. It
// returns started=false without error when one is already in flight.
func (c *Controller) RequestSynthesis(ctx context.Context) (bool, error) {
	c.mu.Lock()

	if c.closed {
		c.mu.Unlock()
		return false, ErrSessionNotFound
	}
	switch c.state {
	case StateAwaitingSynthesis:
		c.mu.Unlock()
		c.deps.Observer.SynthesisFinished(OutcomeSuppressed, 0)
		c.logger.Debug("synthesis already in flight, request suppressed")
		return false, nil
	case StateBrowsingCatalog, StateReviewingResults, StateSynthesisReady, StateSynthesisFailed:
	default:
		state := c.state
		c.mu.Unlock()
		return false, &TransitionError{From: state, Action: "request_synthesis"}
	}

	lang := c.lang.Language()
	if c.store.Len() == 0 {
		c.mu.Unlock()
		return false, &PreconditionError{
			Operation: "request_synthesis",
			Message:   locale.Message(lang, locale.MsgNoResultsForSynthesis),
		}
	}

	c.generation++
	gen := c.generation
	anamnesis := c.patient.Anamnesis
	summary := FormatResults(c.store.List(), c.deps.Catalog)

	jobCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.deps.SynthesisTimeout)
	c.cancel = cancel
	c.state = StateAwaitingSynthesis
	c.synthesis = ""
	c.failure = nil
	c.startedAt = time.Now()
	c.deps.Observer.SynthesisStarted()
	c.publish(ctx, EventSynthesisRequested, nil)
	c.mu.Unlock()

	synth := c.deps.Synthesizer
	job := &workerpool.Job{
		ID:      fmt.Sprintf("%s/synthesis/%d", c.id, gen),
		Context: jobCtx,
		Run: func(ctx context.Context) (interface{}, error) {
			return synth.DiagnosticSynthesis(ctx, anamnesis, summary, lang)
		},
		Done: func(result interface{}, err error) {
			text, _ := result.(string)
			c.completeSynthesis(gen, text, err)
		},
	}

	if err := c.deps.Dispatcher.Submit(job); err != nil {
		gwErr := &assistant.GatewayError{Task: assistant.TaskDiagnosticSynthesis, Err: fmt.Errorf("dispatch: %w", err)}
		c.completeSynthesis(gen, "", gwErr)
		return false, gwErr
	}

	c.logger.Info("synthesis requested",
		zap.Uint64("generation", gen),
		zap.String("language", string(lang)))
	return true, nil
}

// CancelSynthesis abandons the synthesis in flight and returns to the results
func (c *Controller) CancelSynthesis() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrSessionNotFound
	}

	if c.state != StateAwaitingSynthesis {
		return &TransitionError{From: c.state, Action: "cancel_synthesis"}
	}
	c.abortSynthesisLocked()
	c.state = StateReviewingResults
	c.deps.Observer.SynthesisFinished(OutcomeCancelled, time.Since(c.startedAt))
	c.publish(context.Background(), EventSynthesisCancelled, nil)
	return nil
}

// Close cancels any synthesis in flight. Every later mutation fails with
// ErrSessionNotFound and a second Close does nothing.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	if c.abortSynthesisLocked() {
		c.deps.Observer.SynthesisFinished(OutcomeCancelled, time.Since(c.startedAt))
	}
	c.publish(context.Background(), EventSessionEnded, nil)
}

// abortSynthesisLocked invalidates the current request so a late completion
// is discarded. It reports whether a call was in flight.
func (c *Controller) abortSynthesisLocked() bool {
	c.generation++
	if c.cancel == nil {
		return false
	}
	c.cancel()
	c.cancel = nil
	return c.state == StateAwaitingSynthesis
}

func (c *Controller) completeSynthesis(gen uint64, text string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || gen != c.generation || c.state != StateAwaitingSynthesis {
		c.deps.Observer.SynthesisFinished(OutcomeDiscarded, 0)
		c.logger.Info("discarding stale synthesis response",
			zap.Uint64("generation", gen),
			zap.Uint64("current_generation", c.generation))
		if c.closed {
			return
		}
		c.publishWithGeneration(context.Background(), EventSynthesisDiscarded, gen, nil)
		return
	}

	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	elapsed := time.Since(c.startedAt)

	if err != nil {
		c.failure = assistant.AsGatewayError(assistant.TaskDiagnosticSynthesis, err)
		c.state = StateSynthesisFailed
		c.deps.Observer.SynthesisFinished(OutcomeFailure, elapsed)
		c.publish(context.Background(), EventSynthesisFailed, SynthesisOutcomeData{
			Elapsed: elapsed.String(),
			Error:   c.failure.Error(),
		})
		c.logger.Warn("synthesis failed", zap.Uint64("generation", gen), zap.Error(err))
		return
	}

	c.synthesis = text
	c.state = StateSynthesisReady
	c.deps.Observer.SynthesisFinished(OutcomeSuccess, elapsed)
	c.publish(context.Background(), EventSynthesisCompleted, SynthesisOutcomeData{Elapsed: elapsed.String()})
	c.logger.Info("synthesis ready", zap.Uint64("generation", gen), zap.Duration("elapsed", elapsed))
}

// Results returns the session's administrations in insertion order
func (c *Controller) Results() []TestAdministration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.List()
}

// Profile projects the current results. It is recomputed on every call.
func (c *Controller) Profile() Profile {
	return Project(c.Results(), c.deps.Catalog)
}

// ResultsSummary is the text a synthesis or report draft is built from
func (c *Controller) ResultsSummary() string {
	return FormatResults(c.Results(), c.deps.Catalog)
}

// CatalogEntry is an instrument plus whether it was applied this session
type CatalogEntry struct {
	catalog.Instrument
	Applied bool `json:"applied"`
}

// Catalog lists every instrument with its applied flag
func (c *Controller) Catalog() []CatalogEntry {
	c.mu.Lock()
	defer c.mu.Unlock()

	instruments := c.deps.Catalog.Instruments()
	out := make([]CatalogEntry, len(instruments))
	for i, inst := range instruments {
		out[i] = CatalogEntry{Instrument: inst, Applied: c.store.IsInstrumentApplied(inst.ID)}
	}
	return out
}

// PatientRef identifies the active patient
type PatientRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Snapshot is a consistent view of the session
type Snapshot struct {
	SessionID   string               `json:"session_id"`
	State       State                `json:"state"`
	Language    locale.Language      `json:"language"`
	Patient     PatientRef           `json:"patient"`
	Instrument  *catalog.Instrument  `json:"instrument,omitempty"`
	Results     []TestAdministration `json:"results"`
	Synthesis   string               `json:"synthesis,omitempty"`
	Error       string               `json:"error,omitempty"`
	ErrorDetail string               `json:"error_detail,omitempty"`
}

// Snapshot returns the current session view
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	lang := c.lang.Language()
	s := Snapshot{
		SessionID: c.id,
		State:     c.state,
		Language:  lang,
		Patient:   PatientRef{ID: c.patient.ID, Name: c.patient.Name},
		Results:   c.store.List(),
		Synthesis: c.synthesis,
	}
	if c.instrument != nil {
		inst := *c.instrument
		s.Instrument = &inst
	}
	if c.state == StateSynthesisFailed && c.failure != nil {
		s.Error = locale.Message(lang, locale.MsgSynthesisFailed)
		s.ErrorDetail = c.failure.Error()
	}
	return s
}

// Failure returns the gateway error of the last failed synthesis, if any
func (c *Controller) Failure() *assistant.GatewayError {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.failure
}

// Patient returns the active patient record
func (c *Controller) Patient() patient.Patient {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.patient
}

func (c *Controller) publish(ctx context.Context, eventType EventType, data interface{}) {
	c.publishWithGeneration(ctx, eventType, c.generation, data)
}

func (c *Controller) publishWithGeneration(ctx context.Context, eventType EventType, gen uint64, data interface{}) {
	event, err := NewEvent(c.id, eventType, data)
	if err != nil {
		c.logger.Error("failed to build event", zap.String("event_type", string(eventType)), zap.Error(err))
		return
	}
	event.PatientID = c.patient.ID
	event.Generation = gen
	c.deps.Publisher.Publish(ctx, event)
}
