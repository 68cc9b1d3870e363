// Package stepsynth plays step sequences described by a JSON or YAML
// document on a polyphonic software synth, and lets MIDI keyboards play the
// same instruments live.
package stepsynth

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/cbegin/stepsynth-go/internal/audio"
	"github.com/cbegin/stepsynth-go/internal/effects"
	"github.com/cbegin/stepsynth-go/internal/errkind"
	"github.com/cbegin/stepsynth-go/internal/midibridge"
	"github.com/cbegin/stepsynth-go/internal/score"
	"github.com/cbegin/stepsynth-go/internal/sequencer"
	"github.com/cbegin/stepsynth-go/internal/store"
	"github.com/cbegin/stepsynth-go/internal/synth"
	"github.com/cbegin/stepsynth-go/internal/voice"
)

const DefaultSampleRate = 44100

type EventKind int

const (
	// EventNote: the sequencer triggered Note.
	EventNote EventKind = iota
	// EventLoaded: a new document replaced the current one.
	EventLoaded
	// EventLoadFailed: a document was rejected; Err says why.
	EventLoadFailed
	EventStarted
	EventStopped
)

// Event is delivered through Watch.
type Event struct {
	Kind EventKind
	Note sequencer.NoteEvent
	Err  error
}

type Option func(*engineConfig)

type engineConfig struct {
	sampleRate  int
	store       store.Store
	logger      *slog.Logger
	backend     voice.Backend
	audioOutput bool
	volume      float64
}

func defaultEngineConfig() engineConfig {
	return engineConfig{
		sampleRate:  DefaultSampleRate,
		audioOutput: true,
		volume:      1,
	}
}

func WithSampleRate(sampleRate int) Option {
	return func(cfg *engineConfig) {
		cfg.sampleRate = sampleRate
	}
}

// WithStore sets where the last valid document is saved. The default keeps
// it in memory only.
func WithStore(s store.Store) Option {
	return func(cfg *engineConfig) {
		cfg.store = s
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(cfg *engineConfig) {
		cfg.logger = logger
	}
}

// WithBackend replaces the built-in synth and audio output.
func WithBackend(b voice.Backend) Option {
	return func(cfg *engineConfig) {
		cfg.backend = b
	}
}

// WithAudioOutput controls whether the synth is streamed to the sound
// device. Without output the engine sequences silently.
func WithAudioOutput(enabled bool) Option {
	return func(cfg *engineConfig) {
		cfg.audioOutput = enabled
	}
}

func WithMasterVolume(volume float64) Option {
	return func(cfg *engineConfig) {
		cfg.volume = max(volume, 0)
	}
}

// Engine ties a document to the sequencer, the MIDI bridge and the sound
// backend. All methods are safe for concurrent use.
type Engine struct {
	mu         sync.Mutex
	sampleRate int
	logger     *slog.Logger
	store      store.Store
	text       string
	doc        atomic.Pointer[score.Document]
	chain      atomic.Pointer[effects.Chain]
	synth      *synth.Engine
	output     *audio.Output
	baseGain   float64
	volume     float64
	session    *sequencer.Session
	bridge     *midibridge.Bridge
	eventCh    chan Event
	eventChMu  sync.Mutex
}

// mixer is what the audio output reads: the synth followed by the
// document's effect chain.
type mixer struct {
	synth *synth.Engine
	chain *atomic.Pointer[effects.Chain]
}

func (m *mixer) Process(dst []float32) {
	m.synth.Process(dst)
	if c := m.chain.Load(); c != nil {
		c.ProcessInterleaved(dst)
	}
}

// NewEngine starts with score.DefaultSource loaded and playback stopped.
func NewEngine(opts ...Option) (*Engine, error) {
	cfg := defaultEngineConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.sampleRate <= 0 {
		return nil, errors.New("sampleRate must be positive")
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}
	if cfg.store == nil {
		cfg.store = store.NewMemory()
	}
	e := &Engine{
		sampleRate: cfg.sampleRate,
		logger:     cfg.logger,
		store:      cfg.store,
		volume:     cfg.volume,
	}

	backend := cfg.backend
	if backend == nil {
		backend = e.openSynth(cfg.audioOutput)
	}
	player := voice.NewPlayer(voice.NewRenderer(backend, e.logger))
	e.session = sequencer.NewSession(e.doc.Load, player, sequencer.Options{
		Logger: e.logger,
		OnNote: func(ev sequencer.NoteEvent) {
			e.sendEvent(Event{Kind: EventNote, Note: ev})
		},
	})
	e.bridge = midibridge.New(e.doc.Load, player, e.logger)

	if err := e.apply(score.DefaultSource, false); err != nil {
		return nil, err
	}
	return e, nil
}

// openSynth creates the synth and its output stream, falling back to a
// silent backend when no sound device can be opened.
func (e *Engine) openSynth(withOutput bool) voice.Backend {
	if !withOutput {
		return &voice.NopBackend{}
	}
	params := synth.DefaultParams()
	syn := synth.New(e.sampleRate, params)
	out, err := audio.Open(e.sampleRate, &mixer{synth: syn, chain: &e.chain})
	if err != nil {
		e.logger.Warn("engine: sound output unavailable, sequencing silently",
			"err", err, "backend_unavailable", errkind.Is(err, errkind.BackendUnavailable))
		return &voice.NopBackend{}
	}
	e.synth = syn
	e.output = out
	e.baseGain = params.MasterGain
	syn.SetMasterGain(e.baseGain * e.volume)
	out.Start()
	return syn
}

// LoadSource parses text and, if it is valid, makes it the current document
// and saves it. On error the current document stays in place and the error
// is tagged errkind.Parse or errkind.Schema.
func (e *Engine) LoadSource(text string) error {
	return e.apply(text, true)
}

func (e *Engine) apply(text string, persist bool) error {
	doc, err := score.Parse([]byte(text))
	if err == nil {
		var chain *effects.Chain
		chain, err = effects.Build(doc.Effects, e.sampleRate)
		if err == nil {
			e.mu.Lock()
			e.text = text
			e.doc.Store(doc)
			e.chain.Store(chain)
			e.mu.Unlock()
		} else {
			err = errkind.Wrap(err, errkind.Schema, "engine: effects", err.Error())
		}
	}
	if err != nil {
		e.logger.Warn("engine: source rejected", "issue", errkind.Issue(err))
		e.sendEvent(Event{Kind: EventLoadFailed, Err: err})
		return err
	}
	if persist {
		if err := e.store.Save(store.SourceKey, text); err != nil {
			e.logger.Error("engine: saving source failed", "err", err)
		}
	}
	e.logger.Debug("engine: source loaded", "instruments", len(doc.Instruments))
	e.sendEvent(Event{Kind: EventLoaded})
	return nil
}

// LoadSaved loads the saved document, or the default one when nothing was
// saved or the saved text no longer loads.
func (e *Engine) LoadSaved() error {
	text, ok, err := e.store.Load(store.SourceKey)
	if err != nil {
		e.logger.Warn("engine: reading saved source failed", "err", err)
	}
	if ok {
		if err := e.apply(text, false); err == nil {
			return nil
		}
	}
	return e.apply(score.DefaultSource, false)
}

// Source returns the text of the current document.
func (e *Engine) Source() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.text
}

func (e *Engine) Document() *score.Document {
	return e.doc.Load()
}

// Play starts the sequencer from the beginning of every instrument. It does
// nothing while already playing.
func (e *Engine) Play() {
	if e.session.Running() {
		return
	}
	e.session.Start(context.Background())
	e.logger.Info("engine: playing")
	e.sendEvent(Event{Kind: EventStarted})
}

// Stop halts the sequencer. Notes already sounding finish on their own.
func (e *Engine) Stop() {
	if !e.session.Running() {
		return
	}
	e.session.Stop()
	e.logger.Info("engine: stopped")
	e.sendEvent(Event{Kind: EventStopped})
}

// Toggle is the play/stop button.
func (e *Engine) Toggle() {
	if e.session.Running() {
		e.Stop()
		return
	}
	e.Play()
}

func (e *Engine) IsPlaying() bool {
	return e.session.Running()
}

func (e *Engine) Playhead(instrument string) (sequencer.Playhead, bool) {
	return e.session.Playhead(instrument)
}

// HandleMIDI feeds a raw message received from device to the instruments
// listening to it.
func (e *Engine) HandleMIDI(device string, msg []byte) {
	e.bridge.HandleMessage(device, msg)
}

// DisconnectMIDI releases every note held from device.
func (e *Engine) DisconnectMIDI(device string) {
	e.bridge.Disconnect(device)
}

func (e *Engine) sendEvent(ev Event) {
	e.eventChMu.Lock()
	ch := e.eventCh
	e.eventChMu.Unlock()
	if ch != nil {
		select {
		case ch <- ev:
		default:
			// Channel full; drop event
		}
	}
}

// Watch returns a channel that receives engine events. The channel is
// buffered (cap 64) and events are dropped rather than blocking playback.
// Only the most recent Watch channel receives events.
func (e *Engine) Watch() <-chan Event {
	ch := make(chan Event, 64)
	e.eventChMu.Lock()
	e.eventCh = ch
	e.eventChMu.Unlock()
	return ch
}

// SetMasterVolume sets runtime volume scalar. 1.0 is default.
func (e *Engine) SetMasterVolume(volume float64) {
	if volume < 0 {
		volume = 0
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.volume = volume
	if e.synth != nil {
		e.synth.SetMasterGain(e.baseGain * e.volume)
	}
}

func (e *Engine) MasterVolume() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.volume
}

// ActiveVoices is the number of synth voices currently allocated. It is 0
// when a custom or silent backend is in use.
func (e *Engine) ActiveVoices() int {
	if e.synth == nil {
		return 0
	}
	return e.synth.ActiveVoiceCount()
}

// Close stops playback, releases held notes and closes the sound output.
func (e *Engine) Close() error {
	e.Stop()
	e.bridge.StopAll()
	e.mu.Lock()
	out := e.output
	e.output = nil
	e.mu.Unlock()
	if out != nil {
		return out.Close()
	}
	return nil
}
