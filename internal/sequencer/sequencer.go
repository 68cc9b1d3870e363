// Package sequencer advances one playhead per instrument on a shared step
// clock and triggers the notes that fall due.
package sequencer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cbegin/stepsynth-go/internal/errkind"
	"github.com/cbegin/stepsynth-go/internal/score"
	"github.com/cbegin/stepsynth-go/internal/voice"
)

// NotePlayer starts a note on an instrument.
type NotePlayer interface {
	Trigger(inst *score.Instrument, frequency float64, opts voice.TriggerOptions) voice.StopHandle
}

// Playhead is an instrument's position: which sequence, which note of its
// pattern, how many times the pattern has wrapped, and the step clock used
// for subdivision gating.
type Playhead struct {
	Sequence   int
	Note       int
	Repetition int
	Clock      int
}

// NoteEvent reports a note the session triggered.
type NoteEvent struct {
	Instrument string
	Sequence   int
	Note       int
	Repetition int
	Frequency  float64
}

// Options configures a Session. Both fields are optional.
type Options struct {
	OnNote func(NoteEvent)
	Logger *slog.Logger
}

// Session owns the playheads of one playback run. Playheads are only ever
// written by Step; the mutex serialises observers such as Playhead.
type Session struct {
	mu        sync.Mutex
	source    func() *score.Document
	player    NotePlayer
	onNote    func(NoteEvent)
	logger    *slog.Logger
	playheads map[string]*Playhead
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewSession creates a stopped session. source is read on every step so the
// document can be replaced while playing.
func NewSession(source func() *score.Document, player NotePlayer, opts Options) *Session {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		source:    source,
		player:    player,
		onNote:    opts.OnNote,
		logger:    logger,
		playheads: make(map[string]*Playhead),
	}
}

// Step runs one global tick over every instrument in name order.
func (s *Session) Step() {
	doc := s.source()
	if doc == nil {
		return
	}
	step := doc.Step()
	var fired []NoteEvent

	s.mu.Lock()
	for _, name := range doc.InstrumentNames() {
		if ev, ok := s.stepInstrument(name, doc.Instruments[name], step); ok {
			fired = append(fired, ev)
		}
	}
	s.mu.Unlock()

	if s.onNote != nil {
		for _, ev := range fired {
			s.onNote(ev)
		}
	}
}

func (s *Session) stepInstrument(name string, inst *score.Instrument, step float64) (NoteEvent, bool) {
	ph, ok := s.playheads[name]
	if !ok {
		ph = &Playhead{}
		s.playheads[name] = ph
	}
	// the clock counts every tick, fired or not
	defer func() { ph.Clock++ }()

	if inst == nil || len(inst.Sequences) == 0 {
		return NoteEvent{}, false
	}
	if ph.Clock%inst.SubdivisionOrDefault() != 0 {
		return NoteEvent{}, false
	}
	if ph.Sequence >= len(inst.Sequences) {
		ph.Sequence = 0
		ph.Note = 0
	}
	seq := inst.Sequences[ph.Sequence]
	if len(seq.Pattern) == 0 {
		ph.nextSequence()
		return NoteEvent{}, false
	}
	if ph.Note >= len(seq.Pattern) {
		ph.Note = 0
		ph.Repetition++
		ph.Clock = 0
	}

	ev := NoteEvent{Instrument: name, Sequence: ph.Sequence, Note: ph.Note, Repetition: ph.Repetition}
	token := seq.Pattern[ph.Note]
	freq, err := token.Hz()
	fired := false
	switch {
	case err != nil:
		s.logger.Warn("sequencer: skipping note", "instrument", name, "token", token.String(),
			"err", errkind.Issue(err))
	case freq > 0:
		s.player.Trigger(inst, freq, voice.TriggerOptions{StepLength: step})
		ev.Frequency = freq
		fired = true
	}

	ph.Note++
	if ph.Note >= len(seq.Pattern) && ph.Repetition >= seq.RepeatOrDefault()-1 {
		// takes effect through the range check on the next due tick
		ph.nextSequence()
	}
	return ev, fired
}

func (ph *Playhead) nextSequence() {
	ph.Sequence++
	ph.Note = 0
	ph.Repetition = 0
}

// Playhead returns a copy of an instrument's playhead.
func (s *Session) Playhead(name string) (Playhead, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ph, ok := s.playheads[name]
	if !ok {
		return Playhead{}, false
	}
	return *ph, true
}

// Start resets every playhead and begins ticking on a new goroutine. The
// first tick fires immediately. Each following tick is armed after the
// previous one finished, with the document's current stepLength as the
// delay, so the period drifts by the time a tick takes. Calling Start while
// running does nothing.
func (s *Session) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.runningLocked() {
		return
	}
	s.playheads = make(map[string]*Playhead)
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done
	go s.run(ctx, done)
}

func (s *Session) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
		s.Step()
		timer.Reset(s.period())
	}
}

func (s *Session) period() time.Duration {
	return time.Duration(s.source().Step() * float64(time.Millisecond))
}

// Stop cancels the tick loop, waits for it to exit and discards all
// playheads. It must not be called from an OnNote callback.
func (s *Session) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()
	if cancel != nil {
		cancel()
		<-done
	}
	s.mu.Lock()
	s.playheads = make(map[string]*Playhead)
	s.mu.Unlock()
}

// Running reports whether the tick loop is active.
func (s *Session) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runningLocked()
}

func (s *Session) runningLocked() bool {
	if s.done == nil {
		return false
	}
	select {
	case <-s.done:
		return false
	default:
		return true
	}
}
