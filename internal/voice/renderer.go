// Package voice turns triggered notes into backend voices: it resolves
// per-oscillator parameters, computes envelopes and hands out stop handles.
package voice

import (
	"log/slog"
	"sync"

	"github.com/cbegin/stepsynth-go/internal/envelope"
	"github.com/cbegin/stepsynth-go/internal/score"
)

// StopHandle ends a sounding note by applying its release tail. Stop is safe
// to call any number of times, from any goroutine, before or after the note
// finished on its own.
type StopHandle interface {
	Stop()
}

// Group stops every handle it holds.
type Group []StopHandle

func (g Group) Stop() {
	for _, h := range g {
		h.Stop()
	}
}

type noopHandle struct{}

func (noopHandle) Stop() {}

// Note is a single oscillator voice request.
type Note struct {
	Frequency float64
	Waveform  score.Waveform
	Pan       float64
	Envelope  envelope.Envelope
}

type Renderer struct {
	backend Backend
	logger  *slog.Logger
}

func NewRenderer(backend Backend, logger *slog.Logger) *Renderer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Renderer{backend: backend, logger: logger}
}

// RenderNote starts one voice now. Finite notes are scheduled to stop at
// the end of their release; held notes sound until the handle is stopped.
func (r *Renderer) RenderNote(n Note) StopHandle {
	v, err := r.backend.NewVoice(n.Waveform, n.Frequency, n.Pan)
	if err != nil {
		r.logger.Warn("voice: allocation failed", "freq", n.Frequency, "err", err)
		return noopHandle{}
	}
	start := r.backend.Now()
	v.SetGain(n.Envelope.Shift(start))
	v.Start(start)
	if !n.Envelope.Held {
		v.Stop(start + n.Envelope.Lifetime)
	}
	return &noteHandle{backend: r.backend, voice: v, start: start, env: n.Envelope}
}

type noteHandle struct {
	once    sync.Once
	backend Backend
	voice   Voice
	start   float64
	env     envelope.Envelope
}

func (h *noteHandle) Stop() {
	h.once.Do(func() {
		offset := h.backend.Now() - h.start
		if !h.env.Held && offset >= h.env.SustainEnd() {
			// already releasing or finished
			return
		}
		released := h.env.ReleaseAt(offset)
		h.voice.SetGain(released.Shift(h.start))
		h.voice.Stop(h.start + released.Lifetime)
	})
}
