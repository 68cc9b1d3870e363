// Package synth is the software sound backend: a fixed pool of oscillator
// voices mixed into interleaved stereo float32 frames. Its clock is the
// number of frames rendered so far.
package synth

import (
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"github.com/cbegin/stepsynth-go/internal/envelope"
	"github.com/cbegin/stepsynth-go/internal/score"
	"github.com/cbegin/stepsynth-go/internal/voice"
)

const twoPi = math.Pi * 2

type Params struct {
	Voices     int
	MasterGain float64
}

func DefaultParams() Params {
	return Params{
		Voices:     64,
		MasterGain: 0.3,
	}
}

type slot struct {
	active bool
	gen    uint64
	age    int
	wave   score.Waveform
	freq   float64
	phase  float64
	left   float64
	right  float64
	gain   []envelope.Point
	start  float64
	stop   float64
}

// Engine implements voice.Backend and renders through Process.
type Engine struct {
	mu         sync.Mutex
	sampleRate float64
	frames     atomic.Int64
	slots      []slot
	nextGen    uint64
	masterGain atomic.Uint64
	dcPrevInL  float64
	dcPrevOutL float64
	dcPrevInR  float64
	dcPrevOutR float64
}

var _ voice.Backend = (*Engine)(nil)

func New(sampleRate int, params Params) *Engine {
	if params.Voices <= 0 {
		params.Voices = DefaultParams().Voices
	}
	e := &Engine{
		sampleRate: float64(sampleRate),
		slots:      make([]slot, params.Voices),
	}
	e.SetMasterGain(params.MasterGain)
	return e
}

func (e *Engine) SampleRate() int { return int(e.sampleRate) }

// Now is the time in seconds of the next frame to be rendered.
func (e *Engine) Now() float64 {
	return float64(e.frames.Load()) / e.sampleRate
}

// NewVoice claims a slot, stealing one when the pool is full.
func (e *Engine) NewVoice(wave score.Waveform, frequency float64, pan float64) (voice.Voice, error) {
	if !wave.Valid() {
		return nil, fmt.Errorf("synth: unknown waveform %q", wave)
	}
	if frequency <= 0 || math.IsNaN(frequency) || math.IsInf(frequency, 0) {
		return nil, fmt.Errorf("synth: invalid frequency %v", frequency)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	i := e.stealVoice()
	e.nextGen++
	angle := ((clamp(pan, -1, 1) + 1) / 2) * (math.Pi / 2)
	e.slots[i] = slot{
		active: true,
		gen:    e.nextGen,
		wave:   wave,
		freq:   frequency,
		left:   math.Cos(angle),
		right:  math.Sin(angle),
		start:  math.Inf(1),
		stop:   math.Inf(1),
	}
	return &handle{engine: e, index: i, gen: e.nextGen}, nil
}

// stealVoice prefers a free slot, then the voice that ends soonest, then the
// oldest one.
func (e *Engine) stealVoice() int {
	for i := range e.slots {
		if !e.slots[i].active {
			return i
		}
	}
	soonest := -1
	soonestStop := math.Inf(1)
	oldest := 0
	oldestAge := -1
	for i := range e.slots {
		s := &e.slots[i]
		if s.stop < soonestStop {
			soonest = i
			soonestStop = s.stop
		}
		if s.age > oldestAge {
			oldest = i
			oldestAge = s.age
		}
	}
	if soonest >= 0 {
		return soonest
	}
	return oldest
}

// Process renders interleaved stereo frames into dst.
func (e *Engine) Process(dst []float32) {
	e.mu.Lock()
	defer e.mu.Unlock()
	gain := e.masterGainValue()
	frame := e.frames.Load()
	for i := 0; i+1 < len(dst); i += 2 {
		t := float64(frame) / e.sampleRate
		var l, r float64
		for j := range e.slots {
			s := &e.slots[j]
			if !s.active {
				continue
			}
			if t >= s.stop {
				s.active = false
				s.gain = nil
				continue
			}
			s.age++
			if t < s.start {
				continue
			}
			sig := e.renderWave(s) * envelope.GainAt(s.gain, t)
			l += sig * s.left
			r += sig * s.right
		}
		l = e.dcBlockL(l) * gain
		r = e.dcBlockR(r) * gain
		dst[i] = float32(clamp(l, -1, 1))
		dst[i+1] = float32(clamp(r, -1, 1))
		frame++
	}
	e.frames.Store(frame)
}

func (e *Engine) dcBlockL(x float64) float64 {
	const r = 0.995
	y := x - e.dcPrevInL + r*e.dcPrevOutL
	e.dcPrevInL = x
	e.dcPrevOutL = y
	return y
}

func (e *Engine) dcBlockR(x float64) float64 {
	const r = 0.995
	y := x - e.dcPrevInR + r*e.dcPrevOutR
	e.dcPrevInR = x
	e.dcPrevOutR = y
	return y
}

// polyBLEP reduces aliasing at waveform discontinuities.
// t is the phase position [0,1), dt is the phase increment per sample.
func polyBLEP(t, dt float64) float64 {
	if t < dt {
		t /= dt
		return t + t - t*t - 1
	}
	if t > 1-dt {
		t = (t - 1) / dt
		return t*t + t + t + 1
	}
	return 0
}

func (e *Engine) renderWave(s *slot) float64 {
	dt := s.freq / e.sampleRate
	s.phase += dt
	if s.phase >= 1 {
		s.phase -= math.Floor(s.phase)
	}
	switch s.wave {
	case score.WaveSine:
		return math.Sin(twoPi * s.phase)
	case score.WaveSquare:
		out := -1.0
		if s.phase < 0.5 {
			out = 1
		}
		out += polyBLEP(s.phase, dt)
		out -= polyBLEP(math.Mod(s.phase+0.5, 1), dt)
		return out
	case score.WaveSawtooth:
		return 2*s.phase - 1 - polyBLEP(s.phase, dt)
	case score.WaveTriangle:
		return 2*math.Abs(2*s.phase-1) - 1
	default:
		return 0
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func (e *Engine) SetMasterGain(gain float64) {
	if gain < 0 {
		gain = 0
	}
	e.masterGain.Store(math.Float64bits(gain))
}

func (e *Engine) masterGainValue() float64 {
	return math.Float64frombits(e.masterGain.Load())
}

func (e *Engine) ActiveVoiceCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for i := range e.slots {
		if e.slots[i].active {
			n++
		}
	}
	return n
}

// handle addresses a slot for as long as it has not been stolen.
type handle struct {
	engine *Engine
	index  int
	gen    uint64
}

func (h *handle) with(fn func(s *slot)) {
	h.engine.mu.Lock()
	defer h.engine.mu.Unlock()
	s := &h.engine.slots[h.index]
	if !s.active || s.gen != h.gen {
		return
	}
	fn(s)
}

func (h *handle) SetGain(points []envelope.Point) {
	cp := append([]envelope.Point(nil), points...)
	h.with(func(s *slot) { s.gain = cp })
}

func (h *handle) Start(at float64) {
	h.with(func(s *slot) { s.start = at })
}

func (h *handle) Stop(at float64) {
	h.with(func(s *slot) { s.stop = at })
}
