package voice

import (
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/cbegin/stepsynth-go/internal/envelope"
	"github.com/cbegin/stepsynth-go/internal/score"
)

type fakeVoice struct {
	wave    score.Waveform
	freq    float64
	pan     float64
	gain    []envelope.Point
	started []float64
	stops   []float64
}

func (v *fakeVoice) SetGain(points []envelope.Point) { v.gain = points }
func (v *fakeVoice) Start(at float64)                { v.started = append(v.started, at) }
func (v *fakeVoice) Stop(at float64)                 { v.stops = append(v.stops, at) }

type fakeBackend struct {
	mu     sync.Mutex
	now    float64
	voices []*fakeVoice
	fail   bool
}

func (b *fakeBackend) Now() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.now
}

func (b *fakeBackend) advance(sec float64) {
	b.mu.Lock()
	b.now += sec
	b.mu.Unlock()
}

func (b *fakeBackend) NewVoice(wave score.Waveform, freq float64, pan float64) (Voice, error) {
	if b.fail {
		return nil, errors.New("no device")
	}
	v := &fakeVoice{wave: wave, freq: freq, pan: pan}
	b.voices = append(b.voices, v)
	return v, nil
}

func f64(v float64) *float64 { return &v }
func intp(v int) *int        { return &v }
func wave(w score.Waveform) *score.Waveform {
	return &w
}

func TestResolveParamsOverlay(t *testing.T) {
	inst := &score.Instrument{
		Volume:     f64(0.5),
		NoteLength: f64(2),
		Attack:     f64(30),
		Type:       wave(score.WaveTriangle),
	}
	osc := score.OscillatorSpec{Volume: f64(0.5), Attack: f64(5), Detune: f64(2)}
	p := ResolveParams(inst, osc)
	if p.Attack != 5 {
		t.Fatalf("oscillator attack should win, got %v", p.Attack)
	}
	if p.Waveform != score.WaveTriangle {
		t.Fatalf("instrument type should apply, got %v", p.Waveform)
	}
	if p.Loudness != 0.25 {
		t.Fatalf("loudness = %v, want instrument*oscillator volume", p.Loudness)
	}
	if p.NoteLength != 2 {
		t.Fatalf("noteLength should inherit from instrument, got %v", p.NoteLength)
	}
	if p.Detune != 2 || p.Sustain != 1 || p.Release != 0 || p.Pan != 0 || p.Decay != 0 {
		t.Fatalf("unexpected defaults: %#v", p)
	}
}

func TestResolveParamsDefaults(t *testing.T) {
	p := ResolveParams(&score.Instrument{}, score.OscillatorSpec{})
	want := Params{Waveform: score.WaveSine, Loudness: 1, Sustain: 1, Detune: 1, NoteLength: 1}
	if p != want {
		t.Fatalf("defaults = %#v, want %#v", p, want)
	}
}

func TestResolveParamsExplicitZeroWins(t *testing.T) {
	inst := &score.Instrument{Sustain: f64(0.7), Volume: f64(0)}
	p := ResolveParams(inst, score.OscillatorSpec{Sustain: f64(0)})
	if p.Sustain != 0 {
		t.Fatalf("explicit zero sustain should win, got %v", p.Sustain)
	}
	if p.Loudness != 0 {
		t.Fatalf("explicit zero volume should win, got %v", p.Loudness)
	}
}

func TestTriggerFansOutAcrossOscillators(t *testing.T) {
	backend := &fakeBackend{now: 1}
	player := NewPlayer(NewRenderer(backend, nil))
	inst := &score.Instrument{
		Volume:      f64(0.5),
		Subdivision: intp(2),
		Oscillators: []score.OscillatorSpec{
			{Type: wave(score.WaveSquare)},
			{Detune: f64(2), Volume: f64(0.5), Pan: f64(-1), Release: f64(100)},
		},
	}
	player.Trigger(inst, 220, TriggerOptions{StepLength: 100})
	if len(backend.voices) != 2 {
		t.Fatalf("expected 2 voices, got %d", len(backend.voices))
	}
	first, second := backend.voices[0], backend.voices[1]
	if first.freq != 220 || first.wave != score.WaveSquare {
		t.Fatalf("first voice = %#v", first)
	}
	if second.freq != 440 || second.pan != -1 || second.wave != score.WaveSine {
		t.Fatalf("second voice = %#v", second)
	}
	// noteLength 1 * subdivision 2 * 100ms
	if math.Abs(first.stops[0]-1.2) > 1e-9 {
		t.Fatalf("first stop at %v, want 1.2", first.stops[0])
	}
	if math.Abs(second.stops[0]-1.3) > 1e-9 {
		t.Fatalf("second stop at %v, want 1.3 (with release)", second.stops[0])
	}
	if peak := first.gain[1].Gain; peak != 0.5 {
		t.Fatalf("first peak = %v, want 0.5", peak)
	}
	if peak := second.gain[1].Gain; peak != 0.25 {
		t.Fatalf("second peak = %v, want 0.25", peak)
	}
	if first.started[0] != 1 || first.gain[0].Time != 1 {
		t.Fatalf("voice should start at backend now")
	}
}

func TestTriggerWithoutOscillatorsUsesSine(t *testing.T) {
	backend := &fakeBackend{}
	NewPlayer(NewRenderer(backend, nil)).Trigger(&score.Instrument{}, 800, TriggerOptions{})
	if len(backend.voices) != 1 || backend.voices[0].wave != score.WaveSine || backend.voices[0].freq != 800 {
		t.Fatalf("unexpected voices: %#v", backend.voices)
	}
	if math.Abs(backend.voices[0].stops[0]-0.1) > 1e-9 {
		t.Fatalf("default step length should size the note, stop at %v", backend.voices[0].stops[0])
	}
}

func TestHeldNoteStopIsIdempotent(t *testing.T) {
	backend := &fakeBackend{}
	player := NewPlayer(NewRenderer(backend, nil))
	vel := 0.5
	inst := &score.Instrument{Oscillators: []score.OscillatorSpec{{Release: f64(200)}}}
	h := player.Trigger(inst, 440, TriggerOptions{Held: true, Velocity: &vel})
	v := backend.voices[0]
	if len(v.stops) != 0 {
		t.Fatalf("held note must not be scheduled to stop")
	}
	if v.gain[1].Gain != 0.5 {
		t.Fatalf("velocity should scale loudness, got %v", v.gain[1].Gain)
	}
	backend.advance(2)
	h.Stop()
	h.Stop()
	if len(v.stops) != 1 {
		t.Fatalf("expected exactly one stop, got %d", len(v.stops))
	}
	if math.Abs(v.stops[0]-2.2) > 1e-9 {
		t.Fatalf("stop at %v, want release end 2.2", v.stops[0])
	}
	last := v.gain[len(v.gain)-1]
	if last.Gain != 0 || math.Abs(last.Time-2.2) > 1e-9 {
		t.Fatalf("release ramp = %#v", v.gain)
	}
}

func TestFiniteNoteStopEarlyAppliesRelease(t *testing.T) {
	backend := &fakeBackend{}
	r := NewRenderer(backend, nil)
	env := envelope.Compute(envelope.Params{Sustain: 1, Release: 50, Duration: 1000, Loudness: 1})
	h := r.RenderNote(Note{Frequency: 440, Waveform: score.WaveSine, Envelope: env})
	v := backend.voices[0]
	backend.advance(0.5)
	h.Stop()
	if len(v.stops) != 2 || math.Abs(v.stops[1]-0.55) > 1e-9 {
		t.Fatalf("early stop should move the stop time to 0.55, got %v", v.stops)
	}
}

func TestFiniteNoteStopAfterEndIsNoop(t *testing.T) {
	backend := &fakeBackend{}
	r := NewRenderer(backend, nil)
	env := envelope.Compute(envelope.Params{Sustain: 1, Release: 50, Duration: 100, Loudness: 1})
	h := r.RenderNote(Note{Frequency: 440, Waveform: score.WaveSine, Envelope: env})
	backend.advance(1)
	h.Stop()
	if v := backend.voices[0]; len(v.stops) != 1 {
		t.Fatalf("finished note should not be stopped again, stops=%v", v.stops)
	}
}

func TestAllocationFailureYieldsNoopHandle(t *testing.T) {
	backend := &fakeBackend{fail: true}
	h := NewPlayer(NewRenderer(backend, nil)).Trigger(&score.Instrument{}, 440, TriggerOptions{})
	h.Stop()
}

func TestNopBackend(t *testing.T) {
	var b NopBackend
	v, err := b.NewVoice(score.WaveSine, 440, 0)
	if err != nil {
		t.Fatalf("nop backend: %v", err)
	}
	v.SetGain(nil)
	v.Start(b.Now())
	v.Stop(b.Now())
	if b.Now() < 0 {
		t.Fatalf("clock must not go backwards")
	}
}
