package voice

import (
	"github.com/cbegin/stepsynth-go/internal/envelope"
	"github.com/cbegin/stepsynth-go/internal/score"
)

// Params are the effective settings of one oscillator after overlaying the
// oscillator spec onto its instrument.
type Params struct {
	Waveform   score.Waveform
	Loudness   float64 // instrument volume * oscillator volume
	Attack     float64 // ms
	Decay      float64 // ms
	Sustain    float64
	Release    float64 // ms
	Detune     float64 // frequency multiplier
	Pan        float64
	NoteLength float64 // in steps of the instrument's subdivision
}

// ResolveParams picks each field from the oscillator, then the instrument,
// then the default. Volume is the exception: instrument and oscillator
// volumes multiply.
func ResolveParams(inst *score.Instrument, osc score.OscillatorSpec) Params {
	return Params{
		Waveform:   pick(score.WaveSine, osc.Type, inst.Type),
		Loudness:   pick(1.0, inst.Volume) * pick(1.0, osc.Volume),
		Attack:     pick(0.0, osc.Attack, inst.Attack),
		Decay:      pick(0.0, osc.Decay, inst.Decay),
		Sustain:    pick(1.0, osc.Sustain, inst.Sustain),
		Release:    pick(0.0, osc.Release, inst.Release),
		Detune:     pick(1.0, osc.Detune, inst.Detune),
		Pan:        pick(0.0, osc.Pan, inst.Pan),
		NoteLength: pick(1.0, osc.NoteLength, inst.NoteLength),
	}
}

func pick[T any](def T, vals ...*T) T {
	for _, v := range vals {
		if v != nil {
			return *v
		}
	}
	return def
}

// TriggerOptions select between a sequenced note with a fixed duration and a
// held note released by its handle.
type TriggerOptions struct {
	Held bool
	// Velocity scales loudness; nil means 1.
	Velocity *float64
	// StepLength is the tick period in ms used to size finite notes; 0 means
	// score.DefaultStepLength.
	StepLength float64
}

var defaultOscillators = []score.OscillatorSpec{{}}

// Player fans a note out over every oscillator of an instrument.
type Player struct {
	renderer *Renderer
}

func NewPlayer(renderer *Renderer) *Player {
	return &Player{renderer: renderer}
}

// Trigger starts one voice per oscillator and returns a handle stopping all
// of them.
func (p *Player) Trigger(inst *score.Instrument, frequency float64, opts TriggerOptions) StopHandle {
	oscillators := inst.Oscillators
	if len(oscillators) == 0 {
		oscillators = defaultOscillators
	}
	velocity := pick(1.0, opts.Velocity)
	step := opts.StepLength
	if step <= 0 {
		step = score.DefaultStepLength
	}
	steps := float64(inst.SubdivisionOrDefault()) * step

	group := make(Group, 0, len(oscillators))
	for _, osc := range oscillators {
		vp := ResolveParams(inst, osc)
		env := envelope.Compute(envelope.Params{
			Attack:   vp.Attack,
			Decay:    vp.Decay,
			Sustain:  vp.Sustain,
			Release:  vp.Release,
			Duration: vp.NoteLength * steps,
			Held:     opts.Held,
			Loudness: vp.Loudness * velocity,
		})
		group = append(group, p.renderer.RenderNote(Note{
			Frequency: frequency * vp.Detune,
			Waveform:  vp.Waveform,
			Pan:       vp.Pan,
			Envelope:  env,
		}))
	}
	return group
}
