// Package effects is the master bus: stereo processors applied to the mixed
// output of the synth, configured from a document's effects list.
package effects

import (
	"fmt"

	"github.com/cbegin/stepsynth-go/internal/score"
)

// Effector processes one stereo frame.
type Effector interface {
	Process(l, r float32) (float32, float32)
	Reset()
}

// Chain applies its effects in document order.
type Chain struct {
	effects []Effector
}

func NewChain(effects ...Effector) *Chain {
	return &Chain{effects: effects}
}

func (c *Chain) Len() int { return len(c.effects) }

func (c *Chain) Process(l, r float32) (float32, float32) {
	for _, e := range c.effects {
		l, r = e.Process(l, r)
	}
	return l, r
}

// ProcessInterleaved runs every frame of an interleaved stereo buffer
// through the chain in place.
func (c *Chain) ProcessInterleaved(buf []float32) {
	if len(c.effects) == 0 {
		return
	}
	for i := 0; i+1 < len(buf); i += 2 {
		buf[i], buf[i+1] = c.Process(buf[i], buf[i+1])
	}
}

func (c *Chain) Reset() {
	for _, e := range c.effects {
		e.Reset()
	}
}

// Build creates the chain a document asks for. An empty list yields an empty
// chain that passes audio through untouched.
func Build(specs []score.EffectSpec, sampleRate int) (*Chain, error) {
	chain := NewChain()
	for i, spec := range specs {
		fx, err := New(spec, sampleRate)
		if err != nil {
			return nil, fmt.Errorf("effect %d: %w", i, err)
		}
		chain.effects = append(chain.effects, fx)
	}
	return chain, nil
}

// New creates one effect. Params are positional:
//
//	delay:      time ms, feedback, cross feedback, mix
//	reverb:     room size, decay, mix
//	compressor: threshold dB, ratio, attack ms, release ms, makeup dB
func New(spec score.EffectSpec, sampleRate int) (Effector, error) {
	param := func(idx int, def float64) float64 {
		if idx < len(spec.Params) {
			return spec.Params[idx]
		}
		return def
	}
	switch spec.Type {
	case "delay":
		return NewDelay(sampleRate, param(0, 250), float32(param(1, 0.4)), float32(param(2, 0.2)), float32(param(3, 0.3))), nil
	case "reverb":
		return NewReverb(sampleRate, float32(param(0, 0.5)), float32(param(1, 0.7)), float32(param(2, 0.25))), nil
	case "compressor":
		return NewCompressor(sampleRate, param(0, -20), param(1, 4), param(2, 5), param(3, 100), param(4, 6)), nil
	default:
		return nil, fmt.Errorf("unknown effect type %q", spec.Type)
	}
}

func clamp(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func mix(dry, wet, amount float32) float32 {
	return dry*(1-amount) + wet*amount
}
