package effects

// Reverb is a mono Schroeder network: parallel feedback combs followed by
// allpass diffusers, mixed back into both channels.
type Reverb struct {
	combs   []feedbackLine
	diffuse []feedbackLine
	amount  float32
}

type feedbackLine struct {
	line ring
	gain float32
}

var (
	combRatios    = []int{1000, 1117, 1271, 1437}
	diffuseRatios = []int{347, 213}
)

func NewReverb(sampleRate int, room, decay, amount float32) *Reverb {
	base := int(float32(sampleRate) * room * 0.05)
	if base < 10 {
		base = 10
	}
	rv := &Reverb{amount: clamp(amount, 0, 1)}
	for _, ratio := range combRatios {
		rv.combs = append(rv.combs, feedbackLine{line: newRing(base * ratio / 1000), gain: clamp(decay, 0, 0.95)})
	}
	for _, ratio := range diffuseRatios {
		rv.diffuse = append(rv.diffuse, feedbackLine{line: newRing(base * ratio / 1000), gain: 0.5})
	}
	return rv
}

func (rv *Reverb) Process(l, r float32) (float32, float32) {
	in := (l + r) / 2
	var wet float32
	for i := range rv.combs {
		c := &rv.combs[i]
		out := c.line.peek()
		c.line.tap(in + out*c.gain)
		wet += out
	}
	wet /= float32(len(rv.combs))
	for i := range rv.diffuse {
		a := &rv.diffuse[i]
		delayed := a.line.peek()
		a.line.tap(wet + delayed*a.gain)
		wet = delayed - wet
	}
	return mix(l, wet, rv.amount), mix(r, wet, rv.amount)
}

func (rv *Reverb) Reset() {
	for i := range rv.combs {
		rv.combs[i].line.clear()
	}
	for i := range rv.diffuse {
		rv.diffuse[i].line.clear()
	}
}
