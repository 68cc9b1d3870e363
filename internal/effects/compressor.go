package effects

import "math"

// Compressor reduces gain on each channel once its envelope passes the
// threshold.
type Compressor struct {
	threshold float64 // linear
	slope     float64 // 1/ratio - 1
	attack    float64
	release   float64
	makeup    float64
	env       [2]float64
}

func NewCompressor(sampleRate int, thresholdDB, ratio, attackMs, releaseMs, makeupDB float64) *Compressor {
	if ratio < 1 {
		ratio = 1
	}
	return &Compressor{
		threshold: dbToLinear(thresholdDB),
		slope:     1/ratio - 1,
		attack:    smoothing(attackMs, sampleRate),
		release:   smoothing(releaseMs, sampleRate),
		makeup:    dbToLinear(makeupDB),
	}
}

func dbToLinear(db float64) float64 { return math.Pow(10, db/20) }

// smoothing is the one-pole coefficient reaching ~63% in ms milliseconds.
func smoothing(ms float64, sampleRate int) float64 {
	n := ms * float64(sampleRate) / 1000
	if n <= 0 {
		return 1
	}
	return 1 - math.Exp(-1/n)
}

func (c *Compressor) Process(l, r float32) (float32, float32) {
	return c.channel(0, l), c.channel(1, r)
}

func (c *Compressor) channel(ch int, x float32) float32 {
	level := math.Abs(float64(x))
	coef := c.release
	if level > c.env[ch] {
		coef = c.attack
	}
	c.env[ch] += coef * (level - c.env[ch])
	gain := 1.0
	if c.env[ch] > c.threshold {
		gain = math.Pow(c.env[ch]/c.threshold, c.slope)
	}
	return float32(float64(x) * gain * c.makeup)
}

func (c *Compressor) Reset() {
	c.env = [2]float64{}
}
