// Package envelope computes attack/decay/sustain/release gain breakpoints.
//
// Inputs are milliseconds; breakpoint times are seconds relative to note
// start, converted with Seconds everywhere so every term uses the same unit.
package envelope

// MillisPerSecond is the only conversion factor between input and output time.
const MillisPerSecond = 1000.0

// Seconds converts milliseconds to seconds.
func Seconds(ms float64) float64 { return ms / MillisPerSecond }

// Params describe one note. Times are milliseconds, Sustain is a fraction of
// Loudness. Duration is ignored when Held is set.
type Params struct {
	Attack   float64
	Decay    float64
	Sustain  float64
	Release  float64
	Duration float64
	Held     bool
	Loudness float64
}

// Point is a gain target reached by a linear ramp from the previous point.
type Point struct {
	Time float64
	Gain float64
}

// Envelope is an ordered breakpoint list. Lifetime is the time of the final
// breakpoint, 0 while a held note has not been released.
type Envelope struct {
	Points   []Point
	Release  float64
	Held     bool
	Lifetime float64
}

// Compute returns the breakpoints for p. Times are non-decreasing and a
// finite note always ends at gain 0.
func Compute(p Params) Envelope {
	attack := Seconds(nonNegative(p.Attack))
	decay := Seconds(nonNegative(p.Decay))
	release := Seconds(nonNegative(p.Release))
	peak := p.Loudness
	level := p.Sustain * p.Loudness

	decayEnd := attack + decay
	env := Envelope{
		Points: []Point{
			{Time: 0, Gain: 0},
			{Time: attack, Gain: peak},
			{Time: decayEnd, Gain: level},
		},
		Release: release,
		Held:    p.Held,
	}
	if p.Held {
		return env
	}
	sustainEnd := max(Seconds(nonNegative(p.Duration)), decayEnd)
	env.Points = append(env.Points,
		Point{Time: sustainEnd, Gain: level},
		Point{Time: sustainEnd + release, Gain: 0},
	)
	env.Lifetime = sustainEnd + release
	return env
}

// SustainEnd returns the time the release ramp starts, or -1 for a held note.
func (e Envelope) SustainEnd() float64 {
	if e.Held || len(e.Points) < 2 {
		return -1
	}
	return e.Points[len(e.Points)-2].Time
}

// GainAt interpolates the gain at t seconds after note start.
func (e Envelope) GainAt(t float64) float64 {
	return GainAt(e.Points, t)
}

// ReleaseAt returns a copy of e released at offset seconds: breakpoints after
// the offset are dropped and a ramp from the current gain to 0 over Release
// is appended.
func (e Envelope) ReleaseAt(offset float64) Envelope {
	offset = nonNegative(offset)
	out := Envelope{Release: e.Release}
	for _, pt := range e.Points {
		if pt.Time > offset {
			break
		}
		out.Points = append(out.Points, pt)
	}
	out.Points = append(out.Points,
		Point{Time: offset, Gain: e.GainAt(offset)},
		Point{Time: offset + e.Release, Gain: 0},
	)
	out.Lifetime = offset + e.Release
	return out
}

// Shift returns the points moved by start seconds, for scheduling on an
// absolute clock.
func (e Envelope) Shift(start float64) []Point {
	out := make([]Point, len(e.Points))
	for i, pt := range e.Points {
		out[i] = Point{Time: pt.Time + start, Gain: pt.Gain}
	}
	return out
}

// GainAt interpolates an ordered breakpoint list at t. Before the first point
// the gain is 0; after the last it holds the last gain.
func GainAt(points []Point, t float64) float64 {
	if len(points) == 0 || t < points[0].Time {
		return 0
	}
	for i := 1; i < len(points); i++ {
		next := points[i]
		if t >= next.Time {
			continue
		}
		prev := points[i-1]
		span := next.Time - prev.Time
		if span <= 0 {
			return next.Gain
		}
		return prev.Gain + (next.Gain-prev.Gain)*(t-prev.Time)/span
	}
	return points[len(points)-1].Gain
}

func nonNegative(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}
