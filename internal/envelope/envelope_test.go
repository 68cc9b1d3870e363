package envelope

import (
	"math"
	"testing"
)

func near(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestComputeFiniteBreakpoints(t *testing.T) {
	env := Compute(Params{Attack: 10, Decay: 20, Sustain: 0.5, Release: 30, Duration: 100, Loudness: 0.8})
	want := []Point{
		{0, 0},
		{0.010, 0.8},
		{0.030, 0.4},
		{0.100, 0.4},
		{0.130, 0},
	}
	if len(env.Points) != len(want) {
		t.Fatalf("got %d points, want %d: %#v", len(env.Points), len(want), env.Points)
	}
	for i, pt := range want {
		if !near(env.Points[i].Time, pt.Time) || !near(env.Points[i].Gain, pt.Gain) {
			t.Fatalf("point %d = %#v, want %#v", i, env.Points[i], pt)
		}
	}
	if !near(env.Lifetime, 0.130) {
		t.Fatalf("lifetime = %v, want duration+release", env.Lifetime)
	}
	if !near(env.SustainEnd(), 0.100) {
		t.Fatalf("sustain end = %v", env.SustainEnd())
	}
}

func TestComputeMonotonicAndEndsSilent(t *testing.T) {
	cases := []Params{
		{Sustain: 1, Duration: 100, Loudness: 1},
		{Attack: 50, Decay: 80, Sustain: 0.2, Release: 10, Duration: 20, Loudness: 1},
		{Attack: -5, Decay: -5, Sustain: 1, Release: -1, Duration: -10, Loudness: 2},
		{Attack: 0, Decay: 0, Sustain: 0, Release: 500, Duration: 0, Loudness: 0.3},
	}
	for i, p := range cases {
		env := Compute(p)
		for j := 1; j < len(env.Points); j++ {
			if env.Points[j].Time < env.Points[j-1].Time {
				t.Fatalf("case %d: time decreases at %d: %#v", i, j, env.Points)
			}
		}
		if last := env.Points[len(env.Points)-1]; last.Gain != 0 {
			t.Fatalf("case %d: final gain = %v", i, last.Gain)
		}
		if env.Points[0].Time != 0 || env.Points[0].Gain != 0 {
			t.Fatalf("case %d: envelope must start at (0,0)", i)
		}
	}
}

func TestShortDurationClampsToDecayEnd(t *testing.T) {
	env := Compute(Params{Attack: 50, Decay: 50, Sustain: 0.5, Release: 10, Duration: 20, Loudness: 1})
	if !near(env.SustainEnd(), 0.1) {
		t.Fatalf("sustain end = %v, want decay end 0.1", env.SustainEnd())
	}
	if !near(env.Lifetime, 0.11) {
		t.Fatalf("lifetime = %v", env.Lifetime)
	}
}

func TestLoudnessPassesThrough(t *testing.T) {
	env := Compute(Params{Attack: 10, Sustain: 1, Duration: 10, Loudness: 3})
	if env.Points[1].Gain != 3 {
		t.Fatalf("loudness should not be clamped, got %v", env.Points[1].Gain)
	}
}

func TestHeldEnvelopeWaitsForRelease(t *testing.T) {
	env := Compute(Params{Attack: 10, Decay: 10, Sustain: 0.5, Release: 40, Held: true, Loudness: 1})
	if !env.Held || env.Lifetime != 0 {
		t.Fatalf("held envelope should have no lifetime: %#v", env)
	}
	if len(env.Points) != 3 {
		t.Fatalf("held envelope should stop at the sustain level: %#v", env.Points)
	}
	if env.SustainEnd() != -1 {
		t.Fatalf("held sustain end = %v", env.SustainEnd())
	}
	released := env.ReleaseAt(1.0)
	last := released.Points[len(released.Points)-1]
	if !near(last.Time, 1.04) || last.Gain != 0 {
		t.Fatalf("release ramp end = %#v", last)
	}
	if !near(released.Lifetime, 1.04) {
		t.Fatalf("released lifetime = %v", released.Lifetime)
	}
	if g := released.GainAt(1.0); !near(g, 0.5) {
		t.Fatalf("gain at release start = %v, want sustain level", g)
	}
}

func TestReleaseDuringAttackStartsFromCurrentGain(t *testing.T) {
	env := Compute(Params{Attack: 100, Sustain: 1, Release: 100, Held: true, Loudness: 1})
	released := env.ReleaseAt(0.05)
	for j := 1; j < len(released.Points); j++ {
		if released.Points[j].Time < released.Points[j-1].Time {
			t.Fatalf("time decreases: %#v", released.Points)
		}
	}
	if g := released.GainAt(0.05); !near(g, 0.5) {
		t.Fatalf("gain at release = %v, want 0.5", g)
	}
	if g := released.GainAt(0.1); !near(g, 0.25) {
		t.Fatalf("gain halfway through release = %v, want 0.25", g)
	}
}

func TestGainAtInterpolates(t *testing.T) {
	pts := []Point{{0, 0}, {1, 1}, {2, 1}, {3, 0}}
	checks := map[float64]float64{-1: 0, 0: 0, 0.5: 0.5, 1.5: 1, 2.5: 0.5, 10: 0}
	for at, want := range checks {
		if got := GainAt(pts, at); !near(got, want) {
			t.Fatalf("GainAt(%v) = %v, want %v", at, got, want)
		}
	}
}

func TestShift(t *testing.T) {
	env := Compute(Params{Sustain: 1, Duration: 100, Loudness: 1})
	abs := env.Shift(2)
	if abs[0].Time != 2 || !near(abs[len(abs)-1].Time, 2.1) {
		t.Fatalf("shifted = %#v", abs)
	}
}
