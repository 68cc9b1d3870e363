package effects

import (
	"math"
	"testing"

	"github.com/cbegin/stepsynth-go/internal/score"
)

func TestDelayEchoesAfterDelayTime(t *testing.T) {
	d := NewDelay(44100, 100, 0.5, 0, 0.5)
	// impulse, then silence for 100ms
	d.Process(1.0, 1.0)
	for i := 0; i < 4409; i++ {
		if l, _ := d.Process(0, 0); l != 0 {
			t.Fatalf("echo arrived early at sample %d", i+1)
		}
	}
	l, r := d.Process(0, 0)
	if math.Abs(float64(l)-0.5) > 1e-6 || math.Abs(float64(r)-0.5) > 1e-6 {
		t.Errorf("expected echo at half level, got l=%f r=%f", l, r)
	}
}

func TestDelayCrossFeedback(t *testing.T) {
	d := NewDelay(1000, 10, 0.5, 1, 1)
	d.Process(1, 0)
	var right float32
	for i := 0; i < 20; i++ {
		_, r := d.Process(0, 0)
		right = max(right, r)
	}
	if right < 0.4 {
		t.Errorf("full cross feedback should move the echo to the right, got %f", right)
	}
}

func TestReverbProducesTail(t *testing.T) {
	r := NewReverb(44100, 0.5, 0.7, 0.5)
	r.Process(1.0, 1.0)
	var maxOut float32
	for i := 0; i < 10000; i++ {
		l, _ := r.Process(0, 0)
		maxOut = max(maxOut, l)
	}
	if maxOut < 0.001 {
		t.Error("expected reverb tail")
	}
	r.Reset()
	if l, _ := r.Process(0, 0); l != 0 {
		t.Errorf("reset should clear the tail, got %f", l)
	}
}

func TestCompressorReducesLoud(t *testing.T) {
	c := NewCompressor(44100, -10, 4, 1, 50, 0)
	var out float32
	for i := 0; i < 1000; i++ {
		out, _ = c.Process(1.0, 1.0)
	}
	if out >= 1.0 {
		t.Errorf("compressor should reduce loud signals, got %f", out)
	}
	quiet := NewCompressor(44100, -10, 4, 1, 50, 0)
	for i := 0; i < 1000; i++ {
		out, _ = quiet.Process(0.1, 0.1)
	}
	if math.Abs(float64(out)-0.1) > 1e-6 {
		t.Errorf("signals below threshold pass unchanged, got %f", out)
	}
}

func TestBuildFromDocument(t *testing.T) {
	chain, err := Build([]score.EffectSpec{
		{Type: "delay", Params: []float64{10}},
		{Type: "reverb"},
		{Type: "compressor", Params: []float64{-12, 2}},
	}, 44100)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if chain.Len() != 3 {
		t.Fatalf("chain has %d effects, want 3", chain.Len())
	}
	if _, err := Build([]score.EffectSpec{{Type: "flanger"}}, 44100); err == nil {
		t.Fatalf("expected error for unknown effect")
	}
}

func TestEmptyChainPassesThrough(t *testing.T) {
	chain, err := Build(nil, 44100)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	buf := []float32{0.25, -0.5, 1, -1}
	chain.ProcessInterleaved(buf)
	if buf[0] != 0.25 || buf[1] != -0.5 || buf[2] != 1 || buf[3] != -1 {
		t.Fatalf("buffer changed: %v", buf)
	}
}

func TestChainProcessesInterleaved(t *testing.T) {
	chain := NewChain(NewCompressor(1000, -100, 1, 0, 0, -6))
	buf := []float32{1, 1, 0.5, 0.5}
	chain.ProcessInterleaved(buf)
	for i, v := range buf {
		want := []float32{1, 1, 0.5, 0.5}[i] * float32(dbToLinear(-6))
		if math.Abs(float64(v-want)) > 1e-5 {
			t.Fatalf("sample %d = %f, want %f", i, v, want)
		}
	}
}
