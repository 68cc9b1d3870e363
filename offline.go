package stepsynth

import (
	"errors"
	"io"
	"log/slog"
	"math"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/cbegin/stepsynth-go/internal/effects"
	"github.com/cbegin/stepsynth-go/internal/score"
	"github.com/cbegin/stepsynth-go/internal/sequencer"
	"github.com/cbegin/stepsynth-go/internal/synth"
	"github.com/cbegin/stepsynth-go/internal/voice"
)

// MaxTailSeconds bounds how long RenderSamples waits for release tails to
// die out after the last tick.
const MaxTailSeconds = 10.0

// RenderSamples plays ticks sequencer steps of doc faster than real time and
// returns the interleaved stereo output, including the release tails of the
// last notes.
func RenderSamples(doc *score.Document, ticks int, sampleRate int) ([]float32, error) {
	if doc == nil {
		return nil, errors.New("render: nil document")
	}
	if ticks < 0 || sampleRate <= 0 {
		return nil, errors.New("render: ticks must not be negative and sampleRate must be positive")
	}
	chain, err := effects.Build(doc.Effects, sampleRate)
	if err != nil {
		return nil, err
	}
	syn := synth.New(sampleRate, synth.DefaultParams())
	player := voice.NewPlayer(voice.NewRenderer(syn, slog.Default()))
	session := sequencer.NewSession(func() *score.Document { return doc }, player, sequencer.Options{})

	frames := max(int(math.Round(doc.Step()*float64(sampleRate)/1000)), 1)
	out := make([]float32, 0, ticks*frames*2)
	block := make([]float32, frames*2)
	render := func() {
		syn.Process(block)
		chain.ProcessInterleaved(block)
		out = append(out, block...)
	}
	for i := 0; i < ticks; i++ {
		session.Step()
		render()
	}
	tail := int(MaxTailSeconds * float64(sampleRate))
	for rendered := 0; syn.ActiveVoiceCount() > 0 && rendered < tail; rendered += frames {
		render()
	}
	return out, nil
}

// RenderWAV renders like RenderSamples and writes 16-bit stereo PCM WAV.
func RenderWAV(doc *score.Document, ticks int, sampleRate int, w io.WriteSeeker) error {
	samples, err := RenderSamples(doc, ticks, sampleRate)
	if err != nil {
		return err
	}
	data := make([]int, len(samples))
	for i, s := range samples {
		data[i] = int(math.Round(float64(max(-1, min(1, s))) * math.MaxInt16))
	}
	enc := wav.NewEncoder(w, sampleRate, 16, 2, 1)
	buf := &goaudio.IntBuffer{
		Data:           data,
		Format:         &goaudio.Format{SampleRate: sampleRate, NumChannels: 2},
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		return err
	}
	return enc.Close()
}
