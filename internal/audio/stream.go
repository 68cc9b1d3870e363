// Package audio feeds a sample source to the sound device through ebiten's
// audio context.
package audio

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"sync"

	ebitaudio "github.com/hajimehoshi/ebiten/v2/audio"

	"github.com/cbegin/stepsynth-go/internal/errkind"
)

// SampleSource fills dst with interleaved stereo float32 frames.
type SampleSource interface {
	Process(dst []float32)
}

// StreamReader exposes a SampleSource as the little-endian float32 byte
// stream ebiten players read from. It never ends.
type StreamReader struct {
	mu     sync.Mutex
	source SampleSource
	buf    []float32
}

func NewStreamReader(source SampleSource) *StreamReader {
	return &StreamReader{source: source}
}

func (r *StreamReader) Read(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	frames := len(p) / 8
	if frames == 0 {
		return 0, nil
	}
	need := frames * 2
	if cap(r.buf) < need {
		r.buf = make([]float32, need)
	}
	r.buf = r.buf[:need]
	clear(r.buf)
	r.source.Process(r.buf)
	for i, v := range r.buf {
		binary.LittleEndian.PutUint32(p[i*4:], math.Float32bits(v))
	}
	return frames * 8, nil
}

func (r *StreamReader) Close() error { return nil }

var (
	audioContextOnce sync.Once
	audioContext     *ebitaudio.Context
	audioContextRate int
)

// sharedContext returns the process-wide audio context. ebiten allows only
// one, so every output must use the same sample rate.
func sharedContext(sampleRate int) (ctx *ebitaudio.Context, err error) {
	defer func() {
		// ebiten panics when no audio driver can be initialised
		if r := recover(); r != nil {
			err = errkind.New(errkind.BackendUnavailable, fmt.Sprintf("audio: %v", r), "No audio output is available.")
		}
	}()
	audioContextOnce.Do(func() {
		audioContextRate = sampleRate
		audioContext = ebitaudio.NewContext(sampleRate)
	})
	if audioContextRate != sampleRate {
		return nil, errkind.New(errkind.BackendUnavailable,
			fmt.Sprintf("audio: context already initialized at %d Hz (requested %d Hz)", audioContextRate, sampleRate),
			fmt.Sprintf("Audio output is already running at %d Hz.", audioContextRate))
	}
	if audioContext == nil {
		return nil, errkind.New(errkind.BackendUnavailable, "audio: context not initialised", "No audio output is available.")
	}
	return audioContext, nil
}

// Output plays a source on the default device until closed.
type Output struct {
	player *ebitaudio.Player
	reader io.ReadCloser
}

func Open(sampleRate int, source SampleSource) (*Output, error) {
	ctx, err := sharedContext(sampleRate)
	if err != nil {
		return nil, err
	}
	reader := NewStreamReader(source)
	pl, err := ctx.NewPlayerF32(reader)
	if err != nil {
		return nil, errkind.Wrap(err, errkind.BackendUnavailable, "audio: new player", "No audio output is available.")
	}
	return &Output{player: pl, reader: reader}, nil
}

func (o *Output) Start()          { o.player.Play() }
func (o *Output) Pause()          { o.player.Pause() }
func (o *Output) IsPlaying() bool { return o.player.IsPlaying() }

func (o *Output) Close() error {
	o.player.Pause()
	o.player.Close()
	return o.reader.Close()
}
