package voice

import (
	"sync"
	"time"

	"github.com/cbegin/stepsynth-go/internal/envelope"
	"github.com/cbegin/stepsynth-go/internal/score"
)

// Backend produces sound. Times are absolute seconds on the backend's own
// clock as reported by Now.
type Backend interface {
	Now() float64
	// NewVoice allocates an oscillator routed through a gain stage to the
	// output. The voice is silent until Start.
	NewVoice(wave score.Waveform, frequency float64, pan float64) (Voice, error)
}

// Voice is one allocated oscillator.
type Voice interface {
	// SetGain replaces the gain schedule with points at absolute times.
	SetGain(points []envelope.Point)
	Start(at float64)
	// Stop schedules the voice to be stopped and freed at the given time. A
	// later call moves the stop time; the voice is freed once.
	Stop(at float64)
}

// NopBackend keeps time but produces nothing. It stands in when no sound
// device is available so sequencing keeps running.
type NopBackend struct {
	once  sync.Once
	start time.Time
}

func (b *NopBackend) Now() float64 {
	b.once.Do(func() { b.start = time.Now() })
	return time.Since(b.start).Seconds()
}

func (b *NopBackend) NewVoice(score.Waveform, float64, float64) (Voice, error) {
	return nopVoice{}, nil
}

type nopVoice struct{}

func (nopVoice) SetGain([]envelope.Point) {}
func (nopVoice) Start(float64)            {}
func (nopVoice) Stop(float64)             {}
