// Package midibridge plays instruments from external MIDI note messages.
// Notes sound until their note-off; the sequencer is never involved.
package midibridge

import (
	"log/slog"
	"sync"

	"github.com/cbegin/stepsynth-go/internal/pitch"
	"github.com/cbegin/stepsynth-go/internal/score"
	"github.com/cbegin/stepsynth-go/internal/voice"
)

// NotePlayer starts a note on an instrument.
type NotePlayer interface {
	Trigger(inst *score.Instrument, frequency float64, opts voice.TriggerOptions) voice.StopHandle
}

type key struct {
	device string
	note   int
}

// Bridge tracks the held note of every (device, note) pair.
type Bridge struct {
	mu     sync.Mutex
	source func() *score.Document
	player NotePlayer
	logger *slog.Logger
	held   map[key]voice.StopHandle
}

func New(source func() *score.Document, player NotePlayer, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{
		source: source,
		player: player,
		logger: logger,
		held:   make(map[key]voice.StopHandle),
	}
}

// HandleMessage decodes a raw channel message. Anything other than note-on
// and note-off is ignored, as are messages shorter than three bytes.
func (b *Bridge) HandleMessage(device string, msg []byte) {
	if len(msg) < 3 {
		return
	}
	status, note, velocity := msg[0], int(msg[1]), int(msg[2])
	channel := int(status&0x0f) + 1
	switch {
	case status&0xf0 == 0x80, status&0xf0 == 0x90 && velocity == 0:
		b.NoteOff(device, note)
	case status&0xf0 == 0x90:
		b.NoteOn(device, channel, note, velocity)
	}
}

// NoteOn starts the note on every instrument listening to device and
// channel. A note already held for the same key is stopped first.
func (b *Bridge) NoteOn(device string, channel, note, velocity int) {
	doc := b.source()
	if doc == nil {
		return
	}
	k := key{device: device, note: note}
	b.mu.Lock()
	prev := b.held[k]
	delete(b.held, k)
	b.mu.Unlock()
	if prev != nil {
		prev.Stop()
	}

	freq := pitch.FromMIDI(note)
	vel := float64(velocity) / 127
	var group voice.Group
	for _, name := range doc.InstrumentNames() {
		inst := doc.Instruments[name]
		if inst == nil || inst.Input == "" || inst.Input != device {
			continue
		}
		if inst.InputChannel != nil && *inst.InputChannel != channel {
			continue
		}
		group = append(group, b.player.Trigger(inst, freq, voice.TriggerOptions{
			Held:       true,
			Velocity:   &vel,
			StepLength: doc.Step(),
		}))
	}
	if len(group) == 0 {
		return
	}
	b.logger.Debug("midi: note on", "device", device, "channel", channel, "note", note, "instruments", len(group))

	// a concurrent note-on for the same key may have stored its group since
	b.mu.Lock()
	stale := b.held[k]
	b.held[k] = group
	b.mu.Unlock()
	if stale != nil {
		stale.Stop()
	}
}

func (b *Bridge) NoteOff(device string, note int) {
	k := key{device: device, note: note}
	b.mu.Lock()
	h := b.held[k]
	delete(b.held, k)
	b.mu.Unlock()
	if h != nil {
		h.Stop()
	}
}

// Disconnect releases every note held from device.
func (b *Bridge) Disconnect(device string) {
	var stops []voice.StopHandle
	b.mu.Lock()
	for k, h := range b.held {
		if k.device == device {
			stops = append(stops, h)
			delete(b.held, k)
		}
	}
	b.mu.Unlock()
	for _, h := range stops {
		h.Stop()
	}
	if len(stops) > 0 {
		b.logger.Info("midi: released held notes", "device", device, "count", len(stops))
	}
}

func (b *Bridge) StopAll() {
	b.mu.Lock()
	held := b.held
	b.held = make(map[key]voice.StopHandle)
	b.mu.Unlock()
	for _, h := range held {
		h.Stop()
	}
}

// Held reports how many (device, note) pairs are sounding.
func (b *Bridge) Held() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.held)
}
