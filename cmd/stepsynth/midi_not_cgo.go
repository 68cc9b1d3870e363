//go:build !cgo

package main

import (
	"github.com/cbegin/stepsynth-go/internal/errkind"
	"github.com/cbegin/stepsynth-go/internal/mididev"
)

func newMidiDriver() (mididev.Driver, error) {
	// rtmidi needs cgo
	return nil, errkind.New(errkind.BackendUnavailable, "midi: built without cgo", "MIDI input is not available in this build.")
}
