//go:build cgo

package main

import (
	"gitlab.com/gomidi/midi/v2/drivers/rtmididrv"

	"github.com/cbegin/stepsynth-go/internal/mididev"
)

func newMidiDriver() (mididev.Driver, error) {
	return rtmididrv.New()
}
