// Package pitch converts pitch names and MIDI note numbers to frequencies.
package pitch

import (
	"fmt"
	"math"
	"strconv"

	"github.com/cbegin/stepsynth-go/internal/errkind"
)

// ReferenceOctave is the octave of the base table and the default when a
// name carries no octave.
const ReferenceOctave = 4

// Octaves outside MinOctave..MaxOctave are rejected.
const (
	MinOctave = -1
	MaxOctave = 10
)

// Equal-tempered frequencies of octave 4, A4 = 440 Hz.
var octave4 = map[byte]float64{
	'C': 261.6255653005986,
	'D': 293.6647679174076,
	'E': 329.6275569128699,
	'F': 349.2282314330039,
	'G': 391.99543598174927,
	'A': 440,
	'B': 493.8833012561241,
}

// Resolve returns the frequency in Hz of a name such as "A4", "C#3", "Eb" or
// "G-1". Malformed names fail with an errkind.InvalidPitch error.
func Resolve(name string) (float64, error) {
	if name == "" {
		return 0, invalid(name)
	}
	base, ok := octave4[name[0]]
	if !ok {
		return 0, invalid(name)
	}
	semitones := 0
	rest := name[1:]
	if len(rest) > 0 {
		switch rest[0] {
		case '#':
			semitones++
			rest = rest[1:]
		case 'b':
			semitones--
			rest = rest[1:]
		}
	}
	octave := ReferenceOctave
	if rest != "" {
		if rest[0] == '+' {
			return 0, invalid(name)
		}
		n, err := strconv.Atoi(rest)
		if err != nil {
			return 0, invalid(name)
		}
		if n < MinOctave || n > MaxOctave {
			return 0, invalid(name)
		}
		octave = n
	}
	semitones += (octave - ReferenceOctave) * 12
	if semitones == 0 {
		return base, nil
	}
	return base * math.Pow(2, float64(semitones)/12), nil
}

// FromMIDI converts a MIDI note number to Hz (69 = A4 = 440 Hz).
func FromMIDI(note int) float64 {
	return 440 * math.Pow(2, float64(note-69)/12)
}

func invalid(name string) error {
	return errkind.New(errkind.InvalidPitch,
		fmt.Sprintf("invalid pitch %q", name),
		fmt.Sprintf("%q is not a note name (expected e.g. A4, C#3, Eb; octaves %d to %d).", name, MinOctave, MaxOctave))
}
