package score

import (
	"encoding/json"
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/cbegin/stepsynth-go/internal/pitch"
)

// DefaultStepLength is the tick period in milliseconds when a document does
// not set stepLength.
const DefaultStepLength = 100.0

type Waveform string

const (
	WaveSine     Waveform = "sine"
	WaveSquare   Waveform = "square"
	WaveSawtooth Waveform = "sawtooth"
	WaveTriangle Waveform = "triangle"
)

func (w Waveform) Valid() bool {
	switch w {
	case WaveSine, WaveSquare, WaveSawtooth, WaveTriangle:
		return true
	}
	return false
}

// Document is the root of a source text.
type Document struct {
	Instruments map[string]*Instrument `json:"instruments" yaml:"instruments"`
	StepLength  *float64               `json:"stepLength,omitempty" yaml:"stepLength,omitempty"`
	Effects     []EffectSpec           `json:"effects,omitempty" yaml:"effects,omitempty"`
}

// Instrument groups oscillators that sound together and the sequences that
// drive them. Oscillator fields set here act as defaults for every oscillator.
type Instrument struct {
	Volume       *float64 `json:"volume,omitempty" yaml:"volume,omitempty"`
	Subdivision  *int     `json:"subdivision,omitempty" yaml:"subdivision,omitempty"`
	NoteLength   *float64 `json:"noteLength,omitempty" yaml:"noteLength,omitempty"`
	Input        string   `json:"input,omitempty" yaml:"input,omitempty"`
	InputChannel *int     `json:"inputChannel,omitempty" yaml:"inputChannel,omitempty"`

	Type    *Waveform `json:"type,omitempty" yaml:"type,omitempty"`
	Attack  *float64  `json:"attack,omitempty" yaml:"attack,omitempty"`
	Decay   *float64  `json:"decay,omitempty" yaml:"decay,omitempty"`
	Sustain *float64  `json:"sustain,omitempty" yaml:"sustain,omitempty"`
	Release *float64  `json:"release,omitempty" yaml:"release,omitempty"`
	Detune  *float64  `json:"detune,omitempty" yaml:"detune,omitempty"`
	Pan     *float64  `json:"pan,omitempty" yaml:"pan,omitempty"`

	Oscillators []OscillatorSpec `json:"oscillators,omitempty" yaml:"oscillators,omitempty"`
	Sequences   []Sequence       `json:"sequences,omitempty" yaml:"sequences,omitempty"`
}

// OscillatorSpec is one waveform generator of an instrument. Unset fields
// fall back to the instrument, then to the package defaults.
type OscillatorSpec struct {
	Type       *Waveform `json:"type,omitempty" yaml:"type,omitempty"`
	Volume     *float64  `json:"volume,omitempty" yaml:"volume,omitempty"`
	Attack     *float64  `json:"attack,omitempty" yaml:"attack,omitempty"`
	Decay      *float64  `json:"decay,omitempty" yaml:"decay,omitempty"`
	Sustain    *float64  `json:"sustain,omitempty" yaml:"sustain,omitempty"`
	Release    *float64  `json:"release,omitempty" yaml:"release,omitempty"`
	Detune     *float64  `json:"detune,omitempty" yaml:"detune,omitempty"`
	Pan        *float64  `json:"pan,omitempty" yaml:"pan,omitempty"`
	NoteLength *float64  `json:"noteLength,omitempty" yaml:"noteLength,omitempty"`
}

// Sequence is a note pattern played Repeat times before the instrument moves
// to its next sequence.
type Sequence struct {
	Pattern []NoteToken `json:"pattern" yaml:"pattern"`
	Repeat  *int        `json:"repeat,omitempty" yaml:"repeat,omitempty"`
}

// EffectSpec configures one master effect. Params are positional; missing
// entries take the effect's defaults.
type EffectSpec struct {
	Type   string    `json:"type" yaml:"type"`
	Params []float64 `json:"params,omitempty" yaml:"params,omitempty"`
}

// Step returns the tick period in milliseconds.
func (d *Document) Step() float64 {
	if d == nil || d.StepLength == nil {
		return DefaultStepLength
	}
	return *d.StepLength
}

// InstrumentNames returns the instrument names in a stable order.
func (d *Document) InstrumentNames() []string {
	names := make([]string, 0, len(d.Instruments))
	for name := range d.Instruments {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SubdivisionOrDefault returns the number of ticks per note.
func (i *Instrument) SubdivisionOrDefault() int {
	if i.Subdivision == nil {
		return 1
	}
	return *i.Subdivision
}

// RepeatOrDefault returns how many times the pattern plays; values below 1
// count as 1.
func (s Sequence) RepeatOrDefault() int {
	if s.Repeat == nil || *s.Repeat < 1 {
		return 1
	}
	return *s.Repeat
}

type TokenKind int

const (
	TokenFrequency TokenKind = iota + 1
	TokenPitchName
)

// NoteToken is one pattern entry: a frequency in Hz or a pitch name.
type NoteToken struct {
	Kind      TokenKind
	Frequency float64
	Name      string
}

func Frequency(hz float64) NoteToken { return NoteToken{Kind: TokenFrequency, Frequency: hz} }

func PitchName(name string) NoteToken { return NoteToken{Kind: TokenPitchName, Name: name} }

// Hz resolves the token to a frequency. A result <= 0 is a rest.
func (t NoteToken) Hz() (float64, error) {
	switch t.Kind {
	case TokenFrequency:
		return t.Frequency, nil
	case TokenPitchName:
		return pitch.Resolve(t.Name)
	}
	return 0, fmt.Errorf("empty note token")
}

func (t NoteToken) String() string {
	if t.Kind == TokenPitchName {
		return t.Name
	}
	return fmt.Sprint(t.Frequency)
}

func (t *NoteToken) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch v := v.(type) {
	case float64:
		*t = Frequency(v)
	case string:
		*t = PitchName(v)
	default:
		return fmt.Errorf("note must be a number or a pitch name, got %s", string(data))
	}
	return nil
}

func (t NoteToken) MarshalJSON() ([]byte, error) {
	if t.Kind == TokenPitchName {
		return json.Marshal(t.Name)
	}
	return json.Marshal(t.Frequency)
}

func (t *NoteToken) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: note must be a number or a pitch name", node.Line)
	}
	switch node.Tag {
	case "!!int", "!!float":
		var f float64
		if err := node.Decode(&f); err != nil {
			return err
		}
		*t = Frequency(f)
	case "!!str":
		*t = PitchName(node.Value)
	default:
		return fmt.Errorf("line %d: note must be a number or a pitch name, got %q", node.Line, node.Value)
	}
	return nil
}
