// Package score holds the typed form of a source document: instruments,
// their oscillators and note sequences.
package score

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/cbegin/stepsynth-go/internal/errkind"
)

// DefaultSource is played when nothing has been saved yet.
const DefaultSource = `{
	"instruments": {
		"lead": {
			"sequences": [
				{
					"pattern": [800, 1200, 1500, 1600],
					"repeat": 4
				},
				{
					"pattern": [600, 1200, 1500, 1400],
					"repeat": 4
				}
			]
		}
	}
}
`

// EffectTypes lists the master effects a document may name.
var EffectTypes = map[string]bool{
	"delay":      true,
	"reverb":     true,
	"compressor": true,
}

// Parse decodes and validates a source text. JSON is tried first; text that
// is not JSON but is a YAML mapping is decoded as YAML. The whole document is
// rejected on any error.
func Parse(data []byte) (*Document, error) {
	var doc Document
	if json.Valid(data) {
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, errkind.Wrap(err, errkind.Schema, "decode document", err.Error())
		}
	} else {
		var node yaml.Node
		if err := yaml.Unmarshal(data, &node); err != nil || !isMapping(&node) {
			return nil, jsonSyntaxError(data)
		}
		if err := node.Decode(&doc); err != nil {
			return nil, errkind.Wrap(err, errkind.Schema, "decode document", err.Error())
		}
	}
	if err := Validate(&doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// Validate checks the invariants Parse enforces.
func Validate(doc *Document) error {
	if doc.Instruments == nil {
		return errkind.New(errkind.Schema, "document has no instruments",
			"Source needs to have an 'instruments' object.")
	}
	if doc.StepLength != nil && *doc.StepLength <= 0 {
		return schemaf("stepLength must be positive, got %v", *doc.StepLength)
	}
	for _, name := range doc.InstrumentNames() {
		inst := doc.Instruments[name]
		if inst == nil {
			return schemaf("instrument %q is empty", name)
		}
		if inst.Subdivision != nil && *inst.Subdivision < 1 {
			return schemaf("instrument %q: subdivision must be at least 1, got %d", name, *inst.Subdivision)
		}
		if inst.InputChannel != nil && (*inst.InputChannel < 1 || *inst.InputChannel > 16) {
			return schemaf("instrument %q: inputChannel must be 1-16, got %d", name, *inst.InputChannel)
		}
		if inst.Type != nil && !inst.Type.Valid() {
			return schemaf("instrument %q: unknown oscillator type %q", name, *inst.Type)
		}
		for i, osc := range inst.Oscillators {
			if osc.Type != nil && !osc.Type.Valid() {
				return schemaf("instrument %q oscillator %d: unknown type %q", name, i, *osc.Type)
			}
		}
	}
	for i, fx := range doc.Effects {
		if !EffectTypes[fx.Type] {
			return schemaf("effect %d: unknown type %q", i, fx.Type)
		}
	}
	return nil
}

func schemaf(format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	return errkind.New(errkind.Schema, msg, msg)
}

func isMapping(node *yaml.Node) bool {
	return node.Kind == yaml.DocumentNode && len(node.Content) == 1 && node.Content[0].Kind == yaml.MappingNode
}

func jsonSyntaxError(data []byte) error {
	var v any
	err := json.Unmarshal(data, &v)
	if err == nil {
		err = fmt.Errorf("document is empty")
	}
	if se, ok := err.(*json.SyntaxError); ok {
		line := 1 + countLines(data[:min(int(se.Offset), len(data))])
		return errkind.Wrap(err, errkind.Parse, "decode document", fmt.Sprintf("line %d: %s", line, se.Error()))
	}
	return errkind.Wrap(err, errkind.Parse, "decode document", err.Error())
}

func countLines(b []byte) int {
	n := 0
	for _, c := range b {
		if c == '\n' {
			n++
		}
	}
	return n
}
