// Package errkind tags the errors the engine can recover from so callers can
// branch on them without string matching.
package errkind

import (
	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fmsg"
	"github.com/Southclaws/fault/ftag"
)

const (
	// Parse marks a document whose syntax could not be decoded.
	Parse ftag.Kind = "parse_error"
	// Schema marks a syntactically valid document with missing or invalid fields.
	Schema ftag.Kind = "schema_error"
	// InvalidPitch marks a note token that does not name a pitch.
	InvalidPitch ftag.Kind = "invalid_pitch"
	// BackendUnavailable marks a missing sound or MIDI capability.
	BackendUnavailable ftag.Kind = "backend_unavailable"
)

// New creates a tagged error. issue is the text shown to a user.
func New(kind ftag.Kind, msg string, issue string) error {
	return fault.New(msg, ftag.With(kind), fmsg.WithDesc(msg, issue))
}

// Wrap tags err with kind. It returns nil when err is nil.
func Wrap(err error, kind ftag.Kind, msg string, issue string) error {
	if err == nil {
		return nil
	}
	return fault.Wrap(err, ftag.With(kind), fmsg.WithDesc(msg, issue))
}

// Is reports whether err carries kind.
func Is(err error, kind ftag.Kind) bool {
	if err == nil {
		return false
	}
	return ftag.Get(err) == kind
}

// Issue returns the human-readable message attached to err, falling back to
// err.Error() when none was attached.
func Issue(err error) string {
	if err == nil {
		return ""
	}
	if issue := fmsg.GetIssue(err); issue != "" {
		return issue
	}
	return err.Error()
}
