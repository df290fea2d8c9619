package audit

import "time"

type timestampKind uint8

const (
	kindUnset timestampKind = iota
	kindServer
	kindResolved
)

// Timestamp is either unset, a placeholder the storage layer replaces with
// its own clock at commit time, or a resolved instant read back from storage.
type Timestamp struct {
	kind timestampKind
	at   time.Time
}

// serverAssigned is only produced by the envelope itself while stamping.
func serverAssigned() Timestamp { return Timestamp{kind: kindServer} }

// Resolved wraps an instant read back from storage.
func Resolved(at time.Time) Timestamp {
	if at.IsZero() {
		return Timestamp{}
	}
	return Timestamp{kind: kindResolved, at: at.UTC()}
}

// IsSet reports whether the timestamp is present in either form.
func (t Timestamp) IsSet() bool { return t.kind != kindUnset }

// IsServerAssigned reports whether the timestamp still awaits resolution.
func (t Timestamp) IsServerAssigned() bool { return t.kind == kindServer }

// Time returns the resolved instant; ok is false for unset or pending values.
func (t Timestamp) Time() (at time.Time, ok bool) {
	if t.kind != kindResolved {
		return time.Time{}, false
	}
	return t.at, true
}

// At returns the instant to persist when committing at the given time.
func (t Timestamp) At(commit time.Time) *time.Time {
	switch t.kind {
	case kindServer:
		c := commit.UTC()
		return &c
	case kindResolved:
		at := t.at
		return &at
	default:
		return nil
	}
}

func (t Timestamp) String() string {
	switch t.kind {
	case kindServer:
		return "<server-assigned>"
	case kindResolved:
		return t.at.Format(time.RFC3339Nano)
	default:
		return "<unset>"
	}
}
