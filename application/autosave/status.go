package autosave

import (
	"encoding/json"
	"fmt"
	"time"
)

// State is the persistence state of an edited document.
type State int

const (
	// Clean: nothing changed since the last successful save.
	Clean State = iota
	// Dirty: changed since the last save, no save in flight.
	Dirty
	// Saving: a persistence call is outstanding.
	Saving
	// Error: the last save failed. The document is still unsaved.
	Error
)

var stateNames = [...]string{"clean", "dirty", "saving", "error"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(b []byte) error {
	for i, name := range stateNames {
		if name == string(b) {
			*s = State(i)
			return nil
		}
	}
	return fmt.Errorf("unknown autosave state %q", b)
}

// Status is the indicator published on every transition. Seq increases with
// every published status; subscribers receiving statuses from several
// goroutines can drop ones older than the last seen.
type Status struct {
	Seq         uint64
	State       State
	GraphID     string
	Suspended   bool
	LastSavedAt time.Time
	LastError   error
}

// Unsaved reports whether the document holds changes the store has not
// seen yet.
func (s Status) Unsaved() bool {
	return s.State != Clean
}

func (s Status) MarshalJSON() ([]byte, error) {
	out := struct {
		Seq         uint64     `json:"seq"`
		State       State      `json:"state"`
		GraphID     string     `json:"graphId,omitempty"`
		Suspended   bool       `json:"suspended"`
		LastSavedAt *time.Time `json:"lastSavedAt,omitempty"`
		LastError   string     `json:"lastError,omitempty"`
	}{
		Seq:       s.Seq,
		State:     s.State,
		GraphID:   s.GraphID,
		Suspended: s.Suspended,
	}
	if !s.LastSavedAt.IsZero() {
		t := s.LastSavedAt
		out.LastSavedAt = &t
	}
	if s.LastError != nil {
		out.LastError = s.LastError.Error()
	}
	return json.Marshal(out)
}
