// Package models provides data model definitions for the techniquebook core.
package models

import (
	"encoding/json"
	"fmt"
)

// Mode is a stored namespace. Every technique belongs to exactly one mode.
type Mode string

const (
	ModeGi   Mode = "gi"
	ModeNoGi Mode = "nogi"
)

// Modes lists the stored namespaces in canonical order.
var Modes = []Mode{ModeGi, ModeNoGi}

// Valid reports whether m is one of the stored namespaces.
func (m Mode) Valid() bool {
	return m == ModeGi || m == ModeNoGi
}

// View returns the view showing exactly this mode.
func (m Mode) View() View {
	return View(m)
}

// String returns the namespace tag.
func (m Mode) String() string {
	return string(m)
}

// ParseMode parses a namespace tag.
func ParseMode(s string) (Mode, error) {
	m := Mode(s)
	if !m.Valid() {
		return "", fmt.Errorf("unknown mode %q", s)
	}
	return m, nil
}

// View is what a caller looks at: one stored mode, or the synthetic combined view.
// Mutations take a Mode, so the combined view can never reach the store.
type View string

const (
	ViewGi       View = View(ModeGi)
	ViewNoGi     View = View(ModeNoGi)
	ViewCombined View = "combined"
)

// Mode returns the stored namespace behind v. ok is false for the combined view.
func (v View) Mode() (m Mode, ok bool) {
	m = Mode(v)
	return m, m.Valid()
}

// IsCombined reports whether v is the synthetic merged view.
func (v View) IsCombined() bool {
	return v == ViewCombined
}

// Valid reports whether v is a known view.
func (v View) Valid() bool {
	_, ok := v.Mode()
	return ok || v.IsCombined()
}

// ParseView parses a view tag.
func ParseView(s string) (View, error) {
	v := View(s)
	if !v.Valid() {
		return "", fmt.Errorf("unknown view %q", s)
	}
	return v, nil
}

// ModeFlags holds one boolean per stored mode. It encodes as a JSON object keyed by
// mode tag with only the true entries present, e.g. {"gi":true}.
type ModeFlags struct {
	Gi   bool
	NoGi bool
}

// Get returns the flag for m. Unknown modes read as false.
func (f ModeFlags) Get(m Mode) bool {
	switch m {
	case ModeGi:
		return f.Gi
	case ModeNoGi:
		return f.NoGi
	}
	return false
}

// Set writes the flag for m. Unknown modes are ignored.
func (f *ModeFlags) Set(m Mode, value bool) {
	switch m {
	case ModeGi:
		f.Gi = value
	case ModeNoGi:
		f.NoGi = value
	}
}

// Any reports whether any mode has the flag set.
func (f ModeFlags) Any() bool {
	return f.Gi || f.NoGi
}

// All reports whether every mode has the flag set.
func (f ModeFlags) All() bool {
	return f.Gi && f.NoGi
}

// IsZero reports whether no flag is set. Used by omitempty-aware encoders.
func (f ModeFlags) IsZero() bool {
	return !f.Any()
}

// MarshalJSON implements json.Marshaler.
func (f ModeFlags) MarshalJSON() ([]byte, error) {
	out := make(map[string]bool, 2)
	for _, m := range Modes {
		if f.Get(m) {
			out[string(m)] = true
		}
	}
	return json.Marshal(out)
}

// UnmarshalJSON implements json.Unmarshaler. Unknown keys are ignored.
func (f *ModeFlags) UnmarshalJSON(data []byte) error {
	var in map[string]bool
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*f = ModeFlags{}
	for k, v := range in {
		f.Set(Mode(k), v)
	}
	return nil
}
