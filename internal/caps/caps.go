// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package caps models media capabilities as ordered lists of structures,
// each made of a media type and typed fields, using the familiar textual form
//
//	video/x-h264, stream-format=(string)avc, width=(int)[ 16, 4096 ]; video/x-vp8
//
// Only the subset needed for encoder negotiation is supported: fixed values,
// integer ranges and value lists.
package caps

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalid is returned when a caps string cannot be parsed.
var ErrInvalid = errors.New("invalid caps")

// Caps is an ordered list of alternative structures. The zero value is empty caps.
type Caps struct {
	structures []*Structure
}

// New returns caps holding the given structures.
func New(structures ...*Structure) *Caps {
	return &Caps{structures: structures}
}

// Parse parses a caps string. Structures are separated by ';'.
func Parse(s string) (*Caps, error) {
	c := &Caps{}
	for _, part := range splitTopLevel(s, ';') {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		st, err := ParseStructure(part)
		if err != nil {
			return nil, err
		}
		c.structures = append(c.structures, st)
	}
	if len(c.structures) == 0 {
		return nil, fmt.Errorf("%w: empty caps %q", ErrInvalid, s)
	}
	return c, nil
}

// MustParse is like Parse but panics on error. Intended for static tables.
func MustParse(s string) *Caps {
	c, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return c
}

// Len returns the number of structures.
func (c *Caps) Len() int {
	if c == nil {
		return 0
	}
	return len(c.structures)
}

// IsEmpty reports whether the caps hold no structure.
func (c *Caps) IsEmpty() bool { return c.Len() == 0 }

// Structure returns the i-th structure or nil when out of range.
func (c *Caps) Structure(i int) *Structure {
	if c == nil || i < 0 || i >= len(c.structures) {
		return nil
	}
	return c.structures[i]
}

// Append adds a structure at the end.
func (c *Caps) Append(st *Structure) {
	c.structures = append(c.structures, st)
}

// Copy returns a deep copy.
func (c *Caps) Copy() *Caps {
	if c == nil {
		return nil
	}
	out := &Caps{structures: make([]*Structure, 0, len(c.structures))}
	for _, st := range c.structures {
		out.structures = append(out.structures, st.Copy())
	}
	return out
}

// Truncate returns a copy holding only the first structure.
func (c *Caps) Truncate() *Caps {
	if c.IsEmpty() {
		return &Caps{}
	}
	return &Caps{structures: []*Structure{c.structures[0].Copy()}}
}

// IsFixed reports whether the caps hold exactly one structure with only fixed values.
func (c *Caps) IsFixed() bool {
	if c.Len() != 1 {
		return false
	}
	for _, f := range c.structures[0].fields {
		if f.value.kind != kindFixed {
			return false
		}
	}
	return true
}

// Fixate truncates the caps and resolves every range to its minimum and every
// list to its first entry.
func (c *Caps) Fixate() *Caps {
	out := c.Truncate()
	for _, st := range out.structures {
		for i := range st.fields {
			st.fields[i].value = st.fields[i].value.fixate()
		}
	}
	return out
}

// Intersect returns the structures common to both caps, in c's order.
func (c *Caps) Intersect(other *Caps) *Caps {
	out := &Caps{}
	if c == nil || other == nil {
		return out
	}
	for _, a := range c.structures {
		for _, b := range other.structures {
			if st, ok := a.intersect(b); ok {
				out.structures = append(out.structures, st)
			}
		}
	}
	return out
}

// CanIntersect reports whether Intersect would be non-empty.
func (c *Caps) CanIntersect(other *Caps) bool {
	return !c.Intersect(other).IsEmpty()
}

func (c *Caps) String() string {
	if c.IsEmpty() {
		return "EMPTY"
	}
	parts := make([]string, 0, len(c.structures))
	for _, st := range c.structures {
		parts = append(parts, st.String())
	}
	return strings.Join(parts, "; ")
}

// splitTopLevel splits s on sep, ignoring separators nested in brackets or braces.
func splitTopLevel(s string, sep byte) []string {
	var (
		out   []string
		depth int
		start int
	)
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '[', '{':
			depth++
		case ']', '}':
			if depth > 0 {
				depth--
			}
		case sep:
			if depth == 0 {
				out = append(out, s[start:i])
				start = i + 1
			}
		}
	}
	return append(out, s[start:])
}
