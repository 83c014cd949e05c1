// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package caps

import (
	"fmt"
	"strconv"
	"strings"
)

type valueKind int

const (
	kindFixed valueKind = iota
	kindList
	kindRange
)

// Value is a field value: a single fixed value, a list of alternatives or an
// inclusive integer range.
type Value struct {
	kind  valueKind
	typ   string
	fixed string
	list  []string
	lo    int
	hi    int
}

// String returns a fixed string value.
func String(s string) Value { return Value{kind: kindFixed, typ: "string", fixed: s} }

// Int returns a fixed integer value.
func Int(v int) Value { return Value{kind: kindFixed, typ: "int", fixed: strconv.Itoa(v)} }

// Fraction returns a fixed fraction value.
func Fraction(num, den int) Value {
	return Value{kind: kindFixed, typ: "fraction", fixed: fmt.Sprintf("%d/%d", num, den)}
}

// Bool returns a fixed boolean value.
func Bool(b bool) Value { return Value{kind: kindFixed, typ: "boolean", fixed: strconv.FormatBool(b)} }

// IntRange returns an inclusive integer range.
func IntRange(lo, hi int) Value { return Value{kind: kindRange, typ: "int", lo: lo, hi: hi} }

// List returns a list of alternatives.
func List(typ string, items ...string) Value { return Value{kind: kindList, typ: typ, list: items} }

// IsFixed reports whether v holds a single value.
func (v Value) IsFixed() bool { return v.kind == kindFixed }

// Raw returns the textual form of a fixed value.
func (v Value) Raw() string { return v.fixed }

func (v Value) fixate() Value {
	switch v.kind {
	case kindRange:
		return Value{kind: kindFixed, typ: v.typ, fixed: strconv.Itoa(v.lo)}
	case kindList:
		if len(v.list) == 0 {
			return v
		}
		return Value{kind: kindFixed, typ: v.typ, fixed: v.list[0]}
	}
	return v
}

func (v Value) candidates() []string {
	if v.kind == kindList {
		return v.list
	}
	return []string{v.fixed}
}

func (v Value) contains(s string) bool {
	if v.kind == kindRange {
		n, err := strconv.Atoi(s)
		return err == nil && n >= v.lo && n <= v.hi
	}
	for _, c := range v.candidates() {
		if c == s {
			return true
		}
	}
	return false
}

func (v Value) intersect(o Value) (Value, bool) {
	if v.kind == kindRange && o.kind == kindRange {
		lo, hi := max(v.lo, o.lo), min(v.hi, o.hi)
		switch {
		case lo > hi:
			return Value{}, false
		case lo == hi:
			return Value{kind: kindFixed, typ: v.typ, fixed: strconv.Itoa(lo)}, true
		}
		return Value{kind: kindRange, typ: v.typ, lo: lo, hi: hi}, true
	}
	if v.kind == kindRange {
		v, o = o, v
	}
	typ := v.typ
	if typ == "" {
		typ = o.typ
	}
	var common []string
	for _, c := range v.candidates() {
		if o.contains(c) {
			common = append(common, c)
		}
	}
	switch len(common) {
	case 0:
		return Value{}, false
	case 1:
		return Value{kind: kindFixed, typ: typ, fixed: common[0]}, true
	}
	return Value{kind: kindList, typ: typ, list: common}, true
}

func (v Value) String() string {
	prefix := ""
	if v.typ != "" {
		prefix = "(" + v.typ + ")"
	}
	switch v.kind {
	case kindRange:
		return fmt.Sprintf("%s[ %d, %d ]", prefix, v.lo, v.hi)
	case kindList:
		return prefix + "{ " + strings.Join(v.list, ", ") + " }"
	}
	return prefix + v.fixed
}

type field struct {
	name  string
	value Value
}

// Structure is a media type plus ordered fields.
type Structure struct {
	name   string
	fields []field
}

// NewStructure returns an empty structure for the media type.
func NewStructure(mediaType string) *Structure {
	return &Structure{name: mediaType}
}

// ParseStructure parses a single "media/type, key=value, ..." structure.
func ParseStructure(s string) (*Structure, error) {
	parts := splitTopLevel(s, ',')
	name := strings.TrimSpace(parts[0])
	if name == "" || strings.ContainsAny(name, "=()") {
		return nil, fmt.Errorf("%w: bad media type %q", ErrInvalid, name)
	}
	st := NewStructure(name)
	for _, p := range parts[1:] {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		key, raw, ok := strings.Cut(p, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("%w: bad field %q", ErrInvalid, p)
		}
		v, err := parseValue(strings.TrimSpace(raw))
		if err != nil {
			return nil, fmt.Errorf("%w: field %s: %v", ErrInvalid, key, err)
		}
		st.Set(key, v)
	}
	return st, nil
}

func parseValue(raw string) (Value, error) {
	var typ string
	if strings.HasPrefix(raw, "(") {
		end := strings.IndexByte(raw, ')')
		if end < 0 {
			return Value{}, fmt.Errorf("unterminated type in %q", raw)
		}
		typ = strings.TrimSpace(raw[1:end])
		raw = strings.TrimSpace(raw[end+1:])
	}
	switch {
	case strings.HasPrefix(raw, "["):
		if !strings.HasSuffix(raw, "]") {
			return Value{}, fmt.Errorf("unterminated range %q", raw)
		}
		lo, hi, ok := strings.Cut(raw[1:len(raw)-1], ",")
		if !ok {
			return Value{}, fmt.Errorf("range needs two bounds: %q", raw)
		}
		l, err := strconv.Atoi(strings.TrimSpace(lo))
		if err != nil {
			return Value{}, err
		}
		h, err := strconv.Atoi(strings.TrimSpace(hi))
		if err != nil {
			return Value{}, err
		}
		if l > h {
			return Value{}, fmt.Errorf("empty range %q", raw)
		}
		return IntRange(l, h), nil
	case strings.HasPrefix(raw, "{"):
		if !strings.HasSuffix(raw, "}") {
			return Value{}, fmt.Errorf("unterminated list %q", raw)
		}
		var items []string
		for _, it := range strings.Split(raw[1:len(raw)-1], ",") {
			if it = strings.TrimSpace(it); it != "" {
				items = append(items, it)
			}
		}
		if len(items) == 0 {
			return Value{}, fmt.Errorf("empty list")
		}
		return List(typ, items...), nil
	}
	if raw == "" {
		return Value{}, fmt.Errorf("missing value")
	}
	return Value{kind: kindFixed, typ: typ, fixed: strings.Trim(raw, `"`)}, nil
}

// Name returns the media type.
func (s *Structure) Name() string { return s.name }

// Has reports whether the field exists.
func (s *Structure) Has(key string) bool {
	_, ok := s.Get(key)
	return ok
}

// Get returns the field value.
func (s *Structure) Get(key string) (Value, bool) {
	for _, f := range s.fields {
		if f.name == key {
			return f.value, true
		}
	}
	return Value{}, false
}

// GetString returns a fixed field as text.
func (s *Structure) GetString(key string) (string, bool) {
	v, ok := s.Get(key)
	if !ok || !v.IsFixed() {
		return "", false
	}
	return v.fixed, true
}

// GetInt returns a fixed integer field.
func (s *Structure) GetInt(key string) (int, bool) {
	raw, ok := s.GetString(key)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(raw)
	return n, err == nil
}

// GetFraction returns a fixed fraction field. Plain integers read as n/1.
func (s *Structure) GetFraction(key string) (num, den int, ok bool) {
	raw, ok := s.GetString(key)
	if !ok {
		return 0, 0, false
	}
	n, d, found := strings.Cut(raw, "/")
	num, err := strconv.Atoi(n)
	if err != nil {
		return 0, 0, false
	}
	den = 1
	if found {
		if den, err = strconv.Atoi(d); err != nil {
			return 0, 0, false
		}
	}
	return num, den, true
}

// Set adds or replaces a field, keeping the original position on replace.
func (s *Structure) Set(key string, v Value) {
	for i := range s.fields {
		if s.fields[i].name == key {
			s.fields[i].value = v
			return
		}
	}
	s.fields = append(s.fields, field{name: key, value: v})
}

// Remove deletes a field if present.
func (s *Structure) Remove(key string) {
	for i := range s.fields {
		if s.fields[i].name == key {
			s.fields = append(s.fields[:i], s.fields[i+1:]...)
			return
		}
	}
}

// Copy returns a deep copy.
func (s *Structure) Copy() *Structure {
	out := &Structure{name: s.name, fields: make([]field, len(s.fields))}
	copy(out.fields, s.fields)
	for i := range out.fields {
		if l := out.fields[i].value.list; l != nil {
			out.fields[i].value.list = append([]string(nil), l...)
		}
	}
	return out
}

func (s *Structure) intersect(o *Structure) (*Structure, bool) {
	if s.name != o.name {
		return nil, false
	}
	out := s.Copy()
	for _, f := range o.fields {
		mine, ok := out.Get(f.name)
		if !ok {
			out.Set(f.name, f.value)
			continue
		}
		v, ok := mine.intersect(f.value)
		if !ok {
			return nil, false
		}
		out.Set(f.name, v)
	}
	return out, true
}

func (s *Structure) String() string {
	var b strings.Builder
	b.WriteString(s.name)
	for _, f := range s.fields {
		b.WriteString(", ")
		b.WriteString(f.name)
		b.WriteByte('=')
		b.WriteString(f.value.String())
	}
	return b.String()
}
