// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package codec describes the codec types the hardware encoder can produce and
// resolves negotiated caps into one of them.
package codec

import (
	"errors"
	"fmt"

	"github.com/ManuGH/hwenc/internal/caps"
)

var (
	// ErrUnknownFormat is returned when caps match no registered codec type.
	ErrUnknownFormat = errors.New("unknown codec type")

	// ErrMalformed is returned by data hooks when the device output cannot be parsed.
	ErrMalformed = errors.New("malformed bitstream")
)

// Direction selects encoder or decoder descriptors.
type Direction int

const (
	Encoder Direction = iota
	Decoder
)

// Type is a codec capability descriptor. Hooks are optional; a nil hook means
// the device output is used unchanged.
type Type struct {
	Name string
	// Mime is the device-side codec identifier, e.g. "video/avc".
	Mime string
	// Caps is the template the negotiated caps must intersect with.
	Caps *caps.Caps

	// ConstructCodecData turns a codec-config payload into stream codec data.
	// A nil result with a nil error means "no codec data".
	ConstructCodecData func(raw []byte) ([]byte, error)
	// ProcessData rewrites an encoded sample before it is delivered.
	ProcessData func(raw []byte) ([]byte, error)
	// Complement adds codec specific fields to fixated output caps.
	Complement func(c *caps.Caps)
}

func (t *Type) String() string { return t.Name }

// Resolver maps caps to codec types.
type Resolver struct {
	encoders []*Type
	decoders []*Type
}

// NewResolver returns a resolver over the given encoder types.
func NewResolver(encoders ...*Type) *Resolver {
	return &Resolver{encoders: encoders}
}

// DefaultResolver knows every built-in encoder type.
func DefaultResolver() *Resolver {
	return NewResolver(H264(), MPEG4(), H263(), VP8())
}

// FromCaps returns the first type whose template intersects the first
// structure of c.
func (r *Resolver) FromCaps(c *caps.Caps, dir Direction) (*Type, error) {
	if c.IsEmpty() {
		return nil, fmt.Errorf("%w: empty caps", ErrUnknownFormat)
	}
	head := c.Truncate()
	for _, t := range r.types(dir) {
		if t.Caps.CanIntersect(head) {
			return t, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownFormat, head)
}

// Template returns the union of all templates for the direction.
func (r *Resolver) Template(dir Direction) *caps.Caps {
	out := caps.New()
	for _, t := range r.types(dir) {
		for i := 0; i < t.Caps.Len(); i++ {
			out.Append(t.Caps.Structure(i).Copy())
		}
	}
	return out
}

func (r *Resolver) types(dir Direction) []*Type {
	if dir == Decoder {
		return r.decoders
	}
	return r.encoders
}

// MPEG4 returns the MPEG-4 part 2 descriptor. Codec config is passed through as
// codec data.
func MPEG4() *Type {
	return &Type{
		Name: "mpeg4",
		Mime: "video/mp4v-es",
		Caps: caps.MustParse("video/mpeg, mpegversion=(int)4, systemstream=(boolean)false"),
		ConstructCodecData: func(raw []byte) ([]byte, error) {
			return append([]byte(nil), raw...), nil
		},
		Complement: func(c *caps.Caps) {
			if st := c.Structure(0); st != nil {
				st.Set("systemstream", caps.Bool(false))
			}
		},
	}
}

// H263 returns the H.263 descriptor.
func H263() *Type {
	return &Type{
		Name: "h263",
		Mime: "video/3gpp",
		Caps: caps.MustParse("video/x-h263, variant=(string)itu"),
	}
}

// VP8 returns the VP8 descriptor.
func VP8() *Type {
	return &Type{
		Name: "vp8",
		Mime: "video/x-vnd.on2.vp8",
		Caps: caps.MustParse("video/x-vp8"),
	}
}
