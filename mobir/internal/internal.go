// Copyright 2026 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package internal describes the MobirAir frame header layout.
//
// The header is a flat 240 bytes block. Each value is described by a Field and
// decoded by the same routine, there is no per-field code.
package internal

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math/bits"
)

// Kind is the encoding of a Field.
type Kind uint8

// Valid values for Kind.
const (
	U8     Kind = iota // Unsigned byte.
	U16                // Unsigned 16 bits little endian word.
	S16                // Signed 16 bits little endian word.
	Bool16             // 16 bits little endian word, non-zero is true.
	ASCII              // Fixed length string, NUL padded.
	Bits               // Little endian word of Size bytes, masked then shifted down.
)

// Field is one value in the header.
type Field struct {
	Name   string
	Offset int
	Size   int
	Kind   Kind
	Mask   uint32 // Only used with Bits.
}

// HeaderSize is the size of the header preceding the pixels.
const HeaderSize = 240

// Fixed is the list of fields which layout never changes.
var Fixed = []Field{
	{"width", 0x04, 2, U16, 0},
	{"height", 0x06, 2, U16, 0},
	{"device_name", 0x08, 8, ASCII, 0},
	{"startup_shutter_temp", 0x10, 2, U16, 0},
	{"realtime_shutter_temp", 0x12, 2, U16, 0},
	{"realtime_lens_temp", 0x14, 2, U16, 0},
	{"realtime_fpa_temp", 0x16, 2, U16, 0},
	{"is_shuttering", 0x18, 2, Bool16, 0},
}

// Custom is the list of radiometric configuration fields.
var Custom = []Field{
	{"temp_range", 0x60, 2, U16, 0},
	{"custom_param_init", 0x63, 1, U8, 0},
	{"emission", 0x64, 1, U8, 0},
	{"humidity", 0x65, 1, U8, 0},
	{"distance", 0x66, 2, Bits, 0x003F},
	{"env_temp", 0x66, 2, Bits, 0x7FC0},
	{"contrast", 0x68, 1, U8, 0},
	{"brightness", 0x69, 1, U8, 0},
	{"frequency", 0x6a, 1, Bits, 0xF0},
	{"autotiming_shutter", 0x6c, 1, Bits, 0x01},
	{"timing_shutter_time", 0x6e, 2, U16, 0},
	{"ks", 0x90, 2, U16, 0},
	{"k0", 0x92, 2, S16, 0},
	{"k1", 0x94, 2, S16, 0},
	{"k2", 0x96, 2, S16, 0},
	{"k3", 0x98, 2, S16, 0},
	{"k4", 0x9a, 2, S16, 0},
	{"k5", 0x9c, 2, S16, 0},
	{"b", 0x9e, 2, S16, 0},
	{"kf", 0xa0, 2, U16, 0},
	{"tref", 0xa2, 2, U16, 0},
}

// Int decodes the field as an integer.
//
// It panics if the field is ASCII or b is too short; the header is always
// HeaderSize bytes so this is an internal error.
func (f *Field) Int(b []byte) int {
	v := b[f.Offset : f.Offset+f.Size]
	switch f.Kind {
	case U8:
		return int(v[0])
	case U16:
		return int(binary.LittleEndian.Uint16(v))
	case S16:
		return int(int16(binary.LittleEndian.Uint16(v)))
	case Bool16:
		if binary.LittleEndian.Uint16(v) != 0 {
			return 1
		}
		return 0
	case Bits:
		return int((word(v) & f.Mask) >> shift(f.Mask))
	default:
		panic(fmt.Sprintf("internal error: field %s is not an integer", f.Name))
	}
}

// String decodes an ASCII field.
func (f *Field) String(b []byte) string {
	if f.Kind != ASCII {
		panic(fmt.Sprintf("internal error: field %s is not a string", f.Name))
	}
	v := b[f.Offset : f.Offset+f.Size]
	if i := bytes.IndexByte(v, 0); i != -1 {
		v = v[:i]
	}
	return string(v)
}

// Put encodes an integer value into b.
//
// Bits fields are merged with the bits already present in b so fields sharing
// a word can be written in any order.
func (f *Field) Put(b []byte, v int) {
	d := b[f.Offset : f.Offset+f.Size]
	switch f.Kind {
	case U8:
		d[0] = byte(v)
	case U16, S16:
		binary.LittleEndian.PutUint16(d, uint16(v))
	case Bool16:
		if v != 0 {
			binary.LittleEndian.PutUint16(d, 1)
		} else {
			binary.LittleEndian.PutUint16(d, 0)
		}
	case Bits:
		w := word(d)&^f.Mask | (uint32(v)<<shift(f.Mask))&f.Mask
		for i := range d {
			d[i] = byte(w >> (8 * uint(i)))
		}
	default:
		panic(fmt.Sprintf("internal error: field %s is not an integer", f.Name))
	}
}

// PutString encodes an ASCII field, truncating or NUL padding s.
func (f *Field) PutString(b []byte, s string) {
	d := b[f.Offset : f.Offset+f.Size]
	n := copy(d, s)
	for i := n; i < len(d); i++ {
		d[i] = 0
	}
}

// Lookup returns the field named name in table.
func Lookup(table []Field, name string) *Field {
	for i := range table {
		if table[i].Name == name {
			return &table[i]
		}
	}
	panic("internal error: unknown field " + name)
}

//

func word(v []byte) uint32 {
	w := uint32(0)
	for i := len(v) - 1; i >= 0; i-- {
		w = w<<8 | uint32(v[i])
	}
	return w
}

func shift(mask uint32) uint32 {
	if mask == 0 {
		return 0
	}
	return uint32(bits.TrailingZeros32(mask))
}
