// Copyright 2026 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package mobir

import (
	"math"
)

// nucUnity is the K gain of 1.
const nucUnity = 1 << 13

// ProcessNUC corrects the non-uniformity of r.
//
// A frame captured with the shutter closed replaces the shutter frame
// reference and false is returned; it must not be used as a measurement.
func (s *State) ProcessNUC(r *RawFrame) ([]uint16, bool) {
	pix := r.Pixels(s.Cal.RefRows)
	if r.Fixed.IsShuttering {
		s.SetShutterFrame(pix)
		return nil, false
	}
	cfg := s.Config()
	sf := s.ShutterFrame()
	switch {
	case cfg.DoNUC:
		TwoPointCorrect(pix, sf, s.Cal.KArray(s.Bucket()))
	case cfg.UseCalib:
		OffsetCorrect(pix, sf)
	}
	return pix, true
}

// TwoPointCorrect applies the gain and offset correction in place:
//
//	out = floor(avg(shutter) + (raw - shutter) * K / 2^13)
func TwoPointCorrect(pix []uint16, sf *ShutterFrame, k []uint16) {
	for i, v := range pix {
		d := int64(v) - int64(sf.Pix[i])
		pix[i] = clampU16(math.Floor(sf.Avg + float64(d*int64(k[i]))/nucUnity))
	}
}

// OffsetCorrect applies the offset only correction in place:
//
//	out = avg(shutter) + (raw - shutter)
func OffsetCorrect(pix []uint16, sf *ShutterFrame) {
	for i, v := range pix {
		d := int64(v) - int64(sf.Pix[i])
		pix[i] = clampU16(math.Floor(sf.Avg + float64(d)))
	}
}

func clampU16(v float64) uint16 {
	if v <= 0 {
		return 0
	}
	if v >= math.MaxUint16 {
		return math.MaxUint16
	}
	return uint16(v)
}
