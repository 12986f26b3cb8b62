// Copyright 2026 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package mobir

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestTwoPointCorrect(t *testing.T) {
	sf := newShutterFrame([]uint16{1000, 1000, 1010, 990})
	if sf.Avg != 1000 {
		t.Fatal(sf.Avg)
	}
	pix := []uint16{1200, 1000, 1200, 900}
	k := []uint16{nucUnity, nucUnity, nucUnity / 2, 2 * nucUnity}
	TwoPointCorrect(pix, sf, k)
	if diff := cmp.Diff([]uint16{1200, 1000, 1095, 820}, pix); diff != "" {
		t.Fatal(diff)
	}
}

func TestTwoPointCorrectClamp(t *testing.T) {
	sf := newShutterFrame([]uint16{60000, 60000})
	pix := []uint16{0, 65535}
	TwoPointCorrect(pix, sf, []uint16{4 * nucUnity, 4 * nucUnity})
	if diff := cmp.Diff([]uint16{0, 65535}, pix); diff != "" {
		t.Fatal(diff)
	}
}

func TestOffsetCorrect(t *testing.T) {
	sf := newShutterFrame([]uint16{1001, 1000})
	if sf.AvgInt() != 1000 {
		t.Fatal(sf.AvgInt())
	}
	pix := []uint16{1101, 900}
	OffsetCorrect(pix, sf)
	// floor(1000.5 + 100), floor(1000.5 - 100)
	if diff := cmp.Diff([]uint16{1100, 900}, pix); diff != "" {
		t.Fatal(diff)
	}
}

func TestProcessNUC(t *testing.T) {
	s := NewState(newTestCalibration(t, 2, 2, 1, []int16{1000, 2000}))
	// Before any shutter frame, the reference is all zeros.
	if sf := s.ShutterFrame(); len(sf.Pix) != 2 || sf.Avg != 0 {
		t.Fatalf("%+v", sf)
	}
	shutter := rawFrame(2, 2, true, 7, 7, 500, 520)
	if pix, live := s.ProcessNUC(shutter); live || pix != nil {
		t.Fatal(pix, live)
	}
	if diff := cmp.Diff(&ShutterFrame{Pix: []uint16{500, 520}, Avg: 510}, s.ShutterFrame()); diff != "" {
		t.Fatal(diff)
	}

	live := rawFrame(2, 2, false, 7, 7, 600, 520)
	pix, ok := s.ProcessNUC(live)
	if !ok {
		t.Fatal("expected a live frame")
	}
	if diff := cmp.Diff([]uint16{610, 510}, pix); diff != "" {
		t.Fatal(diff)
	}

	// Offset only.
	s.SetConfig(Config{UseCalib: true})
	pix, _ = s.ProcessNUC(live)
	if diff := cmp.Diff([]uint16{610, 510}, pix); diff != "" {
		t.Fatal(diff)
	}

	// No correction.
	s.SetConfig(Config{})
	pix, _ = s.ProcessNUC(live)
	if diff := cmp.Diff([]uint16{600, 520}, pix); diff != "" {
		t.Fatal(diff)
	}
}

//

// rawFrame returns a frame which samples are pix, including the reference
// rows.
func rawFrame(w, h int, shuttering bool, pix ...uint16) *RawFrame {
	b := make([]byte, 2*len(pix))
	for i, v := range pix {
		b[2*i] = byte(v)
		b[2*i+1] = byte(v >> 8)
	}
	return &RawFrame{
		Payload: b,
		Fixed: FixedParamLine{
			Width:               w,
			Height:              h,
			RealtimeShutterTemp: 10300,
			RealtimeLensTemp:    10300,
			IsShuttering:        shuttering,
		},
		Custom: CustomParamLine{Kf: 10000, Tref: 2500},
	}
}
