// Copyright 2026 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package mobir

import (
	"bytes"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestEncodeHeader(t *testing.T) {
	f := FixedParamLine{
		Width:               Width,
		Height:              Height,
		DeviceName:          "T3S",
		StartupShutterTemp:  10200,
		RealtimeShutterTemp: 10300,
		RealtimeLensTemp:    10400,
		RealtimeFpaTemp:     18463,
		IsShuttering:        true,
	}
	c := CustomParamLine{
		TempRange:         1,
		CustomParamInit:   0xA5,
		Emission:          95,
		Humidity:          60,
		Distance:          33,
		EnvTemp:           511,
		Contrast:          7,
		Brightness:        8,
		Frequency:         9,
		AutoTimingShutter: true,
		TimingShutterTime: 600,
		Ks:                3,
		K0:                -100,
		K1:                200,
		K2:                -300,
		K3:                400,
		K4:                -500,
		K5:                600,
		B:                 -25,
		Kf:                9876,
		Tref:              3012,
	}
	h := EncodeHeader(&f, &c)
	if len(h) != 240 {
		t.Fatal(len(h))
	}
	if !bytes.HasPrefix(h, []byte{0x55, 0xAA, 0x27, 0x00}) {
		t.Fatalf("%x", h[:4])
	}
	if diff := cmp.Diff(f, ParseFixedParamLine(h)); diff != "" {
		t.Fatal(diff)
	}
	if diff := cmp.Diff(c, ParseCustomParamLine(h)); diff != "" {
		t.Fatal(diff)
	}
}

func TestParamTemp(t *testing.T) {
	if v := ParamTemp(10300); v != 25 {
		t.Fatal(v)
	}
	// The code decreases as the temperature increases.
	if ParamTemp(10000) <= ParamTemp(10300) {
		t.Fatal(ParamTemp(10000))
	}
}

func TestFpaTemp(t *testing.T) {
	data := []struct {
		code       uint16
		moduleType uint8
		want       float64
	}{
		{18463, 0, 25.04},
		{18463, 1, 25.04},
		{18600, 0, 0.13},
		{16003, 2, 49.62},
		{17003, 3, 29.52},
	}
	for i, line := range data {
		if v := FpaTemp(line.code, line.moduleType); v != line.want {
			t.Fatalf("#%d: FpaTemp(%d, %d) = %v, want %v", i, line.code, line.moduleType, v, line.want)
		}
	}
}
