// Copyright 2026 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package mobirtest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/maruel/go-mobir/mobir"
)

func TestFPACode(t *testing.T) {
	for _, c := range []float64{10, 25, 40} {
		if v := mobir.FpaTemp(FPACode(c), ModuleType); v < c-0.1 || v > c+0.1 {
			t.Fatal(c, v)
		}
	}
}

func TestCalibration(t *testing.T) {
	c := New()
	cal, err := mobir.LoadCalibration(mobir.NewProtocol(c), mobir.Width, mobir.Height, mobir.RefRows)
	if err != nil {
		t.Fatal(err)
	}
	if cal.Serial != Serial || cal.ModuleType != ModuleType {
		t.Fatal(cal.Serial, cal.ModuleType)
	}
	if diff := cmp.Diff(Thresholds, cal.Thresholds()); diff != "" {
		t.Fatal(diff)
	}
	if diff := cmp.Diff(Curve(), cal.CurrentCurve(2)); diff != "" {
		t.Fatal(diff)
	}
	if len(c.MemoryReads()) == 0 {
		t.Fatal("expected memory reads")
	}
	if len(c.Commands()) != 0 {
		t.Fatal(c.Commands())
	}
}

func TestStream(t *testing.T) {
	c := New()
	c.FramePeriod = time.Millisecond
	c.Scene = func(x, y int) int { return 100 }
	p := mobir.NewProtocol(c)
	if err := p.SetStream(true); err != nil {
		t.Fatal(err)
	}
	if err := p.SetShutter(true); err != nil {
		t.Fatal(err)
	}
	r := readFrame(t, p)
	if !r.Fixed.IsShuttering {
		t.Fatal("expected shutter frame")
	}
	if err := p.SetShutter(false); err != nil {
		t.Fatal(err)
	}
	// A frame may have been generated before the shutter opened.
	for r = readFrame(t, p); r.Fixed.IsShuttering; r = readFrame(t, p) {
	}
	if v := r.Pixels(mobir.RefRows)[0]; v != ShutterLevel+100+uint16(fixedPattern(0, mobir.RefRows)) {
		t.Fatal(v)
	}
	if r.Fixed.RealtimeShutterTemp != ShutterCode {
		t.Fatal(r.Fixed.RealtimeShutterTemp)
	}
	if err := p.SetStream(false); err != nil {
		t.Fatal(err)
	}
	want := []string{"StartX=1", "ShutterOn=1", "ShutterOff=1", "StopX=1"}
	if diff := cmp.Diff(want, c.Commands()); diff != "" {
		t.Fatal(diff)
	}
}

func TestFail(t *testing.T) {
	c := New()
	errBroken := errors.New("broken")
	c.Fail(errBroken)
	if _, err := c.ReadContext(context.Background(), make([]byte, 1)); err != errBroken {
		t.Fatal(err)
	}
	if err := c.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Write([]byte("StartX=1")); err == nil {
		t.Fatal("expected failure")
	}
}

//

func readFrame(t *testing.T, p *mobir.Protocol) *mobir.RawFrame {
	parser := mobir.NewParser(mobir.Width, mobir.Height)
	buf := make([]byte, 4096)
	for i := 0; i < 1000; i++ {
		n, err := p.Read(buf, time.Second)
		if err != nil {
			t.Fatal(err)
		}
		r, err := parser.Feed(buf[:n])
		if err != nil {
			t.Fatal(err)
		}
		if r != nil {
			return r
		}
	}
	t.Fatal("no frame")
	return nil
}
