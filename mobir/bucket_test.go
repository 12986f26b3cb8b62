// Copyright 2026 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package mobir

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestSelectBucket(t *testing.T) {
	th := []int16{100, 200, 300, 400}
	data := []struct {
		cur  int
		fpa  int
		want int
	}{
		{0, 90, 0},
		{3, 90, 0},
		{0, 500, 3},
		{0, 400, 3},
		{1, 250, 1},
		{2, 250, 2},
		// Coming from below.
		{0, 150, 0},
		{0, 151, 1},
		{1, 220, 1},
		{1, 251, 2},
		{2, 350, 2},
		{2, 351, 3},
		{2, 400, 3},
		// Coming from above.
		{1, 100, 1},
		{1, 50, 1},
		{1, 49, 0},
		{3, 280, 3},
		{3, 250, 3},
		{3, 249, 2},
		// Not adjacent.
		{3, 150, 1},
		{0, 350, 3},
		{0, 250, 2},
	}
	for i, line := range data {
		if got := SelectBucket(th, line.cur, line.fpa); got != line.want {
			t.Fatalf("#%d: SelectBucket(%d, %d) = %d, want %d", i, line.cur, line.fpa, got, line.want)
		}
	}
}

func TestSelectorObserve(t *testing.T) {
	m := &memTransport{}
	p := NewProtocol(m)
	s := NewState(newTestCalibration(t, 2, 2, 1, []int16{1000, 2000, 3000, 4000}))
	sh := NewShutter(p, s)
	clk := newFakeClock()
	sh.SetClock(clk.now, clk.sleep)
	sel := NewSelector(s, p, sh)

	mp := flatMeasure()
	mp.RealtimeTfpa = 25.5
	for i := 1; i < sel.Every; i++ {
		if changed, err := sel.Observe(&mp); changed || err != nil {
			t.Fatal(i, changed, err)
		}
	}
	changed, err := sel.Observe(&mp)
	if !changed || err != nil {
		t.Fatal(changed, err)
	}
	sh.Wait()
	if s.Bucket() != 2 {
		t.Fatal(s.Bucket())
	}
	want := []string{"SetDetectIndex=\x02\x00", "ShutterOn=1", "DoNUC=1", "ShutterOff=1"}
	if diff := cmp.Diff(want, m.written()); diff != "" {
		t.Fatal(diff)
	}

	// The next change happens right away; the recalibration is rate limited.
	mp.RealtimeTfpa = 35.5
	for i := 0; i < sel.Every; i++ {
		changed, err = sel.Observe(&mp)
	}
	if !changed || err != nil {
		t.Fatal(changed, err)
	}
	sh.Wait()
	if s.Bucket() != 3 {
		t.Fatal(s.Bucket())
	}
	want = append(want, "SetDetectIndex=\x03\x00")
	if diff := cmp.Diff(want, m.written()); diff != "" {
		t.Fatal(diff)
	}
	if sh.Runs() != 1 {
		t.Fatal(sh.Runs())
	}

	// Stable.
	clk.advance(time.Minute)
	for i := 0; i < 2*sel.Every; i++ {
		if changed, err := sel.Observe(&mp); changed || err != nil {
			t.Fatal(changed, err)
		}
	}
}
