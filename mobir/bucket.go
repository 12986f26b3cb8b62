// Copyright 2026 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package mobir

import (
	"log"
)

// BucketHysteresis is the FPA temperature margin, in centi-°C, that must be
// exceeded past a threshold to move to an adjacent bucket.
const BucketHysteresis = 50

// SelectBucket returns the bucket to use for the FPA temperature fpa in
// centi-°C, given the ascending thresholds t and the current bucket cur.
//
// Bucket 0 covers the FPA temperatures up to t[0] and bucket i covers
// [t[i-1], t[i]), the last bucket also covering everything above. This is the
// range where the curves of the bucket interpolate, see Temperatures. Moving
// to an adjacent bucket requires fpa to be more than BucketHysteresis past the
// threshold between both.
func SelectBucket(t []int16, cur, fpa int) int {
	last := len(t) - 1
	target := last
	if fpa <= int(t[0]) {
		target = 0
	} else {
		for i := 1; i < last; i++ {
			if fpa < int(t[i]) {
				target = i
				break
			}
		}
	}
	switch cur {
	case target - 1:
		// Coming from below.
		if fpa-int(t[cur]) <= BucketHysteresis {
			return cur
		}
	case target + 1:
		// Coming from above.
		if int(t[target])-fpa <= BucketHysteresis {
			return cur
		}
	}
	return target
}

// Selector switches the calibration bucket as the FPA temperature drifts.
type Selector struct {
	// Every is the number of live frames between evaluations.
	Every int

	s  *State
	p  *Protocol
	sh *Shutter
	n  int
}

// NewSelector returns a Selector evaluating every 25th frame.
func NewSelector(s *State, p *Protocol, sh *Shutter) *Selector {
	return &Selector{Every: 25, s: s, p: p, sh: sh}
}

// Observe is called on each live frame. It returns true if the bucket was
// changed.
//
// On change, the camera is told about the new bucket and a recalibration is
// requested, subject to the shutter rate gate.
func (b *Selector) Observe(m *MeasureParam) (bool, error) {
	if b.n++; b.n < b.Every {
		return false, nil
	}
	b.n = 0
	cur := b.s.Bucket()
	fpa := int(m.RealtimeTfpa * 100)
	next := SelectBucket(b.s.Cal.Thresholds(), cur, fpa)
	if next == cur {
		return false, nil
	}
	log.Printf("[bucket] %d -> %d (fpa %s)", cur, next, CentiC(fpa))
	b.s.SetBucket(next)
	if err := b.p.SetChangeR(next); err != nil {
		return true, err
	}
	b.sh.Manual()
	return true, nil
}
