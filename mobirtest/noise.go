// Copyright 2026 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package mobirtest

import (
	"math/rand"

	"github.com/maruel/go-mobir/mobir"
)

type vector struct {
	intensity float64
	x         float64
	y         float64
}

// noise is a few warm and cold blobs drifting slowly, in counts above the
// shutter level.
type noise struct {
	rand    *rand.Rand
	vectors []vector
}

func makeNoise() *noise {
	n := &noise{rand: rand.New(rand.NewSource(0))}
	n.vectors = make([]vector, 10)
	for i := range n.vectors {
		n.vectors[i].intensity = n.rand.NormFloat64() * 2000
		n.vectors[i].x = n.rand.NormFloat64()*20 + mobir.Width/2
		n.vectors[i].y = n.rand.NormFloat64()*15 + (mobir.Height-mobir.RefRows)/2
	}
	return n
}

func (n *noise) update() {
	for i := range n.vectors {
		n.vectors[i].intensity += n.rand.NormFloat64() * 10
		n.vectors[i].x += n.rand.NormFloat64() * 0.2
		n.vectors[i].y += n.rand.NormFloat64() * 0.2
	}
}

func (n *noise) at(x, y int) int {
	const dynamicRange = 1500
	fx := float64(x)
	fy := float64(y)
	value := 0.
	for _, v := range n.vectors {
		distance := (v.x-fx)*(v.x-fx) + (v.y-fy)*(v.y-fy) + 1
		value += v.intensity / distance
	}
	if value > dynamicRange {
		value = dynamicRange
	}
	if value < -dynamicRange {
		value = -dynamicRange
	}
	return int(value)
}
