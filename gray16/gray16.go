// Copyright 2026 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package gray16 implements helpers to display 16 bits images.
package gray16

import (
	"image"
	"image/color"
)

// Image is a 16 bits gray image, like *image.Gray16 or *mobir.Frame.
type Image interface {
	image.Image
	Gray16At(x, y int) uint16
}

// Min returns the smallest value of the image.
func Min(i Image) uint16 {
	out := uint16(0xFFFF)
	r := i.Bounds()
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			if v := i.Gray16At(x, y); v < out {
				out = v
			}
		}
	}
	return out
}

// Max returns the largest value of the image.
func Max(i Image) uint16 {
	out := uint16(0)
	r := i.Bounds()
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			if v := i.Gray16At(x, y); v > out {
				out = v
			}
		}
	}
	return out
}

// AGCLinear reduces the dynamic range of the image down to 8 bits linearly,
// without gamma.
func AGCLinear(i Image) *image.Gray {
	r := i.Bounds()
	dst := image.NewGray(r)
	floor := int(Min(i))
	delta := int(Max(i)) - floor
	if delta == 0 {
		delta = 1
	}
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			v := (int(i.Gray16At(x, y)) - floor) * 255 / delta
			dst.SetGray(x, y, color.Gray{uint8(v)})
		}
	}
	return dst
}

// AGCIron is like AGCLinear but maps the intensity on a black, purple,
// orange, yellow, white palette.
func AGCIron(i Image) *image.RGBA {
	g := AGCLinear(i)
	r := g.Bounds()
	dst := image.NewRGBA(r)
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			dst.SetRGBA(x, y, iron(g.GrayAt(x, y).Y))
		}
	}
	return dst
}

var ironStops = []color.RGBA{
	{0, 0, 0, 255},
	{80, 0, 140, 255},
	{220, 40, 60, 255},
	{255, 160, 0, 255},
	{255, 240, 80, 255},
	{255, 255, 255, 255},
}

func iron(v uint8) color.RGBA {
	seg := len(ironStops) - 1
	pos := int(v) * seg
	i := pos / 255
	if i >= seg {
		return ironStops[seg]
	}
	f := pos % 255
	a, b := ironStops[i], ironStops[i+1]
	lerp := func(x, y uint8) uint8 {
		return uint8((int(x)*(255-f) + int(y)*f) / 255)
	}
	return color.RGBA{lerp(a.R, b.R), lerp(a.G, b.G), lerp(a.B, b.B), 255}
}
