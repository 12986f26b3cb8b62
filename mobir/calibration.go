// Copyright 2026 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package mobir

import (
	"fmt"
)

// Calibration is the set of tables read from the device at startup.
//
// It is immutable once loaded. The zero value is unloaded; calling any table
// accessor on it panics with ErrUninitializedCalibration.
type Calibration struct {
	Width      int
	Height     int
	RefRows    int // Rows at the top of the sensor that are not part of the image.
	Serial     string
	ModuleType uint8

	kdata      []uint16  // [bucket][Height][Width]
	curves     [][]int16 // [bucket][CurveLength], ascending.
	thresholds []int16   // [bucket], FPA temperature in centi-°C, strictly ascending.
}

// NewCalibration validates the tables and returns a loaded Calibration.
//
// kdata is [buckets][height][width] flattened.
func NewCalibration(width, height, refRows int, kdata []uint16, curves [][]int16, thresholds []int16) (*Calibration, error) {
	n := len(thresholds)
	if n < 2 {
		return nil, fmt.Errorf("need at least 2 buckets, got %d", n)
	}
	if refRows < 0 || refRows >= height {
		return nil, fmt.Errorf("invalid reference rows %d for height %d", refRows, height)
	}
	for i := 1; i < n; i++ {
		if thresholds[i] <= thresholds[i-1] {
			return nil, fmt.Errorf("thresholds are not strictly ascending at %d: %v", i, thresholds)
		}
	}
	if len(kdata) != n*width*height {
		return nil, fmt.Errorf("K data has %d samples, expected %d", len(kdata), n*width*height)
	}
	if len(curves) != n {
		return nil, fmt.Errorf("got %d curves for %d buckets", len(curves), n)
	}
	for i, c := range curves {
		if len(c) != CurveLength {
			return nil, fmt.Errorf("curve %d has %d samples, expected %d", i, len(c), CurveLength)
		}
		for j := 1; j < len(c); j++ {
			if c[j] < c[j-1] {
				return nil, fmt.Errorf("curve %d is not ascending at %d", i, j)
			}
		}
	}
	return &Calibration{
		Width:      width,
		Height:     height,
		RefRows:    refRows,
		kdata:      kdata,
		curves:     curves,
		thresholds: thresholds,
	}, nil
}

// LoadCalibration reads all the calibration tables from the device.
//
// The stream must be stopped, otherwise frame data will be interleaved with
// the memory reads.
func LoadCalibration(p *Protocol, width, height, refRows int) (*Calibration, error) {
	n, err := p.BucketCount()
	if err != nil {
		return nil, fmt.Errorf("bucket count: %w", err)
	}
	if n < 2 || n > 64 {
		return nil, fmt.Errorf("unexpected bucket count %d", n)
	}
	thresholds, err := p.Thresholds(n)
	if err != nil {
		return nil, fmt.Errorf("thresholds: %w", err)
	}
	kdata, err := p.KData(width, height, n)
	if err != nil {
		return nil, fmt.Errorf("K data: %w", err)
	}
	curves, err := p.Curves(n)
	if err != nil {
		return nil, fmt.Errorf("curves: %w", err)
	}
	c, err := NewCalibration(width, height, refRows, kdata, curves, thresholds)
	if err != nil {
		return nil, err
	}
	if c.Serial, err = p.Serial(); err != nil {
		return nil, fmt.Errorf("serial: %w", err)
	}
	if c.ModuleType, err = p.ModuleType(); err != nil {
		return nil, fmt.Errorf("module type: %w", err)
	}
	return c, nil
}

// Buckets returns the number of buckets.
func (c *Calibration) Buckets() int {
	c.mustBeLoaded()
	return len(c.thresholds)
}

// Thresholds returns the bucket thresholds. The slice must not be modified.
func (c *Calibration) Thresholds() []int16 {
	c.mustBeLoaded()
	return c.thresholds
}

// KArray returns the gains of bucket for the image rows, that is excluding the
// reference rows. The slice must not be modified.
func (c *Calibration) KArray(bucket int) []uint16 {
	c.mustBeLoaded()
	size := c.Width * c.Height
	base := bucket*size + c.RefRows*c.Width
	return c.kdata[base : (bucket+1)*size]
}

// CurrentCurve returns the curve used as the lower interpolation bound for
// bucket.
//
// Buckets 0 and 1 both use curves 0 and 1.
func (c *Calibration) CurrentCurve(bucket int) []int16 {
	c.mustBeLoaded()
	return c.curves[maxInt(1, bucket)-1]
}

// NearCurve returns the curve used as the upper interpolation bound for
// bucket.
func (c *Calibration) NearCurve(bucket int) []int16 {
	c.mustBeLoaded()
	return c.curves[maxInt(1, bucket)]
}

// ImageSize returns the number of pixels of the image, excluding reference
// rows.
func (c *Calibration) ImageSize() int {
	return c.Width * (c.Height - c.RefRows)
}

func (c *Calibration) mustBeLoaded() {
	if c == nil || c.thresholds == nil {
		panic(ErrUninitializedCalibration)
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
