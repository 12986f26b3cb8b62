// Copyright 2026 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package mobir

import (
	"fmt"
	"math"
	"sort"
)

// Temperatures converts NUC corrected counts into centi-°C.
//
// The result only depends on the arguments; calling it twice with the same
// values returns the same image. An error wrapping ErrCurveBounds is returned
// if the measurement parameters point outside the curves, in which case the
// frame must be dropped.
func (c *Calibration) Temperatures(counts []uint16, bucket, shutterAvg int, m *MeasureParam) ([]int16, error) {
	// Lens drift since the last shutter; kj is in hundredths.
	drift := int(math.Floor(float64(m.Kj) / 100 * (m.RealtimeTlens - m.LastShutterTlens)))
	base := make([]int32, len(counts))
	for i, v := range counts {
		base[i] = int32(int(v) - shutterAvg - drift)
	}
	cur, err := CurveLookup(c.CurrentCurve(bucket), base, m)
	if err != nil {
		return nil, err
	}
	near, err := CurveLookup(c.NearCurve(bucket), base, m)
	if err != nil {
		return nil, err
	}
	// cur*w1 + near*w2 with w1 = 1 - w2.
	w := c.nearWeight(bucket, m.RealtimeTfpa)
	out := make([]int16, len(counts))
	for i := range out {
		out[i] = clampS16(int(float64(cur[i]) + float64(near[i]-cur[i])*w))
	}
	return out, nil
}

// CurveScalar returns the curve value at the shutter temperature. It is the
// expected count of a flat field at that temperature.
func (c *Calibration) CurveScalar(bucket int, tshutter float64) (int, error) {
	curve := c.CurrentCurve(bucket)
	i, err := curveIndex(curve, tshutter)
	if err != nil {
		return 0, err
	}
	return int(curve[i]), nil
}

// CurveLookup converts values to centi-°C using one ascending curve.
//
// The shutter temperature selects the calibration value in the curve, values
// are corrected for the lens and FPA drift, scaled, offset by the calibration
// value, then located in the curve. The position in the curve is the
// temperature in 0.1°C steps starting at -20°C.
func CurveLookup(curve []int16, values []int32, m *MeasureParam) ([]int32, error) {
	ci, err := curveIndex(curve, m.RealtimeTshutter)
	if err != nil {
		return nil, err
	}
	calVal := int(curve[ci])

	dLens := m.RealtimeTlens - m.LastShutterTlens
	lens := int(float64(m.K5)*dLens/100) +
		int(float64(m.K4)*dLens*dLens/100) +
		int(float64(m.K3)*dLens*dLens*dLens/100)
	dFpa := m.RealtimeTfpa - float64(m.Tref)/100
	fpa := int(float64(m.K0)*dFpa/100) +
		int(float64(m.K1)*dFpa*dFpa/100) +
		int(float64(m.K2)*dFpa*dFpa*dFpa/100)

	lo, hi := curve[0], curve[len(curve)-1]
	out := make([]int32, len(values))
	for i, v := range values {
		x := int(clampS16(int(v) + lens + fpa))
		x = x * m.Kf / 10000
		y := clampS16(calVal + x)
		if y < lo {
			y = lo
		} else if y > hi {
			y = hi
		}
		// Leftmost match.
		j := sort.Search(len(curve), func(k int) bool { return curve[k] >= y })
		if j < 0 || j >= len(curve) {
			return nil, fmt.Errorf("%w: %d for value %d", ErrCurveBounds, j, v)
		}
		out[i] = int32(j*10 - 2000 + m.B)
	}
	return out, nil
}

// Private details.

// curveIndex returns the curve index of the shutter temperature.
func curveIndex(curve []int16, tshutter float64) (int, error) {
	i := int(math.Round(tshutter*10 + 200))
	if i < 0 || i >= len(curve) {
		return 0, fmt.Errorf("%w: shutter at %.2f°C", ErrCurveBounds, tshutter)
	}
	return i, nil
}

// nearWeight returns the interpolation weight of the near curve for an FPA
// temperature in °C. The current curve weight is the complement.
//
// The weight is within [0, 1] when tfpa is in the range SelectBucket assigns
// to bucket. Outside of it, within the hysteresis margin or past the first
// and last thresholds, it is clamped so the closest curve is used.
func (c *Calibration) nearWeight(bucket int, tfpa float64) float64 {
	t := c.Thresholds()
	fpa := tfpa * 100
	last := len(t) - 1
	var t1, t2 float64
	switch bucket {
	case 0:
		t1 = fpa - float64(t[0])
		t2 = float64(t[1]) - fpa
	case last:
		t1 = float64(t[bucket-1]) - fpa
		t2 = fpa - float64(t[bucket])
	default:
		t1 = float64(t[bucket]) - fpa
		t2 = fpa - float64(t[bucket-1])
	}
	sum := t1 + t2
	if sum == 0 {
		return 0
	}
	return math.Min(1, math.Max(0, 1-t2/sum))
}

func clampS16(v int) int16 {
	if v < math.MinInt16 {
		return math.MinInt16
	}
	if v > math.MaxInt16 {
		return math.MaxInt16
	}
	return int16(v)
}
