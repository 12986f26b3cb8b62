// Copyright 2026 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package mobir

import (
	"encoding/binary"
	"fmt"
	"image"
	"image/color"
	"time"

	"periph.io/x/periph/conn/physic"
)

// CentiC is a temperature in 0.01°C.
type CentiC int

func (c CentiC) String() string {
	v := int(c)
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d°C", sign, v/100, v%100)
}

// Temperature converts to a physic.Temperature.
func (c CentiC) Temperature() physic.Temperature {
	return physic.ZeroCelsius + physic.Temperature(c)*10*physic.MilliKelvin
}

// Metadata is constructed from the frame header and the device state at the
// time the frame was processed.
type Metadata struct {
	Captured       time.Time          //
	FrameCount     uint32             // Number of live frames since the stream started.
	Bucket         int                // Calibration bucket used for the conversion.
	FPATemperature physic.Temperature //
	LensTemp       physic.Temperature //
	ShutterTemp    physic.Temperature //
	Min            CentiC             // Only set when Temps is set.
	Max            CentiC             // Only set when Temps is set.
}

// Frame is a processed MobirAir frame.
//
// It implements image.Image as a Gray16 of the corrected counts.
type Frame struct {
	*RawFrame
	Width    int
	Height   int      // Excluding the reference rows.
	Counts   []uint16 // Corrected counts, row major.
	Temps    []int16  // centi-°C, row major; nil when the radiometric conversion is disabled.
	Metadata Metadata
}

func (f *Frame) ColorModel() color.Model {
	return color.Gray16Model
}

func (f *Frame) Bounds() image.Rectangle {
	return image.Rect(0, 0, f.Width, f.Height)
}

func (f *Frame) At(x, y int) color.Color {
	return color.Gray16{f.Gray16At(x, y)}
}

func (f *Frame) Gray16At(x, y int) uint16 {
	return f.Counts[y*f.Width+x]
}

// TempAt returns the temperature of a pixel. It panics if the frame has no
// temperature.
func (f *Frame) TempAt(x, y int) CentiC {
	return CentiC(f.Temps[y*f.Width+x])
}

// Bytes returns the image as little endian 16 bits samples, the temperatures
// if present, the counts otherwise.
func (f *Frame) Bytes() []byte {
	n := len(f.Counts)
	if f.Temps != nil {
		n = len(f.Temps)
	}
	b := make([]byte, 2*n)
	for i := 0; i < n; i++ {
		var v uint16
		if f.Temps != nil {
			v = uint16(f.Temps[i])
		} else {
			v = f.Counts[i]
		}
		binary.LittleEndian.PutUint16(b[2*i:], v)
	}
	return b
}

func (f *Frame) updateStats() {
	if len(f.Temps) == 0 {
		return
	}
	lo, hi := f.Temps[0], f.Temps[0]
	for _, v := range f.Temps[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	f.Metadata.Min = CentiC(lo)
	f.Metadata.Max = CentiC(hi)
}

// celsius converts a temperature in °C.
func celsius(c float64) physic.Temperature {
	return physic.ZeroCelsius + physic.Temperature(c*float64(physic.Kelvin))
}
