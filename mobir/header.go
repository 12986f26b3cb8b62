// Copyright 2026 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package mobir

import (
	"github.com/maruel/go-mobir/mobir/internal"
)

// FixedParamLine is the part of the header which layout never changes.
//
// Temperatures are raw sensor codes. Use ParamTemp() and FpaTemp() to convert
// them.
type FixedParamLine struct {
	Width               int
	Height              int
	DeviceName          string
	StartupShutterTemp  uint16
	RealtimeShutterTemp uint16
	RealtimeLensTemp    uint16
	RealtimeFpaTemp     uint16
	IsShuttering        bool // The frame was captured with the shutter closed.
}

// CustomParamLine is the radiometric configuration sent along each frame.
type CustomParamLine struct {
	TempRange         uint16
	CustomParamInit   uint8
	Emission          uint8 // Emissivity in hundredths.
	Humidity          uint8
	Distance          uint8  // 6 bits.
	EnvTemp           uint16 // 9 bits; reflected environment temperature.
	Contrast          uint8
	Brightness        uint8
	Frequency         uint8 // 4 bits.
	AutoTimingShutter bool
	TimingShutterTime uint16
	Ks                uint16
	K0                int16
	K1                int16
	K2                int16
	K3                int16
	K4                int16
	K5                int16
	B                 int16  // Additive offset in centi-°C.
	Kf                uint16 // Scale factor, 10000 is 1.
	Tref              uint16 // Reference FPA temperature in centi-°C.
}

// RawFrame is one frame as cut from the stream, before any processing.
type RawFrame struct {
	Header  []byte // HeaderSize bytes, including the marker.
	Payload []byte // Width*Height little endian uint16.
	Fixed   FixedParamLine
	Custom  CustomParamLine
}

// Pixels returns the payload as samples, skipping refRows rows at the top.
func (r *RawFrame) Pixels(refRows int) []uint16 {
	w := r.Fixed.Width
	start := refRows * w
	n := len(r.Payload)/2 - start
	if n < 0 {
		return nil
	}
	out := make([]uint16, n)
	for i := range out {
		j := 2 * (start + i)
		out[i] = uint16(r.Payload[j]) | uint16(r.Payload[j+1])<<8
	}
	return out
}

// ParseFixedParamLine decodes the fixed fields of a header.
func ParseFixedParamLine(h []byte) FixedParamLine {
	return FixedParamLine{
		Width:               fWidth.Int(h),
		Height:              fHeight.Int(h),
		DeviceName:          fDeviceName.String(h),
		StartupShutterTemp:  uint16(fStartupShutter.Int(h)),
		RealtimeShutterTemp: uint16(fShutter.Int(h)),
		RealtimeLensTemp:    uint16(fLens.Int(h)),
		RealtimeFpaTemp:     uint16(fFpa.Int(h)),
		IsShuttering:        fShuttering.Int(h) != 0,
	}
}

// ParseCustomParamLine decodes the radiometric fields of a header.
func ParseCustomParamLine(h []byte) CustomParamLine {
	return CustomParamLine{
		TempRange:         uint16(cTempRange.Int(h)),
		CustomParamInit:   uint8(cInit.Int(h)),
		Emission:          uint8(cEmission.Int(h)),
		Humidity:          uint8(cHumidity.Int(h)),
		Distance:          uint8(cDistance.Int(h)),
		EnvTemp:           uint16(cEnvTemp.Int(h)),
		Contrast:          uint8(cContrast.Int(h)),
		Brightness:        uint8(cBrightness.Int(h)),
		Frequency:         uint8(cFrequency.Int(h)),
		AutoTimingShutter: cAutoTiming.Int(h) != 0,
		TimingShutterTime: uint16(cTimingTime.Int(h)),
		Ks:                uint16(cKs.Int(h)),
		K0:                int16(cK0.Int(h)),
		K1:                int16(cK1.Int(h)),
		K2:                int16(cK2.Int(h)),
		K3:                int16(cK3.Int(h)),
		K4:                int16(cK4.Int(h)),
		K5:                int16(cK5.Int(h)),
		B:                 int16(cB.Int(h)),
		Kf:                uint16(cKf.Int(h)),
		Tref:              uint16(cTref.Int(h)),
	}
}

// EncodeHeader is the inverse of ParseFixedParamLine and ParseCustomParamLine.
//
// The returned header starts with the frame marker.
func EncodeHeader(f *FixedParamLine, c *CustomParamLine) []byte {
	h := make([]byte, internal.HeaderSize)
	copy(h, frameMarker)
	fWidth.Put(h, f.Width)
	fHeight.Put(h, f.Height)
	fDeviceName.PutString(h, f.DeviceName)
	fStartupShutter.Put(h, int(f.StartupShutterTemp))
	fShutter.Put(h, int(f.RealtimeShutterTemp))
	fLens.Put(h, int(f.RealtimeLensTemp))
	fFpa.Put(h, int(f.RealtimeFpaTemp))
	fShuttering.Put(h, boolInt(f.IsShuttering))

	cTempRange.Put(h, int(c.TempRange))
	cInit.Put(h, int(c.CustomParamInit))
	cEmission.Put(h, int(c.Emission))
	cHumidity.Put(h, int(c.Humidity))
	cDistance.Put(h, int(c.Distance))
	cEnvTemp.Put(h, int(c.EnvTemp))
	cContrast.Put(h, int(c.Contrast))
	cBrightness.Put(h, int(c.Brightness))
	cFrequency.Put(h, int(c.Frequency))
	cAutoTiming.Put(h, boolInt(c.AutoTimingShutter))
	cTimingTime.Put(h, int(c.TimingShutterTime))
	cKs.Put(h, int(c.Ks))
	cK0.Put(h, int(c.K0))
	cK1.Put(h, int(c.K1))
	cK2.Put(h, int(c.K2))
	cK3.Put(h, int(c.K3))
	cK4.Put(h, int(c.K4))
	cK5.Put(h, int(c.K5))
	cB.Put(h, int(c.B))
	cKf.Put(h, int(c.Kf))
	cTref.Put(h, int(c.Tref))
	return h
}

// ParamTemp converts a raw shutter or lens temperature code to °C.
//
// The polynomial comes from the vendor application. The result is truncated
// to 0.01°C.
func ParamTemp(code uint16) float64 {
	t := float64(code)
	poly := 127.361304901973 - 0.018218076216914*t + 1.218402729e-6*t*t - 4.0235e-11*t*t*t
	return float64(int(poly*100)) / 100
}

// FpaTemp converts a raw FPA temperature code to °C.
//
// The transform depends on the module type read from the device.
func FpaTemp(code uint16, moduleType uint8) float64 {
	var v float64
	if moduleType != 2 && moduleType != 3 {
		v = (33818e4 - float64(code)*18181) / 1e3
	} else {
		v = (float64(code)*-0.0201 + 371.29) * 100
	}
	return float64(int(v)) / 100
}

//

var (
	fWidth          = internal.Lookup(internal.Fixed, "width")
	fHeight         = internal.Lookup(internal.Fixed, "height")
	fDeviceName     = internal.Lookup(internal.Fixed, "device_name")
	fStartupShutter = internal.Lookup(internal.Fixed, "startup_shutter_temp")
	fShutter        = internal.Lookup(internal.Fixed, "realtime_shutter_temp")
	fLens           = internal.Lookup(internal.Fixed, "realtime_lens_temp")
	fFpa            = internal.Lookup(internal.Fixed, "realtime_fpa_temp")
	fShuttering     = internal.Lookup(internal.Fixed, "is_shuttering")

	cTempRange  = internal.Lookup(internal.Custom, "temp_range")
	cInit       = internal.Lookup(internal.Custom, "custom_param_init")
	cEmission   = internal.Lookup(internal.Custom, "emission")
	cHumidity   = internal.Lookup(internal.Custom, "humidity")
	cDistance   = internal.Lookup(internal.Custom, "distance")
	cEnvTemp    = internal.Lookup(internal.Custom, "env_temp")
	cContrast   = internal.Lookup(internal.Custom, "contrast")
	cBrightness = internal.Lookup(internal.Custom, "brightness")
	cFrequency  = internal.Lookup(internal.Custom, "frequency")
	cAutoTiming = internal.Lookup(internal.Custom, "autotiming_shutter")
	cTimingTime = internal.Lookup(internal.Custom, "timing_shutter_time")
	cKs         = internal.Lookup(internal.Custom, "ks")
	cK0         = internal.Lookup(internal.Custom, "k0")
	cK1         = internal.Lookup(internal.Custom, "k1")
	cK2         = internal.Lookup(internal.Custom, "k2")
	cK3         = internal.Lookup(internal.Custom, "k3")
	cK4         = internal.Lookup(internal.Custom, "k4")
	cK5         = internal.Lookup(internal.Custom, "k5")
	cB          = internal.Lookup(internal.Custom, "b")
	cKf         = internal.Lookup(internal.Custom, "kf")
	cTref       = internal.Lookup(internal.Custom, "tref")
)

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
