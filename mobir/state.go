// Copyright 2026 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package mobir

import (
	"log"
	"math"
	"sync/atomic"
)

// Config is the runtime configuration of the processing pipeline.
type Config struct {
	DoNUC       bool // Apply the two points correction using the K gains.
	UseCalib    bool // Apply the offset only correction. Ignored if DoNUC is set.
	Radiometric bool // Convert to temperatures.
	AutoShutter bool // Periodically recalibrate on the shutter.
}

// DefaultConfig is the configuration used when none is specified.
var DefaultConfig = Config{DoNUC: true, UseCalib: true, Radiometric: true, AutoShutter: true}

// MeasureParam is the snapshot of the sensor readings and correction
// coefficients used to convert one frame.
//
// It is rebuilt from each frame header and never modified afterward.
type MeasureParam struct {
	RealtimeTshutter float64 // °C
	RealtimeTlens    float64 // °C
	RealtimeTfpa     float64 // °C
	LastShutterTlens float64 // °C, at the last shutter sequence.
	LastShutterTfpa  float64 // °C, at the last shutter sequence.

	K0, K1, K2 int // FPA drift polynomial.
	K3, K4, K5 int // Lens drift polynomial.
	B          int // Offset in centi-°C.
	Kf         int // Scale, 10000 is 1.
	Kj         int // Lens drift rate in hundredths of count per °C.
	Tref       int // Reference FPA temperature in centi-°C.

	Emissivity    int
	Humidity      int
	Distance      int
	ReflectedTemp int
}

// ShutterFrame is the last image captured with the shutter closed.
type ShutterFrame struct {
	Pix []uint16
	Avg float64 // Mean of Pix.
}

// AvgInt returns the mean rounded down.
func (s *ShutterFrame) AvgInt() int {
	return int(math.Floor(s.Avg))
}

// State is the mutable device state shared by the pipeline components.
//
// Values are replaced, never modified in place, so readers never need a lock.
type State struct {
	Cal *Calibration

	bucket   atomic.Int32
	kj       atomic.Int32
	shutter  atomic.Pointer[ShutterFrame]
	measure  atomic.Pointer[MeasureParam]
	snapshot atomic.Pointer[shutterSnapshot]
	config   atomic.Pointer[Config]

	drift drift // Only accessed by the shutter controller under its lock.
}

// NewState returns the state of a device which calibration tables were
// loaded.
func NewState(cal *Calibration) *State {
	cal.mustBeLoaded()
	s := &State{Cal: cal}
	s.kj.Store(defaultKj)
	s.shutter.Store(newShutterFrame(make([]uint16, cal.ImageSize())))
	s.SetConfig(DefaultConfig)
	s.drift.threshold = driftThresholdDefault
	return s
}

// Bucket returns the current calibration bucket.
func (s *State) Bucket() int {
	return int(s.bucket.Load())
}

// SetBucket sets the current calibration bucket.
func (s *State) SetBucket(b int) {
	if b < 0 || b >= s.Cal.Buckets() {
		panic("internal error: invalid bucket")
	}
	s.bucket.Store(int32(b))
}

// Kj returns the current lens drift coefficient.
func (s *State) Kj() int {
	return int(s.kj.Load())
}

// Config returns the pipeline configuration.
func (s *State) Config() Config {
	return *s.config.Load()
}

// SetConfig replaces the pipeline configuration. It is safe to call while
// streaming.
func (s *State) SetConfig(c Config) {
	s.config.Store(&c)
}

// ShutterFrame returns the current shutter frame reference.
func (s *State) ShutterFrame() *ShutterFrame {
	return s.shutter.Load()
}

// SetShutterFrame replaces the shutter frame reference. pix is kept.
func (s *State) SetShutterFrame(pix []uint16) {
	s.shutter.Store(newShutterFrame(pix))
}

// Measure returns the latest measurement parameters, or nil if no frame was
// received yet.
func (s *State) Measure() *MeasureParam {
	return s.measure.Load()
}

// Refresh replaces the measurement parameters with the ones from r.
func (s *State) Refresh(r *RawFrame) *MeasureParam {
	c := &r.Custom
	m := &MeasureParam{
		RealtimeTshutter: ParamTemp(r.Fixed.RealtimeShutterTemp),
		RealtimeTlens:    ParamTemp(r.Fixed.RealtimeLensTemp),
		RealtimeTfpa:     FpaTemp(r.Fixed.RealtimeFpaTemp, s.Cal.ModuleType),
		K0:               int(c.K0),
		K1:               int(c.K1),
		K2:               int(c.K2),
		K3:               int(c.K3),
		K4:               int(c.K4),
		K5:               int(c.K5),
		B:                int(c.B),
		Kf:               int(c.Kf),
		Kj:               s.Kj(),
		Tref:             int(c.Tref),
		Emissivity:       int(c.Emission),
		Humidity:         int(c.Humidity),
		Distance:         int(c.Distance),
		ReflectedTemp:    int(c.EnvTemp),
	}
	if snap := s.snapshot.Load(); snap != nil {
		m.LastShutterTlens = snap.tlens
		m.LastShutterTfpa = snap.tfpa
	} else {
		// Before the first shutter sequence there is no drift.
		m.LastShutterTlens = m.RealtimeTlens
		m.LastShutterTfpa = m.RealtimeTfpa
	}
	s.measure.Store(m)
	return m
}

// Private details.

const (
	defaultKj = 10000

	driftThresholdDefault = 0.15 // °C
	driftThresholdLoose   = 0.3  // °C
)

type shutterSnapshot struct {
	tfpa  float64
	tlens float64
}

// drift tracks the lens drift between shutter sequences to estimate kj.
type drift struct {
	init      bool
	y16k0     int
	y16k1     int
	lastAvg   float64 // Shutter frame average at the last evaluation.
	lastTlens float64 // Lens temperature at the last evaluation.
	threshold float64 // Minimum lens drift to evaluate kj.
}

func newShutterFrame(pix []uint16) *ShutterFrame {
	sum := int64(0)
	for _, v := range pix {
		sum += int64(v)
	}
	avg := 0.
	if len(pix) != 0 {
		avg = float64(sum) / float64(len(pix))
	}
	return &ShutterFrame{Pix: pix, Avg: avg}
}

// snapshotShutter records the temperatures at the time the shutter closed.
func (s *State) snapshotShutter() {
	if m := s.measure.Load(); m != nil {
		s.snapshot.Store(&shutterSnapshot{tfpa: m.RealtimeTfpa, tlens: m.RealtimeTlens})
	}
}

// updateDrift is called at the end of each shutter sequence.
//
// kj is re-estimated from the change of the shutter frame level against the
// lens temperature change, once the lens drifted enough.
func (s *State) updateDrift(nucRan bool) {
	m := s.measure.Load()
	if m == nil {
		return
	}
	d := &s.drift
	y, err := s.Cal.CurveScalar(s.Bucket(), m.RealtimeTshutter)
	if err != nil {
		log.Printf("[shutter] drift: %v", err)
		return
	}
	d.y16k0 = d.y16k1
	d.y16k1 = y
	avg := s.ShutterFrame().Avg
	if !d.init || !nucRan {
		d.init = true
		d.lastAvg = avg
		d.lastTlens = m.RealtimeTlens
		return
	}
	dLens := m.RealtimeTlens - d.lastTlens
	if math.Abs(dLens) <= d.threshold {
		// Wait for a larger drift before evaluating.
		d.threshold = driftThresholdLoose
		return
	}
	f := ((avg - d.lastAvg) - float64(d.y16k1-d.y16k0)) / dLens
	if a := math.Abs(f); a > 10 && a < 100 {
		kj := int32(f * 100)
		log.Printf("[shutter] kj %d -> %d (Δlens %.2f°C)", s.kj.Load(), kj, dLens)
		s.kj.Store(kj)
	}
	d.threshold = driftThresholdDefault
	d.lastAvg = avg
	d.lastTlens = m.RealtimeTlens
}
