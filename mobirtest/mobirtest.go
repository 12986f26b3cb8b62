// Copyright 2026 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package mobirtest implements a fake MobirAir camera.
//
// It implements mobir.Transport: it answers memory reads from an in-memory
// flash image holding consistent calibration tables and streams synthetic
// frames when started.
package mobirtest

import (
	"bytes"
	"context"
	"encoding/binary"
	"io"
	"math"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"github.com/maruel/go-mobir/mobir"
)

// Calibration of the fake camera.
//
// Every curve is linear with a slope of 10 counts per index so that once
// corrected, a scene ShutterLevel+n counts reads as n centi-°C above the
// shutter temperature.
const (
	Buckets      = 4
	ShutterLevel = 8000
	CurveBase    = -5000
	ShutterCode  = 10300 // 25.00°C
	Serial       = "MA0123456789"
	ModuleType   = 1
)

// Thresholds are the bucket thresholds in centi-°C.
var Thresholds = []int16{1000, 2000, 3000, 4000}

// Curve returns the fake temperature curve.
func Curve() []int16 {
	c := make([]int16, mobir.CurveLength)
	for i := range c {
		c[i] = int16(CurveBase + 10*i)
	}
	return c
}

// FPACode returns the raw FPA code for a temperature in °C.
func FPACode(celsius float64) uint16 {
	return uint16(math.Round((338180000 - celsius*100000) / 18181))
}

// Camera is a fake camera.
type Camera struct {
	// FramePeriod is the time between frames while streaming.
	FramePeriod time.Duration
	// Garbage is the number of random bytes sent before each frame.
	Garbage int
	// Scene returns the scene counts above the shutter level for a pixel
	// of the imaging area. Defaults to a moving blob pattern.
	Scene func(x, y int) int

	mu        sync.Mutex
	notify    chan struct{}
	flash     []byte
	pending   []byte
	streaming bool
	shutter   bool
	silent    bool
	fail      error
	closed    bool
	commands  []string
	reads     [][3]int
	fixed     mobir.FixedParamLine
	custom    mobir.CustomParamLine
	noise     *noise
	rand      *rand.Rand
}

// New returns a fake camera.
func New() *Camera {
	c := &Camera{
		FramePeriod: 40 * time.Millisecond,
		notify:      make(chan struct{}, 1),
		noise:       makeNoise(),
		rand:        rand.New(rand.NewSource(0)),
		fixed: mobir.FixedParamLine{
			Width:               mobir.Width,
			Height:              mobir.Height,
			DeviceName:          "MobirAir",
			StartupShutterTemp:  ShutterCode,
			RealtimeShutterTemp: ShutterCode,
			RealtimeLensTemp:    ShutterCode,
			RealtimeFpaTemp:     FPACode(25),
		},
		custom: mobir.CustomParamLine{
			Emission: 95,
			Humidity: 50,
			Distance: 1,
			EnvTemp:  250,
			Kf:       10000,
			Tref:     2500,
		},
	}
	c.flash = makeFlash()
	return c
}

// SetFPA changes the FPA temperature reported in the frame headers.
func (c *Camera) SetFPA(celsius float64) {
	c.mu.Lock()
	c.fixed.RealtimeFpaTemp = FPACode(celsius)
	c.mu.Unlock()
}

// SetShutterCode changes the raw shutter temperature reported in the frame
// headers.
func (c *Camera) SetShutterCode(code uint16) {
	c.mu.Lock()
	c.fixed.RealtimeShutterTemp = code
	c.mu.Unlock()
}

// SetSilent makes the camera ignore memory reads.
func (c *Camera) SetSilent(s bool) {
	c.mu.Lock()
	c.silent = s
	c.mu.Unlock()
}

// Fail makes the next reads return err.
func (c *Camera) Fail(err error) {
	c.mu.Lock()
	c.fail = err
	c.mu.Unlock()
	c.wake()
}

// Commands returns the commands received, excluding memory reads.
func (c *Camera) Commands() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.commands...)
}

// MemoryReads returns the page, offset and length of each memory read
// received.
func (c *Camera) MemoryReads() [][3]int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][3]int(nil), c.reads...)
}

// Streaming returns true if the camera is streaming.
func (c *Camera) Streaming() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.streaming
}

// ShutterClosed returns true if the shutter is closed.
func (c *Camera) ShutterClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.shutter
}

// Write implements mobir.Transport.
func (c *Camera) Write(b []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0, io.ErrClosedPipe
	}
	switch {
	case bytes.HasPrefix(b, []byte("GetArmParam=")):
		if v := b[len("GetArmParam="):]; len(v) == 6 {
			page := int(binary.LittleEndian.Uint16(v))
			offset := int(binary.LittleEndian.Uint16(v[2:]))
			length := int(binary.LittleEndian.Uint16(v[4:]))
			c.reads = append(c.reads, [3]int{page, offset, length})
			if !c.silent {
				c.pending = append(c.pending, c.memory(page*mobir.PageSize+offset, length)...)
			}
		}
	case bytes.HasPrefix(b, []byte("SetDetectIndex=")):
		c.commands = append(c.commands, string(b[:len("SetDetectIndex=")])+strconv.Itoa(int(binary.LittleEndian.Uint16(b[len(b)-2:]))))
	default:
		cmd := string(b)
		c.commands = append(c.commands, cmd)
		switch cmd {
		case "StartX=1":
			c.streaming = true
		case "StopX=1":
			c.streaming = false
		case "ShutterOn=1":
			c.shutter = true
		case "ShutterOff=1":
			c.shutter = false
		}
	}
	c.wake()
	return len(b), nil
}

// ReadContext implements mobir.Transport.
func (c *Camera) ReadContext(ctx context.Context, b []byte) (int, error) {
	for {
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return 0, io.ErrClosedPipe
		}
		if c.fail != nil {
			err := c.fail
			c.mu.Unlock()
			return 0, err
		}
		if len(c.pending) != 0 {
			n := copy(b, c.pending)
			c.pending = c.pending[n:]
			c.mu.Unlock()
			return n, nil
		}
		streaming := c.streaming
		period := c.FramePeriod
		c.mu.Unlock()

		var tick <-chan time.Time
		if streaming {
			tick = time.After(period)
		}
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-c.notify:
		case <-tick:
			c.mu.Lock()
			if c.streaming {
				c.pending = append(c.pending, c.frame()...)
			}
			c.mu.Unlock()
		}
	}
}

// Close implements mobir.Transport.
func (c *Camera) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return io.ErrClosedPipe
	}
	c.closed = true
	return nil
}

//

func (c *Camera) wake() {
	select {
	case c.notify <- struct{}{}:
	default:
	}
}

// memory must be called with mu held.
func (c *Camera) memory(addr, length int) []byte {
	out := make([]byte, length)
	if addr < len(c.flash) {
		copy(out, c.flash[addr:])
	}
	return out
}

// frame must be called with mu held.
func (c *Camera) frame() []byte {
	c.fixed.IsShuttering = c.shutter
	out := make([]byte, 0, c.Garbage+mobir.Width*mobir.Height*2+240)
	for i := 0; i < c.Garbage; i++ {
		out = append(out, byte(c.rand.Intn(256)))
	}
	out = append(out, mobir.EncodeHeader(&c.fixed, &c.custom)...)
	c.noise.update()
	for y := 0; y < mobir.Height; y++ {
		for x := 0; x < mobir.Width; x++ {
			v := ShutterLevel + fixedPattern(x, y)
			if !c.shutter && y >= mobir.RefRows {
				if c.Scene != nil {
					v += c.Scene(x, y-mobir.RefRows)
				} else {
					v += c.noise.at(x, y-mobir.RefRows)
				}
			}
			out = binary.LittleEndian.AppendUint16(out, uint16(v))
		}
	}
	return out
}

// fixedPattern is the per pixel offset removed by the NUC.
func fixedPattern(x, y int) int {
	return ((x*7 + y*13) % 17) * 4
}

func makeFlash() []byte {
	flash := make([]byte, (mobir.PageModuleType+1)*mobir.PageSize)
	binary.LittleEndian.PutUint16(flash[mobir.PageBucketCount*mobir.PageSize:], Buckets)
	for i, t := range Thresholds {
		binary.LittleEndian.PutUint16(flash[mobir.PageThresholds*mobir.PageSize+2*i:], uint16(t))
	}
	// Unity gain.
	k := flash[mobir.PageKData*mobir.PageSize:]
	for i := 0; i < Buckets*mobir.Width*mobir.Height; i++ {
		binary.LittleEndian.PutUint16(k[2*i:], 1<<13)
	}
	curve := Curve()
	cv := flash[mobir.PageCurves*mobir.PageSize:]
	for b := 0; b < Buckets; b++ {
		for i, v := range curve {
			binary.LittleEndian.PutUint16(cv[2*(b*mobir.CurveLength+i):], uint16(v))
		}
	}
	copy(flash[mobir.PageSerial*mobir.PageSize:], Serial)
	flash[mobir.PageModuleType*mobir.PageSize] = ModuleType
	return flash
}
