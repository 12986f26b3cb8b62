// Copyright 2026 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package mobir takes radiometric video from a MobirAir USB thermal camera.
//
// The camera streams frames over a USB bulk endpoint. Each frame starts with
// a marker and a 240 bytes header describing the sensor temperatures and the
// radiometric coefficients, followed by the raw 16 bits samples. The
// calibration tables (NUC gains, temperature curves, FPA temperature
// thresholds) are read from the camera memory at startup.
//
// The counts are corrected for non-uniformity against the last frame captured
// with the shutter closed, then converted to temperatures by interpolating
// between the curves of the two calibration buckets surrounding the FPA
// temperature. The shutter is periodically closed to refresh the reference.
package mobir

import (
	"context"
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"
)

// Sensor geometry.
const (
	Width   = 120
	Height  = 92
	RefRows = 2 // Rows at the top of the sensor that are not part of the image.
)

// VendorID is the USB vendor ID of the camera.
const VendorID = 0x0525

// Opts is the options to New.
type Opts struct {
	// Sink, if set, is called synchronously from the ingestion loop for each
	// processed frame. NextFrame must not be used when Sink is set.
	Sink func(f *Frame)
	// ReadSize is the size of each transport read.
	ReadSize int
	// ReadTimeout is the timeout of each transport read while streaming.
	ReadTimeout time.Duration
	// Queue is the number of frames buffered for NextFrame. When full, the
	// oldest frame is dropped.
	Queue int
	// Config is the initial pipeline configuration. Defaults to DefaultConfig.
	Config *Config
}

// DefaultOpts is the options used when none are specified.
var DefaultOpts = Opts{ReadSize: 16384, ReadTimeout: 100 * time.Millisecond, Queue: 4}

// Stats is the ingestion counters.
type Stats struct {
	GoodFrames     int
	ShutterFrames  int
	DesyncFrames   int
	RejectedFrames int
	Timeouts       int
	DroppedBytes   int
	Shutters       int64
	BucketChanges  int
}

// Dev is a MobirAir camera.
type Dev struct {
	State   *State
	Shutter *Shutter

	t        Transport
	p        *Protocol
	selector *Selector
	parser   *Parser
	opts     Opts

	streaming atomic.Bool
	wake      chan struct{}
	frames    chan *Frame
	errc      chan error
	closing   chan struct{}
	done      chan struct{}
	closeOnce sync.Once

	mu         sync.Mutex
	stats      Stats
	frameCount uint32
}

// New opens the camera over t and loads its calibration.
//
// The stream is stopped until Start is called.
func New(t Transport, opts *Opts) (*Dev, error) {
	o := DefaultOpts
	if opts != nil {
		o = *opts
		if o.ReadSize == 0 {
			o.ReadSize = DefaultOpts.ReadSize
		}
		if o.ReadTimeout == 0 {
			o.ReadTimeout = DefaultOpts.ReadTimeout
		}
		if o.Queue == 0 {
			o.Queue = DefaultOpts.Queue
		}
	}
	p := NewProtocol(t)
	if err := p.SetStream(false); err != nil {
		return nil, err
	}
	drain(p, o.ReadTimeout)
	cal, err := LoadCalibration(p, Width, Height, RefRows)
	if err != nil {
		return nil, err
	}
	log.Printf("serial %q, module type %d, %d buckets", cal.Serial, cal.ModuleType, cal.Buckets())
	s := NewState(cal)
	if o.Config != nil {
		s.SetConfig(*o.Config)
	}
	sh := NewShutter(p, s)
	d := &Dev{
		State:    s,
		Shutter:  sh,
		t:        t,
		p:        p,
		selector: NewSelector(s, p, sh),
		parser:   NewParser(Width, Height),
		opts:     o,
		wake:     make(chan struct{}, 1),
		frames:   make(chan *Frame, o.Queue),
		errc:     make(chan error, 1),
		closing:  make(chan struct{}),
		done:     make(chan struct{}),
	}
	go d.run()
	return d, nil
}

// Start starts the stream and runs an initial shutter sequence so the first
// frames are corrected.
func (d *Dev) Start() error {
	if err := d.p.SetStream(true); err != nil {
		return err
	}
	d.streaming.Store(true)
	select {
	case d.wake <- struct{}{}:
	default:
	}
	return d.Shutter.Run()
}

// Stop stops the stream.
//
// The ingestion goroutine is kept alive and idles until Start is called
// again; restarting the reader after a stop can wedge the camera.
func (d *Dev) Stop() error {
	d.streaming.Store(false)
	return d.p.SetStream(false)
}

// SetConfig replaces the pipeline configuration while streaming.
func (d *Dev) SetConfig(c Config) {
	d.State.SetConfig(c)
}

// NextFrame returns the next processed frame.
func (d *Dev) NextFrame(ctx context.Context) (*Frame, error) {
	select {
	case f := <-d.frames:
		return f, nil
	case err := <-d.errc:
		// Keep it for the next caller.
		d.fail(err)
		return nil, err
	case <-d.closing:
		return nil, errors.New("mobir: closed")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Err returns a channel receiving the transport failure that stopped the
// ingestion loop. The device must be closed and reopened to recover.
func (d *Dev) Err() <-chan error {
	return d.errc
}

// Stats returns a copy of the ingestion counters.
func (d *Dev) Stats() Stats {
	d.mu.Lock()
	s := d.stats
	d.mu.Unlock()
	s.Shutters = d.Shutter.Runs()
	return s
}

// Close stops the stream, waits for the running shutter sequence and closes
// the transport.
func (d *Dev) Close() error {
	var err error
	d.closeOnce.Do(func() {
		d.streaming.Store(false)
		if err1 := d.p.SetStream(false); err1 != nil {
			log.Printf("stop: %v", err1)
		}
		close(d.closing)
		<-d.done
		d.Shutter.Wait()
		err = d.t.Close()
	})
	return err
}

// Private details.

// drain discards the bytes in flight from a previous session.
func drain(p *Protocol, timeout time.Duration) {
	var buf [512]byte
	for i := 0; i < 256; i++ {
		if n, err := p.Read(buf[:], timeout); n == 0 || err != nil {
			return
		}
	}
}

func (d *Dev) run() {
	defer close(d.done)
	buf := make([]byte, d.opts.ReadSize)
	for {
		if !d.streaming.Load() {
			select {
			case <-d.wake:
			case <-d.closing:
				return
			}
			continue
		}
		select {
		case <-d.closing:
			return
		default:
		}
		n, err := d.p.Read(buf, d.opts.ReadTimeout)
		if err != nil {
			if !errors.Is(err, ErrTimeout) {
				log.Printf("ingestion stopped: %v", err)
				d.streaming.Store(false)
				d.fail(err)
				return
			}
			d.mu.Lock()
			d.stats.Timeouts++
			d.mu.Unlock()
		}
		d.feed(buf[:n])
	}
}

func (d *Dev) fail(err error) {
	select {
	case d.errc <- err:
	default:
	}
}

func (d *Dev) feed(b []byte) {
	for {
		r, err := d.parser.Feed(b)
		b = nil
		if err != nil {
			log.Printf("%v", err)
			d.mu.Lock()
			d.stats.DesyncFrames++
			d.mu.Unlock()
			continue
		}
		if r == nil {
			d.mu.Lock()
			d.stats.DroppedBytes = d.parser.Dropped()
			d.mu.Unlock()
			return
		}
		d.process(r)
	}
}

// process runs the frame through the pipeline.
func (d *Dev) process(r *RawFrame) {
	s := d.State
	m := s.Refresh(r)
	counts, live := s.ProcessNUC(r)
	if !live {
		d.mu.Lock()
		d.stats.ShutterFrames++
		d.mu.Unlock()
		return
	}
	d.mu.Lock()
	d.frameCount++
	n := d.frameCount
	d.mu.Unlock()

	bucket := s.Bucket()
	f := &Frame{
		RawFrame: r,
		Width:    Width,
		Height:   Height - RefRows,
		Counts:   counts,
		Metadata: Metadata{
			Captured:       time.Now(),
			FrameCount:     n,
			Bucket:         bucket,
			FPATemperature: celsius(m.RealtimeTfpa),
			LensTemp:       celsius(m.RealtimeTlens),
			ShutterTemp:    celsius(m.RealtimeTshutter),
		},
	}
	ok := true
	if s.Config().Radiometric {
		temps, err := s.Cal.Temperatures(counts, bucket, s.ShutterFrame().AvgInt(), m)
		if err != nil {
			log.Printf("frame %d: %v", n, err)
			ok = false
		} else {
			f.Temps = temps
			f.updateStats()
			if n%25 == 0 {
				log.Printf("frame %d: %s - %s", n, f.Metadata.Min, f.Metadata.Max)
			}
		}
	}
	d.mu.Lock()
	if ok {
		d.stats.GoodFrames++
	} else {
		d.stats.RejectedFrames++
	}
	d.mu.Unlock()
	if ok {
		d.deliver(f)
	}

	changed, err := d.selector.Observe(m)
	if err != nil {
		log.Printf("[bucket] %v", err)
	}
	if changed {
		d.mu.Lock()
		d.stats.BucketChanges++
		d.mu.Unlock()
	}
	d.Shutter.Automatic()
}

func (d *Dev) deliver(f *Frame) {
	if d.opts.Sink != nil {
		d.opts.Sink(f)
		return
	}
	for {
		select {
		case d.frames <- f:
			return
		default:
		}
		// Drop the oldest frame.
		select {
		case <-d.frames:
		default:
		}
	}
}
