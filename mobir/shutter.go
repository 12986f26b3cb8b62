// Copyright 2026 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package mobir

import (
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"
)

// ShutterState is the step a shutter sequence is at.
type ShutterState int32

const (
	ShutterIdle ShutterState = iota
	ShutterClosing
	ShutterSettling
	ShutterNUC
	ShutterReopening
)

func (s ShutterState) String() string {
	switch s {
	case ShutterIdle:
		return "Idle"
	case ShutterClosing:
		return "Closing"
	case ShutterSettling:
		return "Settling"
	case ShutterNUC:
		return "NUC"
	case ShutterReopening:
		return "Reopening"
	default:
		return fmt.Sprintf("ShutterState(%d)", int32(s))
	}
}

// Shutter runs the shutter recalibration sequences.
//
// A sequence closes the shutter, lets the image settle so the shutter frame
// reference is refreshed, optionally runs the camera's NUC, then reopens the
// shutter. Only one sequence runs at a time. Once started, a sequence always
// runs to completion.
type Shutter struct {
	// Settle is the time to wait after closing the shutter.
	Settle time.Duration
	// NUCWait is the time the camera takes to run its NUC.
	NUCWait time.Duration
	// MinInterval is the minimum time between the start of two manual
	// sequences.
	MinInterval time.Duration
	// AutoInterval is the time between the start of two automatic sequences.
	AutoInterval time.Duration

	p     *Protocol
	s     *State
	now   func() time.Time
	sleep func(time.Duration)

	mu sync.Mutex // Serializes sequences.
	wg sync.WaitGroup

	gateMu    sync.Mutex
	started   bool
	lastStart time.Time
	onDone    func(nucRan bool)

	state atomic.Int32
	runs  atomic.Int64
}

// NewShutter returns a Shutter controller with the default timings.
func NewShutter(p *Protocol, s *State) *Shutter {
	return &Shutter{
		Settle:       400 * time.Millisecond,
		NUCWait:      2 * time.Second,
		MinInterval:  5 * time.Second,
		AutoInterval: 30 * time.Second,
		p:            p,
		s:            s,
		now:          time.Now,
		sleep:        time.Sleep,
	}
}

// SetClock replaces the clock and the sleep function. It must be called
// before any sequence is started.
func (sh *Shutter) SetClock(now func() time.Time, sleep func(time.Duration)) {
	sh.now = now
	sh.sleep = sleep
}

// OnDone sets the function called at the end of each sequence.
func (sh *Shutter) OnDone(f func(nucRan bool)) {
	sh.gateMu.Lock()
	sh.onDone = f
	sh.gateMu.Unlock()
}

// Run runs a sequence synchronously, regardless of the rate gate.
func (sh *Shutter) Run() error {
	sh.gateMu.Lock()
	sh.markStarted()
	sh.gateMu.Unlock()
	return sh.sequence()
}

// CanShutter returns true if enough time elapsed since the start of the
// previous sequence to start a new one.
func (sh *Shutter) CanShutter() bool {
	sh.gateMu.Lock()
	defer sh.gateMu.Unlock()
	return sh.elapsed(sh.MinInterval)
}

// Manual starts a sequence in the background if the rate gate allows it.
//
// It returns true if a sequence was started.
func (sh *Shutter) Manual() bool {
	return sh.tryStart(sh.MinInterval)
}

// Automatic starts a sequence in the background if automatic shuttering is
// enabled and AutoInterval elapsed since the start of the previous sequence.
//
// It is meant to be called on every live frame.
func (sh *Shutter) Automatic() bool {
	if !sh.s.Config().AutoShutter {
		return false
	}
	return sh.tryStart(sh.AutoInterval)
}

// State returns the current step of the running sequence.
func (sh *Shutter) State() ShutterState {
	return ShutterState(sh.state.Load())
}

// Runs returns the number of sequences started.
func (sh *Shutter) Runs() int64 {
	return sh.runs.Load()
}

// Wait waits for the background sequences to complete.
func (sh *Shutter) Wait() {
	sh.wg.Wait()
}

// Private details.

func (sh *Shutter) tryStart(interval time.Duration) bool {
	sh.gateMu.Lock()
	defer sh.gateMu.Unlock()
	if !sh.elapsed(interval) {
		return false
	}
	sh.markStarted()
	sh.wg.Add(1)
	go func() {
		defer sh.wg.Done()
		if err := sh.sequence(); err != nil {
			log.Printf("[shutter] %v", err)
		}
	}()
	return true
}

// elapsed must be called with gateMu held.
func (sh *Shutter) elapsed(d time.Duration) bool {
	return !sh.started || sh.now().Sub(sh.lastStart) >= d
}

// markStarted must be called with gateMu held.
func (sh *Shutter) markStarted() {
	sh.started = true
	sh.lastStart = sh.now()
}

func (sh *Shutter) setState(s ShutterState) {
	sh.state.Store(int32(s))
}

func (sh *Shutter) sequence() error {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	defer sh.setState(ShutterIdle)
	sh.runs.Add(1)

	sh.setState(ShutterClosing)
	if err := sh.p.SetShutter(true); err != nil {
		return err
	}
	sh.setState(ShutterSettling)
	sh.sleep(sh.Settle)
	sh.s.snapshotShutter()

	nucRan := false
	if sh.s.Config().DoNUC {
		sh.setState(ShutterNUC)
		if err := sh.p.DoNUC(); err != nil {
			// Still try to reopen the shutter.
			log.Printf("[shutter] %v", err)
		} else {
			sh.sleep(sh.NUCWait)
			nucRan = true
		}
	}

	sh.setState(ShutterReopening)
	if err := sh.p.SetShutter(false); err != nil {
		return err
	}
	sh.s.updateDrift(nucRan)

	sh.gateMu.Lock()
	f := sh.onDone
	sh.gateMu.Unlock()
	if f != nil {
		f(nucRan)
	}
	return nil
}
