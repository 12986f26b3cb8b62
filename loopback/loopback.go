// Copyright 2026 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package loopback writes frames to a V4L2 loopback video device.
//
// The device is configured as a Y16 (16 bits little endian gray) output so
// that applications reading it get the raw temperatures in centi-°C.
package loopback

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
)

// Device is an opened V4L2 loopback device.
type Device struct {
	lock   sync.Mutex
	f      *os.File
	width  int
	height int
}

// Open opens the loopback device at path, e.g. /dev/video10, and configures
// it for width x height 16 bits frames.
func Open(path string, width, height int) (*Device, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, err
	}
	if err := setFormat(f.Fd(), width, height); err != nil {
		f.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &Device{f: f, width: width, height: height}, nil
}

// Write writes one frame as 16 bits little endian samples.
func (d *Device) Write(b []byte) (int, error) {
	if len(b) != d.FrameSize() {
		return 0, fmt.Errorf("loopback: frame is %d bytes, expected %d", len(b), d.FrameSize())
	}
	d.lock.Lock()
	defer d.lock.Unlock()
	if d.f == nil {
		return 0, io.ErrClosedPipe
	}
	return d.f.Write(b)
}

// FrameSize is the size of one frame in bytes.
func (d *Device) FrameSize() int {
	return d.width * d.height * 2
}

// Close closes the device.
func (d *Device) Close() error {
	d.lock.Lock()
	defer d.lock.Unlock()
	if d.f == nil {
		return io.ErrClosedPipe
	}
	err := d.f.Close()
	d.f = nil
	return err
}

var errNotSupported = errors.New("loopback: V4L2 is only supported on linux")
