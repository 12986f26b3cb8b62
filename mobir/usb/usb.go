// Copyright 2026 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package usb implements mobir.Transport over libusb.
package usb

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/google/gousb"
	"github.com/maruel/go-mobir/mobir"
)

// Camera is a MobirAir camera connected over USB.
type Camera struct {
	closed atomic.Bool
	lock   sync.Mutex
	ctx    *gousb.Context
	dev    *gousb.Device
	cfg    *gousb.Config
	intf   *gousb.Interface
	in     *gousb.InEndpoint
	out    *gousb.OutEndpoint
}

// Open opens the first MobirAir camera found.
//
// The device is reset, then configuration 1, interface 1 alternate setting 1
// is claimed. The bulk endpoints are discovered by direction.
func Open() (*Camera, error) {
	ctx := gousb.NewContext()
	devs, err := ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		return uint16(desc.Vendor) == mobir.VendorID
	})
	if err != nil && len(devs) == 0 {
		ctx.Close()
		return nil, fmt.Errorf("failed to enumerate USB devices: %w", err)
	}
	if len(devs) == 0 {
		ctx.Close()
		return nil, fmt.Errorf("camera not found (VID=0x%04X)", mobir.VendorID)
	}
	for _, d := range devs[1:] {
		d.Close()
	}
	c := &Camera{ctx: ctx, dev: devs[0]}
	if err := c.init(); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

// Write sends a command.
func (c *Camera) Write(b []byte) (int, error) {
	if c.closed.Load() {
		return 0, io.ErrClosedPipe
	}
	return c.out.Write(b)
}

// ReadContext reads what the camera sent until ctx expires.
//
// It returns an error matching mobir.ErrTimeout when ctx expires.
func (c *Camera) ReadContext(ctx context.Context, b []byte) (int, error) {
	if c.closed.Load() {
		return 0, io.ErrClosedPipe
	}
	c.lock.Lock()
	defer c.lock.Unlock()
	n, err := c.in.ReadContext(ctx, b)
	if err != nil && (ctx.Err() != nil || errors.Is(err, gousb.TransferCancelled) || errors.Is(err, gousb.TransferTimedOut)) {
		err = fmt.Errorf("%w: %v", mobir.ErrTimeout, err)
	}
	return n, err
}

// Close releases the interface and the device.
func (c *Camera) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return io.ErrClosedPipe
	}
	c.lock.Lock()
	defer c.lock.Unlock()
	var err error
	if c.intf != nil {
		c.intf.Close()
	}
	if c.cfg != nil {
		err = c.cfg.Close()
	}
	if c.dev != nil {
		if err1 := c.dev.Close(); err == nil {
			err = err1
		}
	}
	if err1 := c.ctx.Close(); err == nil {
		err = err1
	}
	return err
}

// Private details.

func (c *Camera) init() error {
	if err := c.dev.Reset(); err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	if err := c.dev.SetAutoDetach(true); err != nil {
		return fmt.Errorf("auto detach: %w", err)
	}
	var err error
	if c.cfg, err = c.dev.Config(1); err != nil {
		return fmt.Errorf("config 1: %w", err)
	}
	if c.intf, err = c.cfg.Interface(1, 1); err != nil {
		return fmt.Errorf("interface 1: %w", err)
	}
	for _, ep := range c.intf.Setting.Endpoints {
		switch ep.Direction {
		case gousb.EndpointDirectionIn:
			if c.in == nil {
				if c.in, err = c.intf.InEndpoint(ep.Number); err != nil {
					return err
				}
			}
		case gousb.EndpointDirectionOut:
			if c.out == nil {
				if c.out, err = c.intf.OutEndpoint(ep.Number); err != nil {
					return err
				}
			}
		}
	}
	if c.in == nil || c.out == nil {
		return errors.New("bulk endpoints not found")
	}
	return nil
}
