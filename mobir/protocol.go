// Copyright 2026 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package mobir

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"time"
)

// Transport is the USB link to the camera.
//
// ReadContext must return an error matching ErrTimeout (or the context error)
// when ctx expires before any data is received.
type Transport interface {
	io.Closer
	Write(b []byte) (int, error)
	ReadContext(ctx context.Context, b []byte) (int, error)
}

// Errors returned by the driver.
var (
	// ErrTimeout is a transport read that timed out. It is expected and
	// recoverable.
	ErrTimeout = errors.New("mobir: transport timeout")
	// ErrProtocolDesync is a frame with unexpected dimensions. The frame is
	// discarded.
	ErrProtocolDesync = errors.New("mobir: protocol desync")
	// ErrMemoryRead is a device memory read that exhausted its retries.
	ErrMemoryRead = errors.New("mobir: memory read failed")
	// ErrUninitializedCalibration is a calibration table accessed before it was
	// loaded.
	ErrUninitializedCalibration = errors.New("mobir: calibration not loaded")
	// ErrCurveBounds is a curve index out of bounds. The frame is rejected.
	ErrCurveBounds = errors.New("mobir: curve index out of bounds")
)

// Device memory map, in pages of PageSize bytes.
const (
	PageSize        = 0x800
	PageKData       = 300
	PageCurves      = 462
	PageThresholds  = 487
	PageBucketCount = 488
	PageSerial      = 489
	PageModuleType  = 490
)

// MaxArmChunk is the maximum number of bytes returned by a single
// GetArmParam request.
const MaxArmChunk = 51200

// CurveLength is the number of samples of one temperature curve.
const CurveLength = 1700

// Protocol sends commands and reads device memory.
type Protocol struct {
	t Transport

	// ReadTimeout is the timeout of each read attempt during memory reads.
	ReadTimeout time.Duration
	// MaxTimeouts is the number of consecutive timeouts aborting a memory read.
	MaxTimeouts int

	readMu sync.Mutex
	buf    [512]byte
}

// NewProtocol returns a Protocol using t.
func NewProtocol(t Transport) *Protocol {
	return &Protocol{t: t, ReadTimeout: 200 * time.Millisecond, MaxTimeouts: 3}
}

// SetStream starts or stops the frame stream.
func (p *Protocol) SetStream(on bool) error {
	if on {
		return p.command("StartX=1")
	}
	return p.command("StopX=1")
}

// SetShutter closes or opens the shutter.
func (p *Protocol) SetShutter(closed bool) error {
	if closed {
		return p.command("ShutterOn=1")
	}
	return p.command("ShutterOff=1")
}

// DoNUC asks the camera to run its non-uniformity correction. The shutter
// should be closed.
func (p *Protocol) DoNUC() error {
	return p.command("DoNUC=1")
}

// SetChangeR selects the calibration bucket on the camera.
func (p *Protocol) SetChangeR(idx int) error {
	cmd := append([]byte("SetDetectIndex="), 0, 0)
	binary.LittleEndian.PutUint16(cmd[len(cmd)-2:], uint16(idx))
	return p.write(cmd)
}

// Read reads whatever is available within timeout.
//
// It returns an error matching ErrTimeout if nothing was received.
func (p *Protocol) Read(b []byte, timeout time.Duration) (int, error) {
	p.readMu.Lock()
	defer p.readMu.Unlock()
	return p.read(b, timeout)
}

// GetArmParam reads length bytes of device memory at address.
//
// The device caps a single request to MaxArmChunk bytes so longer reads are
// split. The offset of every request is derived from the original address and
// not the chunk address. This matches what the vendor application sends; it
// is harmless for page aligned reads, which is all this package does.
func (p *Protocol) GetArmParam(address, length int) ([]byte, error) {
	p.readMu.Lock()
	defer p.readMu.Unlock()
	out := make([]byte, 0, length)
	offset := address % 0x100
	for s := address; s < address+length; s += MaxArmChunk {
		page := s / PageSize
		n := address + length - s
		if n > MaxArmChunk {
			n = MaxArmChunk
		}
		cmd := make([]byte, 0, len("GetArmParam=")+6)
		cmd = append(cmd, "GetArmParam="...)
		cmd = binary.LittleEndian.AppendUint16(cmd, uint16(page))
		cmd = binary.LittleEndian.AppendUint16(cmd, uint16(offset))
		cmd = binary.LittleEndian.AppendUint16(cmd, uint16(n))
		data, err := p.retrieve(cmd, n)
		if err != nil {
			return nil, fmt.Errorf("GetArmParam(page %d, %d bytes): %w", page, n, err)
		}
		out = append(out, data...)
	}
	return out, nil
}

// BucketCount returns the number of calibration buckets.
func (p *Protocol) BucketCount() (int, error) {
	b, err := p.GetArmParam(PageBucketCount*PageSize, 2)
	if err != nil {
		return 0, err
	}
	return int(binary.LittleEndian.Uint16(b)), nil
}

// Thresholds returns the FPA temperature thresholds of each bucket, in
// centi-°C.
func (p *Protocol) Thresholds(buckets int) ([]int16, error) {
	b, err := p.GetArmParam(PageThresholds*PageSize, 2*buckets)
	if err != nil {
		return nil, err
	}
	return decodeInt16(b), nil
}

// KData returns the NUC gains of all buckets, bucket after bucket, row major.
func (p *Protocol) KData(width, height, buckets int) ([]uint16, error) {
	b, err := p.GetArmParam(PageKData*PageSize, 2*width*height*buckets)
	if err != nil {
		return nil, err
	}
	out := make([]uint16, len(b)/2)
	for i := range out {
		out[i] = binary.LittleEndian.Uint16(b[2*i:])
	}
	return out, nil
}

// Curves returns the temperature curves of all buckets.
func (p *Protocol) Curves(buckets int) ([][]int16, error) {
	b, err := p.GetArmParam(PageCurves*PageSize, 2*CurveLength*buckets)
	if err != nil {
		return nil, err
	}
	all := decodeInt16(b)
	out := make([][]int16, buckets)
	for i := range out {
		out[i] = all[i*CurveLength : (i+1)*CurveLength : (i+1)*CurveLength]
	}
	return out, nil
}

// Serial returns the device serial number.
func (p *Protocol) Serial() (string, error) {
	b, err := p.GetArmParam(PageSerial*PageSize, 14)
	if err != nil {
		return "", err
	}
	return string(trimNUL(b)), nil
}

// ModuleType returns the module type. It changes how the FPA temperature is
// computed.
func (p *Protocol) ModuleType() (uint8, error) {
	b, err := p.GetArmParam(PageModuleType*PageSize, 1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// Private details.

func (p *Protocol) command(s string) error {
	return p.write([]byte(s))
}

func (p *Protocol) write(b []byte) error {
	if _, err := p.t.Write(b); err != nil {
		return fmt.Errorf("write %q: %w", b, err)
	}
	return nil
}

func (p *Protocol) read(b []byte, timeout time.Duration) (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	n, err := p.t.ReadContext(ctx, b)
	if err != nil && errors.Is(err, context.DeadlineExceeded) {
		err = ErrTimeout
	}
	return n, err
}

// retrieve writes cmd and reads back exactly length bytes.
func (p *Protocol) retrieve(cmd []byte, length int) ([]byte, error) {
	if err := p.write(cmd); err != nil {
		return nil, err
	}
	out := make([]byte, 0, length)
	timeouts := 0
	for len(out) < length {
		n, err := p.read(p.buf[:], p.ReadTimeout)
		out = append(out, p.buf[:n]...)
		if n != 0 {
			timeouts = 0
		}
		if err == nil {
			continue
		}
		if !errors.Is(err, ErrTimeout) {
			return nil, err
		}
		if n != 0 {
			continue
		}
		if timeouts++; timeouts >= p.MaxTimeouts {
			return nil, fmt.Errorf("%w: got %d of %d bytes", ErrMemoryRead, len(out), length)
		}
	}
	if len(out) > length {
		log.Printf("expected %d bytes, got %d", length, len(out))
		out = out[:length]
	}
	return out, nil
}

func decodeInt16(b []byte) []int16 {
	out := make([]int16, len(b)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(b[2*i:]))
	}
	return out
}

func trimNUL(b []byte) []byte {
	for i, c := range b {
		if c == 0 {
			return b[:i]
		}
	}
	return b
}
