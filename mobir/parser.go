// Copyright 2026 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package mobir

import (
	"bytes"
	"fmt"

	"github.com/maruel/go-mobir/mobir/internal"
)

// Parser cuts the bulk stream into frames.
//
// There is no length prefix nor CRC; a frame starts at the marker and has a
// fixed size for a given sensor. Synchronization relies solely on finding the
// next marker.
type Parser struct {
	width   int
	height  int
	stream  []byte
	dropped int
}

// NewParser returns a Parser for a sensor of the specified dimensions.
func NewParser(width, height int) *Parser {
	return &Parser{width: width, height: height}
}

// FrameSize is the number of bytes of one frame, including the header.
func (p *Parser) FrameSize() int {
	return p.width*p.height*sampleSize + internal.HeaderSize
}

// Feed appends b to the internal buffer and returns the next frame if one is
// complete.
//
// It returns (nil, nil) when more data is needed. At most one frame is
// returned per call; call Feed(nil) until it returns nil to drain.
//
// A frame with unexpected dimensions returns an error wrapping
// ErrProtocolDesync. Its bytes are consumed so the next call resumes after it.
func (p *Parser) Feed(b []byte) (*RawFrame, error) {
	p.stream = append(p.stream, b...)
	i := bytes.Index(p.stream, frameMarker)
	if i < 0 {
		// Keep a possible partial marker at the end.
		if n := len(p.stream) - len(frameMarker) + 1; n > 0 {
			p.skip(n)
		}
		return nil, nil
	}
	p.skip(i)
	size := p.FrameSize()
	if len(p.stream) < size {
		return nil, nil
	}
	data := make([]byte, size)
	copy(data, p.stream[:size])
	p.consume(size)
	return p.parseFrame(data)
}

// Buffered returns the number of bytes waiting for a complete frame.
func (p *Parser) Buffered() int {
	return len(p.stream)
}

// Dropped returns the number of bytes skipped before a marker so far.
func (p *Parser) Dropped() int {
	return p.dropped
}

// Private details.

const sampleSize = 2

var frameMarker = []byte{0x55, 0xAA, 0x27, 0x00}

// skip drops n bytes of garbage.
func (p *Parser) skip(n int) {
	if n == 0 {
		return
	}
	p.dropped += n
	p.consume(n)
}

// consume removes the first n bytes. The remainder is shifted down instead of
// resliced so the backing array is reused.
func (p *Parser) consume(n int) {
	m := copy(p.stream, p.stream[n:])
	p.stream = p.stream[:m]
}

func (p *Parser) parseFrame(data []byte) (*RawFrame, error) {
	h := data[:internal.HeaderSize]
	fixed := ParseFixedParamLine(h)
	if fixed.Width != p.width || fixed.Height != p.height {
		return nil, fmt.Errorf("%w: frame is %dx%d, expected %dx%d", ErrProtocolDesync, fixed.Width, fixed.Height, p.width, p.height)
	}
	return &RawFrame{
		Header:  h,
		Payload: data[internal.HeaderSize:],
		Fixed:   fixed,
		Custom:  ParseCustomParamLine(h),
	}, nil
}
