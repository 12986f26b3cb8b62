// Copyright 2026 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package loopback

import (
	"encoding/binary"
	"unsafe"

	"golang.org/x/sys/unix"
)

// V4L2 constants from linux/videodev2.h.
const (
	bufTypeVideoOutput = 2
	fieldNone          = 1
	colorspaceRaw      = 11
)

// pixFmtY16 is v4l2_fourcc('Y', '1', '6', ' ').
var pixFmtY16 = uint32('Y') | uint32('1')<<8 | uint32('6')<<16 | uint32(' ')<<24

// formatSize is sizeof(struct v4l2_format). The union is 200 bytes and is 8
// bytes aligned on 64 bits platforms because it contains pointers.
var formatSize = 4 + (int(unsafe.Sizeof(uintptr(0))) - 4) + 200

// iowr is the _IOWR() macro.
func iowr(t, nr, size uintptr) uintptr {
	const (
		read  = 2
		write = 1
	)
	return (read|write)<<30 | size<<16 | t<<8 | nr
}

// encodeFormat returns a struct v4l2_format describing a Y16 output.
func encodeFormat(width, height int) []byte {
	b := make([]byte, formatSize)
	binary.LittleEndian.PutUint32(b, bufTypeVideoOutput)
	// struct v4l2_pix_format.
	p := b[formatSize-200:]
	binary.LittleEndian.PutUint32(p[0:], uint32(width))
	binary.LittleEndian.PutUint32(p[4:], uint32(height))
	binary.LittleEndian.PutUint32(p[8:], pixFmtY16)
	binary.LittleEndian.PutUint32(p[12:], fieldNone)
	binary.LittleEndian.PutUint32(p[16:], uint32(width*2))        // bytesperline
	binary.LittleEndian.PutUint32(p[20:], uint32(width*height*2)) // sizeimage
	binary.LittleEndian.PutUint32(p[24:], colorspaceRaw)
	return b
}

func setFormat(fd uintptr, width, height int) error {
	b := encodeFormat(width, height)
	// VIDIOC_S_FMT.
	op := iowr('V', 5, uintptr(len(b)))
	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, fd, op, uintptr(unsafe.Pointer(&b[0]))); errno != 0 {
		return errno
	}
	return nil
}
