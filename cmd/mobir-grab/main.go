// Copyright 2026 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// mobir-grab captures a single image.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"image"
	"image/png"
	"io"
	"log"
	"os"
	"time"

	"github.com/maruel/go-mobir/gray16"
	"github.com/maruel/go-mobir/mobir"
	"github.com/maruel/go-mobir/mobir/usb"
	"github.com/maruel/go-mobir/mobirtest"
	"github.com/maruel/interrupt"
)

func mainImpl() error {
	agc := flag.Bool("agc", false, "Save a 8 bit PNG instead of the default 16 bits")
	raw := flag.Bool("raw", false, "Save the little endian temperatures in centi-°C instead of a PNG")
	meta := flag.Bool("meta", false, "print metadata")
	fake := flag.Bool("fake", false, "use a simulated camera")
	skip := flag.Int("skip", 10, "frames to skip to let the image settle")
	timeout := flag.Duration("timeout", 30*time.Second, "maximum time to wait for the frame")
	verbose := flag.Bool("v", false, "verbose mode")
	flag.Parse()
	if !*verbose {
		log.SetOutput(io.Discard)
	}
	log.SetFlags(log.Lmicroseconds)

	if flag.NArg() != 1 {
		return errors.New("supply path to PNG to save")
	}
	interrupt.HandleCtrlC()

	var t mobir.Transport
	if *fake {
		t = mobirtest.New()
	} else {
		c, err := usb.Open()
		if err != nil {
			return fmt.Errorf("%s\nIf testing without hardware, use -fake to simulate a camera", err)
		}
		t = c
	}
	dev, err := mobir.New(t, nil)
	if err != nil {
		t.Close()
		return err
	}
	defer dev.Close()
	if err := dev.Start(); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	go func() {
		select {
		case <-interrupt.Channel:
			cancel()
		case <-ctx.Done():
		}
	}()
	var frame *mobir.Frame
	for i := 0; i <= *skip; i++ {
		if frame, err = dev.NextFrame(ctx); err != nil {
			return err
		}
	}
	if err := dev.Stop(); err != nil {
		return err
	}
	if *meta {
		m := &frame.Metadata
		fmt.Printf("Serial:      %s\n", dev.State.Cal.Serial)
		fmt.Printf("FrameCount:  %d\n", m.FrameCount)
		fmt.Printf("Bucket:      %d\n", m.Bucket)
		fmt.Printf("FPA:         %s\n", m.FPATemperature)
		fmt.Printf("Lens:        %s\n", m.LensTemp)
		fmt.Printf("Shutter:     %s\n", m.ShutterTemp)
		if frame.Temps != nil {
			fmt.Printf("Min:         %s\n", m.Min)
			fmt.Printf("Max:         %s\n", m.Max)
			fmt.Printf("Center:      %s\n", frame.TempAt(frame.Width/2, frame.Height/2))
		}
	}
	f, err := os.Create(flag.Args()[0])
	if err != nil {
		return err
	}
	defer f.Close()
	if *raw {
		_, err = f.Write(frame.Bytes())
		return err
	}
	var img image.Image = frame
	if *agc {
		img = gray16.AGCLinear(frame)
	}
	return png.Encode(f, img)
}

func main() {
	if err := mainImpl(); err != nil {
		fmt.Fprintf(os.Stderr, "\nmobir-grab: %s.\n", err)
		os.Exit(1)
	}
}
