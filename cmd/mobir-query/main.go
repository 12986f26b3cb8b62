// Copyright 2026 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// mobir-query reads the camera identity and calibration tables.
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/maruel/go-mobir/mobir"
	"github.com/maruel/go-mobir/mobir/usb"
	"github.com/maruel/go-mobir/mobirtest"
)

func mainImpl() error {
	fake := flag.Bool("fake", false, "use a simulated camera")
	shutter := flag.Bool("shutter", false, "close the shutter, run the NUC and reopen it")
	curves := flag.Bool("curves", false, "print the curve bounds")
	verbose := flag.Bool("v", false, "verbose mode")
	flag.Parse()
	if !*verbose {
		log.SetOutput(io.Discard)
	}
	log.SetFlags(log.Lmicroseconds)

	if len(flag.Args()) != 0 {
		return fmt.Errorf("unexpected argument: %s", flag.Args())
	}

	var t mobir.Transport
	if *fake {
		t = mobirtest.New()
	} else {
		c, err := usb.Open()
		if err != nil {
			return err
		}
		t = c
	}
	defer t.Close()
	p := mobir.NewProtocol(t)
	if err := p.SetStream(false); err != nil {
		return err
	}
	cal, err := mobir.LoadCalibration(p, mobir.Width, mobir.Height, mobir.RefRows)
	if err != nil {
		return err
	}
	fmt.Printf("Serial:      %s\n", cal.Serial)
	fmt.Printf("ModuleType:  %d\n", cal.ModuleType)
	fmt.Printf("Buckets:     %d\n", cal.Buckets())
	for i, th := range cal.Thresholds() {
		fmt.Printf("Bucket %-2d    from %s\n", i, mobir.CentiC(th))
		if *curves {
			c := cal.CurrentCurve(i)
			fmt.Printf("  Curve      %d - %d\n", c[0], c[len(c)-1])
		}
	}
	if *shutter {
		sh := mobir.NewShutter(p, mobir.NewState(cal))
		sh.OnDone(func(nucRan bool) {
			fmt.Printf("Shutter:     done, NUC %t\n", nucRan)
		})
		return sh.Run()
	}
	return nil
}

func main() {
	if err := mainImpl(); err != nil {
		fmt.Fprintf(os.Stderr, "\nmobir-query: %s.\n", err)
		os.Exit(1)
	}
}
