// Copyright 2026 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// mobir streams calibrated thermal video from a MobirAir camera to a V4L2
// loopback device, a web page and an MQTT broker.
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"runtime/pprof"
	"sync/atomic"
	"time"

	"github.com/maruel/go-mobir/loopback"
	"github.com/maruel/go-mobir/mobir"
	"github.com/maruel/go-mobir/mobir/usb"
	"github.com/maruel/go-mobir/mobirtest"
	"github.com/maruel/interrupt"
)

func mainImpl() error {
	configPath := flag.String("config", defaultConfigPath(), "YAML config file")
	cpuprofile := flag.String("cpuprofile", "", "dump CPU profile in file")
	fake := flag.Bool("fake", false, "use a simulated camera")
	verbose := flag.Bool("v", false, "verbose mode")
	writeConfig := flag.Bool("writeConfig", false, "write the config file with the current values and exit")
	flag.Parse()

	if len(flag.Args()) != 0 {
		return fmt.Errorf("unexpected argument: %s", flag.Args())
	}
	if !*verbose {
		log.SetOutput(io.Discard)
	}
	log.SetFlags(log.Lmicroseconds)

	cfg, err := LoadConfig(*configPath)
	if err != nil {
		return err
	}
	if *writeConfig {
		return cfg.Save(*configPath)
	}

	if *cpuprofile != "" {
		f, err := os.Create(*cpuprofile)
		if err != nil {
			return err
		}
		pprof.StartCPUProfile(f)
		defer pprof.StopCPUProfile()
	}

	interrupt.HandleCtrlC()

	var t mobir.Transport
	if *fake || cfg.Device.Fake {
		t = mobirtest.New()
	} else if t, err = usb.Open(); err != nil {
		return err
	}

	var lb *loopback.Device
	if cfg.Loopback.Path != "" {
		if lb, err = loopback.Open(cfg.Loopback.Path, mobir.Width, mobir.Height-mobir.RefRows); err != nil {
			t.Close()
			return err
		}
		defer lb.Close()
	}
	var pub *Publisher
	if cfg.MQTT.Broker != "" {
		if pub, err = NewPublisher(&cfg.MQTT); err != nil {
			t.Close()
			return err
		}
		defer pub.Close()
	}
	var web *WebServer
	var devp atomic.Pointer[mobir.Dev]
	if cfg.Server.Port != 0 {
		web = StartWebServer(cfg.Server.Port, func() mobir.Stats {
			if d := devp.Load(); d != nil {
				return d.Stats()
			}
			return mobir.Stats{}
		})
	}
	sink := func(f *mobir.Frame) {
		if lb != nil {
			if _, err := lb.Write(f.Bytes()); err != nil {
				log.Printf("loopback: %v", err)
			}
		}
		if web != nil {
			web.AddImg(f)
		}
		if pub != nil {
			pub.Send(f)
		}
	}
	pc := cfg.Pipeline.ToMobir()
	dev, err := mobir.New(t, &mobir.Opts{Sink: sink, Config: &pc})
	if err != nil {
		t.Close()
		return err
	}
	defer dev.Close()
	devp.Store(dev)
	fmt.Printf("Camera %s\n", dev.State.Cal.Serial)
	if err := dev.Start(); err != nil {
		return err
	}
	go func() {
		err := watchConfig(*configPath, func(c *Config) {
			dev.SetConfig(c.Pipeline.ToMobir())
		})
		if err != nil {
			log.Printf("[config] watch: %v", err)
		}
	}()

	for !interrupt.IsSet() {
		select {
		case err := <-dev.Err():
			fmt.Print("\n")
			return err
		case <-interrupt.Channel:
		case <-time.After(time.Second):
		}
		s := dev.Stats()
		fmt.Printf("\r%d frames %d shutter %d desync %d rejected %d timeouts %d shutters %d bucket changes (bucket %d)", s.GoodFrames, s.ShutterFrames, s.DesyncFrames, s.RejectedFrames, s.Timeouts, s.Shutters, s.BucketChanges, dev.State.Bucket())
		if pub != nil {
			fmt.Printf(" %d published", pub.Sent())
		}
	}
	fmt.Print("\n")
	return dev.Stop()
}

func main() {
	if err := mainImpl(); err != nil {
		fmt.Fprintf(os.Stderr, "\nmobir: %s.\n", err)
		os.Exit(1)
	}
}
