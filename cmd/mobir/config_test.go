// Copyright 2026 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/maruel/go-mobir/mobir"
)

func TestLoadConfigMissing(t *testing.T) {
	c, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(DefaultConfig(), c); diff != "" {
		t.Fatal(diff)
	}
	if diff := cmp.Diff(mobir.DefaultConfig, c.Pipeline.ToMobir()); diff != "" {
		t.Fatal(diff)
	}
}

func TestConfigRoundTrip(t *testing.T) {
	p := filepath.Join(t.TempDir(), "sub", "mobir.yaml")
	c := DefaultConfig()
	c.Device.Fake = true
	c.Pipeline.AutoShutter = false
	c.Loopback.Path = "/dev/video10"
	c.MQTT.Broker = "tcp://localhost:1883"
	c.MQTT.Interval = 2500 * time.Millisecond
	if err := c.Save(p); err != nil {
		t.Fatal(err)
	}
	got, err := LoadConfig(p)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(c, got); diff != "" {
		t.Fatal(diff)
	}
}

func TestLoadConfigPartial(t *testing.T) {
	p := filepath.Join(t.TempDir(), "mobir.yaml")
	data := "pipeline:\n  radiometric: false\nmqtt:\n  interval: 5s\n"
	if err := os.WriteFile(p, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}
	c, err := LoadConfig(p)
	if err != nil {
		t.Fatal(err)
	}
	want := DefaultConfig()
	want.Pipeline.Radiometric = false
	want.MQTT.Interval = 5 * time.Second
	if diff := cmp.Diff(want, c); diff != "" {
		t.Fatal(diff)
	}
}

func TestLoadConfigInvalid(t *testing.T) {
	p := filepath.Join(t.TempDir(), "mobir.yaml")
	if err := os.WriteFile(p, []byte("server: [1, 2"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadConfig(p); err == nil {
		t.Fatal("expected failure")
	}
}
