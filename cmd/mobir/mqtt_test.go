// Copyright 2026 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package main

import (
	"encoding/json"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/go-cmp/cmp"
)

func TestNewPublisherTimeout(t *testing.T) {
	// A broker that accepts the TCP connection and never answers.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		var conns []net.Conn
		defer func() {
			for _, c := range conns {
				c.Close()
			}
		}()
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			conns = append(conns, c)
		}
	}()
	defer func() {
		ln.Close()
		wg.Wait()
	}()

	old := connectTimeout
	connectTimeout = 100 * time.Millisecond
	defer func() { connectTimeout = old }()
	p, err := NewPublisher(&MQTTConfig{Broker: "tcp://" + ln.Addr().String(), Topic: "mobir"})
	if err == nil {
		p.Close()
		t.Fatal("expected failure")
	}
	if !strings.Contains(err.Error(), "timed out") {
		t.Fatal(err)
	}
}

func TestPublisherSend(t *testing.T) {
	c := &fakeClient{}
	p := &Publisher{client: c, topic: "mobir/frames", interval: time.Second}
	start := testFrame().Metadata.Captured
	for i, d := range []time.Duration{0, 500 * time.Millisecond, time.Second, 1500 * time.Millisecond, 2500 * time.Millisecond} {
		f := testFrame()
		f.Metadata.FrameCount = uint32(i)
		f.Metadata.Captured = start.Add(d)
		p.Send(f)
	}
	if p.Sent() != 3 {
		t.Fatal(p.Sent())
	}
	var got []uint32
	for _, m := range c.published() {
		if m.topic != "mobir/frames" {
			t.Fatal(m.topic)
		}
		var s summary
		if err := json.Unmarshal(m.payload, &s); err != nil {
			t.Fatal(err)
		}
		got = append(got, s.Frame)
	}
	if diff := cmp.Diff([]uint32{0, 2, 4}, got); diff != "" {
		t.Fatal(diff)
	}
}

//

type message struct {
	topic   string
	payload []byte
}

// fakeClient records the published messages. Other methods are not
// implemented.
type fakeClient struct {
	mqtt.Client

	mu   sync.Mutex
	msgs []message
}

func (f *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, message{topic, payload.([]byte)})
	return nil
}

func (f *fakeClient) published() []message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]message(nil), f.msgs...)
}
