// Copyright 2026 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package main

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/maruel/go-mobir/mobir"
	"periph.io/x/periph/conn/physic"
)

// summary is the per frame telemetry sent over MQTT and the websocket.
type summary struct {
	Frame   uint32    `json:"frame"`
	Time    time.Time `json:"time"`
	Bucket  int       `json:"bucket"`
	FPA     float64   `json:"fpa_c"`
	Lens    float64   `json:"lens_c"`
	Shutter float64   `json:"shutter_c"`
	Min     *float64  `json:"min_c,omitempty"`
	Max     *float64  `json:"max_c,omitempty"`
	Center  *float64  `json:"center_c,omitempty"`
}

func newSummary(f *mobir.Frame) *summary {
	m := &f.Metadata
	s := &summary{
		Frame:   m.FrameCount,
		Time:    m.Captured,
		Bucket:  m.Bucket,
		FPA:     toC(m.FPATemperature),
		Lens:    toC(m.LensTemp),
		Shutter: toC(m.ShutterTemp),
	}
	if f.Temps != nil {
		lo := float64(m.Min) / 100
		hi := float64(m.Max) / 100
		c := float64(f.TempAt(f.Width/2, f.Height/2)) / 100
		s.Min, s.Max, s.Center = &lo, &hi, &c
	}
	return s
}

func toC(t physic.Temperature) float64 {
	return float64(t-physic.ZeroCelsius) / float64(physic.Kelvin)
}

// connectTimeout is the time allowed to the broker to accept the connection.
var connectTimeout = 10 * time.Second

// Publisher sends frame summaries to an MQTT broker.
type Publisher struct {
	client   mqtt.Client
	topic    string
	interval time.Duration

	mu   sync.Mutex
	last time.Time
	sent int
}

// NewPublisher connects to the broker.
func NewPublisher(c *MQTTConfig) (*Publisher, error) {
	id := c.ClientID
	if id == "" {
		id = "mobir-" + uuid.NewString()
	}
	opts := mqtt.NewClientOptions().AddBroker(c.Broker).SetClientID(id)
	opts.SetKeepAlive(30 * time.Second)
	opts.SetPingTimeout(5 * time.Second)
	opts.SetAutoReconnect(true)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Printf("[mqtt] connection lost: %v", err)
	})
	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		client.Disconnect(0)
		return nil, fmt.Errorf("mqtt %s: connection timed out after %s", c.Broker, connectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt %s: %w", c.Broker, err)
	}
	log.Printf("[mqtt] connected to %s as %s", c.Broker, id)
	return &Publisher{client: client, topic: c.Topic, interval: c.Interval}, nil
}

// Send publishes a summary of f, at most once per interval.
func (p *Publisher) Send(f *mobir.Frame) {
	p.mu.Lock()
	now := f.Metadata.Captured
	if now.Sub(p.last) < p.interval {
		p.mu.Unlock()
		return
	}
	p.last = now
	p.sent++
	p.mu.Unlock()
	data, err := json.Marshal(newSummary(f))
	if err != nil {
		log.Printf("[mqtt] %v", err)
		return
	}
	// Do not wait for the token; this is called from the ingestion loop.
	p.client.Publish(p.topic, 0, false, data)
}

// Sent returns the number of summaries published.
func (p *Publisher) Sent() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sent
}

// Close disconnects from the broker.
func (p *Publisher) Close() {
	p.client.Disconnect(250)
}
