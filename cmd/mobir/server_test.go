// Copyright 2026 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package main

import (
	"encoding/json"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/maruel/go-mobir/mobir"
	"periph.io/x/periph/conn/physic"
)

func TestWebServerStill(t *testing.T) {
	s := newWebServer()
	rec := httptest.NewRecorder()
	s.still(rec, httptest.NewRequest("GET", "/still.png", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatal(rec.Code)
	}

	s.AddImg(testFrame())
	rec = httptest.NewRecorder()
	s.still(rec, httptest.NewRequest("GET", "/still.png", nil))
	if rec.Code != http.StatusOK {
		t.Fatal(rec.Code)
	}
	img, err := png.Decode(rec.Body)
	if err != nil {
		t.Fatal(err)
	}
	if img.Bounds() != image.Rect(0, 0, 4, 2) {
		t.Fatal(img.Bounds())
	}

	rec = httptest.NewRecorder()
	s.still16(rec, httptest.NewRequest("GET", "/still16.png", nil))
	img, err = png.Decode(rec.Body)
	if err != nil {
		t.Fatal(err)
	}
	g, ok := img.(*image.Gray16)
	if !ok {
		t.Fatalf("%T", img)
	}
	if v := g.Gray16At(3, 1).Y; v != 8007 {
		t.Fatal(v)
	}
}

func TestWebServerNewer(t *testing.T) {
	s := newWebServer()
	add := func(n uint32) {
		f := testFrame()
		f.Metadata.FrameCount = n
		s.AddImg(f)
	}
	counts := func(imgs []*mobir.Frame) []uint32 {
		var out []uint32
		for _, f := range imgs {
			out = append(out, f.Metadata.FrameCount)
		}
		return out
	}
	s.cond.L.Lock()
	defer s.cond.L.Unlock()
	imgs, sent := s.newer(s.lastIndex)
	if len(imgs) != 0 || sent != -1 {
		t.Fatal(len(imgs), sent)
	}

	s.cond.L.Unlock()
	add(1)
	add(2)
	add(3)
	s.cond.L.Lock()
	imgs, sent = s.newer(sent)
	if diff := cmp.Diff([]uint32{1, 2, 3}, counts(imgs)); diff != "" {
		t.Fatal(diff)
	}
	// Each image is returned once.
	if imgs, _ = s.newer(sent); len(imgs) != 0 {
		t.Fatal(counts(imgs))
	}

	// Wrap around the ring.
	s.cond.L.Unlock()
	for i := 0; i < len(s.images)-1; i++ {
		add(uint32(4 + i))
	}
	s.cond.L.Lock()
	imgs, sent = s.newer(sent)
	if len(imgs) != len(s.images)-1 || imgs[0].Metadata.FrameCount != 4 || sent != s.lastIndex {
		t.Fatal(len(imgs), sent)
	}
	for i := 1; i < len(imgs); i++ {
		if imgs[i].Metadata.FrameCount != imgs[i-1].Metadata.FrameCount+1 {
			t.Fatal(counts(imgs))
		}
	}
}

func TestWebServerRoot(t *testing.T) {
	s := newWebServer()
	rec := httptest.NewRecorder()
	s.root(rec, httptest.NewRequest("GET", "/", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "/stream") {
		t.Fatal(rec.Code)
	}
	rec = httptest.NewRecorder()
	s.root(rec, httptest.NewRequest("GET", "/foo", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatal(rec.Code)
	}
}

func TestWebServerStats(t *testing.T) {
	s := newWebServer()
	rec := httptest.NewRecorder()
	s.statsJSON(rec, httptest.NewRequest("GET", "/stats", nil))
	var got mobir.Stats
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if got.GoodFrames != 42 || got.Shutters != 3 {
		t.Fatalf("%+v", got)
	}
}

func TestSummary(t *testing.T) {
	s := newSummary(testFrame())
	if s.Frame != 7 || s.Bucket != 1 || s.FPA != 25 {
		t.Fatalf("%+v", s)
	}
	if s.Min == nil || *s.Min != 20 || *s.Max != 27 || *s.Center != 25.5 {
		t.Fatalf("%v %v %v", s.Min, s.Max, s.Center)
	}
	f := testFrame()
	f.Temps = nil
	if s := newSummary(f); s.Min != nil || s.Center != nil {
		t.Fatalf("%+v", s)
	}
}

//

func newWebServer() *WebServer {
	return &WebServer{
		cond:      *sync.NewCond(&sync.Mutex{}),
		lastIndex: -1,
		stats:     func() mobir.Stats { return mobir.Stats{GoodFrames: 42, Shutters: 3} },
	}
}

func testFrame() *mobir.Frame {
	f := &mobir.Frame{
		Width:  4,
		Height: 2,
		Counts: []uint16{8000, 8001, 8002, 8003, 8004, 8005, 8006, 8007},
		Temps:  []int16{2000, 2100, 2200, 2300, 2400, 2500, 2550, 2700},
		Metadata: mobir.Metadata{
			Captured:       time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
			FrameCount:     7,
			Bucket:         1,
			FPATemperature: physic.ZeroCelsius + 25*physic.Kelvin,
			Min:            2000,
			Max:            2700,
		},
	}
	return f
}
