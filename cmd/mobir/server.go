// Copyright 2026 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package main

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image/png"
	"log"
	"net/http"
	"sync"

	"github.com/maruel/go-mobir/gray16"
	"github.com/maruel/go-mobir/mobir"
	"github.com/maruel/interrupt"
	"github.com/maruel/serve-dir/loghttp"
	"golang.org/x/net/websocket"
)

// WebServer serves a live view of the camera.
type WebServer struct {
	cond      sync.Cond
	images    [25 * 4]*mobir.Frame // 4 seconds worth of images.
	lastIndex int                  // Index of the most recent image.
	stats     func() mobir.Stats
}

// AddImg makes img the most recent image.
func (s *WebServer) AddImg(img *mobir.Frame) {
	s.cond.L.Lock()
	defer s.cond.L.Unlock()
	s.lastIndex = (s.lastIndex + 1) % len(s.images)
	s.images[s.lastIndex] = img
	s.cond.Broadcast()
}

// StartWebServer listens on port in the background.
func StartWebServer(port int, stats func() mobir.Stats) *WebServer {
	w := &WebServer{
		cond:      *sync.NewCond(&sync.Mutex{}),
		lastIndex: -1,
		stats:     stats,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/", w.root)
	mux.HandleFunc("/favicon.ico", w.still)
	mux.HandleFunc("/still.png", w.still)
	mux.HandleFunc("/still16.png", w.still16)
	mux.HandleFunc("/stats", w.statsJSON)
	// The websocket needs to hijack the connection so it is not logged.
	top := http.NewServeMux()
	top.Handle("/stream", websocket.Handler(w.stream))
	top.Handle("/", &loghttp.Handler{Handler: mux})
	fmt.Printf("Listening on %d\n", port)
	go func() {
		if err := http.ListenAndServe(fmt.Sprintf(":%d", port), top); err != nil {
			log.Printf("http: %v", err)
		}
	}()
	go func() {
		<-interrupt.Channel
		w.cond.Broadcast()
	}()
	return w
}

func (s *WebServer) root(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.Error(w, "Not Found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/html")
	if _, err := w.Write(read("root.html")); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// last returns the most recent image, if any.
func (s *WebServer) last() *mobir.Frame {
	s.cond.L.Lock()
	defer s.cond.L.Unlock()
	if s.lastIndex == -1 {
		return nil
	}
	return s.images[s.lastIndex]
}

func (s *WebServer) still(w http.ResponseWriter, r *http.Request) {
	img := s.last()
	if img == nil {
		http.Error(w, "No image yet", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate")
	if err := png.Encode(w, gray16.AGCIron(img)); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (s *WebServer) still16(w http.ResponseWriter, r *http.Request) {
	img := s.last()
	if img == nil {
		http.Error(w, "No image yet", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate")
	if err := png.Encode(w, img); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (s *WebServer) statsJSON(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.stats()); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// stream sends all images as false color PNG as WebSocket frames.
//
// Only the images added after the connection are sent.
func (s *WebServer) stream(w *websocket.Conn) {
	log.Printf("websocket from %s", w.Request().RemoteAddr)
	defer w.Close()
	buf := &bytes.Buffer{}
	s.cond.L.Lock()
	defer s.cond.L.Unlock()
	sent := s.lastIndex
	for !interrupt.IsSet() {
		s.cond.Wait()
		var imgs []*mobir.Frame
		imgs, sent = s.newer(sent)
		// Do the actual I/O without the lock.
		s.cond.L.Unlock()
		var err error
		for _, img := range imgs {
			if err = sendFrame(w, buf, img); err != nil {
				break
			}
		}
		s.cond.L.Lock()
		// To break out of the loop, the lock must be held.
		if err != nil {
			log.Printf("websocket err: %s", err)
			return
		}
	}
}

// newer returns the images added after the one at index sent, oldest first,
// and the index of the most recent one.
//
// It must be called with cond.L held.
func (s *WebServer) newer(sent int) ([]*mobir.Frame, int) {
	var out []*mobir.Frame
	for sent != s.lastIndex {
		sent = (sent + 1) % len(s.images)
		out = append(out, s.images[sent])
	}
	return out, sent
}

func sendFrame(w *websocket.Conn, buf *bytes.Buffer, img *mobir.Frame) error {
	defer buf.Reset()
	// Frame I is for Image.
	buf.WriteString("I")
	encoder := base64.NewEncoder(base64.StdEncoding, buf)
	if err := png.Encode(encoder, gray16.AGCIron(img)); err != nil {
		return err
	}
	encoder.Close()
	if _, err := w.Write(buf.Bytes()); err != nil {
		return err
	}
	buf.Reset()
	// Frame M is for Metadata.
	buf.WriteString("M")
	if err := json.NewEncoder(buf).Encode(newSummary(img)); err != nil {
		return err
	}
	_, err := w.Write(buf.Bytes())
	return err
}
