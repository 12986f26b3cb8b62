// Copyright 2026 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package internal

import (
	"testing"
)

func TestTables(t *testing.T) {
	for _, table := range [][]Field{Fixed, Custom} {
		names := map[string]bool{}
		for _, f := range table {
			if names[f.Name] {
				t.Fatalf("duplicate %s", f.Name)
			}
			names[f.Name] = true
			if f.Offset+f.Size > HeaderSize {
				t.Fatalf("%s overflows the header", f.Name)
			}
			if (f.Kind == Bits) != (f.Mask != 0) {
				t.Fatalf("%s: mask %#x for kind %d", f.Name, f.Mask, f.Kind)
			}
		}
	}
}

func TestBitsShareWord(t *testing.T) {
	b := make([]byte, HeaderSize)
	dist := Lookup(Custom, "distance")
	env := Lookup(Custom, "env_temp")
	dist.Put(b, 42)
	env.Put(b, 300)
	if v := dist.Int(b); v != 42 {
		t.Fatal(v)
	}
	if v := env.Int(b); v != 300 {
		t.Fatal(v)
	}
	// Overwriting one must not touch the other.
	dist.Put(b, 63)
	if v := env.Int(b); v != 300 {
		t.Fatal(v)
	}
	if b[0x66] != 0x3F|(300<<6)&0xFF || b[0x67] != byte(300>>2) {
		t.Fatalf("%#x %#x", b[0x66], b[0x67])
	}
}

func TestSigned(t *testing.T) {
	b := make([]byte, HeaderSize)
	f := Lookup(Custom, "k3")
	f.Put(b, -1234)
	if v := f.Int(b); v != -1234 {
		t.Fatal(v)
	}
	if b[0x98] != 0x2E || b[0x99] != 0xFB {
		t.Fatalf("%#x %#x", b[0x98], b[0x99])
	}
	u := Lookup(Custom, "kf")
	u.Put(b, 60000)
	if v := u.Int(b); v != 60000 {
		t.Fatal(v)
	}
}

func TestBool(t *testing.T) {
	b := make([]byte, HeaderSize)
	f := Lookup(Fixed, "is_shuttering")
	if f.Int(b) != 0 {
		t.Fatal("expected false")
	}
	b[0x19] = 0x80
	if f.Int(b) != 1 {
		t.Fatal("any non-zero value is true")
	}
}

func TestASCII(t *testing.T) {
	b := make([]byte, HeaderSize)
	f := Lookup(Fixed, "device_name")
	f.PutString(b, "MobirAir-Long")
	if s := f.String(b); s != "MobirAir" {
		t.Fatal(s)
	}
	f.PutString(b, "T2")
	if s := f.String(b); s != "T2" {
		t.Fatal(s)
	}
}

func TestLookupPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic")
		}
	}()
	Lookup(Fixed, "nope")
}

func TestIntOnASCIIPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic")
		}
	}()
	Lookup(Fixed, "device_name").Int(make([]byte, HeaderSize))
}
