// Copyright 2026 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package main

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/maruel/go-mobir/mobir"
	"gopkg.in/yaml.v3"
)

// Config is the daemon configuration, stored as YAML.
type Config struct {
	Device   DeviceConfig   `yaml:"device"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Loopback LoopbackConfig `yaml:"loopback"`
	Server   ServerConfig   `yaml:"server"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
}

type DeviceConfig struct {
	Fake bool `yaml:"fake"` // Use a simulated camera.
}

// PipelineConfig is reloaded when the file changes.
type PipelineConfig struct {
	DoNUC       bool `yaml:"do_nuc"`
	UseCalib    bool `yaml:"use_calib"`
	Radiometric bool `yaml:"radiometric"`
	AutoShutter bool `yaml:"auto_shutter"`
}

type LoopbackConfig struct {
	Path string `yaml:"path"` // e.g. /dev/video10; empty disables.
}

type ServerConfig struct {
	Port int `yaml:"port"` // 0 disables.
}

type MQTTConfig struct {
	Broker   string        `yaml:"broker"` // e.g. tcp://localhost:1883; empty disables.
	Topic    string        `yaml:"topic"`
	ClientID string        `yaml:"client_id"` // Generated when empty.
	Interval time.Duration `yaml:"interval"`
}

// DefaultConfig returns the configuration used when no file exists.
func DefaultConfig() *Config {
	return &Config{
		Pipeline: PipelineConfig{
			DoNUC:       mobir.DefaultConfig.DoNUC,
			UseCalib:    mobir.DefaultConfig.UseCalib,
			Radiometric: mobir.DefaultConfig.Radiometric,
			AutoShutter: mobir.DefaultConfig.AutoShutter,
		},
		Server: ServerConfig{Port: 8010},
		MQTT: MQTTConfig{
			Topic:    "mobir",
			Interval: time.Second,
		},
	}
}

// LoadConfig reads the config at path. A missing file returns the defaults.
func LoadConfig(path string) (*Config, error) {
	c := DefaultConfig()
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return c, nil
	}
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, err
	}
	return c, nil
}

// Save writes the config to path.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// ToMobir converts to the driver's configuration.
func (p *PipelineConfig) ToMobir() mobir.Config {
	return mobir.Config{
		DoNUC:       p.DoNUC,
		UseCalib:    p.UseCalib,
		Radiometric: p.Radiometric,
		AutoShutter: p.AutoShutter,
	}
}

func defaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "mobir.yaml"
	}
	return filepath.Join(dir, "mobir", "mobir.yaml")
}
