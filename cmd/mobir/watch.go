// Copyright 2026 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package main

import (
	"log"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/maruel/interrupt"
)

// watchConfig calls reload each time the config file at path is written,
// until Ctrl-C.
//
// The directory is watched since editors often replace the file.
func watchConfig(path string, reload func(c *Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()
	if err = watcher.Add(filepath.Dir(path)); err != nil {
		return err
	}
	for {
		select {
		case <-interrupt.Channel:
			return nil
		case err = <-watcher.Errors:
			return err
		case e := <-watcher.Events:
			if filepath.Clean(e.Name) != filepath.Clean(path) || e.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			c, err := LoadConfig(path)
			if err != nil {
				log.Printf("[config] %s: %v", path, err)
				continue
			}
			log.Printf("[config] reloaded %s", path)
			reload(c)
		}
	}
}
