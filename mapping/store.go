/*
 * Copyright 2024 The Framepipe Authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package mapping owns the field-mapping template document and the
// placeholder substitution applied to it per frame.
package mapping

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"sync/atomic"

	"github.com/framepipe/framepipe/api/types"
	"github.com/fsnotify/fsnotify"
)

// markerRe matches positional placeholders %1..%n.
var markerRe = regexp.MustCompile(`%\d+`)

// snapshot is the immutable unit readers observe. Replacing the template
// swaps the whole snapshot, never part of it.
type snapshot struct {
	path string
	text string
}

// Store owns the optional mapping template. Load replaces the document
// atomically; in-flight frames keep the snapshot captured at dispatch time.
type Store struct {
	logger  types.Logger
	current atomic.Value // snapshot

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewStore creates an empty store.
func NewStore(logger types.Logger) *Store {
	s := &Store{logger: types.NewLogger(logger)}
	s.current.Store(snapshot{})
	return s
}

// Load reads, validates and installs the template at path. On any failure
// the store is cleared (fail-closed) and the error is returned: a bad
// template leaves the system in Templated-mode-with-no-template, which
// drops frames until a valid template is loaded.
func (s *Store) Load(path string) error {
	if path == "" {
		return fmt.Errorf("load template: empty path")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		s.Clear()
		return fmt.Errorf("load template %s: %w", path, err)
	}
	if err := validate(data); err != nil {
		s.Clear()
		return fmt.Errorf("load template %s: %w", path, err)
	}
	s.current.Store(snapshot{path: path, text: string(data)})
	return nil
}

// validate checks that the template is a well-formed JSON object. Positional
// markers are masked with a stub value first, so placeholders may also occupy
// non-string slots in the template; whether the substituted document conforms
// to the frame shape is only known per frame, at parse time.
func validate(data []byte) error {
	masked := markerRe.ReplaceAll(data, []byte("0"))
	var doc map[string]interface{}
	if err := json.Unmarshal(masked, &doc); err != nil {
		return fmt.Errorf("malformed template: %w", err)
	}
	return nil
}

// Clear drops the current template and path reference.
func (s *Store) Clear() {
	s.current.Store(snapshot{})
}

// Snapshot returns the current template text, or "" if none is loaded.
// The returned text is immutable; it is the document snapshot a processing
// task keeps for its whole lifetime.
func (s *Store) Snapshot() string {
	return s.current.Load().(snapshot).text
}

// Path returns the path of the currently loaded template, or "".
func (s *Store) Path() string {
	return s.current.Load().(snapshot).path
}

// Filename returns the base name of the currently loaded template, or "".
func (s *Store) Filename() string {
	p := s.Path()
	if p == "" {
		return ""
	}
	return filepath.Base(p)
}

// Loaded reports whether a template is currently installed.
func (s *Store) Loaded() bool {
	return s.Snapshot() != ""
}

// Watch reloads the template whenever the loaded file changes on disk.
// A reload that fails clears the store, same as Load.
func (s *Store) Watch() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.watcher != nil {
		return nil
	}
	path := s.Path()
	if path == "" {
		return fmt.Errorf("watch template: no template loaded")
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(path); err != nil {
		_ = watcher.Close()
		return err
	}
	s.watcher = watcher
	s.done = make(chan struct{})
	go s.watchLoop(watcher, path, s.done)
	return nil
}

func (s *Store) watchLoop(watcher *fsnotify.Watcher, path string, done chan struct{}) {
	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Op.Has(fsnotify.Write) || event.Op.Has(fsnotify.Create) {
				if err := s.Load(path); err != nil {
					s.logger.Printf("template reload failed: %s", err)
				}
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			s.logger.Printf("template watcher error: %s", err)
		case <-done:
			return
		}
	}
}

// Close stops the file watcher, if any.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.watcher == nil {
		return nil
	}
	close(s.done)
	err := s.watcher.Close()
	s.watcher = nil
	return err
}
