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

// Package transport acquires raw byte frames from a network data source.
// It owns frame delimiting and the field separator used by Templated mode.
package transport

import (
	"bufio"
	"bytes"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/framepipe/framepipe/api/types"
	"golang.org/x/net/proxy"
)

// Config for the net source.
type Config struct {
	// Protocol is tcp or udp, defaulting to tcp
	Protocol string `yaml:"protocol"`
	// Server is the device address, host:port
	Server string `yaml:"server"`
	// Proxy is an optional socks5 proxy address for tcp connections
	Proxy string `yaml:"proxy"`
	// FrameEnd is the byte sequence terminating one frame, defaulting to "\n"
	FrameEnd string `yaml:"frameEnd"`
	// Separator splits one frame into scalar fields, defaulting to ","
	Separator string `yaml:"separator"`
	// ReadTimeout in seconds; 0 means no timeout
	ReadTimeout int `yaml:"readTimeout"`
}

// NetSource dials the device and delivers one frame at a time. It is the
// single producer toward the dispatch controller.
type NetSource struct {
	config Config
	logger types.Logger

	connected atomic.Bool

	mu       sync.Mutex
	conn     net.Conn
	done     chan struct{}
	onFrame  func([]byte)
	onState  func(connected bool)
}

// NewNetSource creates a net source with defaults applied.
func NewNetSource(config Config, logger types.Logger) *NetSource {
	if config.Protocol == "" {
		config.Protocol = "tcp"
	}
	if config.FrameEnd == "" {
		config.FrameEnd = "\n"
	}
	if config.Separator == "" {
		config.Separator = ","
	}
	return &NetSource{
		config: config,
		logger: types.NewLogger(logger),
	}
}

// OnFrame registers the frame consumer. Must be set before Start.
func (s *NetSource) OnFrame(fn func([]byte)) {
	s.mu.Lock()
	s.onFrame = fn
	s.mu.Unlock()
}

// OnStateChange registers the connectivity listener used by the lifecycle
// coordinator.
func (s *NetSource) OnStateChange(fn func(connected bool)) {
	s.mu.Lock()
	s.onState = fn
	s.mu.Unlock()
}

// Separator returns the configured field separator.
func (s *NetSource) Separator() string {
	return s.config.Separator
}

// Active reports whether the source is connected.
func (s *NetSource) Active() bool {
	return s.connected.Load()
}

// Start dials the device and begins delivering frames.
func (s *NetSource) Start() error {
	conn, err := s.dial()
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.conn = conn
	s.done = make(chan struct{})
	done := s.done
	s.mu.Unlock()

	s.setConnected(true)
	go s.readLoop(conn, done)
	return nil
}

func (s *NetSource) dial() (net.Conn, error) {
	if s.config.Server == "" {
		return nil, fmt.Errorf("net source: no server configured")
	}
	if s.config.Proxy != "" && s.config.Protocol == "tcp" {
		dialer, err := proxy.SOCKS5("tcp", s.config.Proxy, nil, proxy.Direct)
		if err != nil {
			return nil, fmt.Errorf("net source: proxy %s: %w", s.config.Proxy, err)
		}
		return dialer.Dial(s.config.Protocol, s.config.Server)
	}
	return net.Dial(s.config.Protocol, s.config.Server)
}

func (s *NetSource) readLoop(conn net.Conn, done chan struct{}) {
	scanner := bufio.NewScanner(conn)
	scanner.Split(splitFrames([]byte(s.config.FrameEnd)))
	for {
		if s.config.ReadTimeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(time.Duration(s.config.ReadTimeout) * time.Second))
		}
		if !scanner.Scan() {
			break
		}
		frame := append([]byte(nil), scanner.Bytes()...)

		s.mu.Lock()
		onFrame := s.onFrame
		s.mu.Unlock()
		if onFrame != nil {
			onFrame(frame)
		}

		select {
		case <-done:
			return
		default:
		}
	}
	if err := scanner.Err(); err != nil {
		s.logger.Printf("net source: read: %s", err)
	}
	s.setConnected(false)
}

// Close disconnects from the device.
func (s *NetSource) Close() error {
	s.mu.Lock()
	conn := s.conn
	done := s.done
	s.conn = nil
	s.done = nil
	s.mu.Unlock()

	if done != nil {
		close(done)
	}
	var err error
	if conn != nil {
		err = conn.Close()
	}
	s.setConnected(false)
	return err
}

func (s *NetSource) setConnected(connected bool) {
	if s.connected.Swap(connected) == connected {
		return
	}
	s.mu.Lock()
	onState := s.onState
	s.mu.Unlock()
	if onState != nil {
		onState(connected)
	}
}

// splitFrames is a bufio.SplitFunc delimiting frames by end. The delimiter
// is not part of the delivered frame. A trailing partial frame at EOF is
// delivered as-is.
func splitFrames(end []byte) bufio.SplitFunc {
	return func(data []byte, atEOF bool) (advance int, token []byte, err error) {
		if atEOF && len(data) == 0 {
			return 0, nil, nil
		}
		if i := bytes.Index(data, end); i >= 0 {
			return i + len(end), data[:i], nil
		}
		if atEOF {
			return len(data), data, nil
		}
		return 0, nil, nil
	}
}
