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

// Package replay plays back recorded captures as frames. While a replay is
// running it is the only active producer; live transport frames are dropped.
package replay

import (
	"encoding/csv"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/framepipe/framepipe/api/types"
	"github.com/framepipe/framepipe/utils/maps"
	"github.com/robfig/cron/v3"
)

// Config for the replay player.
type Config struct {
	// File is a csv capture; each row becomes one frame
	File string `yaml:"file"`
	// IntervalMs is the delay between frames in milliseconds, defaulting
	// to 100
	IntervalMs int `yaml:"intervalMs"`
	// Separator joins a row's fields back into frame text, defaulting to ","
	Separator string `yaml:"separator"`
	// Schedule is an optional cron expression that starts a replay
	// automatically, e.g. "0 * * * *"
	Schedule string `yaml:"schedule"`
}

// Player replays capture rows at a fixed interval.
type Player struct {
	config Config
	logger types.Logger

	active atomic.Bool

	mu      sync.Mutex
	cron    *cron.Cron
	stop    chan struct{}
	onFrame func([]byte)
	onState func(active bool)
}

// NewPlayer creates a player with defaults applied.
func NewPlayer(config Config, logger types.Logger) *Player {
	if config.IntervalMs <= 0 {
		config.IntervalMs = 100
	}
	if config.Separator == "" {
		config.Separator = ","
	}
	return &Player{
		config: config,
		logger: types.NewLogger(logger),
	}
}

// OnFrame registers the frame consumer.
func (p *Player) OnFrame(fn func([]byte)) {
	p.mu.Lock()
	p.onFrame = fn
	p.mu.Unlock()
}

// OnStateChange registers the lifecycle listener; it fires when a replay
// starts and when it finishes or is stopped.
func (p *Player) OnStateChange(fn func(active bool)) {
	p.mu.Lock()
	p.onState = fn
	p.mu.Unlock()
}

// Active reports whether a replay is currently running. The dispatch
// controller drops live frames while this is true.
func (p *Player) Active() bool {
	return p.active.Load()
}

// Start begins replaying the capture file. It returns once the capture is
// read and playback is running.
func (p *Player) Start() error {
	return p.start(p.config)
}

// startOverrides are the per-replay settings accepted by StartWith.
type startOverrides struct {
	File       string
	IntervalMs int
	Separator  string
}

// StartWith starts a replay with settings overriding the configured
// capture. Recognized keys are file, intervalMs and separator; unset keys
// keep their configured values.
func (p *Player) StartWith(settings map[string]interface{}) error {
	var o startOverrides
	if err := maps.Map2Struct(settings, &o); err != nil {
		return err
	}
	conf := p.config
	if o.File != "" {
		conf.File = o.File
	}
	if o.IntervalMs > 0 {
		conf.IntervalMs = o.IntervalMs
	}
	if o.Separator != "" {
		conf.Separator = o.Separator
	}
	return p.start(conf)
}

func (p *Player) start(conf Config) error {
	f, err := os.Open(conf.File)
	if err != nil {
		return err
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return err
	}

	// claim the active flag under the lock so overlapping Start calls
	// cannot both launch a playback goroutine
	p.mu.Lock()
	if p.active.Swap(true) {
		p.mu.Unlock()
		return nil
	}
	p.stop = make(chan struct{})
	stop := p.stop
	onState := p.onState
	p.mu.Unlock()

	if onState != nil {
		onState(true)
	}
	go p.play(rows, conf, stop)
	return nil
}

func (p *Player) play(rows [][]string, conf Config, stop chan struct{}) {
	ticker := time.NewTicker(time.Duration(conf.IntervalMs) * time.Millisecond)
	defer ticker.Stop()
	for _, row := range rows {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}
		frame := strings.Join(row, conf.Separator)

		p.mu.Lock()
		onFrame := p.onFrame
		p.mu.Unlock()
		if onFrame != nil {
			onFrame([]byte(frame))
		}
	}
	p.setActive(false)
}

// StartSchedule arms the configured cron schedule. Each trigger starts a
// replay unless one is already running.
func (p *Player) StartSchedule() error {
	if p.config.Schedule == "" {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cron != nil {
		return nil
	}
	c := cron.New()
	if _, err := c.AddFunc(p.config.Schedule, func() {
		if err := p.Start(); err != nil {
			p.logger.Printf("scheduled replay failed: %s", err)
		}
	}); err != nil {
		return err
	}
	c.Start()
	p.cron = c
	return nil
}

// Stop interrupts a running replay and disarms the schedule.
func (p *Player) Stop() {
	p.mu.Lock()
	if p.stop != nil {
		close(p.stop)
		p.stop = nil
	}
	if p.cron != nil {
		p.cron.Stop()
		p.cron = nil
	}
	p.mu.Unlock()
	p.setActive(false)
}

func (p *Player) setActive(active bool) {
	if p.active.Swap(active) == active {
		return
	}
	p.mu.Lock()
	onState := p.onState
	p.mu.Unlock()
	if onState != nil {
		onState(active)
	}
}
