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

// Package engine implements the frame-to-document pipeline: per-frame
// dispatch (inline or offloaded), frame sequencing, and lifecycle resets.
package engine

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/framepipe/framepipe/api/types"
	"github.com/framepipe/framepipe/builder"
	"github.com/framepipe/framepipe/mapping"
	"github.com/framepipe/framepipe/metric"
)

// Option configures a Generator.
type Option func(*Generator)

// WithMetrics attaches pipeline counters.
func WithMetrics(m *metric.Metrics) Option {
	return func(g *Generator) {
		g.metrics = m
	}
}

// WithReplaySource registers the replay collaborator. While it reports
// itself active, incoming frames are dropped entirely.
func WithReplaySource(s types.Source) Option {
	return func(g *Generator) {
		g.replay = s
	}
}

// WithSeparator sets the provider of the field separator owned by the
// transport collaborator. Defaults to ",".
func WithSeparator(fn func() string) Option {
	return func(g *Generator) {
		g.separator = fn
	}
}

// Generator converts raw byte frames into envelope records. It owns the
// operation-mode and threading-mode configuration and the frame counter.
// All collaborators are injected; there is no ambient lookup.
type Generator struct {
	config       types.Config
	store        *mapping.Store
	newEvaluator types.EvaluatorFactory
	metrics      *metric.Metrics
	separator    func() string
	replay       types.Source

	mode       atomic.Int32
	threading  atomic.Int32
	frameCount atomic.Uint64

	mu      sync.RWMutex
	sinks   []func(types.Envelope)
	sources []types.Source
}

// task is one unit of frame processing. Everything it needs is captured at
// dispatch time so concurrent configuration changes cannot affect it.
type task struct {
	data      []byte
	sequence  uint64
	ts        int64
	mode      types.OperationMode
	template  string
	separator string
}

// New creates a Generator. store may be nil when only Automatic mode is
// used; factory may be nil to skip expression evaluation.
func New(config types.Config, store *mapping.Store, factory types.EvaluatorFactory, opts ...Option) *Generator {
	if config.Logger == nil {
		config.Logger = types.DefaultLogger()
	}
	if store == nil {
		store = mapping.NewStore(config.Logger)
	}
	g := &Generator{
		config:       config,
		store:        store,
		newEvaluator: factory,
		separator:    func() string { return "," },
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Store returns the template store owned by the generator graph.
func (g *Generator) Store() *mapping.Store {
	return g.store
}

// OperationMode returns the current operation mode.
func (g *Generator) OperationMode() types.OperationMode {
	return types.OperationMode(g.mode.Load())
}

// SetOperationMode changes the operation mode. It takes effect on the next
// dispatched frame; in-flight tasks keep the mode captured at dispatch time.
func (g *Generator) SetOperationMode(mode types.OperationMode) {
	g.mode.Store(int32(mode))
}

// ThreadingMode returns the current threading mode.
func (g *Generator) ThreadingMode() types.ThreadingMode {
	return types.ThreadingMode(g.threading.Load())
}

// SetThreadingMode changes the threading mode, effective on the next
// dispatched frame.
func (g *Generator) SetThreadingMode(mode types.ThreadingMode) {
	g.threading.Store(int32(mode))
}

// FrameCount returns the number of frames accepted since the last reset.
func (g *Generator) FrameCount() uint64 {
	return g.frameCount.Load()
}

// OnEnvelope registers a delivery sink. Sinks receive envelopes in delivery
// order, which in Offloaded mode is not guaranteed to be sequence order.
func (g *Generator) OnEnvelope(sink func(types.Envelope)) {
	g.mu.Lock()
	g.sinks = append(g.sinks, sink)
	g.mu.Unlock()
}

// AddSource registers a frame producer for the delivery gate: when at least
// one source is registered and none is active, produced envelopes are
// replaced by a reset.
func (g *Generator) AddSource(s types.Source) {
	g.mu.Lock()
	g.sources = append(g.sources, s)
	g.mu.Unlock()
}

// OnFrame accepts one raw frame from the transport collaborator.
// The frame is counted, then processed inline or handed to an isolated
// task depending on the threading mode captured now.
func (g *Generator) OnFrame(data []byte) {
	// source arbitration: replay wins while it is active
	if g.replay != nil && g.replay.Active() {
		g.metrics.FrameDropped(metric.ReasonReplayActive)
		return
	}
	g.accept(data)
}

// OnReplayFrame accepts one frame from the replay collaborator itself.
// The arbitration guard only suppresses live transport frames during
// playback; replayed frames take their place.
func (g *Generator) OnReplayFrame(data []byte) {
	g.accept(data)
}

func (g *Generator) accept(data []byte) {
	if len(data) == 0 {
		g.metrics.FrameDropped(metric.ReasonEmptyFrame)
		return
	}

	sequence := g.frameCount.Add(1)
	g.metrics.FrameAccepted()

	t := task{
		sequence:  sequence,
		ts:        time.Now().UnixMilli(),
		mode:      g.OperationMode(),
		separator: g.separator(),
	}
	if t.mode == types.Templated {
		t.template = g.store.Snapshot()
	}

	if g.ThreadingMode() == types.Offloaded {
		// the task owns a private copy of the frame
		t.data = append([]byte(nil), data...)
		run := func() { g.process(t) }
		if g.config.Pool != nil {
			if err := g.config.Pool.Submit(run); err != nil {
				g.metrics.FrameDropped(metric.ReasonPoolFull)
				g.config.Logger.Printf("offloaded dispatch rejected: %s", err)
			}
		} else {
			go run()
		}
		return
	}

	t.data = data
	g.process(t)
}

// process builds the document for one task and forwards the envelope.
// Build failures drop the frame's output; the counter already advanced.
func (g *Generator) process(t task) {
	var evaluator types.Evaluator
	if g.newEvaluator != nil {
		var err error
		if evaluator, err = g.newEvaluator(); err != nil {
			g.config.Logger.Printf("evaluator init failed: %s", err)
		} else {
			defer evaluator.Destroy()
		}
	}

	result, err := builder.Build(builder.Request{
		Data:      t.data,
		Mode:      t.mode,
		Template:  t.template,
		Separator: t.separator,
		Evaluator: evaluator,
	})
	if err != nil {
		if errors.Is(err, types.ErrNoTemplate) {
			g.metrics.FrameDropped(metric.ReasonNoTemplate)
		} else {
			g.metrics.FrameDropped(metric.ReasonParseError)
		}
		return
	}
	g.metrics.EvalErrors(result.EvalErrors)
	g.deliver(types.NewEnvelope(t.sequence, t.ts, result.Frame))
}

// deliver forwards env to every registered sink. If sources are registered
// and none of them (nor the replay collaborator) is still active, the
// pipeline resets instead: nobody is producing data anymore.
func (g *Generator) deliver(env types.Envelope) {
	g.mu.RLock()
	active := len(g.sources) == 0
	for _, s := range g.sources {
		if s.Active() {
			active = true
			break
		}
	}
	if !active && g.replay != nil && g.replay.Active() {
		active = true
	}
	sinks := append(make([]func(types.Envelope), 0, len(g.sinks)), g.sinks...)
	g.mu.RUnlock()

	if !active {
		g.Reset()
		return
	}
	for _, sink := range sinks {
		sink(env)
	}
	g.metrics.EnvelopeDelivered()
}

// Reset zeroes the frame counter and immediately emits the distinguished
// empty envelope. Offloaded tasks dispatched before the reset are allowed
// to complete and deliver stale envelopes afterwards.
func (g *Generator) Reset() {
	g.frameCount.Store(0)
	g.metrics.Reset()

	g.mu.RLock()
	sinks := append(make([]func(types.Envelope), 0, len(g.sinks)), g.sinks...)
	g.mu.RUnlock()

	env := types.EmptyEnvelope()
	for _, sink := range sinks {
		sink(env)
	}
}
