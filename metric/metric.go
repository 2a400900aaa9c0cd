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

// Package metric makes the pipeline's silent per-frame and per-dataset
// degrades observable without changing their never-fatal semantics.
package metric

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Drop reasons.
const (
	ReasonReplayActive = "replay_active"
	ReasonEmptyFrame   = "empty_frame"
	ReasonNoTemplate   = "no_template"
	ReasonParseError   = "parse_error"
	ReasonPoolFull     = "pool_full"
)

// Metrics holds the pipeline counters. A nil *Metrics is valid and counts
// nothing.
type Metrics struct {
	framesAccepted     prometheus.Counter
	framesDropped      *prometheus.CounterVec
	evalErrors         prometheus.Counter
	envelopesDelivered prometheus.Counter
	resets             prometheus.Counter
}

// New creates and registers the pipeline counters.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		framesAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "framepipe_frames_accepted_total",
			Help: "Raw frames accepted by the dispatch controller.",
		}),
		framesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "framepipe_frames_dropped_total",
			Help: "Raw frames that produced no envelope, by reason.",
		}, []string{"reason"}),
		evalErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "framepipe_eval_errors_total",
			Help: "Dataset expressions that failed and kept their original value.",
		}),
		envelopesDelivered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "framepipe_envelopes_delivered_total",
			Help: "Envelopes forwarded to downstream consumers.",
		}),
		resets: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "framepipe_resets_total",
			Help: "Lifecycle resets of the frame sequencer.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.framesAccepted, m.framesDropped, m.evalErrors,
			m.envelopesDelivered, m.resets)
	}
	return m
}

func (m *Metrics) FrameAccepted() {
	if m != nil {
		m.framesAccepted.Inc()
	}
}

func (m *Metrics) FrameDropped(reason string) {
	if m != nil {
		m.framesDropped.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) EvalErrors(n int) {
	if m != nil && n > 0 {
		m.evalErrors.Add(float64(n))
	}
}

func (m *Metrics) EnvelopeDelivered() {
	if m != nil {
		m.envelopesDelivered.Inc()
	}
}

func (m *Metrics) Reset() {
	if m != nil {
		m.resets.Inc()
	}
}
