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

package types

import (
	"errors"
	"fmt"
	"strings"
)

// OperationMode selects how an incoming frame is turned into a document.
type OperationMode int

const (
	// Automatic frames already carry a ready-to-parse JSON document.
	Automatic OperationMode = iota
	// Templated frames carry separator-delimited scalar values that are
	// substituted into the loaded mapping template before parsing.
	Templated
)

func (m OperationMode) String() string {
	if m == Templated {
		return "templated"
	}
	return "automatic"
}

// ParseOperationMode parses the textual form used in configuration files
// and the REST API.
func ParseOperationMode(s string) (OperationMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "automatic", "auto", "":
		return Automatic, nil
	case "templated", "manual":
		return Templated, nil
	default:
		return Automatic, fmt.Errorf("unknown operation mode: %s", s)
	}
}

// ThreadingMode selects where frame processing runs.
type ThreadingMode int

const (
	// Inline processes the frame synchronously in the caller's goroutine.
	Inline ThreadingMode = iota
	// Offloaded processes each frame in its own independently scheduled
	// task. Completion order across frames is not guaranteed.
	Offloaded
)

func (m ThreadingMode) String() string {
	if m == Offloaded {
		return "offloaded"
	}
	return "inline"
}

// ParseThreadingMode parses the textual form used in configuration files
// and the REST API.
func ParseThreadingMode(s string) (ThreadingMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "inline", "":
		return Inline, nil
	case "offloaded", "threaded":
		return Offloaded, nil
	default:
		return Inline, fmt.Errorf("unknown threading mode: %s", s)
	}
}

// FieldsKey is the variable name under which the frame's substituted field
// values are exposed to dataset expressions.
const FieldsKey = "fields"

// Evaluator computes the display value of a single dataset expression.
// Implementations keep no state between calls; vars carries the read-only
// values visible to the expression (see FieldsKey).
// Instances must not be shared across concurrently running tasks.
type Evaluator interface {
	Evaluate(expression string, vars map[string]interface{}) (string, error)
	// Destroy releases the evaluator after the owning task completes.
	Destroy()
}

// EvaluatorFactory builds a fresh Evaluator for one processing task.
type EvaluatorFactory func() (Evaluator, error)

// Pool is the worker pool contract used by offloaded dispatch.
// It is compatible with ants-style coroutine pools.
type Pool interface {
	//Submit submits a task to the pool, returns an error if the pool is full
	Submit(task func()) error
	//Release releases the pool
	Release()
}

// Source is a frame producer registered with the generator. Its Active
// state gates envelope delivery: when no registered source is active the
// generator resets instead of forwarding.
type Source interface {
	Active() bool
}

var (
	// ErrNoTemplate is returned in Templated mode when no mapping template
	// is loaded. The frame is counted but produces no envelope.
	ErrNoTemplate = errors.New("no mapping template loaded")
	// ErrEmptyFrame is returned for zero-length frames.
	ErrEmptyFrame = errors.New("empty frame")
)
