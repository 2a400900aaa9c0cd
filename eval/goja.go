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

// Package eval hosts the narrow expression evaluators used to compute
// per-dataset display values. An evaluator instance belongs to exactly one
// processing task; instances are never shared across concurrently running
// tasks.
package eval

import (
	"errors"
	"fmt"
	"time"

	"github.com/dop251/goja"
	"github.com/framepipe/framepipe/api/types"
	"github.com/framepipe/framepipe/utils/str"
)

// ErrNoResult is returned when an expression evaluates to no usable value
// (undefined or null). The dataset keeps its original value.
var ErrNoResult = errors.New("expression returned no value")

// JsEvaluator evaluates dataset expressions as JavaScript using goja.
// One VM serves all datasets of one frame; the VM is discarded with the
// evaluator so no state leaks between frames.
type JsEvaluator struct {
	vm               *goja.Runtime
	maxExecutionTime time.Duration
}

// NewJsEvaluator creates a fresh JavaScript evaluator. The configured
// ScriptMaxExecutionTime bounds each evaluation; an expression that does not
// finish in time is interrupted.
func NewJsEvaluator(config types.Config) *JsEvaluator {
	return &JsEvaluator{
		vm:               goja.New(),
		maxExecutionTime: config.ScriptMaxExecutionTime,
	}
}

// Evaluate runs expression and returns its textual result.
func (e *JsEvaluator) Evaluate(expression string, vars map[string]interface{}) (out string, err error) {
	defer func() {
		if caught := recover(); caught != nil {
			err = fmt.Errorf("%v", caught)
		}
	}()

	for k, v := range vars {
		if setErr := e.vm.Set(k, v); setErr != nil {
			return "", setErr
		}
	}

	var timer *time.Timer
	if e.maxExecutionTime > 0 {
		timer = time.AfterFunc(e.maxExecutionTime, func() {
			e.vm.Interrupt("execution timeout")
		})
		defer func() {
			timer.Stop()
			e.vm.ClearInterrupt()
		}()
	}

	res, err := e.vm.RunString(expression)
	if err != nil {
		return "", err
	}
	if res == nil || goja.IsUndefined(res) || goja.IsNull(res) {
		return "", ErrNoResult
	}
	return str.ToString(res.Export()), nil
}

// Destroy releases the VM.
func (e *JsEvaluator) Destroy() {
	e.vm = nil
}
