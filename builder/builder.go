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

// Package builder turns one raw frame into one structured frame document.
package builder

import (
	"github.com/framepipe/framepipe/api/types"
	"github.com/framepipe/framepipe/mapping"
)

// Request carries everything one build needs, captured at dispatch time.
// Mode and Template never change for the lifetime of the request even if
// the generator's configuration is mutated concurrently.
type Request struct {
	// Data is the raw frame bytes
	Data []byte
	// Mode is the operation mode captured at dispatch
	Mode types.OperationMode
	// Template is the mapping template snapshot captured at dispatch;
	// empty means no template is loaded
	Template string
	// Separator splits Templated-mode frames into scalar fields
	Separator string
	// Evaluator computes dataset expression values; owned by this request
	Evaluator types.Evaluator
}

// Result is the outcome of a successful build.
type Result struct {
	Frame *types.Frame
	// EvalErrors counts datasets whose expression failed and kept their
	// original value. Never fatal.
	EvalErrors int
}

// Build produces the frame document for req. A returned error means the
// frame yields no document; the caller still counts the frame.
func Build(req Request) (Result, error) {
	if req.Mode == types.Automatic {
		frame, err := types.ParseFrame(req.Data)
		if err != nil {
			return Result{}, err
		}
		return Result{Frame: frame}, nil
	}

	if req.Template == "" {
		return Result{}, types.ErrNoTemplate
	}

	fields := mapping.Fields(req.Data, req.Separator)
	substituted := mapping.Substitute(req.Template, fields)
	frame, err := types.ParseFrame([]byte(substituted))
	if err != nil {
		return Result{}, err
	}
	evalErrors := evaluate(frame, fields, req.Evaluator)
	return Result{Frame: frame, EvalErrors: evalErrors}, nil
}

// evaluate walks groups then datasets in document order and replaces each
// dataset value with its evaluated result. A failed evaluation leaves the
// dataset's original value unchanged.
func evaluate(frame *types.Frame, fields []string, evaluator types.Evaluator) int {
	if evaluator == nil {
		return 0
	}
	vars := map[string]interface{}{
		types.FieldsKey: fields,
	}
	var failed int
	for gi := range frame.Groups {
		group := &frame.Groups[gi]
		for di := range group.Datasets {
			dataset := &group.Datasets[di]
			result, err := evaluator.Evaluate(dataset.Value, vars)
			if err != nil {
				failed++
				continue
			}
			dataset.Value = result
		}
	}
	return failed
}
