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

package eval

import (
	"github.com/expr-lang/expr"
	"github.com/framepipe/framepipe/utils/str"
)

// ExprEvaluator evaluates dataset expressions with the expr language.
// Lighter than the JavaScript evaluator; every call compiles and runs the
// expression independently, so there is no state to leak.
type ExprEvaluator struct {
}

// NewExprEvaluator creates an expr-based evaluator.
func NewExprEvaluator() *ExprEvaluator {
	return &ExprEvaluator{}
}

// Evaluate compiles and runs expression against vars and returns its
// textual result.
func (e *ExprEvaluator) Evaluate(expression string, vars map[string]interface{}) (string, error) {
	program, err := expr.Compile(expression, expr.AllowUndefinedVariables())
	if err != nil {
		return "", err
	}
	out, err := expr.Run(program, vars)
	if err != nil {
		return "", err
	}
	if out == nil {
		// undefined variables resolve to nil; keep the original value
		return "", ErrNoResult
	}
	return str.ToString(out), nil
}

// Destroy is a no-op; the evaluator holds no resources.
func (e *ExprEvaluator) Destroy() {
}
