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
	"fmt"

	"github.com/framepipe/framepipe/api/types"
)

// Evaluator kinds selectable in configuration.
const (
	Js   = "js"
	Expr = "expr"
)

// NewFactory returns a factory producing one evaluator per processing task.
func NewFactory(kind string, config types.Config) (types.EvaluatorFactory, error) {
	switch kind {
	case Js, "":
		return func() (types.Evaluator, error) {
			return NewJsEvaluator(config), nil
		}, nil
	case Expr:
		return func() (types.Evaluator, error) {
			return NewExprEvaluator(), nil
		}, nil
	default:
		return nil, fmt.Errorf("unknown evaluator kind: %s", kind)
	}
}
