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

// Package framepipe converts raw telemetry byte frames into structured,
// timestamped frame documents.
//
// A frame arrives from a transport collaborator (network link, replay
// capture or broker subscription) and is either parsed directly as a JSON
// document (Automatic mode) or substituted into a field-mapping template
// and evaluated per dataset (Templated mode). Each accepted frame gets a
// monotonically increasing sequence number and is delivered downstream
// wrapped in an envelope record.
package framepipe

import (
	"github.com/framepipe/framepipe/api/types"
	"github.com/framepipe/framepipe/engine"
	"github.com/framepipe/framepipe/eval"
	"github.com/framepipe/framepipe/mapping"
)

// New assembles a generator with an empty template store and the default
// JavaScript evaluator.
func New(config types.Config, opts ...engine.Option) *engine.Generator {
	store := mapping.NewStore(config.Logger)
	factory, _ := eval.NewFactory(eval.Js, config)
	return engine.New(config, store, factory, opts...)
}
