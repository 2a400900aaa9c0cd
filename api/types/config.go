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
	"time"
)

// Config defines the configuration shared by the generator and its
// collaborators.
type Config struct {
	// ScriptMaxExecutionTime bounds a single expression evaluation,
	// defaulting to 2000 milliseconds. An expression that exceeds the bound
	// is interrupted and reported as an evaluation error for its dataset.
	ScriptMaxExecutionTime time.Duration
	// Pool is the worker pool used by offloaded dispatch. If nil, each
	// offloaded frame spawns its own goroutine with no bound on the number
	// of in-flight tasks.
	Pool Pool
	// Logger is the logging interface, defaulting to DefaultLogger().
	Logger Logger
}

// NewConfig creates a new Config with default values and applies the
// provided options.
func NewConfig(opts ...Option) Config {
	c := &Config{
		ScriptMaxExecutionTime: time.Millisecond * 2000,
		Logger:                 DefaultLogger(),
	}
	for _, opt := range opts {
		_ = opt(c)
	}
	return *c
}
