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

// Package config loads the application configuration file.
package config

import (
	"fmt"
	"os"

	"github.com/framepipe/framepipe/mqtt"
	"github.com/framepipe/framepipe/replay"
	"github.com/framepipe/framepipe/sink"
	"github.com/framepipe/framepipe/transport"
	"gopkg.in/yaml.v3"
)

// Engine settings.
type Engine struct {
	// Mode is automatic or templated
	Mode string `yaml:"mode"`
	// Threading is inline or offloaded
	Threading string `yaml:"threading"`
	// Evaluator is js or expr
	Evaluator string `yaml:"evaluator"`
	// ScriptTimeoutMs bounds one expression evaluation; 0 keeps the default
	ScriptTimeoutMs int `yaml:"scriptTimeoutMs"`
	// MaxWorkers bounds concurrently running offloaded tasks; 0 means
	// unbounded goroutine-per-frame dispatch
	MaxWorkers int `yaml:"maxWorkers"`
}

// Template settings.
type Template struct {
	// Path of the mapping template file loaded at startup
	Path string `yaml:"path"`
	// Watch reloads the template when the file changes
	Watch bool `yaml:"watch"`
}

// Rest settings.
type Rest struct {
	Addr string `yaml:"addr"`
}

// AppConfig is the root of the configuration file. Optional collaborators
// are enabled by their presence.
type AppConfig struct {
	Engine    Engine            `yaml:"engine"`
	Template  Template          `yaml:"template"`
	Transport *transport.Config `yaml:"transport"`
	Replay    *replay.Config    `yaml:"replay"`
	Mqtt      *mqtt.Config      `yaml:"mqtt"`
	Rest      *Rest             `yaml:"rest"`
	Database  *sink.Config      `yaml:"database"`
}

// Load reads and parses the configuration file at path.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	var c AppConfig
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return &c, nil
}
