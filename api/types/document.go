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
	"encoding/json"
	"fmt"
)

// Frame is the structured document produced from one raw frame.
// Group and dataset order is preserved exactly as parsed.
type Frame struct {
	Title  string  `json:"title,omitempty"`
	Groups []Group `json:"groups"`
}

// Group is an ordered collection of datasets shown together.
type Group struct {
	Title    string    `json:"title,omitempty"`
	Widget   string    `json:"widget,omitempty"`
	Datasets []Dataset `json:"datasets"`
}

// Dataset is a single display value. Value holds either a literal or the
// textual result of an evaluated expression.
type Dataset struct {
	Title  string `json:"title,omitempty"`
	Value  string `json:"value"`
	Units  string `json:"units,omitempty"`
	Widget string `json:"widget,omitempty"`
	Graph  bool   `json:"graph,omitempty"`
}

// ParseFrame parses data as a frame document. The document must be a JSON
// object; anything else is a parse error.
func ParseFrame(data []byte) (*Frame, error) {
	var frame Frame
	if err := json.Unmarshal(data, &frame); err != nil {
		return nil, fmt.Errorf("parse frame document: %w", err)
	}
	return &frame, nil
}
