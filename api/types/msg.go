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

	"github.com/gofrs/uuid/v5"
)

// Envelope wraps one produced frame document together with its sequence
// number and capture timestamp. Envelopes are never mutated after creation.
type Envelope struct {
	// Id is unique per envelope
	Id string `json:"id"`
	// Sequence increments once per accepted raw frame and resets to 0 only
	// on an explicit lifecycle reset
	Sequence uint64 `json:"sequence"`
	// Ts is the capture timestamp in unix milliseconds
	Ts int64 `json:"ts"`
	// Frame is nil for the distinguished empty envelope
	Frame *Frame `json:"frame,omitempty"`
}

// NewEnvelope creates an envelope with a generated id.
func NewEnvelope(sequence uint64, ts int64, frame *Frame) Envelope {
	if ts <= 0 {
		ts = time.Now().UnixMilli()
	}
	uuId, _ := uuid.NewV4()
	return Envelope{
		Id:       uuId.String(),
		Sequence: sequence,
		Ts:       ts,
		Frame:    frame,
	}
}

// EmptyEnvelope creates the distinguished "no data" envelope emitted on a
// source lifecycle reset.
func EmptyEnvelope() Envelope {
	return NewEnvelope(0, time.Now().UnixMilli(), nil)
}

// Empty reports whether the envelope carries no document.
func (e *Envelope) Empty() bool {
	return e.Frame == nil
}
