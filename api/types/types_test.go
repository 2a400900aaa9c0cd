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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOperationMode(t *testing.T) {
	cases := []struct {
		in   string
		want OperationMode
		ok   bool
	}{
		{"automatic", Automatic, true},
		{"auto", Automatic, true},
		{"", Automatic, true},
		{" Templated ", Templated, true},
		{"manual", Templated, true},
		{"projection", Automatic, false},
	}
	for _, c := range cases {
		got, err := ParseOperationMode(c.in)
		if c.ok {
			assert.NoError(t, err, c.in)
			assert.Equal(t, c.want, got, c.in)
		} else {
			assert.Error(t, err, c.in)
		}
	}
	assert.Equal(t, "automatic", Automatic.String())
	assert.Equal(t, "templated", Templated.String())
}

func TestParseThreadingMode(t *testing.T) {
	got, err := ParseThreadingMode("OFFLOADED")
	assert.NoError(t, err)
	assert.Equal(t, Offloaded, got)

	got, err = ParseThreadingMode("")
	assert.NoError(t, err)
	assert.Equal(t, Inline, got)

	_, err = ParseThreadingMode("fibers")
	assert.Error(t, err)

	assert.Equal(t, "inline", Inline.String())
	assert.Equal(t, "offloaded", Offloaded.String())
}

func TestParseFrame(t *testing.T) {
	data := []byte(`{"title":"t","groups":[{"title":"g","widget":"bar","datasets":[{"title":"d","value":"42","units":"V","graph":true}]}]}`)
	frame, err := ParseFrame(data)
	require.NoError(t, err)
	assert.Equal(t, "t", frame.Title)
	require.Len(t, frame.Groups, 1)
	require.Len(t, frame.Groups[0].Datasets, 1)
	ds := frame.Groups[0].Datasets[0]
	assert.Equal(t, "42", ds.Value)
	assert.Equal(t, "V", ds.Units)
	assert.True(t, ds.Graph)

	_, err = ParseFrame([]byte(`{"groups":[`))
	assert.Error(t, err)
}

func TestEnvelope(t *testing.T) {
	ts := time.Now().UnixMilli()
	env := NewEnvelope(7, ts, &Frame{Title: "t"})
	assert.Equal(t, uint64(7), env.Sequence)
	assert.Equal(t, ts, env.Ts)
	assert.NotEmpty(t, env.Id)
	assert.False(t, env.Empty())

	other := NewEnvelope(8, ts, &Frame{})
	assert.NotEqual(t, env.Id, other.Id)

	empty := EmptyEnvelope()
	assert.True(t, empty.Empty())
	assert.Equal(t, uint64(0), empty.Sequence)
	assert.Nil(t, empty.Frame)
}

func TestConfigDefaults(t *testing.T) {
	config := NewConfig()
	assert.Equal(t, int64(2000), config.ScriptMaxExecutionTime.Milliseconds())
	assert.NotNil(t, config.Logger)
	assert.Nil(t, config.Pool)

	config = NewConfig(WithScriptMaxExecutionTime(50 * time.Millisecond))
	assert.Equal(t, 50*time.Millisecond, config.ScriptMaxExecutionTime)
}
