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

package replay

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeCapture(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "capture.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestPlayerReplaysRows(t *testing.T) {
	path := writeCapture(t, "1,2,3\n4,5,6\n")
	p := NewPlayer(Config{File: path, IntervalMs: 10}, nil)

	frames := make(chan string, 4)
	states := make(chan bool, 4)
	p.OnFrame(func(data []byte) { frames <- string(data) })
	p.OnStateChange(func(active bool) { states <- active })

	require.NoError(t, p.Start())
	assert.True(t, <-states)
	assert.True(t, p.Active())

	assert.Equal(t, "1,2,3", receive(t, frames))
	assert.Equal(t, "4,5,6", receive(t, frames))

	// playback finished: player goes inactive on its own
	select {
	case active := <-states:
		assert.False(t, active)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for replay end")
	}
	assert.False(t, p.Active())
}

func TestPlayerSeparator(t *testing.T) {
	path := writeCapture(t, "a,b\n")
	p := NewPlayer(Config{File: path, IntervalMs: 1, Separator: ";"}, nil)

	frames := make(chan string, 1)
	p.OnFrame(func(data []byte) { frames <- string(data) })
	require.NoError(t, p.Start())
	assert.Equal(t, "a;b", receive(t, frames))
}

func TestPlayerStartWith(t *testing.T) {
	other := writeCapture(t, "x,y\n")
	p := NewPlayer(Config{File: "/nonexistent/capture.csv", IntervalMs: 1}, nil)

	frames := make(chan string, 1)
	p.OnFrame(func(data []byte) { frames <- string(data) })

	require.NoError(t, p.StartWith(map[string]interface{}{
		"file":      other,
		"separator": "|",
	}))
	assert.Equal(t, "x|y", receive(t, frames))

	// settings that do not decode are rejected
	assert.Error(t, p.StartWith(map[string]interface{}{"intervalMs": "soon"}))
}

// Overlapping starts launch exactly one playback: the active flag is
// claimed under the lock, so only the first caller transitions it.
func TestPlayerConcurrentStart(t *testing.T) {
	path := writeCapture(t, "1\n2\n3\n")
	p := NewPlayer(Config{File: path, IntervalMs: 3600000}, nil)
	defer p.Stop()

	states := make(chan bool, 16)
	p.OnStateChange(func(active bool) { states <- active })

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, p.Start())
		}()
	}
	wg.Wait()

	assert.True(t, p.Active())
	assert.True(t, <-states)
	select {
	case s := <-states:
		t.Fatalf("unexpected extra state change: %v", s)
	default:
	}
}

func TestPlayerStop(t *testing.T) {
	path := writeCapture(t, "1\n2\n3\n4\n5\n")
	p := NewPlayer(Config{File: path, IntervalMs: 3600000}, nil)

	require.NoError(t, p.Start())
	assert.True(t, p.Active())
	p.Stop()
	assert.False(t, p.Active())
}

func TestPlayerMissingFile(t *testing.T) {
	p := NewPlayer(Config{File: "/nonexistent/capture.csv"}, nil)
	assert.Error(t, p.Start())
	assert.False(t, p.Active())
}

func TestPlayerBadSchedule(t *testing.T) {
	p := NewPlayer(Config{File: "capture.csv", Schedule: "not a cron expression"}, nil)
	assert.Error(t, p.StartSchedule())

	p = NewPlayer(Config{File: "capture.csv"}, nil)
	assert.NoError(t, p.StartSchedule())
}

func receive(t *testing.T, ch chan string) string {
	t.Helper()
	select {
	case s := <-ch:
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for frame")
		return ""
	}
}
