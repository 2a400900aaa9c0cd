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

package engine

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/framepipe/framepipe/api/types"
	"github.com/framepipe/framepipe/mapping"
	"github.com/framepipe/framepipe/utils/pool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// slowEvaluator echoes the expression back, stalling when told to. It lets
// tests make one frame arbitrarily slower than its successors.
type slowEvaluator struct {
	delay time.Duration
}

func (e *slowEvaluator) Evaluate(expression string, vars map[string]interface{}) (string, error) {
	if expression == "slow" {
		time.Sleep(e.delay)
	}
	return expression, nil
}

func (e *slowEvaluator) Destroy() {}

func newOffloadedGenerator(t *testing.T, config types.Config) (*Generator, chan types.Envelope) {
	t.Helper()
	store := mapping.NewStore(nil)
	path := filepath.Join(t.TempDir(), "map.json")
	template := `{"groups":[{"datasets":[{"value":"%1"}]}]}`
	require.NoError(t, os.WriteFile(path, []byte(template), 0o644))
	require.NoError(t, store.Load(path))

	factory := func() (types.Evaluator, error) {
		return &slowEvaluator{delay: 200 * time.Millisecond}, nil
	}
	g := New(config, store, factory)
	g.SetOperationMode(types.Templated)
	g.SetThreadingMode(types.Offloaded)

	out := make(chan types.Envelope, 16)
	g.OnEnvelope(func(env types.Envelope) { out <- env })
	return g, out
}

func receive(t *testing.T, out chan types.Envelope) types.Envelope {
	t.Helper()
	select {
	case env := <-out:
		return env
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for envelope")
		return types.Envelope{}
	}
}

// In Offloaded mode a slow frame does not block its successors: the fast
// second frame overtakes the first, and the sequence numbers expose the
// original acceptance order.
func TestOffloadedOutOfOrderDelivery(t *testing.T) {
	g, out := newOffloadedGenerator(t, types.NewConfig())

	g.OnFrame([]byte("slow"))
	g.OnFrame([]byte("fast"))

	first := receive(t, out)
	second := receive(t, out)

	assert.Equal(t, uint64(2), first.Sequence)
	assert.Equal(t, "fast", first.Frame.Groups[0].Datasets[0].Value)
	assert.Equal(t, uint64(1), second.Sequence)
	assert.Equal(t, "slow", second.Frame.Groups[0].Datasets[0].Value)
}

// Offloaded dispatch through a bounded worker pool delivers every frame.
func TestOffloadedWithWorkerPool(t *testing.T) {
	wp := &pool.WorkerPool{MaxWorkersCount: 16}
	wp.Start()
	defer wp.Release()

	config := types.NewConfig(types.WithPool(wp))
	g, out := newOffloadedGenerator(t, config)

	const n = 8
	seen := make(map[uint64]bool)
	for i := 0; i < n; i++ {
		g.OnFrame([]byte("fast"))
	}
	for i := 0; i < n; i++ {
		env := receive(t, out)
		seen[env.Sequence] = true
	}
	for seq := uint64(1); seq <= n; seq++ {
		assert.True(t, seen[seq], "missing sequence %d", seq)
	}
}

// A reset while an offloaded task is in flight zeroes the counter; the
// stale task may still deliver, but the next accepted frame starts at 1.
func TestResetWithInFlightTask(t *testing.T) {
	g, out := newOffloadedGenerator(t, types.NewConfig())

	g.OnFrame([]byte("slow"))
	g.Reset()

	reset := receive(t, out)
	assert.True(t, reset.Empty())
	assert.Equal(t, uint64(0), g.FrameCount())

	g.OnFrame([]byte("fast"))

	var sequences []uint64
	for i := 0; i < 2; i++ {
		sequences = append(sequences, receive(t, out).Sequence)
	}
	assert.ElementsMatch(t, []uint64{1, 1}, sequences)
}

// Task state is captured at dispatch: a template swap after dispatch does
// not affect the in-flight frame.
func TestTemplateSnapshotAtDispatch(t *testing.T) {
	g, out := newOffloadedGenerator(t, types.NewConfig())

	g.OnFrame([]byte("slow"))
	path := filepath.Join(t.TempDir(), "other.json")
	other := `{"title":"changed","groups":[{"datasets":[{"value":"%1"}]}]}`
	require.NoError(t, os.WriteFile(path, []byte(other), 0o644))
	require.NoError(t, g.Store().Load(path))

	env := receive(t, out)
	assert.Empty(t, env.Frame.Title)
	assert.Equal(t, "slow", env.Frame.Groups[0].Datasets[0].Value)
}
