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

package mapping

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTemplate(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "map.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestStoreLoad(t *testing.T) {
	store := NewStore(nil)
	assert.False(t, store.Loaded())
	assert.Equal(t, "", store.Snapshot())

	content := `{"groups":[{"datasets":[{"value":"%1"}]}]}`
	path := writeTemplate(t, content)
	require.NoError(t, store.Load(path))
	assert.True(t, store.Loaded())
	assert.Equal(t, content, store.Snapshot())
	assert.Equal(t, path, store.Path())
	assert.Equal(t, "map.json", store.Filename())
}

func TestStoreLoadMalformedFailsClosed(t *testing.T) {
	store := NewStore(nil)
	good := writeTemplate(t, `{"groups":[]}`)
	require.NoError(t, store.Load(good))
	require.True(t, store.Loaded())

	bad := writeTemplate(t, `{"groups":[`)
	err := store.Load(bad)
	assert.Error(t, err)
	// a bad template clears the previous document and path
	assert.False(t, store.Loaded())
	assert.Equal(t, "", store.Path())
}

func TestStoreLoadMissingFile(t *testing.T) {
	store := NewStore(nil)
	err := store.Load(filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
	assert.False(t, store.Loaded())
}

// Markers may occupy non-string slots: they are masked before validation.
func TestStoreLoadUnquotedMarkers(t *testing.T) {
	store := NewStore(nil)
	path := writeTemplate(t, `{"groups":[{"datasets":[{"value":"%1"},{"value":%3}]}]}`)
	assert.NoError(t, store.Load(path))
	assert.True(t, store.Loaded())
}

func TestStoreClear(t *testing.T) {
	store := NewStore(nil)
	path := writeTemplate(t, `{"groups":[]}`)
	require.NoError(t, store.Load(path))
	store.Clear()
	assert.False(t, store.Loaded())
	assert.Equal(t, "", store.Path())
}

// An in-flight snapshot is unaffected by a concurrent replace.
func TestStoreSnapshotImmutable(t *testing.T) {
	store := NewStore(nil)
	first := `{"groups":[{"datasets":[{"value":"%1"}]}]}`
	require.NoError(t, store.Load(writeTemplate(t, first)))
	snapshot := store.Snapshot()

	second := `{"groups":[]}`
	require.NoError(t, store.Load(writeTemplate(t, second)))
	assert.Equal(t, first, snapshot)
	assert.Equal(t, second, store.Snapshot())
}

func TestStoreWatchReload(t *testing.T) {
	store := NewStore(nil)
	path := writeTemplate(t, `{"groups":[]}`)
	require.NoError(t, store.Load(path))
	require.NoError(t, store.Watch())
	defer store.Close()

	updated := `{"groups":[{"datasets":[{"value":"%1"}]}]}`
	require.NoError(t, os.WriteFile(path, []byte(updated), 0o644))

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if store.Snapshot() == updated {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("template was not reloaded, snapshot=%s", store.Snapshot())
}

func TestStoreWatchWithoutTemplate(t *testing.T) {
	store := NewStore(nil)
	assert.Error(t, store.Watch())
}
