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

package transport

import (
	"bufio"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scanAll(t *testing.T, input, end string) []string {
	t.Helper()
	scanner := bufio.NewScanner(strings.NewReader(input))
	scanner.Split(splitFrames([]byte(end)))
	var frames []string
	for scanner.Scan() {
		frames = append(frames, scanner.Text())
	}
	require.NoError(t, scanner.Err())
	return frames
}

func TestSplitFrames(t *testing.T) {
	assert.Equal(t, []string{"a,b", "c,d"}, scanAll(t, "a,b\nc,d\n", "\n"))
	// trailing partial frame delivered at EOF
	assert.Equal(t, []string{"a", "b"}, scanAll(t, "a\nb", "\n"))
	// multi-byte delimiter
	assert.Equal(t, []string{"x", "y"}, scanAll(t, "x;;y;;", ";;"))
	// empty frames between back-to-back delimiters survive
	assert.Equal(t, []string{"a", "", "b"}, scanAll(t, "a\n\nb\n", "\n"))
	assert.Empty(t, scanAll(t, "", "\n"))
}

func TestNetSourceDefaults(t *testing.T) {
	s := NewNetSource(Config{Server: "localhost:1"}, nil)
	assert.Equal(t, ",", s.Separator())
	assert.False(t, s.Active())

	s = NewNetSource(Config{Server: "localhost:1", Separator: ";"}, nil)
	assert.Equal(t, ";", s.Separator())
}

func TestNetSourceNoServer(t *testing.T) {
	s := NewNetSource(Config{}, nil)
	assert.Error(t, s.Start())
}

func TestNetSourceTCP(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer lis.Close()

	go func() {
		conn, err := lis.Accept()
		if err != nil {
			return
		}
		_, _ = conn.Write([]byte("1,2,3\n4,5,6\n"))
		_ = conn.Close()
	}()

	s := NewNetSource(Config{Server: lis.Addr().String()}, nil)

	frames := make(chan string, 4)
	states := make(chan bool, 4)
	s.OnFrame(func(data []byte) { frames <- string(data) })
	s.OnStateChange(func(connected bool) { states <- connected })

	require.NoError(t, s.Start())
	defer s.Close()

	assert.True(t, <-states)
	assert.True(t, s.Active())
	assert.Equal(t, "1,2,3", receiveString(t, frames))
	assert.Equal(t, "4,5,6", receiveString(t, frames))

	// peer closed: source goes inactive
	select {
	case connected := <-states:
		assert.False(t, connected)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for disconnect")
	}
	assert.False(t, s.Active())
}

func receiveString(t *testing.T, ch chan string) string {
	t.Helper()
	select {
	case s := <-ch:
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for frame")
		return ""
	}
}
