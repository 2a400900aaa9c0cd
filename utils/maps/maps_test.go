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

package maps

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMap2Struct(t *testing.T) {
	type user struct {
		Username string
		Age      int
	}
	var u user
	require.NoError(t, Map2Struct(map[string]interface{}{
		"username": "lala",
		"age":      5,
	}, &u))
	assert.Equal(t, "lala", u.Username)
	assert.Equal(t, 5, u.Age)

	assert.Error(t, Map2Struct(map[string]interface{}{"age": "five"}, &u))
}
