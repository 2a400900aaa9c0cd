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
	"strconv"
	"strings"
)

// Fields splits one raw frame into its ordered scalar field values using the
// separator owned by the transport collaborator.
func Fields(data []byte, separator string) []string {
	if separator == "" {
		separator = ","
	}
	return strings.Split(string(data), separator)
}

// Substitute replaces every occurrence of the positional marker %k
// (k = 1-based field index) in template with the textual value of field k.
// Markers are processed per id in ascending order, scanning left to right;
// a replacement value is inserted verbatim and the scan continues after it,
// so the value is never itself re-scanned for the same marker. Markers with
// no corresponding field are left as literal text.
func Substitute(template string, fields []string) string {
	out := template
	for i, value := range fields {
		marker := "%" + strconv.Itoa(i+1)
		if !strings.Contains(out, marker) {
			continue
		}
		var sb strings.Builder
		sb.Grow(len(out))
		pos := 0
		for {
			idx := strings.Index(out[pos:], marker)
			if idx < 0 {
				sb.WriteString(out[pos:])
				break
			}
			sb.WriteString(out[pos : pos+idx])
			sb.WriteString(value)
			pos += idx + len(marker)
		}
		out = sb.String()
	}
	return out
}
