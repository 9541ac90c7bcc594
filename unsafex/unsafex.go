/*
 * Copyright 2025 CloudWeGo Authors
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

// Package unsafex provides zero-copy view conversions over byte memory.
package unsafex

import "unsafe"

// BinaryToString converts []byte to string without copy.
// The returned string shares memory with b; do not mutate b while the
// string is in use as a map key or similar.
func BinaryToString(b []byte) string {
	return unsafe.String(unsafe.SliceData(b), len(b))
}

// StringToBinary converts string to []byte without copy.
// Writing to the result of a literal-backed string faults.
func StringToBinary(s string) []byte {
	return unsafe.Slice(unsafe.StringData(s), len(s))
}

// Int16Slice views b as []int16 without copy. len(b) must be even; the
// view covers len(b)/2 elements. b must be 2-byte aligned, which holds
// for any allocator that vends 8-byte aligned buffers.
func Int16Slice(b []byte) []int16 {
	if len(b) == 0 {
		return nil
	}
	return unsafe.Slice((*int16)(unsafe.Pointer(unsafe.SliceData(b))), len(b)/2)
}

// Int16Bytes views v as []byte without copy, covering 2*len(v) bytes.
func Int16Bytes(v []int16) []byte {
	if len(v) == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(unsafe.SliceData(v))), len(v)*2)
}
