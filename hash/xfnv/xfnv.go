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

// Package xfnv is a modified, non-cross-platform-compatible FNV-1a.
//
// It folds 8 input bytes per round by loading them as a native uint64,
// so the result differs across CPU architectures. It is meant for
// in-process fingerprints, e.g. deduplicating visited states in a
// search; DO NOT persist or transmit the values.
package xfnv

import (
	"unsafe"
)

const (
	offset64 = uint64(14695981039346656037)
	prime64  = uint64(1099511628211)
)

// Hash returns the in-memory fingerprint of b.
func Hash(b []byte) uint64 {
	if len(b) == 0 {
		return offset64
	}
	return fold(unsafe.Pointer(unsafe.SliceData(b)), len(b))
}

// HashStr returns the in-memory fingerprint of s.
func HashStr(s string) uint64 {
	if len(s) == 0 {
		return offset64
	}
	return fold(unsafe.Pointer(unsafe.StringData(s)), len(s))
}

func fold(p unsafe.Pointer, n int) uint64 {
	h := offset64
	for n >= 8 {
		h ^= *(*uint64)(p)
		h *= prime64
		p = unsafe.Add(p, 8)
		n -= 8
	}
	for i := 0; i < n; i++ {
		h ^= uint64(*(*byte)(unsafe.Add(p, i)))
		h *= prime64
	}
	return h
}
