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

// Package blockpool implements a block-based memory sub-allocator.
//
// A pool carves one contiguous backing region into fixed-size blocks at
// creation time and serves Alloc/Calloc/Realloc/Free from that region
// without going back to the runtime allocator until Destroy. Requests
// larger than one block are satisfied by coalescing a run of
// address-contiguous free blocks into a single allocation; freeing such
// an allocation splits it back into block-size pieces.
//
// Tips for usage:
//   - pick the block size so that most requests fit in one block;
//     coalescing walks the free list and is O(free blocks) per call.
//   - buf returned by Alloc is not zeroed, use Calloc if that matters.
//   - DO NOT grow a returned buf with append beyond its cap; the bytes
//     after it belong to other blocks.
package blockpool

import (
	"math"
	"sync"
	"unsafe"

	"github.com/bytedance/gopkg/lang/dirtmake"
)

// Size units for pool construction, e.g. New(4*blockpool.KB, 64, ...).
const (
	KB = 1 << 10
	MB = 1 << 20
	GB = 1 << 30
)

// maxPoolSize bounds the addressable range of a pool. Sizes are kept in
// uint32 so a pool can never exceed 4GiB-1.
const maxPoolSize = math.MaxUint32

// ThreadSafety selects whether a pool takes its internal locks.
type ThreadSafety int

const (
	// SingleThreaded pools perform no synchronization at all.
	SingleThreaded ThreadSafety = iota
	// ThreadSafe pools guard each descriptor list with its own mutex.
	ThreadSafe
)

// block is the descriptor for one block, or for a coalesced run of
// blocks. Descriptors live on the Go heap, never inside the backing
// region, so user data cannot clobber them.
type block struct {
	ptr  unsafe.Pointer // start of the usable bytes
	size uint32         // always a positive multiple of the pool's block size
	next *block
}

// descriptors recycles block records. Uncoalescing manufactures k-1
// fresh descriptors per Free of a coalesced allocation; without
// recycling that churn is pure garbage.
var descriptors = sync.Pool{
	New: func() interface{} { return &block{} },
}

func newBlock(ptr unsafe.Pointer, size uint32) *block {
	b := descriptors.Get().(*block)
	b.ptr, b.size, b.next = ptr, size, nil
	return b
}

func putBlock(b *block) {
	b.ptr, b.size, b.next = nil, 0, nil
	descriptors.Put(b)
}

// Pool is a handle to one backing region and its descriptor lists.
//
// When created with ThreadSafe, every operation may be called
// concurrently. The free list and the allocated list are guarded by
// independent mutexes that are never held together, so the migration of
// a block between the two lists is NOT atomic: a block is taken off one
// list before it is put on the other, so a concurrent observer may find
// a migrating block on neither list. Callers must not assume
// linearizability across the pair.
type Pool struct {
	size      uint32 // total bytes managed, as given to New
	blockSize uint32 // rounded up to a multiple of 8

	freeList  *block // ascending usable-pointer order
	allocList *block // unordered

	numCoalesced uint32 // atomic; monotonic diagnostic counter

	threadSafe bool
	freeMu     sync.Mutex
	allocMu    sync.Mutex

	backing []byte         // keeps the region alive; released by Destroy
	base    unsafe.Pointer // 8-byte aligned start of block zero
}

// New creates a pool managing size bytes carved into blocks of
// blockSize bytes. blockSize is rounded up to the next multiple of 8 so
// every vended pointer is 8-byte aligned. Returns nil after printing a
// diagnostic if the configuration is rejected.
func New(size, blockSize int, mode ThreadSafety) *Pool {
	if size <= 0 || uint64(size) > maxPoolSize {
		errorf("invalid size %d for memory pool, memory pool will not be initialized", size)
		return nil
	}
	if blockSize <= 0 || blockSize >= size {
		errorf("invalid block size %d, block size must be positive and strictly less than the pool size", blockSize)
		return nil
	}

	p := &Pool{
		size:       uint32(size),
		blockSize:  uint32(blockSize+7) &^ 7,
		threadSafe: mode == ThreadSafe,
	}

	// The backing bytes are dirty on purpose, Calloc zero-fills on
	// demand. 7 spare bytes keep the last block in bounds after the
	// base pointer is aligned.
	p.backing = dirtmake.Bytes(size+7, size+7)
	raw := unsafe.Pointer(unsafe.SliceData(p.backing))
	p.base = unsafe.Add(raw, (8-uintptr(raw)&7)&7)

	// One descriptor per block, linked in ascending address order so
	// that the contiguity search in Alloc stays a single forward walk.
	n := p.size / p.blockSize
	var tail *block
	for i := uint32(0); i < n; i++ {
		b := newBlock(unsafe.Add(p.base, uintptr(i)*uintptr(p.blockSize)), p.blockSize)
		if tail == nil {
			p.freeList = b
		} else {
			tail.next = b
		}
		tail = b
	}
	return p
}

// Destroy tears the pool down: every descriptor on either list is
// discarded and the backing region is released. Previously vended
// buffers become dangling and must not be touched afterwards. Returns
// false if there is nothing to tear down.
func (p *Pool) Destroy() bool {
	if p.freeList == nil && p.allocList == nil {
		errorf("no memory pool was ever initialized, invalid call to destroy")
		return false
	}
	for b := p.freeList; b != nil; {
		next := b.next
		putBlock(b)
		b = next
	}
	p.freeList = nil
	for b := p.allocList; b != nil; {
		next := b.next
		putBlock(b)
		b = next
	}
	p.allocList = nil
	p.backing = nil
	p.base = nil
	return true
}

// Size returns the total byte count the pool was created with.
func (p *Pool) Size() int { return int(p.size) }

// BlockSize returns the configured block size after rounding.
func (p *Pool) BlockSize() int { return int(p.blockSize) }

// FreeBlocks returns the number of descriptors on the free list.
func (p *Pool) FreeBlocks() int {
	p.lockFree()
	n := 0
	for b := p.freeList; b != nil; b = b.next {
		n++
	}
	p.unlockFree()
	return n
}

// AllocatedBlocks returns the number of outstanding allocations.
func (p *Pool) AllocatedBlocks() int {
	p.lockAlloc()
	n := 0
	for b := p.allocList; b != nil; b = b.next {
		n++
	}
	p.unlockAlloc()
	return n
}

func (p *Pool) lockFree() {
	if p.threadSafe {
		p.freeMu.Lock()
	}
}

func (p *Pool) unlockFree() {
	if p.threadSafe {
		p.freeMu.Unlock()
	}
}

func (p *Pool) lockAlloc() {
	if p.threadSafe {
		p.allocMu.Lock()
	}
}

func (p *Pool) unlockAlloc() {
	if p.threadSafe {
		p.allocMu.Unlock()
	}
}

// view builds the user-visible buffer for a descriptor: len is the
// requested size, cap the full descriptor span.
func view(b *block, n int) []byte {
	return unsafe.Slice((*byte)(b.ptr), int(b.size))[:n:int(b.size)]
}
