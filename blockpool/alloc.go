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

package blockpool

import (
	"sync/atomic"
	"unsafe"
)

// Alloc vends a buffer of at least n bytes from the pool.
//
// If n fits in one block the free-list head is handed out, which is
// always the free block with the lowest address since the free list is
// kept in address order. Larger requests are served by coalescing the
// first address-contiguous run of enough free blocks into a single
// allocation.
//
// The returned buf has len n; its cap is the full block span backing
// it. Returns nil after printing a diagnostic when the pool cannot
// serve the request.
func (p *Pool) Alloc(n int) []byte {
	if n < 0 || uint64(n) > uint64(p.size) {
		errorf("requested %d bytes exceeds the pool's total size of %d bytes", n, p.size)
		return nil
	}

	if n <= int(p.blockSize) {
		return p.allocBlock(n)
	}
	return p.allocCoalesced(n)
}

func (p *Pool) allocBlock(n int) []byte {
	p.lockFree()
	allocated := p.freeList
	if allocated == nil {
		p.unlockFree()
		errorf("no available memory, either a leak is holding blocks or the pool was sized too small")
		return nil
	}
	p.freeList = allocated.next
	p.unlockFree()

	p.lockAlloc()
	allocated.next = p.allocList
	p.allocList = allocated
	p.unlockAlloc()

	return view(allocated, n)
}

func (p *Pool) allocCoalesced(n int) []byte {
	blocksNeeded := uint32((uint64(n) + uint64(p.blockSize) - 1) / uint64(p.blockSize))

	p.lockFree()
	cursor := p.freeList
	if cursor == nil {
		p.unlockFree()
		errorf("no available memory, either a leak is holding blocks or the pool was sized too small")
		return nil
	}

	// Walk the address-ordered free list for the first window of
	// blocksNeeded entries whose pointers each sit exactly one block
	// after the previous. Any gap resets the window.
	runHead := cursor
	prevAddr := uintptr(cursor.ptr)
	contiguous := uint32(1)
	cursor = cursor.next
	for cursor != nil && contiguous < blocksNeeded {
		if uintptr(cursor.ptr)-prevAddr == uintptr(p.blockSize) {
			contiguous++
		} else {
			contiguous = 1
			runHead = cursor
		}
		prevAddr = uintptr(cursor.ptr)
		cursor = cursor.next
	}

	if contiguous < blocksNeeded {
		p.unlockFree()
		errorf("unable to allocate %d bytes due to insufficient contiguous space, make the pool larger or free more blocks", n)
		return nil
	}

	// Splice the whole run [runHead, runTail] out in one cut.
	runTail := runHead
	for i := uint32(1); i < blocksNeeded; i++ {
		runTail = runTail.next
	}
	if p.freeList == runHead {
		p.freeList = runTail.next
	} else {
		prev := p.freeList
		for prev.next != runHead {
			prev = prev.next
		}
		prev.next = runTail.next
	}
	p.unlockFree()

	// The head descriptor absorbs the whole run; its companions are
	// discarded, their bytes now belong to the head.
	runTail.next = nil
	runHead.size = blocksNeeded * p.blockSize
	for b := runHead.next; b != nil; {
		next := b.next
		putBlock(b)
		b = next
	}
	runHead.next = nil

	atomic.AddUint32(&p.numCoalesced, 1)

	p.lockAlloc()
	runHead.next = p.allocList
	p.allocList = runHead
	p.unlockAlloc()

	return view(runHead, n)
}

// Calloc vends a zero-filled buffer for members elements of size bytes
// each. The backing region is dirty by construction, so the zero-fill
// is unconditional.
func (p *Pool) Calloc(members, size int) []byte {
	if members <= 0 || size <= 0 {
		errorf("attempt to allocate 0 bytes")
		return nil
	}
	buf := p.Alloc(members * size)
	if buf == nil {
		return nil
	}
	for i := range buf {
		buf[i] = 0
	}
	return buf
}

// Realloc resizes a previously vended buffer to n bytes.
//
// If the descriptor behind buf already spans at least n bytes the same
// pointer is returned; the descriptor is not shrunk, so shrinking
// reallocs are no-ops. Otherwise a fresh allocation is made, the old
// descriptor's full span is copied over and buf is freed.
func (p *Pool) Realloc(buf []byte, n int) []byte {
	if buf == nil {
		errorf("attempt to realloc a null pointer, potential use after free detected")
		return nil
	}
	if n == 0 {
		errorf("attempt to realloc with size of 0 bytes, invalid input")
		return nil
	}

	ptr := unsafe.Pointer(unsafe.SliceData(buf))

	p.lockAlloc()
	if p.allocList == nil {
		p.unlockAlloc()
		errorf("nothing from the pool was allocated, realloc is impossible")
		return nil
	}
	var target *block
	for cursor := p.allocList; cursor != nil; cursor = cursor.next {
		if cursor.ptr == ptr {
			target = cursor
			break
		}
	}
	p.unlockAlloc()

	if target == nil {
		errorf("attempt to realloc a nonexistent pointer, potential use after free detected")
		return nil
	}

	if int(target.size) >= n {
		return view(target, n)
	}

	reallocated := p.Alloc(n)
	if reallocated == nil {
		return nil
	}
	copy(reallocated, view(target, int(target.size)))
	p.Free(buf)
	return reallocated
}

// Free returns a vended buffer to the pool. A coalesced allocation is
// first split back into block-size descriptors, then the whole run is
// spliced into the free list at the position that keeps it address
// ordered. Unknown pointers and double frees are diagnosed and
// otherwise ignored.
func (p *Pool) Free(buf []byte) {
	if buf == nil {
		errorf("attempt to free a null pointer")
		return
	}
	ptr := unsafe.Pointer(unsafe.SliceData(buf))

	p.lockAlloc()
	freed := p.unlinkAllocated(ptr)
	p.unlockAlloc()
	if freed == nil {
		errorf("attempt to free a nonexistent pointer, potential double free detected")
		return
	}
	freed.next = nil

	// Uncoalesce: the freed descriptor shrinks back to one block and
	// fresh descriptors are minted for the rest of its former span.
	freedTail := freed
	if freed.size > p.blockSize {
		numBlocks := freed.size / p.blockSize
		freed.size = p.blockSize
		intermediate := freed
		for i := uint32(1); i < numBlocks; i++ {
			b := newBlock(unsafe.Add(freed.ptr, uintptr(i)*uintptr(p.blockSize)), p.blockSize)
			intermediate.next = b
			intermediate = b
		}
		freedTail = intermediate
	}

	p.lockFree()
	switch {
	case p.freeList == nil:
		p.freeList = freed
	case uintptr(p.freeList.ptr) > uintptr(freed.ptr):
		freedTail.next = p.freeList
		p.freeList = freed
	default:
		cursor := p.freeList
		for cursor.next != nil && uintptr(cursor.next.ptr) < uintptr(freed.ptr) {
			cursor = cursor.next
		}
		freedTail.next = cursor.next
		cursor.next = freed
	}
	p.unlockFree()
}

// unlinkAllocated removes and returns the descriptor with the given
// usable pointer, or nil. Caller holds the allocated-list lock.
func (p *Pool) unlinkAllocated(ptr unsafe.Pointer) *block {
	if p.allocList == nil {
		return nil
	}
	if p.allocList.ptr == ptr {
		freed := p.allocList
		p.allocList = freed.next
		return freed
	}
	cursor := p.allocList
	for cursor.next != nil && cursor.next.ptr != ptr {
		cursor = cursor.next
	}
	if cursor.next == nil {
		return nil
	}
	freed := cursor.next
	cursor.next = freed.next
	return freed
}

// CoalescedAllocs reports how many allocations have taken the
// coalescing path since the pool was created. The counter is monotonic;
// it is not decremented when a coalesced allocation is split on Free.
func (p *Pool) CoalescedAllocs() int {
	return int(atomic.LoadUint32(&p.numCoalesced))
}
