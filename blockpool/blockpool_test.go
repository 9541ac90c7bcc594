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
	"sync"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bufPtr(b []byte) unsafe.Pointer {
	return unsafe.Pointer(unsafe.SliceData(b))
}

// requireOrdered walks the free list and asserts strictly increasing
// usable pointers and sizes that are positive multiples of the block
// size.
func requireOrdered(t *testing.T, p *Pool) {
	t.Helper()
	var prev uintptr
	for b := p.freeList; b != nil; b = b.next {
		if prev != 0 {
			require.Greater(t, uintptr(b.ptr), prev)
		}
		require.NotZero(t, b.size)
		require.Zero(t, b.size%p.blockSize)
		prev = uintptr(b.ptr)
	}
}

func TestNewRejectsBadConfig(t *testing.T) {
	require.Nil(t, New(0, 64, SingleThreaded))
	require.Nil(t, New(-1, 64, SingleThreaded))
	require.Nil(t, New(256, 0, SingleThreaded))
	require.Nil(t, New(256, -8, SingleThreaded))
	require.Nil(t, New(64, 64, SingleThreaded))  // block size == size
	require.Nil(t, New(64, 128, SingleThreaded)) // block size > size
}

func TestNewLayout(t *testing.T) {
	p := New(1*KB, 64, SingleThreaded)
	require.NotNil(t, p)
	require.Equal(t, 64, p.BlockSize())
	require.Equal(t, 16, p.FreeBlocks())
	require.Zero(t, uintptr(p.base)%8)

	// coverage at rest: descriptor i sits exactly i blocks past base
	i := 0
	for b := p.freeList; b != nil; b = b.next {
		require.Equal(t, unsafe.Add(p.base, i*64), b.ptr)
		require.Equal(t, uint32(64), b.size)
		i++
	}
	require.Equal(t, 16, i)
	require.True(t, p.Destroy())
}

func TestBlockSizeRounding(t *testing.T) {
	p := New(1*KB, 60, SingleThreaded)
	require.NotNil(t, p)
	require.Equal(t, 64, p.BlockSize())
	require.Equal(t, 16, p.FreeBlocks())
	p.Destroy()

	p = New(1*KB, 65, SingleThreaded)
	require.NotNil(t, p)
	require.Equal(t, 72, p.BlockSize())
	require.Equal(t, 14, p.FreeBlocks())
	p.Destroy()
}

func TestSimpleCycle(t *testing.T) {
	p := New(1*KB, 64, SingleThreaded)
	require.NotNil(t, p)
	require.Equal(t, 16, p.FreeBlocks())

	buf := p.Alloc(32)
	require.NotNil(t, buf)
	require.Len(t, buf, 32)
	require.Equal(t, p.base, bufPtr(buf)) // lowest address first
	require.Zero(t, uintptr(bufPtr(buf))%8)
	require.Equal(t, 15, p.FreeBlocks())
	require.Equal(t, 1, p.AllocatedBlocks())

	p.Free(buf)
	require.Equal(t, 16, p.FreeBlocks())
	require.Equal(t, 0, p.AllocatedBlocks())
	requireOrdered(t, p)
	p.Destroy()
}

func TestExhaustion(t *testing.T) {
	p := New(256, 64, SingleThreaded)
	require.NotNil(t, p)
	require.Equal(t, 4, p.FreeBlocks())

	for i := 0; i < 4; i++ {
		buf := p.Alloc(32)
		require.NotNil(t, buf)
		require.Equal(t, unsafe.Add(p.base, i*64), bufPtr(buf))
	}
	require.Nil(t, p.Alloc(32)) // free list empty
	p.Destroy()
}

func TestAllocExceedsPoolSize(t *testing.T) {
	p := New(256, 64, SingleThreaded)
	require.NotNil(t, p)
	require.Nil(t, p.Alloc(257))
	require.Nil(t, p.Alloc(-1))
	require.Equal(t, 4, p.FreeBlocks())
	p.Destroy()
}

func TestCoalesce(t *testing.T) {
	p := New(1*KB, 64, SingleThreaded)
	require.NotNil(t, p)

	buf := p.Alloc(200) // ceil(200/64) = 4 blocks
	require.NotNil(t, buf)
	require.Equal(t, p.base, bufPtr(buf))
	require.Equal(t, 12, p.FreeBlocks())
	require.Equal(t, 1, p.CoalescedAllocs())
	require.Equal(t, 1, p.AllocatedBlocks())
	require.Equal(t, 256, cap(buf)) // 4 blocks of 64

	p.Free(buf)
	require.Equal(t, 16, p.FreeBlocks())
	requireOrdered(t, p)
	// split re-entered the 4 original addresses
	i := 0
	for b := p.freeList; b != nil && i < 4; b = b.next {
		require.Equal(t, unsafe.Add(p.base, i*64), b.ptr)
		i++
	}
	// counter is monotonic, free does not decrement it
	require.Equal(t, 1, p.CoalescedAllocs())
	p.Destroy()
}

func TestCoalesceSkipsGaps(t *testing.T) {
	p := New(512, 64, SingleThreaded)
	require.NotNil(t, p)

	var bufs [][]byte
	for i := 0; i < 8; i++ {
		bufs = append(bufs, p.Alloc(64))
	}
	// free blocks 1, 4, 5, 6: the first contiguous pair starts at 4
	p.Free(bufs[1])
	p.Free(bufs[4])
	p.Free(bufs[5])
	p.Free(bufs[6])
	require.Equal(t, 4, p.FreeBlocks())

	buf := p.Alloc(100) // needs 2 contiguous blocks
	require.NotNil(t, buf)
	require.Equal(t, unsafe.Add(p.base, 4*64), bufPtr(buf))
	require.Equal(t, 2, p.FreeBlocks())
	requireOrdered(t, p)
	p.Destroy()
}

func TestFragmentation(t *testing.T) {
	p := New(256, 64, SingleThreaded)
	require.NotNil(t, p)

	p1 := p.Alloc(32)
	p2 := p.Alloc(32)
	p3 := p.Alloc(32)
	p4 := p.Alloc(32)
	require.NotNil(t, p4)
	p.Free(p2)
	p.Free(p4)
	require.Equal(t, 2, p.FreeBlocks())

	// two free blocks exist but they are not address-contiguous
	require.Nil(t, p.Alloc(100))
	require.Equal(t, 2, p.FreeBlocks())

	p.Free(p1)
	p.Free(p3)
	require.Equal(t, 4, p.FreeBlocks())
	requireOrdered(t, p)
	p.Destroy()
}

func TestCalloc(t *testing.T) {
	p := New(1*KB, 64, SingleThreaded)
	require.NotNil(t, p)

	// dirty the first block so the zero-fill is observable
	buf := p.Alloc(64)
	for i := range buf {
		buf[i] = 0xAB
	}
	p.Free(buf)

	buf = p.Calloc(8, 8)
	require.NotNil(t, buf)
	require.Len(t, buf, 64)
	for _, b := range buf {
		require.Zero(t, b)
	}
	p.Free(buf)

	require.Nil(t, p.Calloc(0, 8))
	require.Nil(t, p.Calloc(8, 0))
	p.Destroy()
}

func TestReallocInPlace(t *testing.T) {
	p := New(1*KB, 64, SingleThreaded)
	require.NotNil(t, p)

	buf := p.Alloc(32)
	for i := 0; i < 32; i++ {
		buf[i] = byte(i)
	}
	got := p.Realloc(buf, 40) // 40 <= 64, same block
	require.Equal(t, bufPtr(buf), bufPtr(got))
	require.Len(t, got, 40)
	for i := 0; i < 32; i++ {
		require.Equal(t, byte(i), got[i])
	}

	// shrink is a no-op as well, the descriptor keeps its size
	got = p.Realloc(got, 8)
	require.Equal(t, bufPtr(buf), bufPtr(got))
	p.Destroy()
}

func TestReallocGrow(t *testing.T) {
	p := New(1*KB, 64, SingleThreaded)
	require.NotNil(t, p)

	buf := p.Alloc(32)
	for i := 0; i < 32; i++ {
		buf[i] = byte(i)
	}
	got := p.Realloc(buf, 100)
	require.NotNil(t, got)
	require.NotEqual(t, bufPtr(buf), bufPtr(got))
	for i := 0; i < 32; i++ {
		require.Equal(t, byte(i), got[i])
	}
	require.Equal(t, 1, p.CoalescedAllocs())
	require.Equal(t, 1, p.AllocatedBlocks()) // old block went back to the free list

	p.Free(got)
	require.Equal(t, 16, p.FreeBlocks())
	requireOrdered(t, p)
	p.Destroy()
}

func TestReallocErrors(t *testing.T) {
	p := New(1*KB, 64, SingleThreaded)
	require.NotNil(t, p)

	require.Nil(t, p.Realloc(nil, 32))
	require.Nil(t, p.Realloc(make([]byte, 8), 32)) // allocated list empty

	buf := p.Alloc(32)
	require.Nil(t, p.Realloc(buf, 0))
	require.Nil(t, p.Realloc(make([]byte, 8), 32)) // not vended by the pool
	p.Destroy()
}

func TestDoubleFree(t *testing.T) {
	p := New(1*KB, 64, SingleThreaded)
	require.NotNil(t, p)

	buf := p.Alloc(32)
	p.Free(buf)
	require.Equal(t, 16, p.FreeBlocks())

	p.Free(buf) // diagnosed, state untouched
	require.Equal(t, 16, p.FreeBlocks())
	requireOrdered(t, p)

	p.Free(nil) // diagnosed, no-op
	require.Equal(t, 16, p.FreeBlocks())
	p.Destroy()
}

func TestFreeUnknownPointer(t *testing.T) {
	p := New(256, 64, SingleThreaded)
	require.NotNil(t, p)

	buf := p.Alloc(32)
	p.Free(make([]byte, 8)) // never vended, tolerated
	require.Equal(t, 3, p.FreeBlocks())
	require.Equal(t, 1, p.AllocatedBlocks())
	p.Free(buf)
	p.Destroy()
}

func TestConservationAtRest(t *testing.T) {
	p := New(1*KB, 64, SingleThreaded)
	require.NotNil(t, p)

	var want []unsafe.Pointer
	for b := p.freeList; b != nil; b = b.next {
		want = append(want, b.ptr)
	}

	// churn: singles, coalesced runs, reallocs, then free everything
	a := p.Alloc(200)
	b := p.Alloc(64)
	c := p.Calloc(10, 10)
	b = p.Realloc(b, 300)
	p.Free(c)
	p.Free(a)
	p.Free(b)

	require.Equal(t, 16, p.FreeBlocks())
	var got []unsafe.Pointer
	for blk := p.freeList; blk != nil; blk = blk.next {
		require.Equal(t, uint32(64), blk.size)
		got = append(got, blk.ptr)
	}
	require.Equal(t, want, got)
	p.Destroy()
}

func TestAllocFreeSymmetry(t *testing.T) {
	p := New(1*KB, 64, SingleThreaded)
	require.NotNil(t, p)

	buf := p.Alloc(64)
	addr := bufPtr(buf)
	p.Free(buf)
	buf = p.Alloc(64)
	require.Equal(t, addr, bufPtr(buf)) // lowest free address again
	p.Free(buf)
	p.Destroy()
}

func TestDestroyLifecycle(t *testing.T) {
	p := New(256, 64, SingleThreaded)
	require.NotNil(t, p)
	require.True(t, p.Destroy())
	require.False(t, p.Destroy()) // nothing left to tear down
}

func TestVendedPointerAlignment(t *testing.T) {
	p := New(4*KB, 24, SingleThreaded)
	require.NotNil(t, p)
	for {
		buf := p.Alloc(24)
		if buf == nil {
			break
		}
		assert.Zero(t, uintptr(bufPtr(buf))%8)
	}
	p.Destroy()
}

func TestThreadSafeChurn(t *testing.T) {
	const workers = 8
	p := New(64*KB, 64, ThreadSafe)
	require.NotNil(t, p)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(id byte) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				buf := p.Alloc(48)
				if buf == nil {
					continue
				}
				for j := range buf {
					buf[j] = id
				}
				// nobody else may have scribbled on our block
				for j := range buf {
					if buf[j] != id {
						t.Errorf("vended region overlap: got %d want %d", buf[j], id)
						break
					}
				}
				p.Free(buf)
			}
		}(byte(w + 1))
	}
	wg.Wait()

	require.Equal(t, 1024, p.FreeBlocks())
	requireOrdered(t, p)
	p.Destroy()
}

func TestThreadSafeCoalesceChurn(t *testing.T) {
	const workers = 4
	p := New(64*KB, 64, ThreadSafe)
	require.NotNil(t, p)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				buf := p.Alloc(200)
				if buf == nil {
					continue // fragmentation under contention is expected
				}
				p.Free(buf)
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 1024, p.FreeBlocks())
	requireOrdered(t, p)
	p.Destroy()
}
