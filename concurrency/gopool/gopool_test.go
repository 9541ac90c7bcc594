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

package gopool

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestGo(t *testing.T) {
	p := NewGoPool(t.Name(), nil)
	var sum int64
	var wg sync.WaitGroup
	for i := 0; i < 1000; i++ {
		wg.Add(1)
		p.Go(func() {
			atomic.AddInt64(&sum, 1)
			wg.Done()
		})
	}
	wg.Wait()
	require.Equal(t, int64(1000), sum)

	// workers drain out once the queue is empty
	deadline := time.Now().Add(time.Second)
	for p.CurrentWorkers() != 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	require.Equal(t, 0, p.CurrentWorkers())
}

func TestPanicHandler(t *testing.T) {
	p := NewGoPool(t.Name(), &Option{MaxIdleWorkers: 1, TaskChanBuffer: 1})

	done := make(chan struct{})
	var got interface{}
	p.SetPanicHandler(func(_ context.Context, r interface{}) {
		got = r
		close(done)
	})
	p.Go(func() { panic("boom") })

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("panic handler not called")
	}
	require.Equal(t, "boom", got)
}

func TestQueueFullFallback(t *testing.T) {
	p := NewGoPool(t.Name(), &Option{MaxIdleWorkers: 1, TaskChanBuffer: 1})

	var wg sync.WaitGroup
	block := make(chan struct{})
	for i := 0; i < 16; i++ {
		wg.Add(1)
		p.Go(func() {
			<-block
			wg.Done()
		})
	}
	close(block) // every task must still run, queued or direct
	wg.Wait()
}

func BenchmarkGoPool(b *testing.B) {
	p := NewGoPool(b.Name(), nil)
	var wg sync.WaitGroup
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		wg.Add(1)
		p.Go(wg.Done)
	}
	wg.Wait()
}
