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

package puzzle

// Fringe is a binary min-heap of states keyed on total cost; Pop
// always yields the most promising frontier state.
type Fringe struct {
	heap []*State
}

// NewFringe returns an empty fringe.
func NewFringe() *Fringe {
	return &Fringe{heap: make([]*State, 0, 64)}
}

// Len returns the number of queued states.
func (f *Fringe) Len() int { return len(f.heap) }

// Empty reports whether the fringe holds no states.
func (f *Fringe) Empty() bool { return len(f.heap) == 0 }

// Push queues a state by its total cost.
func (f *Fringe) Push(s *State) {
	f.heap = append(f.heap, s)
	i := len(f.heap) - 1
	for i > 0 {
		parent := (i - 1) / 2
		if f.heap[parent].total <= f.heap[i].total {
			break
		}
		f.heap[parent], f.heap[i] = f.heap[i], f.heap[parent]
		i = parent
	}
}

// Pop removes and returns the lowest-cost state, or nil when empty.
func (f *Fringe) Pop() *State {
	if len(f.heap) == 0 {
		return nil
	}
	top := f.heap[0]
	last := len(f.heap) - 1
	f.heap[0] = f.heap[last]
	f.heap[last] = nil
	f.heap = f.heap[:last]

	i := 0
	for {
		smallest := i
		if l := 2*i + 1; l < len(f.heap) && f.heap[l].total < f.heap[smallest].total {
			smallest = l
		}
		if r := 2*i + 2; r < len(f.heap) && f.heap[r].total < f.heap[smallest].total {
			smallest = r
		}
		if smallest == i {
			return top
		}
		f.heap[i], f.heap[smallest] = f.heap[smallest], f.heap[i]
		i = smallest
	}
}
