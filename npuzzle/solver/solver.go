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

// Package solver runs A* over sliding-puzzle boards. It is the block
// pool's demonstration workload: every board expansion allocates tile
// storage from the pool, duplicate boards are released straight back,
// and a finished search leaves the pool exactly as it found it.
package solver

import (
	"sync"

	"github.com/cloudwego/blockpool/blockpool"
	"github.com/cloudwego/blockpool/concurrency/gopool"
	"github.com/cloudwego/blockpool/hash/xfnv"
	"github.com/cloudwego/blockpool/npuzzle/puzzle"
)

// Result is a finished search.
type Result struct {
	// Path holds the boards from start to goal inclusive. The states
	// still reference pool memory; call Release when done with them.
	Path []*puzzle.State

	// Expanded counts expanded boards (fringe pops other than the final
	// goal pop), UniqueStates the boards retained by the search; a board
	// reached again by a shorter route is retained, and counted, again.
	Expanded     int
	UniqueStates int
}

// Release returns the path's tile storage to the pool.
func (r *Result) Release(p *blockpool.Pool) {
	for _, s := range r.Path {
		s.Release(p)
	}
	r.Path = nil
}

// Solver owns the worker pool used for successor fan-out. One Solver
// may run many searches; concurrent searches need one Solver each.
type Solver struct {
	workers *gopool.GoPool

	pool  *blockpool.Pool
	seen  map[uint64][]*puzzle.State // fringe ∪ closed, keyed by board fingerprint
	order []*puzzle.State            // every retained state, for teardown
}

// New creates a solver drawing board storage from pool. The pool must
// be thread safe: the four successor generators allocate concurrently.
func New(pool *blockpool.Pool) *Solver {
	return &Solver{
		workers: gopool.NewGoPool("npuzzle", &gopool.Option{MaxIdleWorkers: 4, TaskChanBuffer: 8}),
		pool:    pool,
	}
}

// Solve searches from start to goal and returns the optimal path, or
// nil when the fringe drains without reaching the goal. start and goal
// are owned by the solver from this point on: their storage is
// released with the rest of the search frontier, except for path
// states, which the caller releases through Result.
func (s *Solver) Solve(start, goal *puzzle.State) *Result {
	s.seen = make(map[uint64][]*puzzle.State)
	s.order = s.order[:0]

	start.UpdateEstimate()
	s.retain(start)

	fringe := puzzle.NewFringe()
	fringe.Push(start)

	expanded := 0
	for !fringe.Empty() {
		curr := fringe.Pop()

		if curr.Equal(goal) {
			res := &Result{Expanded: expanded, UniqueStates: len(s.order)}
			for st := curr; st != nil; st = st.Predecessor() {
				res.Path = append(res.Path, st)
			}
			reverse(res.Path)
			s.teardown(res.Path, goal)
			return res
		}

		expanded++
		for _, succ := range s.expand(curr) {
			if succ == nil {
				continue
			}
			if s.dedup(succ) {
				succ.Release(s.pool)
				continue
			}
			s.retain(succ)
			fringe.Push(succ)
		}
	}

	s.teardown(nil, goal)
	return nil
}

// expand generates the up-to-four successors of curr concurrently.
// Clone, move and heuristic scoring run on the worker pool; dedup and
// fringe insertion stay with the caller, so the shared index needs no
// locking.
func (s *Solver) expand(curr *puzzle.State) [4]*puzzle.State {
	var succ [4]*puzzle.State
	var wg sync.WaitGroup
	for d := puzzle.Left; d <= puzzle.Up; d++ {
		if !curr.CanMove(d) {
			continue
		}
		d := d
		wg.Add(1)
		s.workers.Go(func() {
			defer wg.Done()
			next := curr.Clone(s.pool)
			if next == nil {
				return // pool exhausted, drop this branch
			}
			next.Move(d)
			next.UpdateEstimate()
			succ[d] = next
		})
	}
	wg.Wait()
	return succ
}

// dedup reports whether an equal board was already generated, either
// still queued or long since expanded, in no more moves than st.
func (s *Solver) dedup(st *puzzle.State) bool {
	h := xfnv.Hash(st.Key())
	for _, other := range s.seen[h] {
		if st.Equal(other) && other.Travel() <= st.Travel() {
			return true
		}
	}
	return false
}

func (s *Solver) retain(st *puzzle.State) {
	h := xfnv.Hash(st.Key())
	s.seen[h] = append(s.seen[h], st)
	s.order = append(s.order, st)
}

// teardown releases every retained state that is not on the solution
// path, plus the goal template, restoring the pool to its pre-search
// block count modulo the path itself.
func (s *Solver) teardown(path []*puzzle.State, goal *puzzle.State) {
	onPath := make(map[*puzzle.State]struct{}, len(path))
	for _, st := range path {
		onPath[st] = struct{}{}
	}
	for _, st := range s.order {
		if _, ok := onPath[st]; !ok {
			st.Release(s.pool)
		}
	}
	goal.Release(s.pool)
	s.seen = nil
	s.order = s.order[:0]
}

func reverse(p []*puzzle.State) {
	for i, j := 0, len(p)-1; i < j; i, j = i+1, j-1 {
		p[i], p[j] = p[j], p[i]
	}
}
