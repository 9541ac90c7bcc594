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

// Package puzzle models the sliding N-puzzle board used to exercise
// the block pool: every board's tile storage is vended by a pool
// rather than the runtime allocator.
package puzzle

import (
	"math/rand"

	"github.com/cloudwego/blockpool/blockpool"
	"github.com/cloudwego/blockpool/unsafex"
)

// Direction is one of the four slider moves.
type Direction int

const (
	Left Direction = iota
	Right
	Down
	Up
)

// State is one board configuration plus its A* bookkeeping.
type State struct {
	raw   []byte  // pool-vended buffer backing tiles
	tiles []int16 // n*n tiles in row-major order, 0 is the slider
	n     int

	zeroRow int
	zeroCol int

	travel    int // cost so far (g)
	heuristic int // estimated cost to goal (h)
	total     int // g + h

	pred *State
}

// newState vends an n*n tile array from the pool. Returns nil when the
// pool cannot serve the request (the pool prints the diagnostic).
func newState(p *blockpool.Pool, n int, zeroed bool) *State {
	var raw []byte
	if zeroed {
		raw = p.Calloc(n*n, 2)
	} else {
		raw = p.Alloc(n * n * 2)
	}
	if raw == nil {
		return nil
	}
	return &State{
		raw:   raw,
		tiles: unsafex.Int16Slice(raw),
		n:     n,
	}
}

// NewGoal builds the solved configuration: tiles 1..n*n-1 in order with
// the slider in the last cell.
func NewGoal(p *blockpool.Pool, n int) *State {
	s := newState(p, n, true)
	if s == nil {
		return nil
	}
	for num := int16(1); num < int16(n*n); num++ {
		s.tiles[num-1] = num
	}
	s.tiles[n*n-1] = 0
	s.zeroRow, s.zeroCol = n-1, n-1
	return s
}

// NewScrambled builds a start configuration by drawing complexity
// random moves and applying the legal ones to the goal board; illegal
// draws are skipped. More moves, harder board.
func NewScrambled(p *blockpool.Pool, n, complexity int) *State {
	s := NewGoal(p, n)
	if s == nil {
		return nil
	}
	for i := 0; i < complexity; i++ {
		if d := Direction(rand.Intn(4)); s.CanMove(d) {
			s.Move(d)
		}
	}
	return s
}

// Clone vends a successor of s: same tiles, travel one deeper,
// predecessor set to s. Returns nil when the pool is exhausted.
func (s *State) Clone(p *blockpool.Pool) *State {
	c := newState(p, s.n, false)
	if c == nil {
		return nil
	}
	copy(c.tiles, s.tiles)
	c.zeroRow, c.zeroCol = s.zeroRow, s.zeroCol
	c.travel = s.travel + 1
	c.pred = s
	return c
}

// Release returns the state's tile storage to the pool.
func (s *State) Release(p *blockpool.Pool) {
	p.Free(s.raw)
	s.raw, s.tiles = nil, nil
}

// CanMove reports whether the slider may move in direction d.
func (s *State) CanMove(d Direction) bool {
	switch d {
	case Left:
		return s.zeroCol > 0
	case Right:
		return s.zeroCol < s.n-1
	case Down:
		return s.zeroRow < s.n-1
	case Up:
		return s.zeroRow > 0
	}
	return false
}

// Move slides the zero tile in direction d. The move must be legal.
func (s *State) Move(d Direction) {
	r, c := s.zeroRow, s.zeroCol
	switch d {
	case Left:
		s.swap(r, c, r, c-1)
		s.zeroCol--
	case Right:
		s.swap(r, c, r, c+1)
		s.zeroCol++
	case Down:
		s.swap(r, c, r+1, c)
		s.zeroRow++
	case Up:
		s.swap(r, c, r-1, c)
		s.zeroRow--
	}
}

func (s *State) swap(r1, c1, r2, c2 int) {
	n := s.n
	s.tiles[r1*n+c1], s.tiles[r2*n+c2] = s.tiles[r2*n+c2], s.tiles[r1*n+c1]
}

// Equal reports whether two states hold the same board.
func (s *State) Equal(o *State) bool {
	if s.zeroRow != o.zeroRow || s.zeroCol != o.zeroCol {
		return false
	}
	for i := range s.tiles {
		if s.tiles[i] != o.tiles[i] {
			return false
		}
	}
	return true
}

// Key returns the board's raw bytes for fingerprinting. The view
// aliases the tile storage; hash it, don't keep it.
func (s *State) Key() []byte {
	return unsafex.Int16Bytes(s.tiles)
}

// N returns the board dimension.
func (s *State) N() int { return s.n }

// Tile returns the tile at row r, column c.
func (s *State) Tile(r, c int) int16 { return s.tiles[r*s.n+c] }

// Travel returns the move count from the start state (g).
func (s *State) Travel() int { return s.travel }

// TotalCost returns travel plus the heuristic estimate (f).
func (s *State) TotalCost() int { return s.total }

// Predecessor returns the state this one was expanded from.
func (s *State) Predecessor() *State { return s.pred }

// UpdateEstimate recomputes the heuristic: Manhattan distance of every
// tile to its goal cell plus two moves per generalized linear conflict.
// Two tiles conflict when both sit in their shared goal row (or column)
// in reversed order, forcing at least two extra moves to pass each
// other.
func (s *State) UpdateEstimate() {
	n := s.n
	h := 0

	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			num := s.tiles[i*n+j]
			if num == 0 {
				continue
			}
			goalRow := int(num-1) / n
			goalCol := int(num-1) % n
			h += abs(i-goalRow) + abs(j-goalCol)
		}
	}

	conflicts := 0
	// rows
	for i := 0; i < n; i++ {
		for j := 0; j < n-1; j++ {
			left := s.tiles[i*n+j]
			if left == 0 || int(left-1)/n != i {
				continue
			}
			for k := j + 1; k < n; k++ {
				right := s.tiles[i*n+k]
				if right == 0 || int(right-1)/n != i {
					continue
				}
				if left > right {
					conflicts++
				}
			}
		}
	}
	// columns
	for j := 0; j < n; j++ {
		for i := 0; i < n-1; i++ {
			above := s.tiles[i*n+j]
			if above == 0 || int(above-1)%n != j {
				continue
			}
			for k := i + 1; k < n; k++ {
				below := s.tiles[k*n+j]
				if below == 0 || int(below-1)%n != j {
					continue
				}
				if above > below {
					conflicts++
				}
			}
		}
	}

	s.heuristic = h + 2*conflicts
	s.total = s.travel + s.heuristic
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
