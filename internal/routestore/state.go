// Copyright the relay authors.
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package routestore

import (
	"sync"
	"time"
)

// RouteState is the mutable, per-Route health bookkeeping. It is shared
// behind a Route handle and protected by its own lock, separate from the
// RouteStore index lock (see the lock-ordering note in SPEC_FULL.md §5).
type RouteState struct {
	mu            sync.RWMutex
	downEndpoints map[int]time.Time
}

func newRouteState() *RouteState {
	return &RouteState{downEndpoints: make(map[int]time.Time)}
}

// MarkDown records origin index idx as down at instant now, unless it is
// already marked down. Re-marking is a no-op so a steady stream of
// failures cannot indefinitely extend the cooldown (write-if-absent).
func (s *RouteState) MarkDown(idx int, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.downEndpoints[idx]; !ok {
		s.downEndpoints[idx] = now
	}
}

// Sweep drops down-marks older than downTime. It takes the read lock
// first to check whether any entry has expired, and only escalates to the
// write lock when there is pruning to do, so the common case (no expired
// entries) never contends with readers.
func (s *RouteState) Sweep(now time.Time, downTime time.Duration) {
	s.mu.RLock()
	expired := false
	for _, markedAt := range s.downEndpoints {
		if now.Sub(markedAt) > downTime {
			expired = true
			break
		}
	}
	s.mu.RUnlock()

	if !expired {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for idx, markedAt := range s.downEndpoints {
		if now.Sub(markedAt) > downTime {
			delete(s.downEndpoints, idx)
		}
	}
}

// DownIndices returns the set of origin indices currently marked down.
func (s *RouteState) DownIndices() map[int]struct{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	down := make(map[int]struct{}, len(s.downEndpoints))
	for idx := range s.downEndpoints {
		down[idx] = struct{}{}
	}
	return down
}
