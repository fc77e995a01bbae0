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

package cache

import (
	"net/http"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Entry is one cached response body plus the metadata needed to classify
// it on a later request.
type Entry struct {
	Body       []byte
	Header     http.Header
	StatusCode int
	StoredAt   time.Time
	Policy     Policy
}

// store is a byte-budgeted LRU: golang-lru/v2 gives recency ordering for
// free (an entries ceiling high enough to never bind in practice), and
// store layers the spec's byte-size ceiling on top by evicting the
// oldest entry whenever Add would push total bytes over the budget.
type store struct {
	mu        sync.Mutex
	lru       *lru.Cache[string, *Entry]
	maxBytes  int64
	curBytes  int64
}

func newStore(maxBytes int64) *store {
	s := &store{maxBytes: maxBytes}
	// The count ceiling is a large constant; the real ceiling enforced is
	// the byte budget tracked alongside it.
	c, err := lru.NewWithEvict[string, *Entry](1<<20, s.onEvict)
	if err != nil {
		// Only returns an error for a non-positive size, which 1<<20 never is.
		panic(err)
	}
	s.lru = c
	return s
}

func (s *store) onEvict(_ string, entry *Entry) {
	s.curBytes -= int64(len(entry.Body))
}

func (s *store) get(key string) (*Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lru.Get(key)
}

func (s *store) put(key string, entry *Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.lru.Peek(key); ok {
		s.curBytes -= int64(len(old.Body))
	}

	s.curBytes += int64(len(entry.Body))
	s.lru.Add(key, entry)

	for s.curBytes > s.maxBytes && s.lru.Len() > 0 {
		s.lru.RemoveOldest()
	}
}

func (s *store) remove(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lru.Remove(key)
}
