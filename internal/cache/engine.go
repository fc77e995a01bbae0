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

// Package cache implements the storage backend, LRU eviction manager and
// single-flight lock that spec.md treats as an externally-supplied
// CacheEngine library: relay realizes that contract concretely on top of
// hashicorp/golang-lru and golang.org/x/sync/singleflight, and decides
// here when caching engages and how the outcome is reported (the part
// spec.md actually asks this repository to design).
package cache

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultMaxBytes is the default byte-size ceiling for the eviction
// manager (100 MiB, per spec.md §4.5).
const DefaultMaxBytes = 100 * 1024 * 1024

// Engine is the process-wide cache singleton: one storage backend, one
// eviction manager, one single-flight lock.
type Engine struct {
	store *store
	lock  fillLock
}

func newEngine(maxBytes int64) *Engine {
	return &Engine{store: newStore(maxBytes)}
}

var (
	globalMu     sync.Mutex
	globalEngine *Engine
)

// Init lazily constructs the process-wide Engine singleton. A second call
// is a warning, not an error: the second set of arguments is discarded
// and the first-constructed Engine keeps serving, per spec.md §9.
func Init(maxBytes int64, log logrus.FieldLogger) *Engine {
	if log == nil {
		log = logrus.StandardLogger()
	}
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalEngine != nil {
		log.Warn("cache engine already initialized; discarding second initialization")
		return globalEngine
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	globalEngine = newEngine(maxBytes)
	return globalEngine
}

// Get returns the process-wide Engine singleton, or nil if Init has not
// been called yet.
func Get() *Engine {
	globalMu.Lock()
	defer globalMu.Unlock()
	return globalEngine
}

// Fetch resolves key against the cache: a fresh entry is returned as Hit
// without calling fetch; a stale entry is returned immediately as Stale
// while fetch reruns in the background under the single-flight lock; an
// expired or missing entry synchronously calls fetch (at most once per
// key, for concurrent callers) and stores the cacheable result.
func (e *Engine) Fetch(key string, fetch func() (*Entry, error)) (*Entry, Phase, error) {
	now := time.Now()

	if existing, found := e.store.get(key); found {
		age := now.Sub(existing.StoredAt)
		switch existing.Policy.Classify(age) {
		case Hit:
			return existing, Hit, nil
		case Stale:
			go func() {
				if fresh, err := e.lock.do(key, fetch); err == nil {
					e.store.put(key, fresh)
				}
			}()
			return existing, Stale, nil
		default: // Expired
			fresh, err := e.lock.do(key, fetch)
			if err != nil {
				staleIfErrorWindow := existing.Policy.MaxAge + existing.Policy.StaleWhileRevalidate + existing.Policy.StaleIfError
				if age <= staleIfErrorWindow {
					return existing, Stale, nil
				}
				return nil, Invalid, err
			}
			if fresh.Policy.Cacheable(fresh.StatusCode) {
				e.store.put(key, fresh)
			} else {
				e.store.remove(key)
			}
			return fresh, Revalidated, nil
		}
	}

	fresh, err := e.lock.do(key, fetch)
	if err != nil {
		return nil, Invalid, err
	}
	if fresh.Policy.Cacheable(fresh.StatusCode) {
		e.store.put(key, fresh)
		return fresh, Miss, nil
	}
	return fresh, NoCache, nil
}
