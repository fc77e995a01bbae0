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
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

// Route is the aggregate of one immutable RouteConfig and its mutable
// RouteState, handed out by Lookup as a plain pointer. Config is never
// mutated in place; replacing a route by name installs a fresh Route.
type Route struct {
	Config RouteConfig
	State  *RouteState
}

// RouteStore is the concurrent, indexed repository of routes. A single
// reader-writer lock protects the whole index: two host buckets (one per
// IncomingScheme) plus the name map, so that Add/Delete never let a
// lookup observe a partially re-indexed route.
type RouteStore struct {
	mu   sync.RWMutex
	http map[string][]*Route
	https map[string][]*Route
	byName map[string]*Route

	log logrus.FieldLogger
}

// New returns an empty RouteStore. log may be nil, in which case
// logrus.StandardLogger() is used.
func New(log logrus.FieldLogger) *RouteStore {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &RouteStore{
		http:   make(map[string][]*Route),
		https:  make(map[string][]*Route),
		byName: make(map[string]*Route),
		log:    log,
	}
}

func (s *RouteStore) bucketsFor(scheme IncomingScheme) map[string][]*Route {
	if scheme == SchemeHTTPS {
		return s.https
	}
	return s.http
}

// Lookup finds the Route that best matches (scheme, host, path): the
// route among those bound to (scheme, host) whose longest path prefix of
// path is the greatest. Ties are broken by bucket iteration order, which
// is not guaranteed stable across mutations — callers must not depend on
// which of several equally-long-prefix routes is returned.
func (s *RouteStore) Lookup(scheme IncomingScheme, host, path string) (*Route, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	routes := s.bucketsFor(scheme)[host]
	if len(routes) == 0 {
		return nil, false
	}

	var best *Route
	longest := -1
	for _, r := range routes {
		for _, candidate := range r.Config.Paths {
			if len(candidate) > longest && strings.HasPrefix(path, candidate) {
				longest = len(candidate)
				best = r
			}
		}
	}
	if best == nil {
		return nil, false
	}
	return best, true
}

// ByName returns the route currently installed under name, for
// diagnostics and tests.
func (s *RouteStore) ByName(name string) (*Route, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.byName[name]
	return r, ok
}

// Add installs config, replacing any existing route with the same name.
// The remove-then-reinsert sequence runs under a single write lock so
// lookups never see a partially re-indexed route.
func (s *RouteStore) Add(config RouteConfig) error {
	if err := config.Validate(); err != nil {
		return err
	}
	if config.OriginGroup.TotalWeight() == 0 && len(config.OriginGroup.Origins) > 0 {
		s.log.WithField("route", config.Name).Warn("all origins in origin group have zero weight; selection will fail until weights are fixed")
	}

	lowered := make([]string, len(config.Hosts))
	for i, host := range config.Hosts {
		lowered[i] = strings.ToLower(host)
	}
	config.Hosts = lowered

	route := &Route{Config: config, State: newRouteState()}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.removeLocked(config.Name)

	s.byName[config.Name] = route
	for scheme := range config.IncomingSchemes {
		buckets := s.bucketsFor(scheme)
		for _, host := range config.Hosts {
			buckets[host] = append(buckets[host], route)
		}
	}
	return nil
}

// Delete removes the route named name. A missing name is a no-op warning,
// not an error, matching route_store.rs's delete_route behavior.
func (s *RouteStore) Delete(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byName[name]; !ok {
		s.log.WithField("route", name).Warn("attempted to delete a route that doesn't exist")
		return
	}
	s.removeLocked(name)
}

// removeLocked removes the named route from every bucket it currently
// occupies (per its *current* schemes/hosts) and from the name map,
// pruning any bucket left empty. Callers must hold s.mu for writing.
func (s *RouteStore) removeLocked(name string) {
	existing, ok := s.byName[name]
	if !ok {
		return
	}

	for scheme := range existing.Config.IncomingSchemes {
		buckets := s.bucketsFor(scheme)
		for _, host := range existing.Config.Hosts {
			routes := buckets[host]
			for i, r := range routes {
				if r.Config.Name == name {
					routes = append(routes[:i], routes[i+1:]...)
					break
				}
			}
			if len(routes) == 0 {
				delete(buckets, host)
			} else {
				buckets[host] = routes
			}
		}
	}

	delete(s.byName, name)
}
