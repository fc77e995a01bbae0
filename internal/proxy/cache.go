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

package proxy

import (
	"net/http"

	"github.com/relayproxy/relay/internal/cache"
)

// enableCache implements Phase 3: caching is gated per-route, and further
// gated to methods whose response semantics are safe to reuse across
// requests. A route with caching on whose request isn't GET/HEAD never
// touches the cache engine; Phase 7 reports that as "deferred" rather
// than "no-cache", distinguishing it from a route where caching is off
// outright.
func (p *Proxy) enableCache(r *http.Request, rc *requestContext) {
	if !rc.route.Config.Cache {
		rc.cachePhase = cache.NoCache
		return
	}
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		rc.cachePhase = cache.Deferred
		return
	}
	rc.cacheEnabled = true
	rc.cacheKey = cacheKey(r)
}

func cacheKey(r *http.Request) string {
	return r.Method + " " + r.Host + r.URL.RequestURI()
}

// cacheFilter implements Phase 6/part-of-7: it consults the cache engine
// for an enabled request, either serving a cached entry directly or
// running fetch against the selected origin and admitting the result.
func (p *Proxy) cacheFilter(rc *requestContext, fetch func() (*cache.Entry, error)) (*cache.Entry, error) {
	if !rc.cacheEnabled || p.cache == nil {
		entry, err := fetch()
		return entry, err
	}

	entry, phase, err := p.cache.Fetch(rc.cacheKey, fetch)
	rc.cachePhase = phase
	return entry, err
}

// setCacheStatusHeader implements Phase 7: stamp x-cache-status derived
// from the recorded cache phase before the response reaches the client.
func setCacheStatusHeader(w http.ResponseWriter, rc *requestContext) {
	w.Header().Set("x-cache-status", rc.cachePhase.HeaderValue())
}
