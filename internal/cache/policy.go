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
	"strconv"
	"strings"
	"time"
)

// Policy is the admission decision derived from an upstream response's
// Cache-Control header, with the defaults relay applies when the
// upstream is silent.
type Policy struct {
	NoStore               bool
	NoCache               bool
	Private               bool
	MaxAge                time.Duration
	StaleWhileRevalidate  time.Duration
	StaleIfError          time.Duration
}

// DefaultMaxAge, DefaultStaleWhileRevalidate and DefaultStaleIfError are
// applied when the upstream response carries no Cache-Control directive
// for the corresponding concern.
const (
	DefaultMaxAge               = 300 * time.Second
	DefaultStaleWhileRevalidate = 1 * time.Second
	DefaultStaleIfError         = 1 * time.Second
)

// ParsePolicy derives a Policy from an upstream response's Cache-Control
// header, falling back to relay's defaults for any directive the
// upstream did not specify.
func ParsePolicy(header http.Header) Policy {
	p := Policy{
		MaxAge:               DefaultMaxAge,
		StaleWhileRevalidate: DefaultStaleWhileRevalidate,
		StaleIfError:         DefaultStaleIfError,
	}

	cc := header.Get("Cache-Control")
	if cc == "" {
		return p
	}

	for _, directive := range strings.Split(cc, ",") {
		directive = strings.TrimSpace(directive)
		name, arg, hasArg := strings.Cut(directive, "=")
		name = strings.ToLower(strings.TrimSpace(name))
		arg = strings.Trim(strings.TrimSpace(arg), `"`)

		switch name {
		case "no-store":
			p.NoStore = true
		case "no-cache":
			p.NoCache = true
		case "private":
			p.Private = true
		case "max-age":
			if hasArg {
				if secs, err := strconv.Atoi(arg); err == nil {
					p.MaxAge = time.Duration(secs) * time.Second
				}
			}
		case "stale-while-revalidate":
			if hasArg {
				if secs, err := strconv.Atoi(arg); err == nil {
					p.StaleWhileRevalidate = time.Duration(secs) * time.Second
				}
			}
		case "stale-if-error":
			if hasArg {
				if secs, err := strconv.Atoi(arg); err == nil {
					p.StaleIfError = time.Duration(secs) * time.Second
				}
			}
		}
	}

	return p
}

// Cacheable reports whether a response governed by p may be admitted to
// the cache at all. Per-route caching is gated separately (Phase 3); this
// is the response-level predicate applied in Phase 6.
func (p Policy) Cacheable(statusCode int) bool {
	if p.NoStore || p.Private {
		return false
	}
	if statusCode != http.StatusOK {
		return false
	}
	return true
}

// Classify returns the cache Phase for an entry with the given age,
// relative to p's freshness windows.
func (p Policy) Classify(age time.Duration) Phase {
	switch {
	case age <= p.MaxAge:
		return Hit
	case age <= p.MaxAge+p.StaleWhileRevalidate:
		return Stale
	default:
		return Expired
	}
}
