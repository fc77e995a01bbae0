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
	"context"
	"fmt"
	"math/rand/v2"
	"net"
	"time"

	"github.com/relayproxy/relay/internal/routestore"
)

// selectedOrigin is the outcome of selectOrigin: the chosen Origin along
// with the dial target and TLS parameters Phase 2 derives from it.
type selectedOrigin struct {
	origin   *routestore.Origin
	index    int
	address  string
	useTLS   bool
	sni      string
}

// selectOrigin implements Phase 2: sweep, eligibility set, weighted
// draw, scheme/port computation and asynchronous name resolution.
func (p *Proxy) selectOrigin(ctx context.Context, rc *requestContext) (*selectedOrigin, error) {
	if rc.route == nil {
		return nil, newError(InternalInvariant, fmt.Errorf("selectOrigin called without a route in context"))
	}

	origins := rc.route.Config.OriginGroup.Origins
	if len(origins) == 0 {
		return nil, newError(OriginGroupEmpty, fmt.Errorf("route %q has no origins", rc.route.Config.Name))
	}

	rc.tries++

	now := time.Now()
	state := rc.route.State
	state.Sweep(now, p.originDownTime)

	down := state.DownIndices()
	eligible := make([]int, 0, len(origins))
	for i := range origins {
		if _, isDown := down[i]; !isDown {
			eligible = append(eligible, i)
		}
	}
	if len(eligible) == 0 {
		// Fallback rule: every origin is down, so all become eligible
		// rather than failing the request outright.
		eligible = eligible[:0]
		for i := range origins {
			eligible = append(eligible, i)
		}
	}

	idx, err := weightedDraw(origins, eligible)
	if err != nil {
		return nil, newError(InternalInvariant, err)
	}

	origin := &origins[idx]
	useTLS := resolveUseTLS(rc.route.Config.OutgoingScheme, rc.incomingScheme)
	port := origin.HTTPPort
	if useTLS {
		port = origin.HTTPSPort
	}

	ip, err := resolveHost(ctx, origin.Host)
	if err != nil {
		rc.route.State.MarkDown(idx, now)
		return nil, newError(OriginResolve, err)
	}

	return &selectedOrigin{
		origin:  origin,
		index:   idx,
		address: net.JoinHostPort(ip, fmt.Sprint(port)),
		useTLS:  useTLS,
		sni:     origin.SNI,
	}, nil
}

// weightedDraw picks an index from eligible, weighted by origins[i].Weight.
// A zero total weight across the eligible set is an InternalInvariant:
// the source it is grounded on propagates the same condition as an error
// rather than silently picking uniformly (see DESIGN.md Open Question 1).
func weightedDraw(origins []routestore.Origin, eligible []int) (int, error) {
	var total uint64
	for _, i := range eligible {
		total += uint64(origins[i].Weight)
	}
	if total == 0 {
		return 0, fmt.Errorf("origin group has zero total weight among %d eligible origins", len(eligible))
	}

	draw := rand.Uint64N(total)
	var cumulative uint64
	for _, i := range eligible {
		cumulative += uint64(origins[i].Weight)
		if draw < cumulative {
			return i, nil
		}
	}
	// Unreachable if total was computed correctly, but fall back to the
	// last eligible entry rather than panicking on a rounding edge case.
	return eligible[len(eligible)-1], nil
}

// resolveUseTLS computes whether Phase 2 dials the origin over TLS.
func resolveUseTLS(scheme routestore.OutgoingScheme, incoming routestore.IncomingScheme) bool {
	switch scheme {
	case routestore.OutgoingHTTP:
		return false
	case routestore.OutgoingHTTPS:
		return true
	default: // MatchIncoming
		return incoming == routestore.SchemeHTTPS
	}
}

// resolveHost resolves host to a single IP address, asynchronously and
// without happy-eyeballs or address-family preference: the first address
// the resolver returns is used. An empty result or resolver error is a
// connect failure, handled by the caller as OriginResolve.
func resolveHost(ctx context.Context, host string) (string, error) {
	addrs, err := net.DefaultResolver.LookupIPAddr(ctx, host)
	if err != nil {
		return "", err
	}
	if len(addrs) == 0 {
		return "", fmt.Errorf("no addresses found for host %q", host)
	}
	return addrs[0].IP.String(), nil
}
