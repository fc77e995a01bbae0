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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relayproxy/relay/internal/routestore"
)

func newTestRoute(t *testing.T, origins []routestore.Origin) *routestore.Route {
	t.Helper()
	store := routestore.New(nil)
	cfg := routestore.RouteConfig{
		Name:            "r1",
		IncomingSchemes: map[routestore.IncomingScheme]struct{}{routestore.SchemeHTTP: {}},
		Hosts:           []string{"x.test"},
		Paths:           []string{"/"},
		OriginGroup:     routestore.OriginGroup{Origins: origins},
	}
	require.NoError(t, store.Add(cfg))
	route, ok := store.ByName("r1")
	require.True(t, ok)
	return route
}

func TestWeightedDrawRespectsWeight(t *testing.T) {
	origins := []routestore.Origin{{Weight: 90}, {Weight: 10}}
	counts := map[int]int{}
	for i := 0; i < 10000; i++ {
		idx, err := weightedDraw(origins, []int{0, 1})
		require.NoError(t, err)
		counts[idx]++
	}
	ratio := float64(counts[0]) / float64(counts[0]+counts[1])
	assert.InDelta(t, 0.9, ratio, 0.05)
}

func TestWeightedDrawZeroWeightErrors(t *testing.T) {
	origins := []routestore.Origin{{Weight: 0}, {Weight: 0}}
	_, err := weightedDraw(origins, []int{0, 1})
	assert.Error(t, err)
}

func TestSelectOriginMarksDownAndExcludes(t *testing.T) {
	route := newTestRoute(t, []routestore.Origin{
		{Host: "127.0.0.1", HTTPPort: 1, Weight: 10},
		{Host: "127.0.0.1", HTTPPort: 2, Weight: 10},
	})

	p := &Proxy{originDownTime: time.Hour}
	rc := newRequestContext()
	rc.route = route

	route.State.MarkDown(0, time.Now())

	for i := 0; i < 20; i++ {
		sel, err := p.selectOrigin(context.Background(), rc)
		require.NoError(t, err)
		assert.Equal(t, 1, sel.index, "origin 0 is marked down and must never be selected")
	}
}

func TestSelectOriginAllDownFallsBackToAllEligible(t *testing.T) {
	route := newTestRoute(t, []routestore.Origin{
		{Host: "127.0.0.1", HTTPPort: 1, Weight: 10},
		{Host: "127.0.0.1", HTTPPort: 2, Weight: 10},
	})

	p := &Proxy{originDownTime: time.Hour}
	rc := newRequestContext()
	rc.route = route

	route.State.MarkDown(0, time.Now())
	route.State.MarkDown(1, time.Now())

	seen := map[int]bool{}
	for i := 0; i < 20; i++ {
		sel, err := p.selectOrigin(context.Background(), rc)
		require.NoError(t, err)
		seen[sel.index] = true
	}
	assert.True(t, len(seen) >= 1, "fallback must still return an eligible origin")
}

func TestSelectOriginEmptyGroupIsOriginGroupEmpty(t *testing.T) {
	route := newTestRoute(t, nil)
	p := &Proxy{}
	rc := newRequestContext()
	rc.route = route

	_, err := p.selectOrigin(context.Background(), rc)
	require.Error(t, err)
	pe, ok := err.(*proxyError)
	require.True(t, ok)
	assert.Equal(t, OriginGroupEmpty, pe.kind)
}

func TestResolveUseTLS(t *testing.T) {
	assert.False(t, resolveUseTLS(routestore.OutgoingHTTP, routestore.SchemeHTTPS))
	assert.True(t, resolveUseTLS(routestore.OutgoingHTTPS, routestore.SchemeHTTP))
	assert.True(t, resolveUseTLS(routestore.MatchIncoming, routestore.SchemeHTTPS))
	assert.False(t, resolveUseTLS(routestore.MatchIncoming, routestore.SchemeHTTP))
}
