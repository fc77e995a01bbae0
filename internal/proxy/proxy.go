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

// Package proxy implements the per-request forwarding pipeline: route
// matching, weighted origin selection with retry, upstream forwarding,
// and response cache admission/status reporting.
package proxy

import (
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sirupsen/logrus"
	"golang.org/x/net/http2"

	"github.com/relayproxy/relay/internal/cache"
	"github.com/relayproxy/relay/internal/routestore"
)

// DefaultOriginDownTime and DefaultConnectionRetryLimit are the defaults
// spec.md names for the two Proxy-level tunables.
const (
	DefaultOriginDownTime        = 10 * time.Second
	DefaultConnectionRetryLimit  = 1
)

// Proxy is the request-plane core: an http.Handler that matches a route,
// selects and dials an origin with retry, and optionally caches the
// response.
type Proxy struct {
	routes *routestore.RouteStore
	cache  *cache.Engine

	httpsPorts map[int]struct{}

	originDownTime       time.Duration
	connectionRetryLimit int

	transport *http.Transport
	logger    logrus.FieldLogger
}

// Option configures a Proxy at construction.
type Option func(*Proxy)

// WithOriginDownTime overrides the default mark-down duration.
func WithOriginDownTime(d time.Duration) Option {
	return func(p *Proxy) { p.originDownTime = d }
}

// WithConnectionRetryLimit overrides the default retry budget.
func WithConnectionRetryLimit(n int) Option {
	return func(p *Proxy) { p.connectionRetryLimit = n }
}

// New builds a Proxy. httpsPorts is the set of local listener ports that
// should be treated as HTTPS for Phase 1's incoming-scheme inference.
func New(routes *routestore.RouteStore, cacheEngine *cache.Engine, httpsPorts []int, log logrus.FieldLogger, opts ...Option) *Proxy {
	if log == nil {
		log = logrus.StandardLogger()
	}

	portSet := make(map[int]struct{}, len(httpsPorts))
	for _, port := range httpsPorts {
		portSet[port] = struct{}{}
	}

	transport := &http.Transport{
		TLSClientConfig: &tls.Config{
			NextProtos: []string{"h2", "http/1.1"},
		},
	}
	if err := http2.ConfigureTransport(transport); err != nil {
		log.WithError(err).Warn("failed to configure outbound HTTP/2 transport; falling back to HTTP/1.1 only")
	}

	p := &Proxy{
		routes:               routes,
		cache:                cacheEngine,
		httpsPorts:           portSet,
		originDownTime:       DefaultOriginDownTime,
		connectionRetryLimit: DefaultConnectionRetryLimit,
		transport:            transport,
		logger:               log,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ServeHTTP runs the full Phase 1-7 pipeline for one client request.
func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rc := newRequestContext()
	log := p.logger.WithField("request_id", rc.requestID)

	if err := p.matchRoute(r, rc); err != nil {
		p.respondError(w, log, err)
		return
	}

	p.enableCache(r, rc)

	entry, err := p.cacheFilter(rc, func() (*cache.Entry, error) {
		return p.forward(r, rc, log)
	})
	if err != nil {
		p.respondError(w, log, err)
		return
	}

	for k, values := range entry.Header {
		for _, v := range values {
			w.Header().Add(k, v)
		}
	}
	setCacheStatusHeader(w, rc)
	w.WriteHeader(entry.StatusCode)
	w.Write(entry.Body)
}

// matchRoute implements Phase 1.
func (p *Proxy) matchRoute(r *http.Request, rc *requestContext) error {
	host := r.Host
	if host == "" {
		host = r.Header.Get(":authority")
	}
	if host == "" {
		return newError(ClientRequest, fmt.Errorf("request has no Host header and no :authority pseudo-header"))
	}
	if !utf8.ValidString(host) {
		return newError(ClientRequest, fmt.Errorf("Host header is not valid UTF-8/ASCII"))
	}
	if idx := strings.IndexByte(host, ':'); idx >= 0 {
		host = host[:idx]
	}
	host = strings.ToLower(host)

	rc.host = host
	rc.path = r.URL.Path
	rc.incomingScheme = p.incomingScheme(r)

	route, ok := p.routes.Lookup(rc.incomingScheme, host, rc.path)
	if !ok {
		return newError(RouteNotFound, fmt.Errorf("no route matches %s %s%s", rc.incomingScheme, host, rc.path))
	}
	rc.route = route
	return nil
}

// incomingScheme implements Phase 1 step 2: scheme is derived from the
// local socket's port, not from TLS state on the connection, so that a
// plain-TCP listener bound to a port in httpsPorts is still treated as
// HTTPS (matching spec.md's socket-based inference).
func (p *Proxy) incomingScheme(r *http.Request) routestore.IncomingScheme {
	local, ok := r.Context().Value(http.LocalAddrContextKey).(net.Addr)
	if !ok {
		return routestore.SchemeHTTP
	}
	_, portStr, err := net.SplitHostPort(local.String())
	if err != nil {
		return routestore.SchemeHTTP
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return routestore.SchemeHTTP
	}
	if _, isHTTPS := p.httpsPorts[port]; isHTTPS {
		return routestore.SchemeHTTPS
	}
	return routestore.SchemeHTTP
}

// forward drives Phase 2 -> Phase 4 -> dial -> Phase 5, retrying origin
// selection up to connectionRetryLimit times, and returns the upstream
// response materialized as a cache.Entry.
func (p *Proxy) forward(r *http.Request, rc *requestContext, log logrus.FieldLogger) (*cache.Entry, error) {
	for {
		sel, err := p.selectOrigin(r.Context(), rc)
		if err != nil {
			retry, decided := p.retryDecision(rc, err)
			if retry {
				continue
			}
			return nil, decided
		}
		rc.origin = sel.origin
		rc.originIndex = sel.index

		upstream, err := p.rewriteUpstreamRequest(r, rc, sel)
		if err != nil {
			return nil, newError(InternalInvariant, err)
		}

		resp, err := p.transportFor(sel).RoundTrip(upstream)
		if err != nil {
			log.WithError(err).WithField("origin", sel.address).Warn("origin connect failed")
			retry, decided := p.failToConnect(rc, err)
			if retry {
				continue
			}
			return nil, decided
		}

		return entryFromResponse(resp)
	}
}

// rewriteUpstreamRequest implements Phase 4: build the outbound request
// for sel, rewriting the Host header when the origin specifies an
// override. All other headers pass through unchanged.
func (p *Proxy) rewriteUpstreamRequest(r *http.Request, rc *requestContext, sel *selectedOrigin) (*http.Request, error) {
	scheme := "http"
	if sel.useTLS {
		scheme = "https"
	}

	targetHost := sel.address
	url := *r.URL
	url.Scheme = scheme
	url.Host = targetHost

	upstream, err := http.NewRequestWithContext(r.Context(), r.Method, url.String(), r.Body)
	if err != nil {
		return nil, err
	}
	upstream.Header = r.Header.Clone()

	hostHeader := r.Host
	if sel.origin.HostHeaderOverride != "" {
		hostHeader = sel.origin.HostHeaderOverride
	}
	upstream.Host = hostHeader

	return upstream, nil
}

// transportFor returns the transport used to dial sel: the shared
// transport in the common case, or a clone with ServerName overridden to
// sel.sni when the origin specifies one (SNI need not match the dial
// address, e.g. when dialing by IP behind a shared TLS frontend).
func (p *Proxy) transportFor(sel *selectedOrigin) *http.Transport {
	if sel.sni == "" || !sel.useTLS {
		return p.transport
	}
	clone := p.transport.Clone()
	clone.TLSClientConfig.ServerName = sel.sni
	return clone
}

// failToConnect implements Phase 5.
func (p *Proxy) failToConnect(rc *requestContext, cause error) (retry bool, err error) {
	if rc.route == nil || rc.origin == nil {
		return false, newError(InternalInvariant, fmt.Errorf("fail-to-connect called without a route/origin in context: %w", cause))
	}
	rc.route.State.MarkDown(rc.originIndex, time.Now())
	if rc.tries > p.connectionRetryLimit {
		return false, newError(OriginConnect, cause)
	}
	return true, nil
}

// retryDecision applies the same tries/limit check Phase 5 uses to a
// Phase 2 failure (route/origin resolution), since spec.md's retry
// budget is shared across both failure points.
func (p *Proxy) retryDecision(rc *requestContext, err error) (retry bool, decided error) {
	pe, ok := err.(*proxyError)
	if !ok || !pe.kind.retryable() {
		return false, err
	}
	if rc.tries > p.connectionRetryLimit {
		return false, err
	}
	return true, nil
}

func (p *Proxy) respondError(w http.ResponseWriter, log logrus.FieldLogger, err error) {
	code := statusCode(err)
	if code == http.StatusInternalServerError {
		log.WithError(err).Error("internal invariant violated")
	} else {
		log.WithError(err).Debug("request rejected")
	}
	http.Error(w, http.StatusText(code), code)
}

// entryFromResponse buffers resp's body into memory and derives the
// cache Policy from its headers, closing resp.Body in all cases.
func entryFromResponse(resp *http.Response) (*cache.Entry, error) {
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, newError(OriginConnect, err)
	}
	return &cache.Entry{
		Body:       body,
		Header:     resp.Header.Clone(),
		StatusCode: resp.StatusCode,
		StoredAt:   time.Now(),
		Policy:     cache.ParsePolicy(resp.Header),
	}, nil
}
