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

	"github.com/pkg/errors"
)

// Kind classifies a proxyError so ServeHTTP can decide the client status
// code and whether the request is eligible for retry.
type Kind int

const (
	// InternalInvariant indicates a programming error: the context is
	// missing a field that this phase requires. Never retried.
	InternalInvariant Kind = iota
	ClientRequest
	RouteNotFound
	OriginGroupEmpty
	OriginResolve
	OriginConnect
	AdminBadRequest
)

// proxyError carries a Kind alongside the wrapped cause so ServeHTTP can
// classify a failure without re-inspecting error strings.
type proxyError struct {
	kind  Kind
	cause error
}

func newError(kind Kind, cause error) *proxyError {
	return &proxyError{kind: kind, cause: errors.WithStack(cause)}
}

func (e *proxyError) Error() string {
	return e.cause.Error()
}

func (e *proxyError) Unwrap() error {
	return e.cause
}

// retryable reports whether this Kind may be resolved by re-entering
// Phase 2 with a different origin, subject to the tries/limit check the
// caller performs separately.
func (k Kind) retryable() bool {
	switch k {
	case OriginResolve, OriginConnect:
		return true
	default:
		return false
	}
}

// statusCode is the HTTP status rendered to the client when err is not
// retried (or retries are exhausted).
func statusCode(err error) int {
	pe, ok := err.(*proxyError)
	if !ok {
		return http.StatusInternalServerError
	}
	switch pe.kind {
	case ClientRequest:
		return http.StatusBadRequest
	case RouteNotFound:
		return http.StatusNotFound
	case OriginGroupEmpty, OriginResolve, OriginConnect:
		return http.StatusBadGateway
	case AdminBadRequest:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
