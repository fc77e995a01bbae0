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
	"github.com/google/uuid"
	"github.com/relayproxy/relay/internal/cache"
	"github.com/relayproxy/relay/internal/routestore"
)

// requestContext tracks everything the phase pipeline accumulates for one
// client request. It is not safe for concurrent use; one value per
// request, owned by the goroutine running ServeHTTP.
type requestContext struct {
	requestID string

	incomingScheme routestore.IncomingScheme
	host           string
	path           string

	route       *routestore.Route
	origin      *routestore.Origin
	originIndex int
	tries       int

	cacheEnabled bool
	cacheKey     string
	cachePhase   cache.Phase
}

func newRequestContext() *requestContext {
	return &requestContext{
		requestID:  uuid.NewString(),
		cachePhase: cache.Invalid,
	}
}
