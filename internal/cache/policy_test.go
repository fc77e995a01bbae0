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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParsePolicyDefaultsWhenSilent(t *testing.T) {
	p := ParsePolicy(http.Header{})
	assert.Equal(t, DefaultMaxAge, p.MaxAge)
	assert.Equal(t, DefaultStaleWhileRevalidate, p.StaleWhileRevalidate)
	assert.Equal(t, DefaultStaleIfError, p.StaleIfError)
	assert.False(t, p.NoStore)
	assert.False(t, p.NoCache)
}

func TestParsePolicyDirectives(t *testing.T) {
	h := http.Header{}
	h.Set("Cache-Control", "max-age=60, stale-while-revalidate=10, stale-if-error=20, no-cache, private")
	p := ParsePolicy(h)

	assert.Equal(t, 60*time.Second, p.MaxAge)
	assert.Equal(t, 10*time.Second, p.StaleWhileRevalidate)
	assert.Equal(t, 20*time.Second, p.StaleIfError)
	assert.True(t, p.NoCache)
	assert.True(t, p.Private)
}

func TestParsePolicyNoStore(t *testing.T) {
	h := http.Header{}
	h.Set("Cache-Control", "no-store")
	p := ParsePolicy(h)
	assert.True(t, p.NoStore)
	assert.False(t, p.Cacheable(http.StatusOK))
}

func TestCacheableRejectsPrivateAndNonOK(t *testing.T) {
	p := Policy{MaxAge: DefaultMaxAge}
	assert.True(t, p.Cacheable(http.StatusOK))
	assert.False(t, p.Cacheable(http.StatusNotFound))

	p.Private = true
	assert.False(t, p.Cacheable(http.StatusOK))
}

func TestClassifyBoundaries(t *testing.T) {
	p := Policy{MaxAge: 10 * time.Second, StaleWhileRevalidate: 5 * time.Second}

	assert.Equal(t, Hit, p.Classify(9*time.Second))
	assert.Equal(t, Hit, p.Classify(10*time.Second))
	assert.Equal(t, Stale, p.Classify(11*time.Second))
	assert.Equal(t, Stale, p.Classify(15*time.Second))
	assert.Equal(t, Expired, p.Classify(16*time.Second))
}
