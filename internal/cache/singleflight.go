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
	"time"

	"golang.org/x/sync/singleflight"
)

// LockTimeout bounds how long a request waits behind an in-flight fill
// for the same key before it proceeds independently, per spec: "late
// arrivers wait up to a bounded timeout before bypassing".
const LockTimeout = 2 * time.Second

// fillLock ensures at most one concurrent fill per cache key, bounded by
// LockTimeout. It wraps golang.org/x/sync/singleflight.Group, which by
// itself would block a waiter indefinitely.
type fillLock struct {
	group singleflight.Group
}

// do runs fn under the single-flight lock for key. If a fill for key is
// already in flight and does not complete within LockTimeout, do runs fn
// independently instead of continuing to wait.
func (l *fillLock) do(key string, fn func() (*Entry, error)) (*Entry, error) {
	resultCh := l.group.DoChan(key, func() (interface{}, error) {
		return fn()
	})

	select {
	case res := <-resultCh:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Entry), nil
	case <-time.After(LockTimeout):
		return fn()
	}
}
