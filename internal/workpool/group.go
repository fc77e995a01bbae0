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

// Package workpool manages the lifetime of relay's long-running
// goroutines: the proxy HTTP and HTTPS listeners (one per configured
// address) and the admin listener all run as members of one Group so
// that any one of them exiting brings the rest down cleanly.
package workpool

import (
	"context"
	"net"
	"sync"

	"github.com/sirupsen/logrus"
)

// Group manages a set of goroutines with related lifetimes. The zero
// value is usable without initialization.
type Group struct {
	fns []func(<-chan struct{}) error
}

// Add registers fn to run in its own goroutine when Run is called. fn
// must return promptly once its stop channel closes.
func (g *Group) Add(fn func(<-chan struct{}) error) {
	g.fns = append(g.fns, fn)
}

// AddContext registers fn, wrapping it with a context.Context that is
// canceled when the Group's stop channel fires.
func (g *Group) AddContext(fn func(context.Context)) {
	g.Add(func(stop <-chan struct{}) error {
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		go func() {
			defer close(done)
			fn(ctx)
		}()
		<-stop
		cancel()
		<-done
		return nil
	})
}

// AddListener registers a net.Listener-backed server: serve is called
// once with ln, and when the Group's stop channel fires ln is closed so
// that serve's blocking Accept loop returns. log receives one entry when
// the listener starts and one when it stops, tagged with name, matching
// the diagnostic trail an operator needs to tell relay's listeners apart
// in a shared log stream.
func (g *Group) AddListener(name string, ln net.Listener, log logrus.FieldLogger, serve func(net.Listener) error) {
	g.Add(func(stop <-chan struct{}) error {
		log.WithField("listener", name).WithField("addr", ln.Addr().String()).Info("listener starting")

		var closeOnce sync.Once
		go func() {
			<-stop
			closeOnce.Do(func() { ln.Close() })
		}()

		err := serve(ln)
		closeOnce.Do(func() { ln.Close() })

		log.WithField("listener", name).WithError(err).Info("listener stopped")
		return err
	})
}

// Run starts every registered function in its own goroutine and blocks
// until the first one returns. That return triggers the stop channel
// shared by every other function, and Run waits for all of them to exit
// before returning the first error observed.
func (g *Group) Run() error {
	if len(g.fns) == 0 {
		return nil
	}

	var wg sync.WaitGroup
	wg.Add(len(g.fns))

	stop := make(chan struct{})
	results := make(chan error, len(g.fns))
	for _, fn := range g.fns {
		go func(fn func(<-chan struct{}) error) {
			defer wg.Done()
			results <- fn(stop)
		}(fn)
	}

	defer wg.Wait()
	defer close(stop)
	return <-results
}
