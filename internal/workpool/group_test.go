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

package workpool

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGroupRunWithNoRegisteredFunctions(t *testing.T) {
	var g Group
	assert.NoError(t, g.Run())
}

func TestGroupFirstReturnValueIsReturnedToRunsCaller(t *testing.T) {
	var g Group
	wait := make(chan struct{})

	g.Add(func(<-chan struct{}) error {
		<-wait
		return io.EOF
	})
	g.Add(func(stop <-chan struct{}) error {
		<-stop
		return errors.New("stopped")
	})

	result := make(chan error, 1)
	go func() { result <- g.Run() }()
	close(wait)

	assert.ErrorIs(t, <-result, io.EOF)
}

func TestGroupAddContextCancelsOnStop(t *testing.T) {
	var g Group
	wait := make(chan struct{})
	canceled := make(chan struct{})

	g.Add(func(<-chan struct{}) error {
		<-wait
		return io.EOF
	})
	g.AddContext(func(ctx context.Context) {
		<-ctx.Done()
		close(canceled)
	})

	go g.Run()
	close(wait)

	select {
	case <-canceled:
	case <-time.After(time.Second):
		t.Fatal("AddContext function was not canceled")
	}
}

func TestGroupAddListenerClosesListenerOnStop(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	var g Group
	served := make(chan error, 1)
	g.AddListener("test", ln, logrus.StandardLogger(), func(ln net.Listener) error {
		err := http.Serve(ln, http.NotFoundHandler())
		served <- err
		return err
	})
	g.Add(func(stop <-chan struct{}) error {
		return nil
	})

	assert.NoError(t, g.Run())
	assert.Error(t, <-served, "http.Serve must return once its listener is closed")
}
