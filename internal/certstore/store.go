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

// Package certstore holds the SNI-indexed repository of TLS server
// certificates the admin API mutates and the TLS listener consults during
// the handshake.
package certstore

import (
	"crypto/tls"
	"sync"

	"github.com/sirupsen/logrus"
)

// Store maps hostnames (SNI values) to a certificate/key pair. All three
// operations are simple map operations behind one reader-writer lock;
// returned certificates are snapshots and are never mutated once handed
// out — updates always install a fresh *tls.Certificate under the host.
type Store struct {
	mu   sync.RWMutex
	byHost map[string]*tls.Certificate

	log logrus.FieldLogger
}

func New(log logrus.FieldLogger) *Store {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Store{byHost: make(map[string]*tls.Certificate), log: log}
}

// Lookup returns the certificate bound to host, if any.
func (s *Store) Lookup(host string) (*tls.Certificate, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cert, ok := s.byHost[host]
	return cert, ok
}

// Add installs (or replaces) the certificate bound to host.
func (s *Store) Add(host string, cert *tls.Certificate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byHost[host] = cert
}

// Delete removes the certificate bound to host, if any. It warns when the
// host had no binding — the source this was distilled from has this
// condition inverted (it warns when the binding *did* exist); that is a
// bug and relay does not reproduce it.
func (s *Store) Delete(host string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byHost[host]; !ok {
		s.log.WithField("host", host).Warn("attempted to delete a cert that doesn't exist")
		return
	}
	delete(s.byHost, host)
}

// GetCertificate is wired as tls.Config.GetCertificate. On a miss it logs
// and returns (nil, nil) so the handshake fails closed via the stdlib's
// default behavior — relay deliberately does not fall back to an
// unrelated default certificate.
func (s *Store) GetCertificate(hello *tls.ClientHelloInfo) (*tls.Certificate, error) {
	cert, ok := s.Lookup(hello.ServerName)
	if !ok {
		s.log.WithField("sni", hello.ServerName).Warn("no certificate bound for SNI; handshake will fail closed")
		return nil, nil
	}
	return cert, nil
}
