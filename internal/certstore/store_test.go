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

package certstore

import (
	"crypto/tls"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsaarni/certyaml"
)

func genCert(t *testing.T, cn string) *tls.Certificate {
	t.Helper()
	c := certyaml.Certificate{Subject: "cn=" + cn, SubjectAltNames: []string{"DNS:" + cn}}
	cert, err := c.TLSCertificate()
	require.NoError(t, err)
	return &cert
}

func TestAddLookupDelete(t *testing.T) {
	s := New(nil)
	certA := genCert(t, "a.test")
	certB := genCert(t, "b.test")

	s.Add("a.test", certA)
	s.Add("b.test", certB)

	got, ok := s.Lookup("a.test")
	require.True(t, ok)
	assert.Same(t, certA, got)

	_, ok = s.Lookup("c.test")
	assert.False(t, ok)

	s.Delete("a.test")
	_, ok = s.Lookup("a.test")
	assert.False(t, ok)
}

func TestGetCertificateSNIRouting(t *testing.T) {
	s := New(nil)
	certA := genCert(t, "a.test")
	s.Add("a.test", certA)

	got, err := s.GetCertificate(&tls.ClientHelloInfo{ServerName: "a.test"})
	require.NoError(t, err)
	assert.Same(t, certA, got)

	got, err = s.GetCertificate(&tls.ClientHelloInfo{ServerName: "c.test"})
	require.NoError(t, err)
	assert.Nil(t, got, "unregistered SNI must fail closed, not fall back to a default cert")
}

func TestDeleteAbsentHostWarnsNotPanics(t *testing.T) {
	s := New(nil)
	assert.NotPanics(t, func() { s.Delete("absent.test") })
}
