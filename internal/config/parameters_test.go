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

package config

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEmptyInputYieldsDefaults(t *testing.T) {
	conf, err := Parse(strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, Defaults(), *conf)
}

func TestParseOverridesOnlySpecifiedFields(t *testing.T) {
	yamlInput := `
proxy:
  http_bind_addrs: ["0.0.0.0:9090"]
cache:
  max_size: 1000
`
	conf, err := Parse(strings.NewReader(yamlInput))
	require.NoError(t, err)

	assert.Equal(t, []string{"0.0.0.0:9090"}, conf.Proxy.HTTPBindAddrs)
	assert.Equal(t, int64(1000), conf.Cache.MaxSize)
	assert.Equal(t, Defaults().Proxy.HTTPSBindAddrs, conf.Proxy.HTTPSBindAddrs)
}

func TestValidateRequiresCertAndKeyForTLS(t *testing.T) {
	p := Defaults()
	p.API.TLS = true
	assert.Error(t, p.Validate())

	p.API.Cert = "cert.pem"
	p.API.Key = "key.pem"
	assert.NoError(t, p.Validate())
}

func TestValidateRequiresTLSForMutualTLS(t *testing.T) {
	p := Defaults()
	p.API.MutualTLS = true
	assert.Error(t, p.Validate())

	p.API.TLS = true
	p.API.Cert = "cert.pem"
	p.API.Key = "key.pem"
	p.API.ClientCert = "ca.pem"
	assert.NoError(t, p.Validate())
}

func TestValidateRejectsNegativeOriginDownTime(t *testing.T) {
	p := Defaults()
	p.Proxy.OriginDownTime = -1
	assert.Error(t, p.Validate())
}

func TestMergeOverridesOnlyNonZeroFields(t *testing.T) {
	base := Defaults()
	override := Parameters{Proxy: ProxyParameters{HTTPBindAddrs: []string{"0.0.0.0:7070"}}}

	merged, err := Merge(base, override)
	require.NoError(t, err)

	assert.Equal(t, []string{"0.0.0.0:7070"}, merged.Proxy.HTTPBindAddrs)
	assert.Equal(t, base.Proxy.HTTPSBindAddrs, merged.Proxy.HTTPSBindAddrs)
	assert.Equal(t, base.Cache.MaxSize, merged.Cache.MaxSize)

	if diff := cmp.Diff(base.API, merged.API); diff != "" {
		t.Errorf("api parameters should be unaffected by the override (-base +merged):\n%s", diff)
	}
}

func TestMergeFlagsWinOverFileRegardlessOfFieldOrder(t *testing.T) {
	fileConf := Parameters{
		Proxy: ProxyParameters{
			HTTPBindAddrs:        []string{"127.0.0.1:8080"},
			HTTPSBindAddrs:       []string{"127.0.0.1:4433"},
			OriginDownTime:       30,
			ConnectionRetryLimit: 2,
		},
		Cache: CacheParameters{MaxSize: 500},
		API:   APIParameters{BindAddr: "127.0.0.1:5000"},
	}

	flags := Parameters{
		Proxy: ProxyParameters{HTTPBindAddrs: []string{"0.0.0.0:9999"}},
	}

	merged, err := Merge(fileConf, flags)
	require.NoError(t, err)

	assert.Equal(t, []string{"0.0.0.0:9999"}, merged.Proxy.HTTPBindAddrs, "a flag value must win over the file's value")
	assert.Equal(t, fileConf.Proxy.HTTPSBindAddrs, merged.Proxy.HTTPSBindAddrs, "fields the flags left unset must keep the file's value")
	assert.Equal(t, fileConf.Proxy.OriginDownTime, merged.Proxy.OriginDownTime)
	assert.Equal(t, fileConf.Cache.MaxSize, merged.Cache.MaxSize)
	assert.Equal(t, fileConf.API.BindAddr, merged.API.BindAddr)
}
