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

// Package config holds the YAML configuration schema relay is started
// with: listener addresses, cache sizing and the admin API's TLS posture.
package config

import (
	"fmt"
	"io"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// ProxyParameters configures the request-plane listeners and the
// Proxy's retry/mark-down behavior. Any number of plain-TCP and TLS
// bind addresses may be given; relay starts one listener per entry.
type ProxyParameters struct {
	HTTPBindAddrs        []string `yaml:"http_bind_addrs"`
	HTTPSBindAddrs       []string `yaml:"https_bind_addrs"`
	OriginDownTime       int      `yaml:"origin_down_time"`
	ConnectionRetryLimit int      `yaml:"connection_retry_limit"`
}

// CacheParameters configures the byte-budgeted LRU cache.
type CacheParameters struct {
	MaxSize int64 `yaml:"max_size"`
}

// APIParameters configures the admin listener and its optional TLS/mTLS
// posture.
type APIParameters struct {
	BindAddr   string `yaml:"bind_addr"`
	TLS        bool   `yaml:"tls"`
	Cert       string `yaml:"cert"`
	Key        string `yaml:"key"`
	MutualTLS  bool   `yaml:"mutual_tls"`
	ClientCert string `yaml:"client_cert"`
}

// Parameters is the top-level relay configuration, as spec.md §6 defines
// it: exactly the proxy, cache and api keys.
type Parameters struct {
	Proxy ProxyParameters `yaml:"proxy"`
	Cache CacheParameters `yaml:"cache"`
	API   APIParameters   `yaml:"api"`
}

// Defaults returns the parameter set relay runs with when the config
// file and command-line flags are both silent on a given field.
func Defaults() Parameters {
	return Parameters{
		Proxy: ProxyParameters{
			HTTPBindAddrs:        []string{"0.0.0.0:8080"},
			HTTPSBindAddrs:       []string{"0.0.0.0:4433"},
			OriginDownTime:       10,
			ConnectionRetryLimit: 1,
		},
		Cache: CacheParameters{
			MaxSize: 100 * 1024 * 1024,
		},
		API: APIParameters{
			BindAddr: "0.0.0.0:5000",
		},
	}
}

// Parse reads parameters from a YAML input stream. Any field the input
// does not specify keeps its value from Defaults().
func Parse(in io.Reader) (*Parameters, error) {
	conf := Defaults()
	decoder := yaml.NewDecoder(in)
	if err := decoder.Decode(&conf); err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}
	return &conf, nil
}

// Merge overlays override onto base, returning the result: any
// zero-valued field in override (including a nil/empty bind-address
// list) keeps base's value. Used by cmd/relay to let command-line flags
// take precedence over the YAML file without hand-written per-field
// merge code.
func Merge(base, override Parameters) (Parameters, error) {
	if err := mergo.Merge(&base, override, mergo.WithOverride); err != nil {
		return Parameters{}, fmt.Errorf("failed to merge configuration overrides: %w", err)
	}
	return base, nil
}

// Validate checks the structural preconditions spec.md §6 states: a TLS
// admin listener needs a cert/key pair, and mutual TLS additionally
// needs a client certificate bundle.
func (p *Parameters) Validate() error {
	if p.Proxy.OriginDownTime < 0 {
		return fmt.Errorf("proxy.origin_down_time must not be negative")
	}
	if p.Proxy.ConnectionRetryLimit < 0 {
		return fmt.Errorf("proxy.connection_retry_limit must not be negative")
	}
	if p.Cache.MaxSize <= 0 {
		return fmt.Errorf("cache.max_size must be positive")
	}
	if p.API.MutualTLS && !p.API.TLS {
		return fmt.Errorf("api.mutual_tls requires api.tls")
	}
	if p.API.TLS && (p.API.Cert == "" || p.API.Key == "") {
		return fmt.Errorf("api.tls requires both api.cert and api.key")
	}
	if p.API.MutualTLS && p.API.ClientCert == "" {
		return fmt.Errorf("api.mutual_tls requires api.client_cert")
	}
	return nil
}
