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

// Package routestore holds the concurrent, indexed repository of routes
// that the proxy consults on every request and the admin API mutates.
package routestore

import (
	"encoding/json"
	"fmt"
)

// IncomingScheme is the scheme a client used to reach the proxy, inferred
// from the local listener port.
type IncomingScheme int

const (
	SchemeHTTP IncomingScheme = iota
	SchemeHTTPS
)

func (s IncomingScheme) String() string {
	switch s {
	case SchemeHTTP:
		return "Http"
	case SchemeHTTPS:
		return "Https"
	default:
		return "Unknown"
	}
}

func (s IncomingScheme) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *IncomingScheme) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	switch str {
	case "Http":
		*s = SchemeHTTP
	case "Https":
		*s = SchemeHTTPS
	default:
		return fmt.Errorf("unknown incoming scheme %q", str)
	}
	return nil
}

// OutgoingScheme governs how the proxy dials the chosen origin.
type OutgoingScheme int

const (
	// MatchIncoming mirrors the scheme the client used to reach the proxy.
	// It is the zero value and therefore the default when a RouteConfig
	// omits the field.
	MatchIncoming OutgoingScheme = iota
	OutgoingHTTP
	OutgoingHTTPS
)

func (s OutgoingScheme) String() string {
	switch s {
	case OutgoingHTTP:
		return "Http"
	case OutgoingHTTPS:
		return "Https"
	default:
		return "MatchIncoming"
	}
}

func (s OutgoingScheme) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *OutgoingScheme) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	switch str {
	case "Http":
		*s = OutgoingHTTP
	case "Https":
		*s = OutgoingHTTPS
	case "", "MatchIncoming":
		*s = MatchIncoming
	default:
		return fmt.Errorf("unknown outgoing scheme %q", str)
	}
	return nil
}

// Origin is one upstream server in an OriginGroup. It is immutable once
// registered: updates replace the whole RouteConfig (and therefore the
// whole OriginGroup) rather than mutating an Origin in place.
type Origin struct {
	Host               string `json:"host"`
	HTTPPort           uint16 `json:"httpPort"`
	HTTPSPort          uint16 `json:"httpsPort"`
	HostHeaderOverride string `json:"hostHeaderOverride,omitempty"`
	SNI                string `json:"sni,omitempty"`
	// Weight biases weighted-random selection toward this origin. It
	// defaults to 10 when the JSON body omits it. Zero means the origin is
	// never drawn; if every eligible origin has zero weight, selection
	// fails.
	Weight uint32 `json:"weight"`
}

// UnmarshalJSON decodes an Origin, defaulting Weight to 10 only when the
// field is absent, so an explicit zero weight is kept.
func (o *Origin) UnmarshalJSON(data []byte) error {
	type plain Origin
	p := plain{Weight: 10}
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*o = Origin(p)
	return nil
}

func (o *Origin) applyDefaults() {
	if o.HTTPPort == 0 {
		o.HTTPPort = 80
	}
	if o.HTTPSPort == 0 {
		o.HTTPSPort = 443
	}
}

// OriginGroup is the ordered pool of origins a Route may dispatch to. The
// order is meaningful only as the index used by RouteState.downEndpoints.
type OriginGroup struct {
	Origins []Origin `json:"origins"`
}

// RouteConfig is the immutable unit installed by the admin API. Replacing
// a route by name always installs a fresh RouteConfig; nothing inside an
// installed RouteConfig is ever mutated.
type RouteConfig struct {
	Name            string                        `json:"name"`
	Customer        string                        `json:"customer"`
	IncomingSchemes map[IncomingScheme]struct{}    `json:"incomingSchemes"`
	Hosts           []string                       `json:"hosts"`
	Paths           []string                       `json:"paths"`
	Cache           bool                           `json:"cache"`
	OutgoingScheme  OutgoingScheme                 `json:"outgoingScheme"`
	OriginGroup     OriginGroup                    `json:"originGroup"`
}

// routeConfigWire is the JSON wire shape: IncomingSchemes travels as an
// array (as in the admin API's wire format) rather than as the map we use
// internally for fast membership tests.
type routeConfigWire struct {
	Name            string         `json:"name"`
	Customer        string         `json:"customer"`
	IncomingSchemes []IncomingScheme `json:"incomingSchemes"`
	Hosts           []string       `json:"hosts"`
	Paths           []string       `json:"paths"`
	Cache           bool           `json:"cache"`
	OutgoingScheme  OutgoingScheme `json:"outgoingScheme"`
	OriginGroup     OriginGroup    `json:"originGroup"`
}

func (c RouteConfig) MarshalJSON() ([]byte, error) {
	w := routeConfigWire{
		Name:           c.Name,
		Customer:       c.Customer,
		Hosts:          c.Hosts,
		Paths:          c.Paths,
		Cache:          c.Cache,
		OutgoingScheme: c.OutgoingScheme,
		OriginGroup:    c.OriginGroup,
	}
	for s := range c.IncomingSchemes {
		w.IncomingSchemes = append(w.IncomingSchemes, s)
	}
	return json.Marshal(w)
}

func (c *RouteConfig) UnmarshalJSON(data []byte) error {
	var w routeConfigWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	c.Name = w.Name
	c.Customer = w.Customer
	c.Hosts = w.Hosts
	c.Paths = w.Paths
	c.Cache = w.Cache
	c.OutgoingScheme = w.OutgoingScheme
	c.OriginGroup = w.OriginGroup
	c.IncomingSchemes = make(map[IncomingScheme]struct{}, len(w.IncomingSchemes))
	for _, s := range w.IncomingSchemes {
		c.IncomingSchemes[s] = struct{}{}
	}
	return nil
}

// Validate checks the structural invariants a RouteConfig must satisfy
// before Add is allowed to install it.
func (c *RouteConfig) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("route name must not be empty")
	}
	if len(c.IncomingSchemes) == 0 {
		return fmt.Errorf("route %q: incomingSchemes must not be empty", c.Name)
	}
	for _, p := range c.Paths {
		if p == "" || p[0] != '/' {
			return fmt.Errorf("route %q: path %q must begin with '/'", c.Name, p)
		}
	}
	for i := range c.OriginGroup.Origins {
		c.OriginGroup.Origins[i].applyDefaults()
	}
	return nil
}

// TotalWeight returns the sum of origin weights, used by Add to warn
// about zero-weight-only origin groups (see DESIGN.md, Open Question 1).
func (g OriginGroup) TotalWeight() uint64 {
	var total uint64
	for _, o := range g.Origins {
		total += uint64(o.Weight)
	}
	return total
}
