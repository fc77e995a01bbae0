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

// Package admin serves the four-endpoint HTTP API used to mutate routes
// and TLS server certificates at runtime.
package admin

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"github.com/relayproxy/relay/internal/routestore"
)

// RouteHolder is the narrow interface AdminAPI needs from a route
// repository, decoupling this package from internal/routestore for
// testability.
type RouteHolder interface {
	Add(config routestore.RouteConfig) error
	Delete(name string)
}

// CertHolder is the narrow interface AdminAPI needs from a certificate
// repository, decoupling this package from internal/certstore.
type CertHolder interface {
	Add(host string, cert *tls.Certificate)
	Delete(host string)
}

// certBinding is the wire shape for /cert/add: PEM-encoded certificate
// and private key, carried as strings.
type certBinding struct {
	Host string `json:"host"`
	Cert string `json:"cert"`
	Key  string `json:"key"`
}

// Server implements the four admin endpoints as a http.Handler.
type Server struct {
	mux *http.ServeMux

	routes RouteHolder
	certs  CertHolder
	log    logrus.FieldLogger
}

// New wires the four endpoints against routes and certs.
func New(routes RouteHolder, certs CertHolder, log logrus.FieldLogger) *Server {
	if log == nil {
		log = logrus.StandardLogger()
	}
	s := &Server{routes: routes, certs: certs, log: log}

	mux := http.NewServeMux()
	mux.HandleFunc("/route/add", s.handlePost(s.routeAdd))
	mux.HandleFunc("/route/delete", s.handlePost(s.routeDelete))
	mux.HandleFunc("/cert/add", s.handlePost(s.certAdd))
	mux.HandleFunc("/cert/delete", s.handlePost(s.certDelete))
	s.mux = mux
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// handlePost enforces the POST-only contract (any other method → 405;
// ServeMux itself already maps any other path to 404) before delegating
// to fn.
func (s *Server) handlePost(fn func(*http.Request) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if err := fn(r); err != nil {
			s.log.WithError(err).Warn("admin request rejected")
			respond(w, http.StatusBadRequest, "")
			return
		}
		respond(w, http.StatusOK, "Success\n")
	}
}

var (
	errEmptyBody = errors.New("request body must not be empty")
	errNotUTF8   = errors.New("request body is not valid UTF-8")
)

func respond(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/html")
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(status)
	if body != "" {
		io.WriteString(w, body)
	}
}

func (s *Server) routeAdd(r *http.Request) error {
	var cfg routestore.RouteConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		return err
	}
	return s.routes.Add(cfg)
}

func (s *Server) routeDelete(r *http.Request) error {
	name, err := readUTF8Body(r)
	if err != nil {
		return err
	}
	s.routes.Delete(name)
	return nil
}

func (s *Server) certAdd(r *http.Request) error {
	var binding certBinding
	if err := json.NewDecoder(r.Body).Decode(&binding); err != nil {
		return err
	}
	cert, err := tls.X509KeyPair([]byte(binding.Cert), []byte(binding.Key))
	if err != nil {
		return err
	}
	leaf, err := x509.ParseCertificate(cert.Certificate[0])
	if err != nil {
		return err
	}
	cert.Leaf = leaf
	s.certs.Add(binding.Host, &cert)
	return nil
}

func (s *Server) certDelete(r *http.Request) error {
	host, err := readUTF8Body(r)
	if err != nil {
		return err
	}
	s.certs.Delete(host)
	return nil
}

func readUTF8Body(r *http.Request) (string, error) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return "", err
	}
	if len(body) == 0 {
		return "", errEmptyBody
	}
	if !utf8.Valid(body) {
		return "", errNotUTF8
	}
	return string(body), nil
}
