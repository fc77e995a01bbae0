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

package main

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/http2"

	"github.com/relayproxy/relay/internal/admin"
	"github.com/relayproxy/relay/internal/cache"
	"github.com/relayproxy/relay/internal/certstore"
	"github.com/relayproxy/relay/internal/proxy"
	"github.com/relayproxy/relay/internal/routestore"
	"github.com/relayproxy/relay/internal/workpool"
)

// registerServe wires up the "serve" command's flags. --conf only
// records the file path onto ctx.confFile; every other flag is bound
// onto ctx.flags, a separate zero-valued config.Parameters, so flag
// values never depend on where --conf falls on the command line. The
// two are combined once parsing completes, by ctx.resolve() (called
// from main.go).
func registerServe(app *kingpin.Application) (*kingpin.CmdClause, *serveContext) {
	ctx := newServeContext()
	serve := app.Command("serve", "Run the relay proxy.")

	serve.Flag("conf", "Path to relay's YAML configuration file.").Short('c').PlaceHolder("/path/to/relay.yaml").ExistingFileVar(&ctx.confFile)

	serve.Flag("debug", "Enable debug logging.").Short('d').BoolVar(&ctx.debug)

	serve.Flag("http-bind-addr", "Address a plaintext proxy listener binds to (repeatable).").PlaceHolder("<host:port>").StringsVar(&ctx.flags.Proxy.HTTPBindAddrs)
	serve.Flag("https-bind-addr", "Address a TLS proxy listener binds to (repeatable).").PlaceHolder("<host:port>").StringsVar(&ctx.flags.Proxy.HTTPSBindAddrs)
	serve.Flag("origin-down-time", "Seconds a failed origin is excluded from selection.").PlaceHolder("<seconds>").IntVar(&ctx.flags.Proxy.OriginDownTime)
	serve.Flag("connection-retry-limit", "Number of times to retry origin selection after a connect failure.").IntVar(&ctx.flags.Proxy.ConnectionRetryLimit)

	serve.Flag("cache-max-size", "Maximum number of response bytes held in the cache.").Int64Var(&ctx.flags.Cache.MaxSize)

	serve.Flag("admin-bind-addr", "Address the admin API listener binds to.").PlaceHolder("<host:port>").StringVar(&ctx.flags.API.BindAddr)
	serve.Flag("admin-tls", "Serve the admin API over TLS.").BoolVar(&ctx.flags.API.TLS)
	serve.Flag("admin-cert", "Admin API TLS certificate file.").PlaceHolder("/path/to/file").StringVar(&ctx.flags.API.Cert)
	serve.Flag("admin-key", "Admin API TLS key file.").PlaceHolder("/path/to/file").StringVar(&ctx.flags.API.Key)
	serve.Flag("admin-mutual-tls", "Require a client certificate on the admin API listener.").BoolVar(&ctx.flags.API.MutualTLS)
	serve.Flag("admin-client-cert", "CA bundle used to verify admin API client certificates.").PlaceHolder("/path/to/file").StringVar(&ctx.flags.API.ClientCert)

	return serve, ctx
}

// doServe builds relay's dependency graph from ctx.Config and runs every
// configured listener (N plaintext proxy, N TLS proxy, one admin) as
// members of one workpool.Group, so that any one of them exiting brings
// the rest down.
func doServe(log logrus.FieldLogger, ctx *serveContext) error {
	conf := ctx.Config

	originDownTime := time.Duration(conf.Proxy.OriginDownTime) * time.Second

	routes := routestore.New(log.WithField("context", "routestore"))
	certs := certstore.New(log.WithField("context", "certstore"))
	cacheEngine := cache.Init(conf.Cache.MaxSize, log.WithField("context", "cache"))

	var httpsPorts []int
	for _, addr := range conf.Proxy.HTTPSBindAddrs {
		_, portStr, err := net.SplitHostPort(addr)
		if err != nil {
			return fmt.Errorf("proxy.https_bind_addrs: %w", err)
		}
		port, err := net.LookupPort("tcp", portStr)
		if err != nil {
			return fmt.Errorf("proxy.https_bind_addrs: %w", err)
		}
		httpsPorts = append(httpsPorts, port)
	}

	p := proxy.New(routes, cacheEngine, httpsPorts, log.WithField("context", "proxy"),
		proxy.WithOriginDownTime(originDownTime),
		proxy.WithConnectionRetryLimit(conf.Proxy.ConnectionRetryLimit),
	)

	adminServer := admin.New(routes, certs, log.WithField("context", "admin"))

	var group workpool.Group

	for _, addr := range conf.Proxy.HTTPBindAddrs {
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			return fmt.Errorf("failed to bind plaintext proxy listener %s: %w", addr, err)
		}
		group.AddListener("http-proxy", ln, log, func(ln net.Listener) error {
			return http.Serve(ln, p)
		})
	}

	for _, addr := range conf.Proxy.HTTPSBindAddrs {
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			return fmt.Errorf("failed to bind TLS proxy listener %s: %w", addr, err)
		}
		httpsServer := &http.Server{Handler: p}
		if err := http2.ConfigureServer(httpsServer, &http2.Server{}); err != nil {
			return fmt.Errorf("failed to configure HTTP/2 on TLS proxy listener %s: %w", addr, err)
		}
		tlsLn := tls.NewListener(ln, &tls.Config{
			GetCertificate: certs.GetCertificate,
			NextProtos:     []string{"h2", "http/1.1"},
		})
		group.AddListener("https-proxy", tlsLn, log, func(ln net.Listener) error {
			return httpsServer.Serve(ln)
		})
	}

	adminLn, err := net.Listen("tcp", conf.API.BindAddr)
	if err != nil {
		return fmt.Errorf("failed to bind admin listener: %w", err)
	}
	if conf.API.TLS {
		adminCert, err := tls.LoadX509KeyPair(conf.API.Cert, conf.API.Key)
		if err != nil {
			return fmt.Errorf("failed to load admin TLS certificate: %w", err)
		}
		tlsConf := &tls.Config{Certificates: []tls.Certificate{adminCert}}
		if conf.API.MutualTLS {
			caBytes, err := os.ReadFile(conf.API.ClientCert)
			if err != nil {
				return fmt.Errorf("failed to read admin client certificate bundle: %w", err)
			}
			pool := x509.NewCertPool()
			if !pool.AppendCertsFromPEM(caBytes) {
				return fmt.Errorf("api.client_cert contains no usable certificates")
			}
			tlsConf.ClientCAs = pool
			tlsConf.ClientAuth = tls.RequireAndVerifyClientCert
		}
		adminLn = tls.NewListener(adminLn, tlsConf)
	} else {
		log.WithField("addr", conf.API.BindAddr).Warn("admin API listener has no TLS; any client that can reach it can change routes and certificates")
	}
	group.AddListener("admin", adminLn, log, func(ln net.Listener) error {
		return http.Serve(ln, adminServer)
	})

	return group.Run()
}
