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

// Command relay runs the relay HTTP/HTTPS reverse proxy.
package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kingpin/v2"
	"github.com/sirupsen/logrus"
	_ "go.uber.org/automaxprocs"

	"github.com/relayproxy/relay/internal/build"
)

func main() {
	log := logrus.StandardLogger()

	app := kingpin.New("relay", "A caching HTTP/HTTPS reverse proxy.")
	app.HelpFlag.Short('h')

	serve, serveCtx := registerServe(app)
	version := app.Command("version", "Print relay's build information.")

	args := os.Args[1:]
	switch kingpin.MustParse(app.Parse(args)) {
	case serve.FullCommand():
		if serveCtx.debug {
			log.SetLevel(logrus.DebugLevel)
		}

		if err := serveCtx.resolve(); err != nil {
			log.WithError(err).Fatal("invalid configuration")
		}
		if err := serveCtx.Config.Validate(); err != nil {
			log.WithError(err).Fatal("invalid configuration")
		}

		if err := doServe(log, serveCtx); err != nil {
			log.WithError(err).Fatal("relay exited")
		}
	case version.FullCommand():
		fmt.Print(build.String())
	}
}
