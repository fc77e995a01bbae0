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
	"fmt"
	"os"

	"github.com/relayproxy/relay/internal/config"
)

// serveContext holds the "serve" command's raw inputs: the optional
// --conf file path, the debug flag, and flags kingpin binds directly
// onto the zero-valued flags field. Config is only ever produced by
// resolve(), which overlays flags onto the config file (or the
// built-in defaults, if no file is given) so that a flag's value always
// wins regardless of where --conf appears on the command line.
type serveContext struct {
	confFile string
	debug    bool

	flags  config.Parameters
	Config config.Parameters
}

func newServeContext() *serveContext {
	return &serveContext{}
}

// resolve computes ctx.Config. It must be called once, after kingpin has
// finished parsing the full command line.
func (ctx *serveContext) resolve() error {
	base := config.Defaults()
	if ctx.confFile != "" {
		f, err := os.Open(ctx.confFile)
		if err != nil {
			return fmt.Errorf("failed to open configuration file: %w", err)
		}
		defer f.Close()

		parsed, err := config.Parse(f)
		if err != nil {
			return err
		}
		base = *parsed
	}

	merged, err := config.Merge(base, ctx.flags)
	if err != nil {
		return err
	}
	ctx.Config = merged
	return nil
}
