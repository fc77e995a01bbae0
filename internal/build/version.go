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

package build

import (
	"gopkg.in/yaml.v3"
)

// Info holds the build-time stamped version metadata.
type Info struct {
	Branch  string `yaml:"branch,omitempty"`
	Sha     string `yaml:"sha,omitempty"`
	Version string `yaml:"version,omitempty"`
}

// Branch, Sha and Version are set at build time via -ldflags.
var (
	Branch  string
	Sha     string
	Version string
)

// String renders the stamped build info as YAML, for the CLI's `version`
// command.
func String() string {
	out, err := yaml.Marshal(Info{Branch: Branch, Sha: Sha, Version: Version})
	if err != nil {
		panic(err)
	}
	return string(out)
}
