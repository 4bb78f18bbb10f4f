// Copyright 2025 walteh LLC
//
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
	"os"
	"path/filepath"
)

// RCFile is the extensionless config name, parsed as YAML or HCL
const RCFile = ".llmopt"

// candidates are checked in order by Find
var candidates = []string{
	RCFile + ".yaml",
	RCFile + ".yml",
	RCFile + ".hcl",
	RCFile + ".json",
	RCFile,
}

// 🔍 Find returns the first config file present in dir, or "" when none is
func Find(dir string) string {
	for _, name := range candidates {
		path := filepath.Join(dir, name)
		if info, err := os.Stat(path); err == nil && info.Mode().IsRegular() {
			return path
		}
	}
	return ""
}
