// Copyright (c) 2025 Fraunhofer AISEC
// Fraunhofer-Gesellschaft zur Foerderung der angewandten Forschung e.V.
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

package internal

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("service", "internal")

// GetFile reads a file given as absolute path or relative to the optional
// base directory (usually the directory of the configuration file)
func GetFile(file string, base *string) ([]byte, error) {
	if file == "" {
		return nil, fmt.Errorf("empty filename passed")
	}
	f, err := GetFilePath(file, base)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read file %v: %w", f, err)
	}
	return data, nil
}

// GetFilePath resolves a path. Absolute paths are returned as is, relative
// paths are first looked up relative to base and then relative to the
// current working directory
func GetFilePath(file string, base *string) (string, error) {

	if filepath.IsAbs(file) {
		log.Tracef("Using absolute path %v", file)
		return file, nil
	}

	searched := make([]string, 0, 2)
	if base != nil {
		rf, err := filepath.Abs(filepath.Join(*base, file))
		if err == nil {
			if FileExists(rf) {
				log.Tracef("Resolved %v relative to %v", file, *base)
				return rf, nil
			}
			searched = append(searched, rf)
		}
	}

	wf, err := filepath.Abs(file)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path of %v: %w", file, err)
	}
	if FileExists(wf) {
		log.Tracef("Resolved %v relative to working directory", file)
		return wf, nil
	}
	searched = append(searched, wf)

	return "", fmt.Errorf("failed to find file. Places searched: %v", searched)
}

func FileExists(f string) bool {
	if _, err := os.Stat(f); err == nil {
		return true
	}
	return false
}

// FlagPassed reports whether the command line flag was explicitly set
func FlagPassed(name string) bool {
	found := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return found
}
