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

package config_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/walteh/fetchrc/pkg/config"
)

func ExampleLoadConfig_yaml() {
	ctx := context.Background()
	dir, err := os.MkdirTemp("", "fetchrc-example")
	if err != nil {
		fmt.Printf("Error creating dir: %v\n", err)
		return
	}
	defer os.RemoveAll(dir)

	configYAML := `
resources:
  - name: schema
    destination: gen/schema.json
    bundle: bundle/schema.json
    remote: https://example.com/schema.json
    policy: always_copy
  - destination: gen/notes.txt
    remote: https://example.com/notes.txt
`
	configPath := filepath.Join(dir, ".fetchrc.yaml")
	if err := os.WriteFile(configPath, []byte(configYAML), 0644); err != nil {
		fmt.Printf("Error writing config: %v\n", err)
		return
	}

	cfg, err := config.LoadConfig(ctx, configPath)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		return
	}

	items, err := cfg.Items(ctx)
	if err != nil {
		fmt.Printf("Error building items: %v\n", err)
		return
	}

	for _, item := range items {
		rel, _ := filepath.Rel(dir, item.Destination)
		fmt.Printf("%s <- %s (%s)\n", filepath.ToSlash(rel), item.Kind(), item.Policy)
	}

	// Output:
	// gen/schema.json <- both (always_copy)
	// gen/notes.txt <- remote (only_when_new)
}

func ExampleLoadConfig_hcl() {
	ctx := context.Background()
	dir, err := os.MkdirTemp("", "fetchrc-example")
	if err != nil {
		fmt.Printf("Error creating dir: %v\n", err)
		return
	}
	defer os.RemoveAll(dir)

	configHCL := `
max_concurrency = 2

resource "readme" {
  destination = "README.md"
  bundle      = "bundle/README.md"
}
`
	configPath := filepath.Join(dir, ".fetchrc.hcl")
	if err := os.WriteFile(configPath, []byte(configHCL), 0644); err != nil {
		fmt.Printf("Error writing config: %v\n", err)
		return
	}

	cfg, err := config.LoadConfig(ctx, configPath)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		return
	}

	fmt.Printf("Loaded %d resource(s), max concurrency %d\n", len(cfg.Resources), cfg.MaxConcurrency)
	fmt.Printf("First resource: %s -> %s\n", cfg.Resources[0].Name, cfg.Resources[0].Destination)

	// Output:
	// Loaded 1 resource(s), max concurrency 2
	// First resource: readme -> README.md
}
