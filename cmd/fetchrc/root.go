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


package main

import (
	"context"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gitlab.com/tozd/go/errors"

	"github.com/walteh/fetchrc/cmd/fetchrc/opts"
	"github.com/walteh/fetchrc/pkg/config"
)

// skipConfigAnnotation marks commands that run without a config file
const skipConfigAnnotation = "fetchrc/skip-config"

var (
	// Flags
	configFile string
	debug      bool
)

// loadRootOpts loads the config named by --config, or the first default config in the working directory
func loadRootOpts(ctx context.Context, rootOpts *opts.RootOpts) error {
	path := configFile
	if path == "" {
		found, err := config.Find(".")
		if err != nil {
			return err
		}
		path = found
	}

	cfg, err := config.LoadConfig(ctx, path)
	if err != nil {
		return errors.Errorf("loading config: %w", err)
	}

	rootOpts.Config = cfg
	return nil
}

// addRootFlags adds shared flags to the root command
func addRootFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file path (default: .fetchrc.{yaml,yml,json,hcl} in the working directory)")
	cmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "enable debug logging")
}

// setupLogging configures zerolog based on flags and attaches the logger to ctx
func setupLogging(ctx context.Context) context.Context {
	if debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	zerolog.DefaultContextLogger = &logger
	return logger.WithContext(ctx)
}
