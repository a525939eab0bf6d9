// Copyright (C) 2026 Relens AI (oss@relens.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/relens-ai/relens/pkg/logging"
)

var config Config

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		path := configPath
		explicit := path != ""
		if path == "" {
			path = defaultConfigPath()
		}

		loaded, err := loadConfig(path, explicit)
		if err != nil {
			return err
		}
		config = loaded

		// Flags win over the config file.
		if project != "" {
			config.Project = project
		}
		if repoPath != "" {
			config.Repo = repoPath
		}

		logger := logging.New(logging.Config{
			Level:   logging.ParseLevel(config.LogLevel),
			LogDir:  config.LogDir,
			Service: "relens",
		})
		logger.SetDefault()
		return nil
	}
}
