// Copyright 2026 The CloudSync Authors
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

// Package cmd is the thin CLI surface named as out-of-scope in spec.md
// §1: it exists only to wire the core's collaborators together, modeled
// on the teacher's cmd/root.go + cmd/mount.go.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/meganz/cloudsync/internal/config"
)

var (
	cfgFile string
	bindErr error
	cfg     config.Config
)

var rootCmd = &cobra.Command{
	Use:   "cloudsync [flags] bucket mount_point",
	Short: "Mount a cloud bucket as a local filesystem",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if bindErr != nil {
			return bindErr
		}
		if err := viper.Unmarshal(&cfg); err != nil {
			return fmt.Errorf("unmarshaling config: %w", err)
		}
		cfg.Cloud.Bucket = args[0]
		config.Rationalize(&cfg)
		if err := config.Validate(&cfg); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
		return runMount(cmd.Context(), &cfg, args[1])
	},
}

// Execute runs the root command, matching the teacher's Execute().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective, rationalized configuration as YAML",
	RunE: func(cmd *cobra.Command, args []string) error {
		if bindErr != nil {
			return bindErr
		}
		if err := viper.Unmarshal(&cfg); err != nil {
			return fmt.Errorf("unmarshaling config: %w", err)
		}
		config.Rationalize(&cfg)
		out, err := config.Dump(&cfg)
		if err != nil {
			return fmt.Errorf("rendering config: %w", err)
		}
		_, err = cmd.OutOrStdout().Write(out)
		return err
	},
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config-file", "", "Path to a YAML config file.")
	bindErr = config.BindFlags(rootCmd.PersistentFlags())
	rootCmd.AddCommand(configCmd)
}

func initConfig() {
	if cfgFile == "" {
		return
	}
	viper.SetConfigFile(cfgFile)
	viper.SetConfigType("yaml")
	if err := viper.ReadInConfig(); err != nil {
		bindErr = fmt.Errorf("reading config file: %w", err)
	}
}
