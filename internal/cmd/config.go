// Copyright 2025 Erst Users
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/dotandev/eventaggregator/internal/errors"
)

var configFormatFlag string

var configCmd = &cobra.Command{
	Use:     "config",
	GroupID: "utility",
	Short:   "Print the effective configuration",
	Long: `Print the configuration after defaults, the config file and EVENTAGG_*
environment variables have been merged. The output is a valid config file.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		switch configFormatFlag {
		case "toml":
			return toml.NewEncoder(out).Encode(loadedConfig)
		case "yaml":
			enc := yaml.NewEncoder(out)
			enc.SetIndent(2)
			if err := enc.Encode(loadedConfig); err != nil {
				return err
			}
			return enc.Close()
		default:
			return errors.WrapInvalidArgument("format " + configFormatFlag)
		}
	},
}

func init() {
	configCmd.Flags().StringVar(&configFormatFlag, "format", "toml", "Output format (toml, yaml)")
	rootCmd.AddCommand(configCmd)
}
