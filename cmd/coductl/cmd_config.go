package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/codu-code/codu/internal/config"
)

const configHeader = "# Codú configuration\n# Copy this file to config.yaml and adjust as needed\n\n"

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Work with configuration files",
}

var configGenerateCmd = &cobra.Command{
	Use:   "generate [file]",
	Short: "Write a config file with every default filled in",
	Long:  `Write the default configuration to file (config.example.yaml by default, "-" for stdout).`,
	Args:  cobra.MaximumNArgs(1),
	// Generating defaults must not require an existing config.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	RunE:              runConfigGenerate,
}

func runConfigGenerate(cmd *cobra.Command, args []string) error {
	data, err := yaml.Marshal(config.Default())
	if err != nil {
		return fmt.Errorf("generate yaml: %w", err)
	}
	output := configHeader + string(data)

	target := "config.example.yaml"
	if len(args) == 1 {
		target = args[0]
	}

	if target == "-" {
		fmt.Fprint(cmd.OutOrStdout(), output)
		return nil
	}
	if err := os.WriteFile(target, []byte(output), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", target, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Generated example config: %s\n", target)
	return nil
}
