package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/covalent-hq/conclave/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default configuration file",
	Long: `Write the default configuration to .conclave/config.yaml.

Fails if the file already exists; edit the existing file instead.`,
	RunE: runInit,
}

var initPath string

func init() {
	rootCmd.AddCommand(initCmd)

	initCmd.Flags().StringVar(&initPath, "path", ".conclave/config.yaml",
		"Where to write the config file")
}

func runInit(_ *cobra.Command, _ []string) error {
	if err := config.WriteDefault(initPath); err != nil {
		return err
	}
	fmt.Printf("wrote %s\n", initPath)
	return nil
}
