package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Jitendersingh2001/Wealthyfy/internal/config"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a wealthyfy.yml with the current configuration",
	Long: `init resolves the configuration the same way serve does (env vars,
project file, global file, defaults) and writes the result to a
project-local wealthyfy.yml so it can be edited in place.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := config.ProjectPath()
		if _, err := os.Stat(path); err == nil && !initForce {
			return fmt.Errorf("%s already exists; pass --force to overwrite", path)
		}

		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		if err := config.WriteProject(cfg); err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
		return nil
	},
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "overwrite an existing config file")
}
