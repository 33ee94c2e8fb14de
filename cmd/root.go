// Package cmd implements the easybuild CLI surface (spec.md §6),
// grounded on the teacher's cmd package shape (cmd/build.go's
// cobra.Command{Use,Short,Long,Run} skeleton) but with the root command
// actually wired up and executed, instead of left commented out.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"easybuild/config"
)

var cfgFile string
var profile string
var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "eb",
	Short: "easybuild: software build and module-generation framework",
	Long:  "easybuild resolves easyconfig dependencies, runs the build pipeline, and generates environment modules for HPC software stacks.",
	PersistentPreRunE: func(c *cobra.Command, args []string) error {
		loaded, err := config.Load(cfgFile, profile)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		cfg = loaded
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "configfile", "", "path to easybuild config file")
	rootCmd.PersistentFlags().StringVar(&profile, "profile", "default", "config profile to use")
}

// Execute runs the CLI, exiting with status 1 on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
