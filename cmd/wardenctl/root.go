package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "wardenctl",
	Short: "wardenctl boots and inspects a warden machine.",
	Long: `wardenctl wires a DRAM+bus+MMU+cache+CPU machine from a flag set, ` +
		`loads a flat binary image, and can run it headless or with a read-only ` +
		`monitor HTTP server attached.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("wardenctl: loading .env: %w", err)
		}
		return nil
	},
}

// Execute adds all child commands to the root command and runs it.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
