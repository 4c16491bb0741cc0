// Package cmd wires the umux-demo cobra command tree.
package cmd

import (
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root cobra command for umux-demo.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "umux-demo",
		Short: "Drive the umux session engine end to end",
		Long:  "umux-demo spawns a session, sends it input, waits on a condition, captures the screen, and disposes the session, exercising the umux engine without a transport or CLI front end.",
	}

	rootCmd.AddCommand(newRunCmd())

	return rootCmd
}
