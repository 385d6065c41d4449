package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ternarybob/usagedash/internal/common"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		printVersion()
	},
}

func printVersion() {
	fmt.Printf("usagedash version %s\n", common.GetFullVersion())
}
