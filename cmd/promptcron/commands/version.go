package commands

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

// VersionCmd prints the build version
var VersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show promptcron version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("promptcron %s\n", Version)
		fmt.Printf("Go: %s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
	},
}
