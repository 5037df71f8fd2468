package cmd

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

// Set at build time with -ldflags "-X datasync/cmd.Version=...".
var (
	Version   = "dev"
	BuildTime = "unknown"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Display DataSync version information",
	Long: `Print the DataSync release, the time the binary was built and the Go
toolchain it was built with. The same version is reported as the "version"
metadata of the /health endpoint when running 'datasync serve'.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "DataSync version %s\n", Version)
		fmt.Fprintf(w, "Built at: %s\n", BuildTime)
		fmt.Fprintf(w, "Go: %s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
