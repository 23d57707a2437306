package cli

import (
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, _ []string) {
		cmd.Printf("tablesync version %s\n", version)
	},
}

// userAgent identifies fetch requests with the build version.
func userAgent() string {
	return "tablesync/" + version
}

func init() {
	// Also serves --version, which cobra renders as "tablesync version <v>".
	rootCmd.Version = version
	rootCmd.AddCommand(versionCmd)
}
