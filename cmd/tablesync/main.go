// Command tablesync copies remote CSV tables to an FTPS or S3 store,
// once (manual) or every day at a fixed time (schedule).
package main

import (
	"os"

	"github.com/custodia-labs/tablesync/internal/adapters/driving/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
