package main

import (
	"os"

	"transaction-import-service/cmd/importer/cmd"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	// Set version information
	cmd.SetVersionInfo(version, commit, date)

	os.Exit(cmd.Execute())
}
