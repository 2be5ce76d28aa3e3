package main

import (
	"os"

	"github.com/G-Research/importscheduler/cmd/importer/cmd"
	"github.com/G-Research/importscheduler/internal/common"
)

func main() {
	common.ConfigureLogging()
	if err := cmd.RootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
