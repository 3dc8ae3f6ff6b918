package main

import (
	"os"

	"taskflow/taskflow-api/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
