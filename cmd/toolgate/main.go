package main

import (
	"os"

	"github.com/toolgate-dev/toolgate/cmd/toolgate/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
