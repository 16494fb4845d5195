package main

import (
	"os"

	"github.com/renkit/renotize/pkg/cli"
	"github.com/renkit/renotize/pkg/failure"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(failure.ExitCode(err))
	}
}
