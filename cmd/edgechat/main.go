package main

import (
	"os"

	"github.com/harun/edgechat/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
