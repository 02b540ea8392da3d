package main

import (
	"os"

	"github.com/dshills/revgate/internal/cli"
)

func main() {
	os.Exit(cli.Run())
}
