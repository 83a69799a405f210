package main

import (
	"os"

	"github.com/dshills/prsum/internal/cli"
)

func main() {
	os.Exit(cli.Run())
}
