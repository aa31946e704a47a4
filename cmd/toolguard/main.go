package main

import (
	"os"

	"github.com/gzhole/toolguard/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
