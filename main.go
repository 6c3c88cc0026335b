package main

import (
	"os"

	"prepbot/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
