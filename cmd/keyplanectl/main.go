package main

import (
	"os"

	"github.com/keyplane/keyplane/cmd/keyplanectl/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
