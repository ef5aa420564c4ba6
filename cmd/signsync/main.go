package main

import (
	"os"

	"github.com/c0deZ3R0/signsync/cmd/signsync/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
