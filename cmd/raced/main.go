package main

import (
	"os"

	"github.com/wxflow/raceway/cmd/raced/commands"
)

func main() {
	os.Exit(commands.Execute())
}
