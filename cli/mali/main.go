package main

import (
	"os"

	malicmder "github.com/nontawat9304/mali-chat/cmd/mali"
)

func main() {
	cmd := malicmder.NewMaliCmd()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
