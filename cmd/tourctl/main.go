package main

import (
	"fmt"
	"os"

	"loyalty-rewards-be/internal/cli"
)

func main() {
	if err := cli.NewRootCmd(cli.OpenConfiguredStore).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
