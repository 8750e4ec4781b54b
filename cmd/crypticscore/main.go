// Package main is the crypticscore command line client.
package main

import (
	"fmt"
	"os"

	"github.com/ChapmaBeerbohm/crypticscore/client/cli"
)

func main() {
	if err := cli.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
