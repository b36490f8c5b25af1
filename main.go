// Package main is the entry point for the querygate CLI.
package main

import (
	"querygate/cli/cmd"
)

func main() {
	cmd.Execute()
}
