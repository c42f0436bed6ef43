package main

import (
	"github.com/hallgrim/uplift/cmd"
)

// main is the entry point for the uplift CLI.
func main() {
	cmd.Execute()
}
