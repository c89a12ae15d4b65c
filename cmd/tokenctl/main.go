package main

import "github.com/rzbill/tokenvault/pkg/cli/cmd"

func main() {
	cmd.Execute()
}
