// # cmd/polybuild/main.go
package main

import (
	"os"

	"polybuild/internal/ui/cli"
)

func main() {
	os.Exit(cli.Run(os.Args[1:], os.Stdout, os.Stderr))
}
