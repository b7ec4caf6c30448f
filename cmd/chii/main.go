// Command chii keeps a local, queryable cache of a user's media collections.
package main

import (
	"os"

	"github.com/roach88/chii/internal/cli"
)

func main() {
	os.Exit(cli.Execute(os.Args[1:], os.Stdout, os.Stderr))
}
