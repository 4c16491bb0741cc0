// Command umux-demo is a small, non-interactive program that drives the
// umux engine end to end: spawn a session, send it some input, wait for a
// pattern to appear, capture the screen, then dispose the session. It is
// not a transport or CLI front end (spec.md §1 scopes those out) — just a
// demonstration of the library surface.
package main

import (
	"fmt"
	"os"

	"umux/internal/cmd"
)

func main() {
	if err := cmd.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
