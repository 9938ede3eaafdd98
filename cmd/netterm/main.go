// Command netterm is a network terminal: what is typed goes to a remote
// UDP or TCP endpoint, what arrives on the local port is rendered with
// its ANSI colors.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/hsgames/netterm/app"
)

func main() {
	var f flags
	fs := flag.NewFlagSet(os.Args[0], flag.ExitOnError)
	f.register(fs)
	_ = fs.Parse(os.Args[1:])
	if err := app.RunFramework(newNetTerm(f, os.Stdin, os.Stdout)); err != nil {
		fmt.Fprintf(os.Stderr, "%+v\n", err)
		os.Exit(1)
	}
}
