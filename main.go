// Command vscp is a legacy VSCP bureau server and WLS front door. Run a
// single world's event loop with the "bureau" subcommand, or a
// multi-world front door that spawns bureaus on demand with "wls".
package main

import (
	"fmt"
	"os"
)

func main() {
	if len(os.Args) > 1 {
		if RunCLI(os.Args[1:]) {
			return
		}
	}
	fmt.Fprintln(os.Stderr, "usage: vscp <bureau|wls> [flags]")
	os.Exit(2)
}
