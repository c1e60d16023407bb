// Command haphap-ctl sends requests to a running haphapd over its IPC socket.
package main

import (
	"fmt"
	"os"
)

func main() {
	cmd := NewRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(GetExitCode(err))
	}
}
