// gokernel boots a simulated preemptive kernel: a process table, a
// priority scheduler with aging, counting semaphores, and pipes, all
// driving an interactive shell over the host terminal.
//
// Commands:
//
//	boot    - boot the kernel and run its shell
//	version - print version information
package main

import (
	"fmt"
	"os"

	"gokernel/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "gokernel:", err)
		os.Exit(1)
	}
}
