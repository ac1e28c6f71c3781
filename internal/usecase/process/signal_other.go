//go:build !unix

package process

import (
	"os"
	"syscall"
)

// signalOf always reports false: there are no POSIX signals to decode here.
func signalOf(*os.ProcessState) (syscall.Signal, bool) {
	return 0, false
}
