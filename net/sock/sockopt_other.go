//go:build !unix

package sock

import (
	"syscall"
)

// controlFunc leaves socket options to the runtime defaults.
func controlFunc(reuseAddr bool, recvBufSize int) func(network, address string, c syscall.RawConn) error {
	return nil
}
