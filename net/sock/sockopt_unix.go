//go:build unix

package sock

import (
	"syscall"

	"golang.org/x/sys/unix"
)

func controlFunc(reuseAddr bool, recvBufSize int) func(network, address string, c syscall.RawConn) error {
	if !reuseAddr && recvBufSize <= 0 {
		return nil
	}
	return func(network, address string, c syscall.RawConn) error {
		var serr error
		err := c.Control(func(fd uintptr) {
			if reuseAddr {
				if serr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); serr != nil {
					return
				}
			}
			if recvBufSize > 0 {
				serr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_RCVBUF, recvBufSize)
			}
		})
		if err != nil {
			return err
		}
		return serr
	}
}
