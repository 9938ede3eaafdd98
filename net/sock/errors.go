package sock

import (
	"errors"
	"io"
	"net"
	"os"
	"syscall"
)

var (
	ErrAlreadyInitialized      = errors.New("sock: already initialized")
	ErrNotInitialized          = errors.New("sock: not initialized")
	ErrAddressResolutionFailed = errors.New("sock: address resolution failed")
	ErrBindFailed              = errors.New("sock: bind failed")
	ErrConnectRefused          = errors.New("sock: connect refused")
	ErrConnectFailed           = errors.New("sock: connect failed")
	ErrInvalidConnectionHandle = errors.New("sock: invalid connection handle")
	ErrPeerClosed              = errors.New("sock: peer closed")
	ErrLocalShutdown           = errors.New("sock: local shutdown")
	ErrOperationTimedOut       = errors.New("sock: operation timed out")
	ErrOutOfMemory             = errors.New("sock: out of memory")
	ErrInvalidArgument         = errors.New("sock: invalid argument")
	ErrServerStopped           = errors.New("sock: server stopped")
)

// isLocalShutdown reports an operation interrupted because this side
// closed the socket.
func isLocalShutdown(err error) bool {
	return errors.Is(err, net.ErrClosed)
}

func isTimeout(err error) bool {
	return errors.Is(err, os.ErrDeadlineExceeded)
}

func isRefused(err error) bool {
	return errors.Is(err, syscall.ECONNREFUSED)
}

// isPeerClosed reports an orderly or abortive close by the remote side.
func isPeerClosed(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNABORTED) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, syscall.ECONNREFUSED)
}
