package sock

import (
	"fmt"
	"time"
)

type serverOptions struct {
	teardownTimeout time.Duration
	maxConnNum      int
	keepAlivePeriod time.Duration
	reuseAddr       bool
	recvBufSize     int
}

func defaultServerOptions() serverOptions {
	return serverOptions{
		teardownTimeout: time.Second,
		keepAlivePeriod: 3 * time.Minute,
		reuseAddr:       true,
	}
}

func (opts *serverOptions) check() error {
	if opts.teardownTimeout <= 0 {
		return fmt.Errorf("sock: server options teardownTimeout [%s] <= 0", opts.teardownTimeout)
	}
	if opts.maxConnNum < 0 {
		return fmt.Errorf("sock: server options maxConnNum [%d] < 0", opts.maxConnNum)
	}
	if opts.recvBufSize < 0 {
		return fmt.Errorf("sock: server options recvBufSize [%d] < 0", opts.recvBufSize)
	}
	return nil
}

type ServerOption func(o *serverOptions)

// WithTeardownTimeout bounds how long Close waits for the reactor to
// acknowledge a connection and how long Stop waits for each goroutine.
func WithTeardownTimeout(teardownTimeout time.Duration) ServerOption {
	return func(o *serverOptions) {
		o.teardownTimeout = teardownTimeout
	}
}

// WithMaxConnNum caps concurrently accepted stream connections. 0 means
// no limit.
func WithMaxConnNum(maxConnNum int) ServerOption {
	return func(o *serverOptions) {
		o.maxConnNum = maxConnNum
	}
}

// WithKeepAlivePeriod sets TCP keep-alive on accepted connections; a
// negative value disables it.
func WithKeepAlivePeriod(keepAlivePeriod time.Duration) ServerOption {
	return func(o *serverOptions) {
		o.keepAlivePeriod = keepAlivePeriod
	}
}

func WithReuseAddr(reuseAddr bool) ServerOption {
	return func(o *serverOptions) {
		o.reuseAddr = reuseAddr
	}
}

// WithRecvBufSize sets SO_RCVBUF on the bound socket. 0 keeps the
// system default.
func WithRecvBufSize(recvBufSize int) ServerOption {
	return func(o *serverOptions) {
		o.recvBufSize = recvBufSize
	}
}

type clientOptions struct {
	retryInterval   time.Duration
	dialTimeout     time.Duration
	keepAlivePeriod time.Duration
}

func defaultClientOptions() clientOptions {
	return clientOptions{
		retryInterval:   time.Second,
		keepAlivePeriod: 3 * time.Minute,
	}
}

func (opts *clientOptions) check() error {
	if opts.retryInterval <= 0 {
		return fmt.Errorf("sock: client options retryInterval [%s] <= 0", opts.retryInterval)
	}
	if opts.dialTimeout < 0 {
		return fmt.Errorf("sock: client options dialTimeout [%s] < 0", opts.dialTimeout)
	}
	return nil
}

type ClientOption func(o *clientOptions)

// WithRetryInterval is the pause between attempts while the peer
// refuses connections.
func WithRetryInterval(retryInterval time.Duration) ClientOption {
	return func(o *clientOptions) {
		o.retryInterval = retryInterval
	}
}

func WithDialTimeout(dialTimeout time.Duration) ClientOption {
	return func(o *clientOptions) {
		o.dialTimeout = dialTimeout
	}
}

func WithClientKeepAlivePeriod(keepAlivePeriod time.Duration) ClientOption {
	return func(o *clientOptions) {
		o.keepAlivePeriod = keepAlivePeriod
	}
}
