package http

import (
	"time"
)

type serverOptions struct {
	middlewares       []Middleware
	readHeaderTimeout time.Duration
	writeTimeout      time.Duration
	shutdownTimeout   time.Duration
}

func defaultServerOptions() serverOptions {
	return serverOptions{
		middlewares:       []Middleware{NewRecoverMiddleware()},
		readHeaderTimeout: 10 * time.Second,
		shutdownTimeout:   5 * time.Second,
	}
}

func (opts *serverOptions) ensure() {
	if opts.readHeaderTimeout < 0 {
		panic("http: serverOptions readHeaderTimeout < 0")
	}
	if opts.writeTimeout < 0 {
		panic("http: serverOptions writeTimeout < 0")
	}
	if opts.shutdownTimeout <= 0 {
		panic("http: serverOptions shutdownTimeout <= 0")
	}
}

type ServerOption func(o *serverOptions)

// ServerMiddlewares appends ms after the ones already configured. The
// first middleware is the outermost.
func ServerMiddlewares(ms ...Middleware) ServerOption {
	return func(o *serverOptions) {
		o.middlewares = append(o.middlewares, ms...)
	}
}

// ServerWithoutMiddlewares drops every middleware, the default recover
// one included.
func ServerWithoutMiddlewares() ServerOption {
	return func(o *serverOptions) {
		o.middlewares = nil
	}
}

func ServerReadHeaderTimeout(readHeaderTimeout time.Duration) ServerOption {
	return func(o *serverOptions) {
		o.readHeaderTimeout = readHeaderTimeout
	}
}

// ServerWriteTimeout must stay 0 for servers that hijack long-lived
// connections.
func ServerWriteTimeout(writeTimeout time.Duration) ServerOption {
	return func(o *serverOptions) {
		o.writeTimeout = writeTimeout
	}
}

func ServerShutdownTimeout(shutdownTimeout time.Duration) ServerOption {
	return func(o *serverOptions) {
		o.shutdownTimeout = shutdownTimeout
	}
}
