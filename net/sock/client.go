package sock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"
)

// Client keeps at most one connection to a single remote endpoint and
// reconnects lazily. One read and one write may be in flight at a time.
type Client struct {
	opts      clientOptions
	name      string
	network   string
	addr      string
	typ       SockType
	dialer    *net.Dialer
	mu        sync.Mutex
	readMu    sync.Mutex
	writeMu   sync.Mutex
	conn      net.Conn
	inited    bool
	closed    bool
	closeOnce sync.Once
	doneChan  chan struct{}
}

type ioResult struct {
	n   int
	err error
}

func NewClient(name string, opt ...ClientOption) (*Client, error) {
	opts := defaultClientOptions()
	for _, o := range opt {
		o(&opts)
	}
	if err := opts.check(); err != nil {
		return nil, err
	}
	return &Client{
		opts: opts,
		name: name,
		dialer: &net.Dialer{
			Timeout:   opts.dialTimeout,
			KeepAlive: opts.keepAlivePeriod,
		},
		doneChan: make(chan struct{}),
	}, nil
}

func (c *Client) String() string {
	return fmt.Sprintf("[name:%s][dial_addr:%s]", c.Name(), c.Addr())
}

func (c *Client) Name() string {
	return c.name
}

func (c *Client) Addr() string {
	return c.addr
}

func (c *Client) Init(host, port string, family Family, typ SockType, proto Protocol) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inited {
		return fmt.Errorf("sock: client [%s] init [%w]", c, ErrAlreadyInitialized)
	}
	network, err := networkOf(family, typ, proto)
	if err != nil {
		return err
	}
	c.network = network
	c.addr = net.JoinHostPort(host, port)
	c.typ = typ
	c.inited = true
	return nil
}

// Connect dials the remote endpoint, retrying while it refuses, until
// ctx is done or the client is closed.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := c.connectLocked(ctx)
	return err
}

func (c *Client) connectLocked(ctx context.Context) (net.Conn, error) {
	if c.closed {
		return nil, fmt.Errorf("sock: client [%s] connect [%w]", c, ErrLocalShutdown)
	}
	if !c.inited {
		return nil, fmt.Errorf("sock: client [%s] connect [%w]", c, ErrNotInitialized)
	}
	if c.conn != nil {
		return c.conn, nil
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-c.doneChan:
			cancel()
		case <-ctx.Done():
		}
	}()
	for attempt := 1; ; attempt++ {
		conn, err := c.dialer.DialContext(ctx, c.network, c.addr)
		if err == nil {
			c.conn = conn
			slog.Info(fmt.Sprintf("sock: client [%s] connected", c),
				slog.String("local_addr", conn.LocalAddr().String()), slog.Int("attempts", attempt))
			return conn, nil
		}
		var dnsErr *net.DNSError
		switch {
		case ctx.Err() != nil:
			return nil, c.interrupted(ctx)
		case errors.As(err, &dnsErr):
			return nil, fmt.Errorf("sock: client [%s] resolve [%w]: %w", c, ErrAddressResolutionFailed, err)
		case isRefused(err):
			slog.Debug(fmt.Sprintf("sock: client [%s] connect refused, retry", c),
				slog.Int("attempt", attempt), slog.Duration("interval", c.opts.retryInterval))
		default:
			return nil, fmt.Errorf("sock: client [%s] connect [%w]: %w", c, ErrConnectFailed, err)
		}
		timer := time.NewTimer(c.opts.retryInterval)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return nil, c.interrupted(ctx)
		}
	}
}

func (c *Client) interrupted(ctx context.Context) error {
	select {
	case <-c.doneChan:
		return fmt.Errorf("sock: client [%s] connect [%w]", c, ErrLocalShutdown)
	default:
		return fmt.Errorf("sock: client [%s] connect [%w]: %w", c, ErrConnectFailed, ctx.Err())
	}
}

func (c *Client) ensureConn() (net.Conn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectLocked(context.Background())
}

// invalidate drops conn so the next call reconnects.
func (c *Client) invalidate(conn net.Conn) {
	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	c.mu.Unlock()
	if err := conn.Close(); err != nil && !isLocalShutdown(err) {
		slog.Error(fmt.Sprintf("sock: client [%s] close invalid conn", c), slog.Any("error", err))
	}
}

// SyncWrite sends buf, connecting first if needed. timeout <= 0 waits
// forever.
func (c *Client) SyncWrite(buf []byte, timeout time.Duration) (int, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	conn, err := c.ensureConn()
	if err != nil {
		return 0, err
	}
	return c.await(conn, "write", timeout, conn.SetWriteDeadline, func() (int, error) {
		return conn.Write(buf)
	})
}

// SyncRead receives into buf, connecting first if needed. timeout <= 0
// waits forever.
func (c *Client) SyncRead(buf []byte, timeout time.Duration) (int, error) {
	c.readMu.Lock()
	defer c.readMu.Unlock()
	conn, err := c.ensureConn()
	if err != nil {
		return 0, err
	}
	n, err := c.await(conn, "read", timeout, conn.SetReadDeadline, func() (int, error) {
		return conn.Read(buf)
	})
	if err == nil && n == 0 && c.typ == Stream {
		c.invalidate(conn)
		return 0, fmt.Errorf("sock: client [%s] read [%w]", c, ErrPeerClosed)
	}
	return n, err
}

// await issues op and waits for it up to timeout. A timed-out op is
// cancelled through its deadline and drained before returning, so its
// result can never leak into a later call.
func (c *Client) await(conn net.Conn, what string, timeout time.Duration,
	setDeadline func(time.Time) error, op func() (int, error)) (int, error) {
	if err := setDeadline(time.Time{}); err != nil && !isLocalShutdown(err) {
		c.invalidate(conn)
		return 0, fmt.Errorf("sock: client [%s] %s reset deadline [%w]", c, what, err)
	}
	ch := make(chan ioResult, 1)
	go func() {
		n, err := op()
		ch <- ioResult{n: n, err: err}
	}()
	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}
	var res ioResult
	select {
	case res = <-ch:
	case <-expired:
		if err := setDeadline(time.Now()); err != nil {
			slog.Debug(fmt.Sprintf("sock: client [%s] %s cancel", c, what), slog.Any("error", err))
		}
		res = <-ch
		if res.err != nil && isTimeout(res.err) {
			return res.n, fmt.Errorf("sock: client [%s] %s [%w]", c, what, ErrOperationTimedOut)
		}
	}
	switch err := res.err; {
	case err == nil:
		return res.n, nil
	case isTimeout(err):
		return res.n, fmt.Errorf("sock: client [%s] %s [%w]", c, what, ErrOperationTimedOut)
	case isLocalShutdown(err):
		return res.n, fmt.Errorf("sock: client [%s] %s [%w]", c, what, ErrLocalShutdown)
	case isPeerClosed(err):
		c.invalidate(conn)
		return res.n, fmt.Errorf("sock: client [%s] %s [%w]: %w", c, what, ErrPeerClosed, err)
	default:
		c.invalidate(conn)
		return res.n, fmt.Errorf("sock: client [%s] %s [%w]", c, what, err)
	}
}

func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		close(c.doneChan)
	})
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	if c.conn == nil {
		return nil
	}
	conn := c.conn
	c.conn = nil
	if err := conn.Close(); err != nil && !isLocalShutdown(err) {
		return fmt.Errorf("sock: client [%s] close [%w]", c, err)
	}
	return nil
}
