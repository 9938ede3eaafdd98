package sock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hsgames/netterm/id"
	"github.com/hsgames/netterm/pool/bytespool"
	"golang.org/x/net/netutil"
)

// Server multiplexes every connection of one bound endpoint onto a
// single reactor goroutine.
type Server struct {
	opts         serverOptions
	name         string
	network      string
	addr         string
	typ          SockType
	ids          id.Generator
	reg          *registry
	completions  chan completion
	mu           sync.Mutex
	closeLisOnce sync.Once
	lis          net.Listener
	pconn        net.PacketConn
	lisAddr      atomic.Value
	cb           Callback
	cbCtx        any
	bufSize      int
	inited       bool
	started      bool
	stopped      bool
	terminating  atomic.Bool
	recvDelay    time.Duration
	reactorDone  <-chan struct{}
	listenerDone chan struct{}
	doneChan     chan struct{}
}

func NewServer(name string, opt ...ServerOption) (*Server, error) {
	opts := defaultServerOptions()
	for _, o := range opt {
		o(&opts)
	}
	if err := opts.check(); err != nil {
		return nil, err
	}
	return &Server{
		opts:        opts,
		name:        name,
		reg:         newRegistry(),
		completions: make(chan completion),
		doneChan:    make(chan struct{}),
	}, nil
}

func (s *Server) String() string {
	return fmt.Sprintf("[name:%s][listen_addr:%s]", s.Name(), s.Addr())
}

func (s *Server) Name() string {
	return s.name
}

func (s *Server) Addr() string {
	if lisAddr := s.lisAddr.Load(); lisAddr != nil {
		return lisAddr.(string)
	}
	return s.addr
}

// ConnNum is the number of records currently in the registry.
func (s *Server) ConnNum() int {
	return s.reg.Len()
}

// Handles lists live connections in accept order.
func (s *Server) Handles() []Handle {
	var hs []Handle
	s.reg.Range(func(rec *record) bool {
		hs = append(hs, rec.handle)
		return true
	})
	return hs
}

// Init binds the local endpoint. port may be a number or a service name.
func (s *Server) Init(port string, family Family, typ SockType, proto Protocol) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return fmt.Errorf("sock: server [%s] init [%w]", s, ErrServerStopped)
	}
	if s.inited {
		return fmt.Errorf("sock: server [%s] init [%w]", s, ErrAlreadyInitialized)
	}
	network, err := networkOf(family, typ, proto)
	if err != nil {
		return err
	}
	addr := net.JoinHostPort("", port)
	laddr, err := resolveAddr(network, addr)
	if err != nil {
		return fmt.Errorf("sock: server [%s] resolve [%s] [%w]: %w",
			s, addr, ErrAddressResolutionFailed, err)
	}
	lc := net.ListenConfig{
		Control:   controlFunc(s.opts.reuseAddr, s.opts.recvBufSize),
		KeepAlive: s.opts.keepAlivePeriod,
	}
	switch typ {
	case Stream:
		lis, err := lc.Listen(context.Background(), network, laddr.String())
		if err != nil {
			return fmt.Errorf("sock: server [%s] listen [%s] [%w]: %w",
				s, laddr, ErrBindFailed, err)
		}
		s.lisAddr.Store(lis.Addr().String())
		if s.opts.maxConnNum > 0 {
			lis = netutil.LimitListener(lis, s.opts.maxConnNum)
		}
		s.lis = lis
	case Datagram:
		pconn, err := lc.ListenPacket(context.Background(), network, laddr.String())
		if err != nil {
			return fmt.Errorf("sock: server [%s] listen packet [%s] [%w]: %w",
				s, laddr, ErrBindFailed, err)
		}
		s.lisAddr.Store(pconn.LocalAddr().String())
		s.pconn = pconn
	}
	s.network = network
	s.addr = addr
	s.typ = typ
	s.inited = true
	return nil
}

// Start begins receiving. For stream sockets in Sync mode it blocks in
// the accept loop until Stop.
func (s *Server) Start(cb Callback, cbCtx any, bufSize int, mode ListenMode) error {
	if cb == nil {
		return fmt.Errorf("sock: server [%s] start callback is nil [%w]", s, ErrInvalidArgument)
	}
	if bufSize <= 0 {
		return fmt.Errorf("sock: server [%s] start bufSize [%d] <= 0 [%w]", s, bufSize, ErrInvalidArgument)
	}
	if mode != Sync && mode != Async {
		return fmt.Errorf("sock: server [%s] start mode [%d] [%w]", s, mode, ErrInvalidArgument)
	}
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return fmt.Errorf("sock: server [%s] start [%w]", s, ErrServerStopped)
	}
	if !s.inited {
		s.mu.Unlock()
		return fmt.Errorf("sock: server [%s] start [%w]", s, ErrNotInitialized)
	}
	if s.started {
		s.mu.Unlock()
		return fmt.Errorf("sock: server [%s] already started [%w]", s, ErrAlreadyInitialized)
	}
	s.cb = cb
	s.cbCtx = cbCtx
	s.bufSize = bufSize
	s.started = true
	s.startReactor()
	if s.typ == Datagram {
		defer s.mu.Unlock()
		// One spare byte tells an oversize datagram apart from one that
		// exactly fills the buffer.
		buf := bytespool.Get(bufSize + 1)
		if buf == nil {
			return fmt.Errorf("sock: server [%s] start [%w]", s, ErrOutOfMemory)
		}
		rec := newPacketRecord(Handle(s.ids.Next()), s.pconn, buf)
		s.reg.Insert(rec)
		rec.arm(s.completions, s.reactorDone)
		slog.Info(fmt.Sprintf("sock: server [%s] receiving", s), slog.String("network", s.network))
		return nil
	}
	done := make(chan struct{})
	s.listenerDone = done
	s.mu.Unlock()
	slog.Info(fmt.Sprintf("sock: server [%s] listening", s), slog.String("network", s.network))
	if mode == Async {
		go func() {
			defer close(done)
			s.listen()
		}()
		return nil
	}
	defer close(done)
	s.listen()
	return nil
}

// Write sends data on h. Datagram writes go to the last peer heard from.
func (s *Server) Write(h Handle, data []byte, timeout time.Duration) (int, error) {
	rec := s.reg.Get(h)
	if rec == nil {
		return 0, fmt.Errorf("sock: server [%s] write [%s] [%w]", s, h, ErrInvalidConnectionHandle)
	}
	return rec.write(data, timeout)
}

// Close runs the close protocol on h: detach, invalidate the socket,
// wait for the reactor's acknowledgment, release. Called from a Callback
// the acknowledgment cannot arrive, so Close returns
// ErrOperationTimedOut after the teardown timeout; the connection is
// released all the same.
func (s *Server) Close(h Handle) error {
	rec := s.reg.RemoveHandle(h)
	if rec == nil {
		return fmt.Errorf("sock: server [%s] close [%s] [%w]", s, h, ErrInvalidConnectionHandle)
	}
	return s.closeRecord(rec)
}

func (s *Server) closeRecord(rec *record) error {
	var errs []error
	if err := rec.detach(); err != nil {
		errs = append(errs, err)
	}
	timer := time.NewTimer(s.opts.teardownTimeout)
	defer timer.Stop()
	select {
	case <-rec.closed:
		rec.release(true)
	case <-timer.C:
		rec.release(false)
		err := fmt.Errorf("sock: server [%s] close record %s ack [%w]", s, rec, ErrOperationTimedOut)
		slog.Error(fmt.Sprintf("sock: server [%s] close record", s), slog.Any("error", err))
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (s *Server) drain() []error {
	var errs []error
	for rec := s.reg.RemoveHead(); rec != nil; rec = s.reg.RemoveHead() {
		if err := s.closeRecord(rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

func (s *Server) await(done <-chan struct{}, what string) error {
	if done == nil {
		return nil
	}
	timer := time.NewTimer(s.opts.teardownTimeout)
	defer timer.Stop()
	select {
	case <-done:
		return nil
	case <-timer.C:
		return fmt.Errorf("sock: server [%s] join %s [%w]", s, what, ErrOperationTimedOut)
	}
}

// Stop closes every connection, terminates the reactor and then the
// listener. It is safe to call more than once.
func (s *Server) Stop() error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	started := s.started
	listenerDone := s.listenerDone
	s.mu.Unlock()
	close(s.doneChan)
	var errs []error
	if started {
		errs = append(errs, s.drain()...)
		s.terminating.Store(true)
		s.reg.pulse()
		if err := s.await(s.reactorDone, "reactor"); err != nil {
			errs = append(errs, err)
		}
	}
	if s.lis != nil {
		if err := s.closeListener(); err != nil {
			errs = append(errs, err)
		}
		if err := s.await(listenerDone, "listener"); err != nil {
			errs = append(errs, err)
		}
	}
	if s.pconn != nil && !started {
		if err := s.pconn.Close(); err != nil && !isLocalShutdown(err) {
			errs = append(errs, fmt.Errorf("sock: server [%s] close packet conn [%w]", s, err))
		}
	}
	// The listener may have inserted a record between the first drain
	// and its own exit.
	errs = append(errs, s.drain()...)
	s.reg.Reset(s.name)
	err := errors.Join(errs...)
	if err != nil {
		slog.Error(fmt.Sprintf("sock: server [%s] stop", s), slog.Any("error", err))
	} else {
		slog.Info(fmt.Sprintf("sock: server [%s] stopped", s))
	}
	return err
}

func (s *Server) closeListener() error {
	var err error
	s.closeLisOnce.Do(func() {
		if e := s.lis.Close(); e != nil && !isLocalShutdown(e) {
			err = fmt.Errorf("sock: server [%s] close listener [%w]", s, e)
		}
	})
	return err
}
