package http

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
)

type ResponseWriter = http.ResponseWriter
type Request = http.Request
type HandlerFunc = func(ResponseWriter, *Request)

type state int

const (
	stateIdle state = iota
	stateListening
	stateServing
	stateShutdown
)

func (st state) String() string {
	switch st {
	case stateIdle:
		return "idle"
	case stateListening:
		return "listening"
	case stateServing:
		return "serving"
	default:
		return "shutdown"
	}
}

// Server splits listening from serving so the bound address is known,
// and logged, before requests are accepted.
type Server struct {
	opts    serverOptions
	name    string
	network string
	addr    string
	mux     *http.ServeMux
	server  *http.Server
	lisAddr atomic.Value
	serveWg sync.WaitGroup
	mu      sync.Mutex
	state   state
	lis     net.Listener
}

func NewServer(name, network, addr string, opt ...ServerOption) *Server {
	opts := defaultServerOptions()
	for _, o := range opt {
		o(&opts)
	}
	opts.ensure()
	if addr == "" {
		addr = ":http"
	}
	mux := http.NewServeMux()
	return &Server{
		opts:    opts,
		name:    name,
		network: network,
		addr:    addr,
		mux:     mux,
		server: &http.Server{
			Handler:           mux,
			ReadHeaderTimeout: opts.readHeaderTimeout,
			WriteTimeout:      opts.writeTimeout,
		},
	}
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

// Handle routes pattern to h wrapped in the configured middlewares.
func (s *Server) Handle(pattern string, h HandlerFunc) {
	if h == nil {
		panic(fmt.Sprintf("http: server %s handle [%s] nil handler", s, pattern))
	}
	s.mux.HandleFunc(pattern, chain(h, s.opts.middlewares))
}

func (s *Server) ListenAndServe() error {
	if err := s.Listen(); err != nil {
		return err
	}
	return s.Serve()
}

func (s *Server) Listen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != stateIdle {
		return errors.Errorf("http: server %s listen while %s", s, s.state)
	}
	lis, err := net.Listen(s.network, s.addr)
	if err != nil {
		return errors.Wrapf(err, "http: server %s listen", s)
	}
	s.lis = lis
	s.lisAddr.Store(lis.Addr().String())
	s.state = stateListening
	return nil
}

// Serve blocks until Shutdown. It returns nil on a clean shutdown.
func (s *Server) Serve() error {
	s.mu.Lock()
	if s.state != stateListening {
		st := s.state
		s.mu.Unlock()
		return errors.Errorf("http: server %s serve while %s", s, st)
	}
	s.state = stateServing
	lis := s.lis
	s.serveWg.Add(1)
	defer s.serveWg.Done()
	s.mu.Unlock()
	err := s.server.Serve(lis)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return errors.Wrapf(err, "http: server %s serve", s)
}

// Shutdown stops accepting and waits up to the shutdown timeout for
// in-flight requests.
func (s *Server) Shutdown() {
	s.mu.Lock()
	prev := s.state
	s.state = stateShutdown
	lis := s.lis
	s.mu.Unlock()
	switch prev {
	case stateShutdown, stateIdle:
		return
	case stateListening:
		// http.Server never saw the listener.
		if err := lis.Close(); err != nil {
			slog.Error(fmt.Sprintf("http: server [%s] close listener", s), slog.Any("error", err))
		}
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.opts.shutdownTimeout)
	defer cancel()
	if err := s.server.Shutdown(ctx); err != nil {
		slog.Error(fmt.Sprintf("http: server [%s] shutdown", s),
			slog.Any("error", errors.WithStack(err)))
	}
	s.serveWg.Wait()
}

func Error(w ResponseWriter, error string, code int) {
	http.Error(w, error, code)
}
