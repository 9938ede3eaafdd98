package mirror

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/eapache/queue"
	"github.com/gorilla/websocket"
	"github.com/hsgames/netterm/id"
	"github.com/hsgames/netterm/net/http"
	"github.com/hsgames/netterm/net/sock"
	"github.com/hsgames/netterm/safe"
	"github.com/pkg/errors"
)

// Server mirrors terminal output to websocket viewers. New viewers first
// get a replay of the recent backlog.
type Server struct {
	*http.Server
	opts         options
	upgrader     *websocket.Upgrader
	ids          id.Generator
	viewersWg    sync.WaitGroup
	mu           sync.Mutex
	viewers      map[*viewer]struct{}
	backlog      *queue.Queue
	backlogBytes int
	shutdown     bool
}

var _ sock.Callback = (*Server)(nil)

type viewer struct {
	name      string
	conn      *websocket.Conn
	send      chan []byte
	closeOnce sync.Once
	done      chan struct{}
}

func (v *viewer) close() {
	v.closeOnce.Do(func() {
		close(v.done)
	})
}

func NewServer(name, network, addr string, opt ...Option) (*Server, error) {
	opts := defaultOptions()
	for _, o := range opt {
		o(&opts)
	}
	if err := opts.check(); err != nil {
		return nil, err
	}
	s := &Server{
		opts: opts,
		upgrader: &websocket.Upgrader{
			HandshakeTimeout: opts.handshakeTimeout,
			CheckOrigin:      func(_ *http.Request) bool { return opts.checkOrigin },
		},
		viewers: make(map[*viewer]struct{}),
		backlog: queue.New(),
	}
	s.Server = http.NewServer(name, network, addr, opts.httpOpts...)
	s.Handle(opts.pattern, s.serve)
	return s, nil
}

func (s *Server) ViewerNum() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.viewers)
}

// DataReceived lets the mirror sit directly behind a sock.Server.
func (s *Server) DataReceived(_ sock.Handle, _ any, data []byte) {
	s.Broadcast(data)
}

// Broadcast copies data into the backlog and queues it for every viewer.
// A viewer whose queue is full is disconnected.
func (s *Server) Broadcast(data []byte) {
	if len(data) == 0 {
		return
	}
	b := make([]byte, len(data))
	copy(b, data)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.shutdown {
		return
	}
	s.appendBacklog(b)
	for v := range s.viewers {
		select {
		case v.send <- b:
		default:
			slog.Warn(fmt.Sprintf("mirror: server [%s] viewer [%s] too slow", s, v.name))
			delete(s.viewers, v)
			v.close()
		}
	}
}

func (s *Server) appendBacklog(b []byte) {
	if s.opts.backlogSize == 0 {
		return
	}
	s.backlog.Add(b)
	s.backlogBytes += len(b)
	for s.backlogBytes > s.opts.backlogSize && s.backlog.Length() > 1 {
		s.backlogBytes -= len(s.backlog.Remove().([]byte))
	}
}

// Backlog returns a copy of the replay buffer, oldest first.
func (s *Server) Backlog() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.backlogLocked()
}

func (s *Server) backlogLocked() [][]byte {
	out := make([][]byte, 0, s.backlog.Length())
	for i := 0; i < s.backlog.Length(); i++ {
		out = append(out, s.backlog.Get(i).([]byte))
	}
	return out
}

func (s *Server) Shutdown() {
	s.Server.Shutdown()
	s.mu.Lock()
	s.shutdown = true
	for v := range s.viewers {
		v.close()
	}
	s.viewers = make(map[*viewer]struct{})
	s.mu.Unlock()
	s.viewersWg.Wait()
}

func (s *Server) serve(w http.ResponseWriter, r *http.Request) {
	defer safe.Recover()
	if r.Method != "GET" {
		slog.Error(fmt.Sprintf("mirror: server [%s] method [%s] not allowed", s, r.Method))
		http.Error(w, "Method not allowed", 405)
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error(fmt.Sprintf("mirror: server [%s] upgrade", s), slog.Any("error", errors.WithStack(err)))
		return
	}
	conn.SetReadLimit(int64(s.opts.maxReadMsgSize))
	v := &viewer{
		name: fmt.Sprintf("%s_%d", s.Name(), s.ids.Next()),
		conn: conn,
		send: make(chan []byte, s.opts.sendChanSize),
		done: make(chan struct{}),
	}
	s.mu.Lock()
	if s.shutdown || (s.opts.maxViewerNum > 0 && len(s.viewers) >= s.opts.maxViewerNum) {
		s.mu.Unlock()
		slog.Warn(fmt.Sprintf("mirror: server [%s] refuse viewer [%s]", s, v.name))
		if err := conn.Close(); err != nil {
			slog.Error(fmt.Sprintf("mirror: server [%s] close refused viewer", s), slog.Any("error", err))
		}
		return
	}
	replay := s.backlogLocked()
	s.viewers[v] = struct{}{}
	s.viewersWg.Add(1)
	s.mu.Unlock()
	defer s.viewersWg.Done()
	slog.Info(fmt.Sprintf("mirror: server [%s] viewer [%s] joined", s, v.name),
		slog.String("remote_addr", conn.RemoteAddr().String()))
	s.run(v, replay)
	s.mu.Lock()
	delete(s.viewers, v)
	s.mu.Unlock()
	slog.Info(fmt.Sprintf("mirror: server [%s] viewer [%s] left", s, v.name))
}

func (s *Server) run(v *viewer, replay [][]byte) {
	readDone := safe.GoDone(func() {
		defer v.close()
		s.read(v)
	})
	s.write(v, replay)
	if err := v.conn.Close(); err != nil {
		slog.Debug(fmt.Sprintf("mirror: viewer [%s] close", v.name), slog.Any("error", err))
	}
	<-readDone
}

func (s *Server) read(v *viewer) {
	for {
		_, data, err := v.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Debug(fmt.Sprintf("mirror: viewer [%s] read", v.name), slog.Any("error", err))
			}
			return
		}
		if s.opts.onInput != nil && len(data) > 0 {
			s.opts.onInput(data)
		}
	}
}

func (s *Server) write(v *viewer, replay [][]byte) {
	for _, b := range replay {
		if err := s.writeMessage(v, b); err != nil {
			return
		}
	}
	for {
		select {
		case b := <-v.send:
			if err := s.writeMessage(v, b); err != nil {
				return
			}
		case <-v.done:
			deadline := time.Now().Add(s.opts.writeTimeout)
			msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "")
			_ = v.conn.WriteControl(websocket.CloseMessage, msg, deadline)
			return
		}
	}
}

func (s *Server) writeMessage(v *viewer, b []byte) error {
	if err := v.conn.SetWriteDeadline(time.Now().Add(s.opts.writeTimeout)); err != nil {
		return errors.WithStack(err)
	}
	if err := v.conn.WriteMessage(s.opts.msgType, b); err != nil {
		slog.Debug(fmt.Sprintf("mirror: viewer [%s] write", v.name), slog.Any("error", err))
		v.close()
		return errors.WithStack(err)
	}
	return nil
}
