package sock

import (
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/hsgames/netterm/pool/bytespool"
)

// backoff doubles d from 5ms, capped at 1s.
func backoff(d time.Duration) time.Duration {
	if d == 0 {
		return 5 * time.Millisecond
	}
	d *= 2
	if max := 1 * time.Second; d > max {
		d = max
	}
	return d
}

// listen is the stream accept loop. Only the listening socket being
// closed ends it; every other accept error is retried.
func (s *Server) listen() {
	var tempDelay time.Duration
	for {
		conn, err := s.lis.Accept()
		if err != nil {
			if isLocalShutdown(err) {
				return
			}
			tempDelay = backoff(tempDelay)
			slog.Error(fmt.Sprintf("sock: server [%s] accept retry", s),
				slog.Any("error", err), slog.Duration("delay", tempDelay))
			timer := time.NewTimer(tempDelay)
			select {
			case <-timer.C:
			case <-s.doneChan:
				timer.Stop()
				return
			}
			continue
		}
		tempDelay = 0
		s.accept(conn)
	}
}

// accept turns conn into a live record. A failure here only costs this
// one connection.
func (s *Server) accept(conn net.Conn) {
	buf := bytespool.Get(s.bufSize)
	if buf == nil {
		slog.Error(fmt.Sprintf("sock: server [%s] accept %s", s, conn.RemoteAddr()),
			slog.Any("error", ErrOutOfMemory))
		if err := conn.Close(); err != nil {
			slog.Error(fmt.Sprintf("sock: server [%s] close discarded conn", s), slog.Any("error", err))
		}
		return
	}
	rec := newStreamRecord(Handle(s.ids.Next()), conn, buf)
	s.reg.Insert(rec)
	rec.arm(s.completions, s.reactorDone)
	slog.Info(fmt.Sprintf("sock: server [%s] accepted %s", s, rec))
}
