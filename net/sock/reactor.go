package sock

import (
	"fmt"
	"log/slog"

	"github.com/hsgames/netterm/safe"
)

func (s *Server) startReactor() {
	done := make(chan struct{})
	s.reactorDone = done
	go func() {
		defer close(done)
		defer safe.Recover()
		s.react()
	}()
}

// react is the only goroutine that consumes completions and runs the
// callback. It exits on a change pulse once terminating is set.
func (s *Server) react() {
	live := 0
	for {
		select {
		case <-s.reg.Changed():
			if s.terminating.Load() {
				slog.Debug(fmt.Sprintf("sock: server [%s] reactor exit", s))
				return
			}
			if n := s.reg.Len(); n != live {
				slog.Debug(fmt.Sprintf("sock: server [%s] reactor connections", s),
					slog.Int("from", live), slog.Int("to", n))
				live = n
			}
		case c := <-s.completions:
			s.dispatch(c)
		}
	}
}

func (s *Server) dispatch(c completion) {
	rec := c.rec
	if isLocalShutdown(c.err) || rec.detached.Load() {
		// The closer owns the record now.
		rec.ack()
		return
	}
	if rec.typ == Datagram {
		s.dispatchDatagram(c)
		return
	}
	if c.n > 0 {
		s.deliver(rec, rec.buf[:c.n])
	}
	if c.err != nil || c.n == 0 {
		s.peerClosed(rec, c.err)
		return
	}
	rec.arm(s.completions, s.reactorDone)
}

func (s *Server) dispatchDatagram(c completion) {
	rec := c.rec
	if c.err != nil {
		s.recvDelay = backoff(s.recvDelay)
		slog.Warn(fmt.Sprintf("sock: server [%s] receive from retry", s),
			slog.Any("error", c.err), slog.Duration("delay", s.recvDelay))
		rec.armAfter(s.recvDelay, s.completions, s.reactorDone)
		return
	}
	s.recvDelay = 0
	switch {
	case c.n == 0:
	case c.n > s.bufSize:
		slog.Warn(fmt.Sprintf("sock: server [%s] datagram rejected", s),
			slog.Any("from", c.addr), slog.Int("limit", s.bufSize))
	default:
		rec.setPeer(c.addr)
		s.deliver(rec, rec.buf[:c.n])
	}
	rec.arm(s.completions, s.reactorDone)
}

// peerClosed removes and releases a stream record the remote side shut
// down. If a closer detached it first, only the ack is owed.
func (s *Server) peerClosed(rec *record, err error) {
	if !s.reg.Remove(rec) {
		rec.ack()
		return
	}
	if err == nil || isPeerClosed(err) {
		slog.Info(fmt.Sprintf("sock: server [%s] peer closed %s", s, rec))
	} else {
		slog.Error(fmt.Sprintf("sock: server [%s] read %s", s, rec), slog.Any("error", err))
	}
	rec.release(true)
}

func (s *Server) deliver(rec *record, data []byte) {
	defer safe.Recover()
	s.cb.DataReceived(rec.handle, s.cbCtx, data)
}
