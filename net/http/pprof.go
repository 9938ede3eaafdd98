package http

import (
	"net/http/pprof"
)

// NewPProfServer serves the runtime profiles under /debug/pprof/.
func NewPProfServer(name, network, addr string, opt ...ServerOption) *Server {
	s := NewServer(name, network, addr, opt...)
	s.Handle("/debug/pprof/", pprof.Index)
	s.Handle("/debug/pprof/cmdline", pprof.Cmdline)
	s.Handle("/debug/pprof/profile", pprof.Profile)
	s.Handle("/debug/pprof/symbol", pprof.Symbol)
	s.Handle("/debug/pprof/trace", pprof.Trace)
	return s
}
