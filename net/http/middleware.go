package http

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/hsgames/netterm/safe"
)

type Middleware func(HandlerFunc) HandlerFunc

func chain(h HandlerFunc, ms []Middleware) HandlerFunc {
	for i := len(ms) - 1; i >= 0; i-- {
		h = ms[i](h)
	}
	return h
}

func NewRecoverMiddleware() Middleware {
	return func(h HandlerFunc) HandlerFunc {
		return func(w ResponseWriter, r *Request) {
			var err error
			defer func() {
				if err != nil {
					slog.Error(fmt.Sprintf("http: recover middleware [%s]", r.URL.Path),
						slog.Any("error", err))
					w.WriteHeader(http.StatusInternalServerError)
				}
			}()
			defer safe.RecoverError(&err)
			h(w, r)
		}
	}
}

// NewAccessLogMiddleware logs every request at debug level once it is
// handled. The writer is passed through untouched so upgrades keep
// working.
func NewAccessLogMiddleware() Middleware {
	return func(h HandlerFunc) HandlerFunc {
		return func(w ResponseWriter, r *Request) {
			start := time.Now()
			h(w, r)
			slog.Debug(fmt.Sprintf("http: access [%s %s]", r.Method, r.URL.Path),
				slog.String("remote_addr", r.RemoteAddr),
				slog.Duration("elapsed", time.Since(start)))
		}
	}
}
