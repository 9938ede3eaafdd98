package app

import (
	"fmt"
	"log/slog"
	"os"
	"slices"
	"syscall"
)

// SignalHandler reports whether sig should stop the app.
type SignalHandler func(a *App, sig os.Signal) (done bool)

var shutdownSignals = []os.Signal{syscall.SIGTERM, syscall.SIGINT}

func handleSignal(_ *App, sig os.Signal) bool {
	if slices.Contains(shutdownSignals, sig) {
		slog.Info(fmt.Sprintf("app: handle shutdown signal [%s]", sig))
		return true
	}
	slog.Info(fmt.Sprintf("app: unhandled signal [%s]", sig))
	return false
}

type options struct {
	sigs       []os.Signal
	sigHandler SignalHandler
}

func defaultOptions() options {
	return options{
		sigs:       slices.Clone(shutdownSignals),
		sigHandler: handleSignal,
	}
}

func (opts *options) ensure() {
	if len(opts.sigs) == 0 {
		panic("app: options sigs is empty")
	}
	if opts.sigHandler == nil {
		panic("app: options sigHandler == nil")
	}
}

type Option func(o *options)

// AddSignals subscribes to sigs in addition to SIGTERM and SIGINT.
func AddSignals(sigs ...os.Signal) Option {
	return func(o *options) {
		for _, sig := range sigs {
			if !slices.Contains(o.sigs, sig) {
				o.sigs = append(o.sigs, sig)
			}
		}
	}
}

func SetSignalHandler(sigHandler SignalHandler) Option {
	return func(o *options) {
		o.sigHandler = sigHandler
	}
}
