package app

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/hsgames/netterm/net/http"
	"github.com/hsgames/netterm/safe"
)

type service struct {
	name  string
	start func() error
	stop  func() error
	done  chan error
}

// launch runs start in the background. A failure is also reported on
// failed so the app shuts down.
func (s *service) launch(failed chan<- error) {
	safe.Go(func() {
		var err error
		defer func() {
			if err != nil {
				failed <- err
			}
			s.done <- err
		}()
		defer safe.RecoverError(&err)
		slog.Info(fmt.Sprintf("app: service [%s] start", s.name))
		err = s.start()
	})
}

func (s *service) shutdown() {
	var err error
	defer func() {
		if err != nil {
			slog.Error(fmt.Sprintf("app: service [%s] stop", s.name), slog.Any("error", err))
		}
	}()
	defer safe.RecoverError(&err)
	err = s.stop()
}

func (s *service) join() {
	if err := <-s.done; err != nil {
		slog.Error(fmt.Sprintf("app: service [%s] done", s.name), slog.Any("error", err))
		return
	}
	slog.Info(fmt.Sprintf("app: service [%s] done", s.name))
}

// App runs a set of services until one of them fails or a shutdown
// signal arrives, then stops them in reverse order.
type App struct {
	opts     options
	services []*service
}

func New(opt ...Option) *App {
	opts := defaultOptions()
	for _, o := range opt {
		o(&opts)
	}
	opts.ensure()
	return &App{
		opts: opts,
	}
}

func (a *App) AddPProf(name, network, addr string, opt ...http.ServerOption) {
	s := http.NewPProfServer(name, network, addr, opt...)
	a.AddService(name,
		func() error {
			if err := s.Listen(); err != nil {
				return err
			}
			slog.Info(fmt.Sprintf("app: pprof server [%s] listen", s))
			return s.Serve()
		},
		func() error {
			s.Shutdown()
			return nil
		},
	)
}

// AddService registers a service. start may block until stop is called;
// returning an error from it shuts the whole app down.
func (a *App) AddService(name string, start, stop func() error) {
	if start == nil {
		panic("app: app add service start func is nil")
	}
	if stop == nil {
		panic("app: app add service stop func is nil")
	}
	a.services = append(a.services, &service{
		name:  name,
		start: start,
		stop:  stop,
		done:  make(chan error, 1),
	})
}

// Run blocks until a service fails or a signal handler says stop. It
// returns the first service error.
func (a *App) Run() error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, a.opts.sigs...)
	defer signal.Stop(sigChan)
	failed := make(chan error, len(a.services))
	for _, s := range a.services {
		s.launch(failed)
	}
	err := a.wait(sigChan, failed)
	for i := len(a.services) - 1; i >= 0; i-- {
		a.services[i].shutdown()
	}
	for _, s := range a.services {
		s.join()
	}
	return err
}

func (a *App) wait(sigChan <-chan os.Signal, failed <-chan error) error {
	for {
		select {
		case err := <-failed:
			return err
		case sig := <-sigChan:
			done, err := a.handleSignal(sig)
			if err != nil {
				slog.Error("app: app handle signal", slog.Any("error", err))
				return err
			}
			if done {
				return nil
			}
		}
	}
}

func (a *App) handleSignal(sig os.Signal) (done bool, err error) {
	defer safe.RecoverError(&err)
	done = a.opts.sigHandler(a, sig)
	return
}
