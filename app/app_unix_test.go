//go:build unix

package app_test

import (
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/hsgames/netterm/app"
	"github.com/stretchr/testify/require"
)

func TestAppStopsOnSignal(t *testing.T) {
	a := app.New(app.AddSignals(syscall.SIGUSR1), app.SetSignalHandler(func(a *app.App, sig os.Signal) bool {
		return sig == syscall.SIGUSR1
	}))
	stopped := make(chan struct{})
	a.AddService("blocking",
		func() error {
			<-stopped
			return nil
		},
		func() error {
			close(stopped)
			return nil
		})
	go func() {
		time.Sleep(100 * time.Millisecond)
		_ = syscall.Kill(os.Getpid(), syscall.SIGUSR1)
	}()
	require.NoError(t, a.Run())
}
