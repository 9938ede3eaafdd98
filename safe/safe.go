package safe

import (
	"fmt"
	"log/slog"
	"runtime"
)

func Stack() string {
	buf := make([]byte, 2<<20)
	n := runtime.Stack(buf, false)
	return string(buf[:n])
}

func Recover() {
	if r := recover(); r != nil {
		slog.Error("panic recover",
			slog.Any("value", r), slog.String("stack", Stack()))
	}
}

// RecoverError turns a panic into an error stored in *err.
func RecoverError(err *error) {
	if r := recover(); r != nil {
		stack := Stack()
		slog.Error("panic recover",
			slog.Any("value", r), slog.String("stack", stack))
		if err != nil {
			*err = fmt.Errorf("safe: panic [%v]", r)
		}
	}
}

func Go(f func()) {
	go func() {
		defer Recover()
		f()
	}()
}

// GoDone runs f in a new goroutine and closes the returned channel when
// f returns, panicking or not.
func GoDone(f func()) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer Recover()
		f()
	}()
	return done
}
