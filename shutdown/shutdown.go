// Package shutdown turns termination signals into cancellation.
package shutdown

import (
	"context"
	"os"
	"os/signal"
)

func Notify(ch chan<- os.Signal) {
	signal.Notify(ch, signals...)
}

// Interrupts delivers one value per signal received, until stop is called.
// Unlike signal.NotifyContext it keeps counting, so a first interrupt can
// abandon the current session and a second one can quit.
func Interrupts() (<-chan os.Signal, func()) {
	ch := make(chan os.Signal, 2)
	Notify(ch)
	return ch, func() { signal.Stop(ch) }
}

// Context is cancelled by the first termination signal.
func Context(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, signals...)
}
