// Package countdown derives the display-only time-remaining view of the next
// coin refresh. It never mutates the ledger; when the countdown elapses the
// caller re-reads the account, which is where a grant may happen.
package countdown

import (
	"fmt"
	"sync"
	"time"
)

// Remaining formats the time left until next as HH:MM:SS, clamped at
// 00:00:00 once the refresh is due.
func Remaining(next, now time.Time) string {
	d := next.Sub(now)
	if d <= 0 {
		return "00:00:00"
	}
	h := int(d / time.Hour)
	m := int(d % time.Hour / time.Minute)
	s := int(d % time.Minute / time.Second)
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// Notifier signals exactly once when a refresh deadline elapses. A deadline
// already in the past fires immediately.
type Notifier struct {
	timer *time.Timer
	done  chan struct{}
	once  sync.Once
}

// NewNotifier starts a notifier for the given refresh deadline.
func NewNotifier(next time.Time) *Notifier {
	n := &Notifier{done: make(chan struct{})}
	n.timer = time.AfterFunc(time.Until(next), func() {
		n.once.Do(func() { close(n.done) })
	})
	return n
}

// Done is closed once the deadline has elapsed.
func (n *Notifier) Done() <-chan struct{} {
	return n.done
}

// Stop cancels the notifier if it has not fired yet.
func (n *Notifier) Stop() {
	n.timer.Stop()
}
