package drive

import (
	"time"

	"github.com/benbjohnson/clock"
)

// commandWatchdog forces the vehicle to a stop when the command stream goes
// quiet. It is a one-shot timer owned by the controller loop: the loop feeds
// it on every accepted command and reacts to Expired firing.
//
// A zero timeout disables the watchdog entirely; Expired then never fires.
type commandWatchdog struct {
	timer   *clock.Timer
	timeout time.Duration
}

func newCommandWatchdog(clk clock.Clock, timeout time.Duration) *commandWatchdog {
	w := &commandWatchdog{timeout: timeout}
	if timeout > 0 {
		w.timer = clk.Timer(timeout)
	}
	return w
}

// Expired is the channel the controller loop selects on. Nil when the
// watchdog is disabled, which makes the select case permanently blocked.
func (w *commandWatchdog) Expired() <-chan time.Time {
	if w.timer == nil {
		return nil
	}
	return w.timer.C
}

// Feed restarts the quiet-period countdown. Stopping and draining before the
// reset discards a concurrently delivered expiry so a fresh command can never
// be followed by a stale stop.
func (w *commandWatchdog) Feed() {
	if w.timer == nil {
		return
	}
	if !w.timer.Stop() {
		select {
		case <-w.timer.C:
		default:
		}
	}
	w.timer.Reset(w.timeout)
}

// Rearm restarts the countdown after an expiry has been consumed from
// Expired. The channel is known drained, so no stop/drain dance is needed.
func (w *commandWatchdog) Rearm() {
	if w.timer == nil {
		return
	}
	w.timer.Reset(w.timeout)
}

// Stop cancels any pending expiry.
func (w *commandWatchdog) Stop() {
	if w.timer == nil {
		return
	}
	if !w.timer.Stop() {
		select {
		case <-w.timer.C:
		default:
		}
	}
}
