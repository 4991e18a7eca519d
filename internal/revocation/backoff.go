package revocation

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// fixedSchedule implements backoff.BackOff with the exact 1s/3s/9s schedule
// §4.7 requires (three retries after an initial attempt), rather than
// cenkalti/backoff's usual randomised exponential curve.
type fixedSchedule struct {
	delays []time.Duration
	next   int
}

func newFixedSchedule() *fixedSchedule {
	return &fixedSchedule{delays: []time.Duration{1 * time.Second, 3 * time.Second, 9 * time.Second}}
}

func (f *fixedSchedule) NextBackOff() time.Duration {
	if f.next >= len(f.delays) {
		return backoff.Stop
	}
	d := f.delays[f.next]
	f.next++
	return d
}

func (f *fixedSchedule) Reset() {
	f.next = 0
}
