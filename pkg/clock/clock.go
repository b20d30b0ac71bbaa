// Package clock supplies the current instant and the civil date used for
// day-offset arithmetic. Production code uses a Zoned clock; tests inject Fixed.
package clock

import (
	"sync"
	"time"

	"github.com/jwalitptl/herd-api/pkg/civil"
)

// Clock is the time source consumed by services and workers.
type Clock interface {
	// Now returns the current instant in UTC.
	Now() time.Time
	// Today returns the civil date in the clock's local zone.
	Today() civil.Date
}

// Zoned reads the system clock and reports dates in a fixed zone.
type Zoned struct {
	loc      *time.Location
	degraded bool
}

// NewZoned loads the named zone. If the zone database cannot resolve it the
// clock falls back to UTC dates and Degraded reports true; the caller decides
// whether to log it.
func NewZoned(zone string) *Zoned {
	if zone == "" {
		return &Zoned{loc: time.UTC}
	}
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return &Zoned{loc: time.UTC, degraded: true}
	}
	return &Zoned{loc: loc}
}

func (z *Zoned) Now() time.Time { return time.Now().UTC() }

func (z *Zoned) Today() civil.Date { return civil.Of(time.Now().In(z.loc)) }

// Location returns the zone dates are computed in.
func (z *Zoned) Location() *time.Location { return z.loc }

// Degraded reports whether the requested zone was unavailable.
func (z *Zoned) Degraded() bool { return z.degraded }

// Fixed is a settable clock for tests.
type Fixed struct {
	mu  sync.Mutex
	now time.Time
	loc *time.Location
}

// NewFixed returns a clock frozen at now. Today is computed in loc, or UTC
// when loc is nil.
func NewFixed(now time.Time, loc *time.Location) *Fixed {
	if loc == nil {
		loc = time.UTC
	}
	return &Fixed{now: now, loc: loc}
}

// OnDate returns a clock whose Today is d, at noon in UTC.
func OnDate(d civil.Date) *Fixed {
	return NewFixed(d.Time().Add(12*time.Hour), time.UTC)
}

func (f *Fixed) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now.UTC()
}

func (f *Fixed) Today() civil.Date {
	f.mu.Lock()
	defer f.mu.Unlock()
	return civil.Of(f.now.In(f.loc))
}

// Set moves the clock to now.
func (f *Fixed) Set(now time.Time) {
	f.mu.Lock()
	f.now = now
	f.mu.Unlock()
}

// Advance moves the clock forward by d.
func (f *Fixed) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}
