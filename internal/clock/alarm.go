package clock

import (
	"fmt"
	"slices"
	"sync"
	"time"
)

// Factory hands out one AlarmClock per site timezone.
type Factory interface {
	InstantiateAlarmClock(timezone int) AlarmClock
}

// AlarmClock is a site's view of time: the current time in the site's
// timezone plus periodic alarms.
type AlarmClock interface {
	Now() time.Time
	Timezone() int
	// InstantiateAlarm returns an alarm ringing every frequencyMillis
	// milliseconds until it is stopped. Panics if frequencyMillis <= 0.
	InstantiateAlarm(frequencyMillis int) Alarm
}

// Alarm rings its subscribers periodically.
type Alarm interface {
	// OnRing subscribes f. Subscribers run sequentially on every ring.
	OnRing(f func())
	// Stop cancels every future ring.
	Stop()
}

// NewFactory returns a Factory whose alarm clocks read time from c.
func NewFactory(c Clock) Factory {
	return factory{clock: c}
}

// Zone returns the fixed-offset location for a timezone expressed in
// whole hours from UTC.
func Zone(timezone int) *time.Location {
	return time.FixedZone(fmt.Sprintf("UTC%+d", timezone), timezone*60*60)
}

type factory struct {
	clock Clock
}

func (f factory) InstantiateAlarmClock(timezone int) AlarmClock {
	return &alarmClock{
		clock:    f.clock,
		timezone: timezone,
		location: Zone(timezone),
	}
}

type alarmClock struct {
	clock    Clock
	timezone int
	location *time.Location
}

func (c *alarmClock) Now() time.Time {
	return c.clock.Now().In(c.location)
}

func (c *alarmClock) Timezone() int {
	return c.timezone
}

func (c *alarmClock) InstantiateAlarm(frequencyMillis int) Alarm {
	if frequencyMillis <= 0 {
		panic("clock: non-positive alarm frequency")
	}
	a := &alarm{
		clock:    c.clock,
		interval: time.Duration(frequencyMillis) * time.Millisecond,
	}
	a.mu.Lock()
	a.timer = a.clock.AfterFunc(a.interval, a.ring)
	a.mu.Unlock()
	return a
}

type alarm struct {
	clock    Clock
	interval time.Duration

	mu          sync.Mutex
	subscribers []func()
	timer       Timer
	stopped     bool
}

func (a *alarm) OnRing(f func()) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.subscribers = append(a.subscribers, f)
}

func (a *alarm) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stopped = true
	if a.timer != nil {
		a.timer.Stop()
	}
}

// ring re-arms before notifying so a slow subscriber does not delay the
// next period.
func (a *alarm) ring() {
	a.mu.Lock()
	if a.stopped {
		a.mu.Unlock()
		return
	}
	subscribers := slices.Clone(a.subscribers)
	a.timer = a.clock.AfterFunc(a.interval, a.ring)
	a.mu.Unlock()

	for _, f := range subscribers {
		f()
	}
}
