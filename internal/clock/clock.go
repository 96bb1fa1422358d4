// Package clock implements the in-world game clock (§4.11): a
// day/hour/minute tuple that advances with wall time and can be forced by
// an authoritative GameInfo packet.
package clock

import (
	"sync"
	"time"
)

const (
	minutesPerHour = 60
	hoursPerDay    = 24
)

// Clock holds the current (day, hour, minute) and the real-time duration
// one in-world minute takes to elapse.
type Clock struct {
	mu sync.Mutex

	day    uint16
	hour   uint8
	minute uint8

	minuteDuration time.Duration
	accumulated    time.Duration
}

// New creates a Clock starting at day 1, hour 0, minute 0. minuteDuration
// is the wall-clock time one in-world minute takes; callers typically
// source it from server configuration.
func New(minuteDuration time.Duration) *Clock {
	if minuteDuration <= 0 {
		minuteDuration = time.Second
	}
	return &Clock{day: 1, minuteDuration: minuteDuration}
}

// Advance accumulates elapsed wall-clock time, rolling minutes into hours
// into days as needed. Called once per tick (§4.4 step 2).
func (c *Clock) Advance(elapsed time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.accumulated += elapsed
	for c.accumulated >= c.minuteDuration {
		c.accumulated -= c.minuteDuration
		c.minute++
		if c.minute >= minutesPerHour {
			c.minute = 0
			c.hour++
			if c.hour >= hoursPerDay {
				c.hour = 0
				c.day++
			}
		}
	}
}

// SetTime replaces the tuple atomically, e.g. in response to an
// authoritative GameInfo packet.
func (c *Clock) SetTime(day uint16, hour, minute uint8) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.day = day
	c.hour = hour % hoursPerDay
	c.minute = minute % minutesPerHour
	c.accumulated = 0
}

// GetTime returns the current tuple.
func (c *Clock) GetTime() (day uint16, hour, minute uint8) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.day, c.hour, c.minute
}

// Packed returns the GameInfo wire representation: day in the low 16 bits,
// hour in bits 16-23, minute in bits 24-31.
func (c *Clock) Packed() uint32 {
	day, hour, minute := c.GetTime()
	return uint32(day) | uint32(hour)<<16 | uint32(minute)<<24
}

// SetPacked decodes the GameInfo wire representation and applies it via
// SetTime, for clients honouring an authoritative clock sync.
func SetPacked(c *Clock, raw uint32) {
	day := uint16(raw & 0xFFFF)
	hour := uint8((raw >> 16) & 0xFF)
	minute := uint8((raw >> 24) & 0xFF)
	c.SetTime(day, hour, minute)
}
