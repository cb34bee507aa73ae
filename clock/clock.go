package clock

import (
	"sync"
	"time"
)

// Clock stamps packets with their creation time.
type Clock interface {
	Now() time.Time
}

type Config struct {
	// Offset is added to the wall clock.
	Offset time.Duration
}

var DefaultConfig = Config{}

type clock struct {
	offset time.Duration
}

func (c clock) Now() time.Time {
	return time.Now().Add(c.offset)
}

func Make(config ...Config) Clock {
	cfg := DefaultConfig
	if len(config) > 0 {
		cfg = config[0]
	}
	return clock{offset: cfg.Offset}
}

// Manual is a clock that only moves when told to.
type Manual struct {
	mutex sync.Mutex
	now   time.Time
}

func NewManual(start time.Time) *Manual {
	return &Manual{now: start}
}

func (m *Manual) Now() time.Time {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.now
}

func (m *Manual) Advance(d time.Duration) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.now = m.now.Add(d)
}

func (m *Manual) Set(now time.Time) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.now = now
}
