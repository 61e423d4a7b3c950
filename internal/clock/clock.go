package clock

import "time"

// Clock is the service's single time source, in milliseconds since epoch.
// Lock expiry, graph metadata, and activity timestamps all flow from it.
type Clock interface {
	NowMs() int64
}

// System reads the wall clock
type System struct{}

// NowMs returns the current time in milliseconds since epoch
func (System) NowMs() int64 {
	return time.Now().UnixMilli()
}

// Fixed always returns the same instant; used in tests
type Fixed struct {
	Ms int64
}

// NowMs returns the fixed instant
func (f Fixed) NowMs() int64 {
	return f.Ms
}
