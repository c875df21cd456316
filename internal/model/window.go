package model

// Window is one of the fixed analysis windows. Every derived metrics slot is
// keyed by (ticker, window); there is no arbitrary-duration variant.
type Window int

const (
	Window10s Window = iota
	Window60s
	Window5min
)

// Windows lists all analysis windows, shortest first.
var Windows = [3]Window{Window10s, Window60s, Window5min}

// Seconds returns the window duration in seconds.
func (w Window) Seconds() int64 {
	switch w {
	case Window10s:
		return 10
	case Window60s:
		return 60
	case Window5min:
		return 300
	}
	return 0
}

// Millis returns the window duration in milliseconds.
func (w Window) Millis() int64 {
	return w.Seconds() * 1000
}

// Slot returns the storage slot label for this window. These labels are part
// of the backing-store key schema and must not change.
func (w Window) Slot() string {
	switch w {
	case Window10s:
		return "10s"
	case Window60s:
		return "60s"
	case Window5min:
		return "5min"
	}
	return "unknown"
}
