package session

// Progress returns floor(offset / duration * 100). Integer arithmetic keeps
// the result exact and within 0-100. A non-positive duration yields 0 and
// ok=false.
func Progress(duration, offset int64) (percent int, ok bool) {
	if duration <= 0 {
		return 0, false
	}
	if offset <= 0 {
		return 0, true
	}
	if offset >= duration {
		return 100, true
	}
	return int(offset * 100 / duration), true
}

// MinutesRemaining returns floor((duration - offset) / 1000 / 60) with both
// values in milliseconds. An offset past the end yields 0.
func MinutesRemaining(duration, offset int64) int {
	left := duration - offset
	if left <= 0 {
		return 0
	}
	return int(left / 1000 / 60)
}
