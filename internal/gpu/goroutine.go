package gpu

import "runtime"

// goroutineID parses the current goroutine's ID from its stack header
// ("goroutine NNN [..."). Only used for affinity checks.
func goroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	var id uint64
	for i := len("goroutine "); i < n; i++ {
		c := buf[i]
		if c < '0' || c > '9' {
			break
		}
		id = id*10 + uint64(c-'0')
	}
	return id
}
