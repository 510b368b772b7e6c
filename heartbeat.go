package signalr

import "time"

const (
	maxCheckInterval = time.Second
	minCheckInterval = 5 * time.Millisecond
)

// checkInterval how often the monitor compares the idle time against timeout.
func checkInterval(timeout time.Duration) time.Duration {
	interval := timeout / 2
	if interval > maxCheckInterval {
		interval = maxCheckInterval
	}
	if interval < minCheckInterval {
		interval = minCheckInterval
	}
	return interval
}

// monitor drops the connection with ErrServerTimeout once nothing arrived for longer than
// timeout.  Any frame counts, pings included.  Meant to be run as a goroutine.
func (s *session) monitor(timeout time.Duration) {
	s.lastReceived.Store(time.Now().UnixNano())

	ticker := time.NewTicker(checkInterval(timeout))
	defer ticker.Stop()

	for {
		select {
		case <-s.stopMonitor:
			return
		case now := <-ticker.C:
			idle := now.Sub(time.Unix(0, s.lastReceived.Load()))
			if idle > timeout {
				s.logger.Warn("server timeout elapsed", "idle", idle, "timeout", timeout)
				s.shutdown(ErrServerTimeout)
				return
			}
		}
	}
}
