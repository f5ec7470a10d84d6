package stream

import "sync"

// streamLimiter caps concurrent long-lived connections (SSE streams and
// clock sessions) per IP and in total.
type streamLimiter struct {
	mu          sync.Mutex
	connections map[string]int
	total       int
	maxPerIP    int
	maxTotal    int
}

func newStreamLimiter(maxPerIP, maxTotal int) *streamLimiter {
	if maxTotal <= 0 {
		maxTotal = 1000
	}
	return &streamLimiter{
		connections: make(map[string]int),
		maxPerIP:    maxPerIP,
		maxTotal:    maxTotal,
	}
}

// acquire registers a connection for ip. False when either limit is hit.
func (l *streamLimiter) acquire(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.total >= l.maxTotal || l.connections[ip] >= l.maxPerIP {
		return false
	}
	l.connections[ip]++
	l.total++
	return true
}

// release frees a slot taken by acquire.
func (l *streamLimiter) release(ip string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.connections[ip]--
	l.total--
	if l.connections[ip] <= 0 {
		delete(l.connections, ip)
	}
}

func (l *streamLimiter) count(ip string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.connections[ip]
}
