package progress

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type limiters struct {
	mu sync.Mutex
	m  map[int64]*rate.Limiter
}

func newLimiters() *limiters {
	return &limiters{m: make(map[int64]*rate.Limiter)}
}

func (l *limiters) get(videoID int64, interval time.Duration) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	lim, ok := l.m[videoID]
	if !ok {
		lim = rate.NewLimiter(rate.Every(interval), 1)
		l.m[videoID] = lim
	}
	return lim
}

func (l *limiters) forget(videoID int64) {
	l.mu.Lock()
	delete(l.m, videoID)
	l.mu.Unlock()
}
