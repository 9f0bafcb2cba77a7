package resources

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/chenBenjamin97/rink-minimap/pkg/apperr"
	"github.com/sirupsen/logrus"
)

//DefaultLockTimeout is how long Acquire waits for a busy path
const DefaultLockTimeout = 1500 * time.Millisecond

type lockEntry struct {
	sem      chan struct{}
	refs     int
	lastUsed time.Time
}

//LockMap serializes access to files by path. Entries nobody holds or waits on are swept by GC.
type LockMap struct {
	mu      sync.Mutex
	entries map[string]*lockEntry
	now     func() time.Time
}

func NewLockMap() *LockMap {
	return &LockMap{entries: make(map[string]*lockEntry), now: time.Now}
}

func (m *LockMap) ref(path string) *lockEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[path]
	if !ok {
		e = &lockEntry{sem: make(chan struct{}, 1)}
		m.entries[path] = e
	}
	e.refs++
	return e
}

func (m *LockMap) unref(e *lockEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e.refs--
	e.lastUsed = m.now()
}

//Acquire locks every path, always in sorted order so two callers never deadlock each other.
//It fails with ErrTimeout when a path stays busy for timeout. release is safe to call more than once.
func (m *LockMap) Acquire(ctx context.Context, timeout time.Duration, paths ...string) (release func(), err error) {
	paths = unique(paths)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	held := make([]*lockEntry, 0, len(paths))
	releaseAll := func() {
		for i := len(held) - 1; i >= 0; i-- {
			<-held[i].sem
			m.unref(held[i])
		}
	}

	for _, p := range paths {
		e := m.ref(p)
		select {
		case e.sem <- struct{}{}:
			held = append(held, e)
		case <-timer.C:
			m.unref(e)
			releaseAll()
			return nil, apperr.Wrap(apperr.KindTimeout, fmt.Errorf("lock %s not acquired within %v", p, timeout))
		case <-ctx.Done():
			m.unref(e)
			releaseAll()
			return nil, ctx.Err()
		}
	}

	var once sync.Once
	return func() { once.Do(releaseAll) }, nil
}

//GC drops the entries idle for longer than maxIdle and returns how many went away
func (m *LockMap) GC(maxIdle time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	swept := 0
	for p, e := range m.entries {
		if e.refs == 0 && now.Sub(e.lastUsed) > maxIdle {
			delete(m.entries, p)
			swept++
		}
	}
	return swept
}

//Len returns the number of tracked paths
func (m *LockMap) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

//RunGC sweeps every interval until ctx is done
func (m *LockMap) RunGC(ctx context.Context, interval, maxIdle time.Duration, log logrus.FieldLogger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.GC(maxIdle); n > 0 && log != nil {
				log.WithField("swept", n).Debug("File locks swept")
			}
		}
	}
}

func unique(paths []string) []string {
	out := append([]string(nil), paths...)
	sort.Strings(out)
	n := 0
	for i, p := range out {
		if i > 0 && p == out[n-1] {
			continue
		}
		out[n] = p
		n++
	}
	return out[:n]
}
