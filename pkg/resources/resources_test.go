package resources

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/chenBenjamin97/rink-minimap/pkg/apperr"
	"github.com/chenBenjamin97/rink-minimap/pkg/log"
	"github.com/stretchr/testify/require"
)

func TestLockMapSerializesPaths(t *testing.T) {
	m := NewLockMap()
	ctx := context.Background()

	release, err := m.Acquire(ctx, time.Second, "/static/a/video.mp4", "/static/a/field_mask.jpeg")
	require.NoError(t, err)

	_, err = m.Acquire(ctx, 20*time.Millisecond, "/static/a/field_mask.jpeg")
	require.ErrorIs(t, err, apperr.ErrTimeout)

	//another file is independent
	other, err := m.Acquire(ctx, 20*time.Millisecond, "/static/b/video.mp4")
	require.NoError(t, err)
	other()

	release()
	release()

	again, err := m.Acquire(ctx, 20*time.Millisecond, "/static/a/field_mask.jpeg", "/static/a/field_mask.jpeg")
	require.NoError(t, err)
	again()
}

func TestLockMapWaiterGetsLockOnRelease(t *testing.T) {
	m := NewLockMap()
	ctx := context.Background()

	release, err := m.Acquire(ctx, time.Second, "p")
	require.NoError(t, err)

	got := make(chan error, 1)
	go func() {
		r, err := m.Acquire(ctx, time.Second, "p")
		if err == nil {
			r()
		}
		got <- err
	}()

	time.Sleep(20 * time.Millisecond)
	release()
	require.NoError(t, <-got)
}

func TestLockMapCancel(t *testing.T) {
	m := NewLockMap()
	release, err := m.Acquire(context.Background(), time.Second, "p")
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = m.Acquire(ctx, time.Second, "p")
	require.ErrorIs(t, err, context.Canceled)
}

func TestLockMapGC(t *testing.T) {
	m := NewLockMap()
	now := time.Unix(1000, 0)
	m.now = func() time.Time { return now }

	ctx := context.Background()
	idle, err := m.Acquire(ctx, time.Second, "idle")
	require.NoError(t, err)
	idle()
	busy, err := m.Acquire(ctx, time.Second, "busy")
	require.NoError(t, err)
	defer busy()

	require.Equal(t, 0, m.GC(time.Minute))

	now = now.Add(2 * time.Minute)
	require.Equal(t, 1, m.GC(time.Minute))
	require.Equal(t, 1, m.Len())
}

func fixedFree(bytes uint64) FreeSpaceFunc {
	return func(string) (uint64, error) { return bytes, nil }
}

func TestDiskOverCommit(t *testing.T) {
	const free = 1_000_000
	d := NewDisk(map[Volume]string{VolumeTemp: "/tmp", VolumeStatic: "/static"}, 1.1, fixedFree(free), log.Discard())

	var wg sync.WaitGroup
	results := make([]error, 2)
	reservations := make([]*Reservation, 2)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			reservations[i], results[i] = d.Reserve(VolumeStatic, free*6/10)
		}(i)
	}
	wg.Wait()

	var ok, failed int
	for i, err := range results {
		if err == nil {
			ok++
			require.EqualValues(t, 660_000, reservations[i].Size())
			continue
		}
		require.ErrorIs(t, err, apperr.ErrOutOfDiskSpace)
		failed++
	}
	require.Equal(t, 1, ok)
	require.Equal(t, 1, failed)
	require.EqualValues(t, 660_000, d.Reserved(VolumeStatic))

	//volumes are budgeted separately
	tmp, err := d.Reserve(VolumeTemp, free*6/10)
	require.NoError(t, err)
	tmp.Release()

	for _, r := range reservations {
		r.Release()
		r.Release()
	}
	require.Zero(t, d.Reserved(VolumeStatic))

	second, err := d.Reserve(VolumeStatic, free*6/10)
	require.NoError(t, err)
	second.Release()
}

func TestDiskErrors(t *testing.T) {
	boom := errors.New("statfs failed")
	d := NewDisk(map[Volume]string{VolumeTemp: "/tmp"}, 0, func(string) (uint64, error) { return 0, boom }, nil)

	_, err := d.Reserve(VolumeStatic, 1)
	require.Error(t, err)
	_, err = d.Reserve(VolumeTemp, 1)
	require.ErrorIs(t, err, boom)
}

func TestStatfsFree(t *testing.T) {
	free, err := StatfsFree(t.TempDir())
	require.NoError(t, err)
	require.Positive(t, free)
}
