package inference

import (
	"context"
	"sync"
)

//DeviceLock serializes forward passes on one compute device.
//Every worker bound to the same device must hold the same DeviceLock.
type DeviceLock struct {
	Device string
	sem    chan struct{}
}

func NewDeviceLock(device string) *DeviceLock {
	return &DeviceLock{Device: device, sem: make(chan struct{}, 1)}
}

//Lock waits for the device or for ctx to be done
func (l *DeviceLock) Lock(ctx context.Context) error {
	select {
	case l.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *DeviceLock) Unlock() {
	<-l.sem
}

//DeviceLocks hands out one DeviceLock per device name
type DeviceLocks struct {
	mu    sync.Mutex
	locks map[string]*DeviceLock
}

func NewDeviceLocks() *DeviceLocks {
	return &DeviceLocks{locks: make(map[string]*DeviceLock)}
}

func (d *DeviceLocks) Get(device string) *DeviceLock {
	d.mu.Lock()
	defer d.mu.Unlock()

	if l, ok := d.locks[device]; ok {
		return l
	}
	l := NewDeviceLock(device)
	d.locks[device] = l
	return l
}
