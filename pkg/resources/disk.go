package resources

import (
	"fmt"
	"math"
	"sync"

	"github.com/chenBenjamin97/rink-minimap/pkg/apperr"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

//DefaultOverProvision inflates every reservation to leave room for container overhead
const DefaultOverProvision = 1.1

type Volume string

const (
	VolumeTemp   Volume = "temp"
	VolumeStatic Volume = "static"
)

//FreeSpaceFunc returns the bytes available to unprivileged writers under path
type FreeSpaceFunc func(path string) (uint64, error)

func StatfsFree(path string) (uint64, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return 0, fmt.Errorf("statfs %s: %w", path, err)
	}
	return st.Bavail * uint64(st.Bsize), nil
}

//Disk budgets writes against the free space of named volumes
type Disk struct {
	mu       sync.Mutex
	volumes  map[Volume]string
	reserved map[Volume]uint64
	factor   float64
	free     FreeSpaceFunc
	log      logrus.FieldLogger
}

func NewDisk(volumes map[Volume]string, factor float64, free FreeSpaceFunc, log logrus.FieldLogger) *Disk {
	if factor < 1 {
		factor = DefaultOverProvision
	}
	if free == nil {
		free = StatfsFree
	}
	return &Disk{
		volumes:  volumes,
		reserved: make(map[Volume]uint64, len(volumes)),
		factor:   factor,
		free:     free,
		log:      log,
	}
}

//Path returns the root directory of a volume
func (d *Disk) Path(v Volume) string {
	return d.volumes[v]
}

//Reserve books size×factor bytes on v. It fails with ErrOutOfDiskSpace when the volume can
//not hold them next to the reservations already granted.
func (d *Disk) Reserve(v Volume, size int64) (*Reservation, error) {
	root, ok := d.volumes[v]
	if !ok {
		return nil, fmt.Errorf("unknown volume %q", v)
	}
	if size < 0 {
		size = 0
	}
	need := uint64(math.Ceil(float64(size) * d.factor))

	d.mu.Lock()
	defer d.mu.Unlock()

	free, err := d.free(root)
	if err != nil {
		return nil, err
	}
	if d.reserved[v]+need > free {
		return nil, apperr.Wrap(apperr.KindOutOfDiskSpace, fmt.Errorf("volume %s: need %d bytes, %d free, %d reserved", v, need, free, d.reserved[v]))
	}
	d.reserved[v] += need

	if d.log != nil {
		d.log.WithFields(logrus.Fields{"volume": v, "bytes": need, "reserved": d.reserved[v]}).Debug("Disk space reserved")
	}
	return &Reservation{disk: d, volume: v, size: need}, nil
}

//Reserved returns the bytes currently booked on v
func (d *Disk) Reserved(v Volume) uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.reserved[v]
}

//Reservation is one granted booking
type Reservation struct {
	disk   *Disk
	volume Volume
	size   uint64
	once   sync.Once
}

func (r *Reservation) Size() uint64 {
	return r.size
}

//Release gives the bytes back. Calling it again does nothing.
func (r *Reservation) Release() {
	if r == nil {
		return
	}
	r.once.Do(func() {
		r.disk.mu.Lock()
		defer r.disk.mu.Unlock()
		r.disk.reserved[r.volume] -= r.size
	})
}
