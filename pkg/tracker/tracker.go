package tracker

import (
	"errors"
	"fmt"
	"sort"

	"github.com/chenBenjamin97/rink-minimap/pkg/entity"
	"github.com/chenBenjamin97/rink-minimap/pkg/geometry"
)

var ErrOutOfOrder = errors.New("tracker: frame ids must be strictly increasing")

type Config struct {
	//MaxAge is how many frames a confirmed track survives without a matching detection
	MaxAge int
	//MinHits is how many matched frames it takes to confirm a track
	MinHits      int
	IoUThreshold float64
	//IDBase offsets every id, so tracks of several segments never collide
	IDBase int
}

var BaseConfig = Config{
	MaxAge:       6,
	MinHits:      4,
	IoUThreshold: 0.2,
	IDBase:       0,
}

const initPoolSize = 2 << 5

//Detection is one player box of a frame, in camera pixels
type Detection struct {
	Box   geometry.BoundingBox
	Score float64
	Class entity.PlayerClass
}

type track struct {
	id        int
	box       geometry.BoundingBox
	class     entity.PlayerClass
	hits      int
	lastFrame int
}

func (t *track) confirmed(minHits int) bool {
	return t.hits >= minHits
}

//Tracker associates detections of consecutive frames by greedy IoU matching.
//It is not safe for concurrent use.
type Tracker struct {
	Config
	tracksPool map[int]*track
	trackID    int
	frameID    int
	started    bool
}

func New(config Config) *Tracker {
	return &Tracker{
		Config:     config,
		tracksPool: make(map[int]*track, initPoolSize),
		trackID:    config.IDBase,
	}
}

type candidate struct {
	trackID int
	det     int
	iou     float64
}

//Update matches the detections of frameID against the live tracks and returns one
//record per detection, in detection order. Unmatched detections start new tracks.
//Unconfirmed tracks die on their first miss; confirmed tracks after MaxAge missed frames.
func (t *Tracker) Update(frameID int, dets []Detection) ([]entity.RawPlayerTrackingData, error) {
	if t.started && frameID <= t.frameID {
		return nil, fmt.Errorf("%w: got %d after %d", ErrOutOfOrder, frameID, t.frameID)
	}
	t.started = true
	t.frameID = frameID

	confirmedIDs := searchInMap(t.tracksPool, func(tr *track) bool { return tr.confirmed(t.MinHits) })
	unconfirmedIDs := searchInMap(t.tracksPool, func(tr *track) bool { return !tr.confirmed(t.MinHits) })

	assigned := make([]int, len(dets))
	free := make([]bool, len(dets))
	for i := range free {
		free[i] = true
	}

	//confirmed tracks pick first so a fresh track can't steal a known player
	for _, ids := range [][]int{confirmedIDs, unconfirmedIDs} {
		for _, c := range t.candidates(ids, dets, free) {
			tr := t.tracksPool[c.trackID]
			if !free[c.det] || tr.lastFrame == frameID {
				continue
			}
			free[c.det] = false
			assigned[c.det] = tr.id
			tr.box = dets[c.det].Box
			tr.class = dets[c.det].Class
			tr.hits++
			tr.lastFrame = frameID
		}
	}

	for id, tr := range t.tracksPool {
		if tr.lastFrame == frameID {
			continue
		}
		if !tr.confirmed(t.MinHits) || frameID-tr.lastFrame > t.MaxAge {
			delete(t.tracksPool, id)
		}
	}

	out := make([]entity.RawPlayerTrackingData, len(dets))
	for i, d := range dets {
		if free[i] {
			t.trackID++
			t.tracksPool[t.trackID] = &track{id: t.trackID, box: d.Box, class: d.Class, hits: 1, lastFrame: frameID}
			assigned[i] = t.trackID
		}
		out[i] = entity.RawPlayerTrackingData{TrackingID: assigned[i], BoundingBox: d.Box, Class: d.Class, Score: d.Score}
	}
	return out, nil
}

//candidates lists every track/detection pair above the IoU threshold, best first
func (t *Tracker) candidates(ids []int, dets []Detection, free []bool) []candidate {
	var cs []candidate
	for _, id := range ids {
		box := t.tracksPool[id].box
		for j, d := range dets {
			if !free[j] {
				continue
			}
			if iou := box.IoU(d.Box); iou > t.IoUThreshold {
				cs = append(cs, candidate{trackID: id, det: j, iou: iou})
			}
		}
	}
	sort.SliceStable(cs, func(a, b int) bool {
		if cs[a].iou != cs[b].iou {
			return cs[a].iou > cs[b].iou
		}
		if cs[a].trackID != cs[b].trackID {
			return cs[a].trackID < cs[b].trackID
		}
		return cs[a].det < cs[b].det
	})
	return cs
}

//Reset drops every track and keeps counting ids from where it stopped
func (t *Tracker) Reset() {
	t.tracksPool = make(map[int]*track, initPoolSize)
	t.started = false
}

//LastID is the highest id handed out so far. Use it as IDBase of the next segment's tracker.
func (t *Tracker) LastID() int {
	return t.trackID
}

//Live returns how many tracks are kept
func (t *Tracker) Live() int {
	return len(t.tracksPool)
}

func searchInMap(pool map[int]*track, pred func(*track) bool) []int {
	var ids []int
	for id, tr := range pool {
		if pred(tr) {
			ids = append(ids, id)
		}
	}
	sort.Ints(ids)
	return ids
}
