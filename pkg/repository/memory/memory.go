package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chenBenjamin97/rink-minimap/pkg/apperr"
	"github.com/chenBenjamin97/rink-minimap/pkg/entity"
	"github.com/chenBenjamin97/rink-minimap/pkg/repository"
)

var errTxDone = errors.New("memory: transaction already ended")

type state struct {
	videos    map[int64]entity.Video
	mapPoints map[int64][]entity.MapPoint
	subsets   map[int64][]entity.Subset
	frames    map[int64]map[int]entity.FrameData
	datasets  map[int64]entity.DatasetInfo
	aliases   map[int64]map[int]string
}

func newState() *state {
	return &state{
		videos:    make(map[int64]entity.Video),
		mapPoints: make(map[int64][]entity.MapPoint),
		subsets:   make(map[int64][]entity.Subset),
		frames:    make(map[int64]map[int]entity.FrameData),
		datasets:  make(map[int64]entity.DatasetInfo),
		aliases:   make(map[int64]map[int]string),
	}
}

//clone copies every map. Stored values are replaced, never mutated, so they can be shared.
func (s *state) clone() *state {
	c := newState()
	for k, v := range s.videos {
		c.videos[k] = v
	}
	for k, v := range s.mapPoints {
		c.mapPoints[k] = v
	}
	for k, v := range s.subsets {
		c.subsets[k] = v
	}
	for k, v := range s.frames {
		m := make(map[int]entity.FrameData, len(v))
		for f, d := range v {
			m[f] = d
		}
		c.frames[k] = m
	}
	for k, v := range s.datasets {
		c.datasets[k] = v
	}
	for k, v := range s.aliases {
		m := make(map[int]string, len(v))
		for t, a := range v {
			m[t] = a
		}
		c.aliases[k] = m
	}
	return c
}

//change is one write. It must not fail, so it can be replayed onto any ancestor.
type change func(s *state)

//node is one level of the transaction tree. The root is the store itself.
type node struct {
	mu     sync.Mutex
	data   *state
	parent *node
	//log holds the writes of a transaction, replayed onto parent on commit
	log  []change
	done bool
	ids  *atomic.Int64
}

func (n *node) read(fn func(s *state) error) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.done {
		return errTxDone
	}
	return fn(n.data)
}

//write checks the request against the node's view with fn, then applies the change fn returns
func (n *node) write(fn func(s *state) (change, error)) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.done {
		return errTxDone
	}
	c, err := fn(n.data)
	if err != nil {
		return err
	}
	n.apply(c)
	return nil
}

//apply runs c on the node's data. The caller holds n.mu.
func (n *node) apply(c change) {
	c(n.data)
	if n.parent != nil {
		n.log = append(n.log, c)
	}
}

func (n *node) nextID() int64 {
	return n.ids.Add(1)
}

//Store is an in-process repository. A transaction reads a snapshot taken when it began and
//keeps a log of its writes; committing replays the log onto the parent, so writes made to the
//parent meanwhile survive. Ids come from one counter and are never handed out twice.
type Store struct {
	root *node
}

func New() *Store {
	return &Store{root: &node{data: newState(), ids: new(atomic.Int64)}}
}

func (s *Store) NewClient(ctx context.Context, tx bool) (repository.Client, error) {
	if !tx {
		return client(s.root, false), nil
	}
	return begin(s.root)
}

func begin(parent *node) (repository.Client, error) {
	child := &node{parent: parent, ids: parent.ids}
	if err := parent.read(func(st *state) error {
		child.data = st.clone()
		return nil
	}); err != nil {
		return repository.Client{}, err
	}
	return client(child, true), nil
}

func client(n *node, tx bool) repository.Client {
	c := repository.Client{
		Videos:     videos{n},
		MapData:    mapData{n},
		Subsets:    subsets{n},
		Frames:     frames{n},
		PlayerData: playerData{n},
		Dataset:    dataset{n},
		Aliases:    aliases{n},
		Begin: func(ctx context.Context) (repository.Client, error) {
			return begin(n)
		},
		Commit:   func() error { return nil },
		Rollback: func() error { return nil },
	}
	if !tx {
		return c
	}

	c.Commit = func() error {
		n.mu.Lock()
		defer n.mu.Unlock()
		if n.done {
			return errTxDone
		}
		n.done = true

		p := n.parent
		p.mu.Lock()
		defer p.mu.Unlock()
		if p.done {
			return errTxDone
		}
		for _, change := range n.log {
			p.apply(change)
		}
		n.log = nil
		return nil
	}
	c.Rollback = func() error {
		n.mu.Lock()
		defer n.mu.Unlock()
		n.done = true
		n.log = nil
		return nil
	}
	return c
}

type videos struct{ n *node }

func (r videos) Create(ctx context.Context, v entity.Video) (int64, error) {
	v.ID = r.n.nextID()
	v.UpdatedAt = time.Now()
	err := r.n.write(func(*state) (change, error) {
		return func(s *state) { s.videos[v.ID] = v }, nil
	})
	return v.ID, err
}

func (r videos) Get(ctx context.Context, id int64) (v entity.Video, err error) {
	err = r.n.read(func(s *state) error {
		var ok bool
		if v, ok = s.videos[id]; !ok {
			return apperr.Newf(apperr.KindNotFound, "video %d not found", id)
		}
		return nil
	})
	return v, err
}

func (r videos) Update(ctx context.Context, v entity.Video) error {
	return r.n.write(func(s *state) (change, error) {
		if _, ok := s.videos[v.ID]; !ok {
			return nil, apperr.Newf(apperr.KindNotFound, "video %d not found", v.ID)
		}
		v.UpdatedAt = time.Now()
		return func(s *state) { s.videos[v.ID] = v }, nil
	})
}

func (r videos) SetState(ctx context.Context, id int64, st entity.ProjectState) error {
	return r.n.write(func(s *state) (change, error) {
		if _, ok := s.videos[id]; !ok {
			return nil, apperr.Newf(apperr.KindNotFound, "video %d not found", id)
		}
		now := time.Now()
		return func(s *state) {
			v, ok := s.videos[id]
			if !ok {
				return
			}
			v.State, v.UpdatedAt = st, now
			s.videos[id] = v
		}, nil
	})
}

type mapData struct{ n *node }

func (r mapData) Get(ctx context.Context, videoID int64) (out []entity.MapPoint, err error) {
	err = r.n.read(func(s *state) error {
		out = append(out, s.mapPoints[videoID]...)
		return nil
	})
	return out, err
}

func (r mapData) Replace(ctx context.Context, videoID int64, points []entity.MapPoint) error {
	stored := make([]entity.MapPoint, len(points))
	for i, p := range points {
		p.ID, p.VideoID = r.n.nextID(), videoID
		stored[i] = p
	}
	return r.n.write(func(*state) (change, error) {
		return func(s *state) { s.mapPoints[videoID] = stored }, nil
	})
}

type subsets struct{ n *node }

func (r subsets) List(ctx context.Context, videoID int64) (out []entity.Subset, err error) {
	err = r.n.read(func(s *state) error {
		out = append(out, s.subsets[videoID]...)
		return nil
	})
	return out, err
}

//upsert replaces the subset with sub's id, or appends sub when the list has none
func upsert(s *state, sub entity.Subset) {
	list := append([]entity.Subset(nil), s.subsets[sub.VideoID]...)
	found := false
	for i := range list {
		if list[i].ID == sub.ID {
			list[i], found = sub, true
		}
	}
	if !found {
		list = append(list, sub)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].FromFrame < list[j].FromFrame })
	s.subsets[sub.VideoID] = list
}

func (r subsets) Save(ctx context.Context, sub entity.Subset) (int64, error) {
	err := r.n.write(func(s *state) (change, error) {
		if sub.ID == 0 {
			sub.ID = r.n.nextID()
		} else {
			found := false
			for _, stored := range s.subsets[sub.VideoID] {
				found = found || stored.ID == sub.ID
			}
			if !found {
				return nil, apperr.Newf(apperr.KindNotFound, "subset %d not found", sub.ID)
			}
		}
		return func(s *state) { upsert(s, sub) }, nil
	})
	if err != nil {
		return 0, err
	}
	return sub.ID, nil
}

func (r subsets) Delete(ctx context.Context, videoID, id int64) error {
	return r.n.write(func(*state) (change, error) {
		return func(s *state) {
			var kept []entity.Subset
			for _, sub := range s.subsets[videoID] {
				if sub.ID != id {
					kept = append(kept, sub)
				}
			}
			s.subsets[videoID] = kept
		}, nil
	})
}

type frames struct{ n *node }

func (r frames) Insert(ctx context.Context, videoID int64, fs []entity.FrameData) error {
	stored := make([]entity.FrameData, len(fs))
	for i, f := range fs {
		f.Players = append([]entity.PlayerData(nil), f.Players...)
		stored[i] = f
	}
	return r.n.write(func(*state) (change, error) {
		return func(s *state) {
			m, ok := s.frames[videoID]
			if !ok {
				m = make(map[int]entity.FrameData, len(stored))
				s.frames[videoID] = m
			}
			for _, f := range stored {
				m[f.FrameID] = f
			}
		}, nil
	})
}

func (r frames) Range(ctx context.Context, videoID int64, from, to int) (out []entity.FrameData, err error) {
	err = r.n.read(func(s *state) error {
		for id, f := range s.frames[videoID] {
			if id >= from && (to < 0 || id < to) {
				out = append(out, f)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].FrameID < out[j].FrameID })
	return out, err
}

func (r frames) Count(ctx context.Context, videoID int64) (n int, err error) {
	err = r.n.read(func(s *state) error {
		n = len(s.frames[videoID])
		return nil
	})
	return n, err
}

func (r frames) DeleteAll(ctx context.Context, videoID int64) error {
	return r.n.write(func(*state) (change, error) {
		return func(s *state) { delete(s.frames, videoID) }, nil
	})
}

type playerData struct{ n *node }

//killTracking drops track from the frames of videoID at or after fromFrame
func killTracking(s *state, videoID int64, trackID, fromFrame int) {
	for id, f := range s.frames[videoID] {
		if id < fromFrame {
			continue
		}
		kept := make([]entity.PlayerData, 0, len(f.Players))
		for _, p := range f.Players {
			if p.TrackingID != trackID {
				kept = append(kept, p)
			}
		}
		f.Players = kept
		s.frames[videoID][id] = f
	}
}

func (r playerData) KillTracking(ctx context.Context, videoID int64, trackID, fromFrame int) (removed int64, err error) {
	err = r.n.write(func(s *state) (change, error) {
		for id, f := range s.frames[videoID] {
			if id < fromFrame {
				continue
			}
			for _, p := range f.Players {
				if p.TrackingID == trackID {
					removed++
				}
			}
		}
		return func(s *state) { killTracking(s, videoID, trackID, fromFrame) }, nil
	})
	return removed, err
}

func (r playerData) Tracks(ctx context.Context, videoID int64) (out []int, err error) {
	err = r.n.read(func(s *state) error {
		seen := make(map[int]bool)
		for _, f := range s.frames[videoID] {
			for _, p := range f.Players {
				if !seen[p.TrackingID] {
					seen[p.TrackingID] = true
					out = append(out, p.TrackingID)
				}
			}
		}
		return nil
	})
	sort.Ints(out)
	return out, err
}

type dataset struct{ n *node }

func (r dataset) Save(ctx context.Context, d entity.DatasetInfo) error {
	d.UpdatedAt = time.Now()
	return r.n.write(func(*state) (change, error) {
		return func(s *state) { s.datasets[d.VideoID] = d }, nil
	})
}

func (r dataset) Get(ctx context.Context, videoID int64) (d entity.DatasetInfo, err error) {
	err = r.n.read(func(s *state) error {
		var ok bool
		if d, ok = s.datasets[videoID]; !ok {
			return apperr.Newf(apperr.KindNotFound, "dataset of video %d not found", videoID)
		}
		return nil
	})
	return d, err
}

type aliases struct{ n *node }

func (r aliases) List(ctx context.Context, videoID int64) (out []entity.PlayerAlias, err error) {
	err = r.n.read(func(s *state) error {
		for t, a := range s.aliases[videoID] {
			out = append(out, entity.PlayerAlias{VideoID: videoID, TrackingID: t, Alias: a})
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].TrackingID < out[j].TrackingID })
	return out, err
}

func (r aliases) Set(ctx context.Context, a entity.PlayerAlias) error {
	return r.n.write(func(*state) (change, error) {
		return func(s *state) {
			m, ok := s.aliases[a.VideoID]
			if !ok {
				m = make(map[int]string)
				s.aliases[a.VideoID] = m
			}
			if a.Alias == "" {
				delete(m, a.TrackingID)
				return
			}
			m[a.TrackingID] = a.Alias
		}, nil
	})
}
