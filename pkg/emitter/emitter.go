package emitter

import (
	"context"

	"github.com/chenBenjamin97/rink-minimap/pkg/entity"
	"github.com/vmihailenco/msgpack/v5"
)

//Emitter publishes the players of every processed frame while a video is being processed
type Emitter interface {
	Emit(ctx context.Context, videoID int64, frame entity.FrameData) error
	Close() error
}

//Nop drops every frame
type Nop struct{}

func (Nop) Emit(context.Context, int64, entity.FrameData) error { return nil }

func (Nop) Close() error { return nil }

type wirePlayer struct {
	TrackingID int        `msgpack:"id"`
	X          float64    `msgpack:"x"`
	Y          float64    `msgpack:"y"`
	BBox       [4]float64 `msgpack:"bbox"`
	Class      int        `msgpack:"class"`
	Team       *int       `msgpack:"team"`
}

type wireFrame struct {
	VideoID int64        `msgpack:"video_id"`
	FrameID int          `msgpack:"frame_id"`
	Players []wirePlayer `msgpack:"players"`
}

//Encode builds the msgpack payload of one frame. Team is nil for referees.
func Encode(videoID int64, frame entity.FrameData) ([]byte, error) {
	w := wireFrame{VideoID: videoID, FrameID: frame.FrameID, Players: make([]wirePlayer, 0, len(frame.Players))}
	for _, p := range frame.Players {
		b := p.BoundingBoxOnCamera
		wp := wirePlayer{
			TrackingID: p.TrackingID,
			X:          p.Position.X,
			Y:          p.Position.Y,
			BBox:       [4]float64{b.Min.X, b.Min.Y, b.Max.X, b.Max.Y},
			Class:      int(p.Class),
		}
		if p.Team != nil {
			t := int(*p.Team)
			wp.Team = &t
		}
		w.Players = append(w.Players, wp)
	}
	return msgpack.Marshal(w)
}
