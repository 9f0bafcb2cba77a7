package emitter

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/chenBenjamin97/rink-minimap/pkg/entity"
	"github.com/chenBenjamin97/rink-minimap/pkg/geometry"
	"github.com/chenBenjamin97/rink-minimap/pkg/log"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
)

type doneToken struct {
	err error
}

func (t doneToken) Wait() bool                     { return true }
func (t doneToken) WaitTimeout(time.Duration) bool { return true }
func (t doneToken) Done() <-chan struct{} {
	c := make(chan struct{})
	close(c)
	return c
}
func (t doneToken) Error() error { return t.err }

type published struct {
	topic   string
	payload []byte
}

type fakeClient struct {
	mqtt.Client
	err  error
	sent []published
}

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	c.sent = append(c.sent, published{topic: topic, payload: payload.([]byte)})
	return doneToken{err: c.err}
}

func (c *fakeClient) IsConnected() bool { return false }

func frame() entity.FrameData {
	return entity.FrameData{FrameID: 12, Players: []entity.PlayerData{
		{TrackingID: 3, Position: geometry.Pt(0.25, 0.5), BoundingBoxOnCamera: geometry.NewBoundingBox(0.1, 0.2, 0.3, 0.4),
			Class: entity.ClassPlayer, Team: entity.TeamPtr(entity.TeamAway)},
		{TrackingID: 4, Class: entity.ClassReferee},
	}}
}

func TestEncodeFrame(t *testing.T) {
	b, err := Encode(9, frame())
	require.NoError(t, err)

	var got wireFrame
	require.NoError(t, msgpack.Unmarshal(b, &got))
	require.EqualValues(t, 9, got.VideoID)
	require.Equal(t, 12, got.FrameID)
	require.Len(t, got.Players, 2)
	require.Equal(t, [4]float64{0.1, 0.2, 0.3, 0.4}, got.Players[0].BBox)
	require.Equal(t, 2, *got.Players[0].Team)
	require.Nil(t, got.Players[1].Team)
	require.Equal(t, 1, got.Players[1].Class)
}

func TestMQTTPublishesPerVideoTopic(t *testing.T) {
	client := &fakeClient{}
	e := NewMQTT(client, MQTTConfig{Prefix: "rink"}, log.Discard())

	require.NoError(t, e.Emit(context.Background(), 5, frame()))
	require.Len(t, client.sent, 1)
	require.Equal(t, "rink/5/frames", client.sent[0].topic)

	client.err = errors.New("broker gone")
	require.Error(t, e.Emit(context.Background(), 5, frame()))

	ok, failed := e.Stats()
	require.EqualValues(t, 1, ok)
	require.EqualValues(t, 1, failed)
	require.NoError(t, e.Close())
}
