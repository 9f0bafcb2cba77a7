package field

import (
	"math/rand"
	"testing"

	"github.com/chenBenjamin97/rink-minimap/pkg/apperr"
	"github.com/chenBenjamin97/rink-minimap/pkg/geometry"
	"github.com/stretchr/testify/require"
)

var res = geometry.Resolution{Width: 640, Height: 360}

func rectInstance(c Class, x1, y1, x2, y2 float64) Instance {
	b := geometry.NewBoundingBox(x1, y1, x2, y2)
	return NewInstance(c, b, geometry.MaskFromRect(res, b))
}

func sampleInstances() []Instance {
	return []Instance{
		rectInstance(Field, 0, 100, 400, 360),
		rectInstance(Field, 300, 100, 640, 360),
		rectInstance(RedCenterLine, 318, 100, 322, 360),
		rectInstance(BlueLine, 150, 100, 155, 360),
		rectInstance(BlueLine, 485, 100, 490, 360),
		rectInstance(RedCircle, 60, 150, 90, 180),
		rectInstance(RedCircle, 550, 150, 580, 180),
		rectInstance(GoalZone, 10, 200, 40, 240),
		rectInstance(GoalZone, 35, 230, 60, 260),
		rectInstance(GoalZone, 600, 200, 630, 240),
		rectInstance(Goal, 5, 200, 20, 240),
		rectInstance(BlueCircle, 300, 200, 340, 240),
	}
}

func TestConstructRequiresField(t *testing.T) {
	insts := []Instance{rectInstance(BlueLine, 10, 10, 20, 300)}
	defer closeAll(insts)

	_, err := Construct(insts)
	require.ErrorIs(t, err, apperr.ErrFieldNotDetected)
}

func TestConstructMergeRules(t *testing.T) {
	insts := sampleInstances()
	defer closeAll(insts)

	d, err := Construct(insts)
	require.NoError(t, err)
	defer d.Close()

	require.NotNil(t, d.Field)
	require.Equal(t, geometry.NewBoundingBox(0, 100, 640, 360), d.Field.BBox)
	require.Equal(t, geometry.Pt(320, 230), d.Field.Center)
	//dilated by the 21px kernel: rows just above the detected field are now inside
	require.True(t, d.Field.Mask.Contains(geometry.Pt(320, 92)))
	require.False(t, d.Field.Mask.Contains(geometry.Pt(320, 80)))

	require.NotNil(t, d.RedCenterLine)
	require.NotNil(t, d.BlueCircle)
	require.Len(t, d.BlueLines, 2)
	require.Len(t, d.RedCircles, 2)
	require.Empty(t, d.GoalLines)

	require.Len(t, d.GoalZones, 2)
	require.Equal(t, geometry.NewBoundingBox(10, 200, 60, 260), d.GoalZones[0].BBox)
	require.Equal(t, geometry.NewBoundingBox(600, 200, 630, 240), d.GoalZones[1].BBox)
	require.Equal(t, res, d.Resolution())
}

func TestConstructMergesGoalZonesTransitively(t *testing.T) {
	insts := []Instance{
		rectInstance(Field, 0, 0, 640, 360),
		rectInstance(GoalZone, 0, 0, 20, 20),
		rectInstance(GoalZone, 40, 0, 60, 20),
		rectInstance(GoalZone, 15, 0, 45, 20),
	}
	defer closeAll(insts)

	d, err := Construct(insts)
	require.NoError(t, err)
	defer d.Close()

	require.Len(t, d.GoalZones, 1)
	require.Equal(t, geometry.NewBoundingBox(0, 0, 60, 20), d.GoalZones[0].BBox)
}

func TestConstructIsIdempotent(t *testing.T) {
	insts := sampleInstances()
	defer closeAll(insts)

	once, err := Construct(insts)
	require.NoError(t, err)
	defer once.Close()

	twice, err := Construct(append(append([]Instance{}, insts...), insts...))
	require.NoError(t, err)
	defer twice.Close()

	requireSameData(t, once, twice)
}

func TestConstructIsOrderIndependent(t *testing.T) {
	insts := sampleInstances()
	defer closeAll(insts)

	want, err := Construct(insts)
	require.NoError(t, err)
	defer want.Close()

	rnd := rand.New(rand.NewSource(7))
	for i := 0; i < 5; i++ {
		shuffled := append([]Instance{}, insts...)
		rnd.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })

		got, err := Construct(shuffled)
		require.NoError(t, err)
		requireSameData(t, want, got)
		got.Close()
	}
}

func requireSameData(t *testing.T, a, b Data) {
	t.Helper()
	requireSameInstance(t, a.Field, b.Field)
	requireSameInstance(t, a.BlueCircle, b.BlueCircle)
	requireSameInstance(t, a.RedCenterLine, b.RedCenterLine)
	for _, pair := range [][2][]Instance{
		{a.RedCircles, b.RedCircles},
		{a.BlueLines, b.BlueLines},
		{a.GoalLines, b.GoalLines},
		{a.GoalZones, b.GoalZones},
	} {
		require.Len(t, pair[1], len(pair[0]))
		for i := range pair[0] {
			requireSameInstance(t, &pair[0][i], &pair[1][i])
		}
	}
}

func requireSameInstance(t *testing.T, a, b *Instance) {
	t.Helper()
	if a == nil || b == nil {
		require.True(t, a == nil && b == nil)
		return
	}
	require.Equal(t, a.BBox, b.BBox)
	require.Equal(t, a.Center, b.Center)
	require.True(t, a.Mask.Equal(b.Mask))
}

func TestInstanceLineFollowsMask(t *testing.T) {
	inst := rectInstance(RedCenterLine, 318, 100, 322, 360)
	defer inst.Mask.Close()

	l := inst.Line()
	top, bottom := l.Upper()
	require.InDelta(t, 320, top.X, 2)
	require.InDelta(t, 320, bottom.X, 2)
	require.Less(t, top.Y, bottom.Y)
}
