package field

import (
	"fmt"
	"sort"

	"github.com/chenBenjamin97/rink-minimap/pkg/apperr"
	"github.com/chenBenjamin97/rink-minimap/pkg/geometry"
	"github.com/chenBenjamin97/rink-minimap/pkg/inference"
)

//Instance is one field landmark in camera pixels
type Instance struct {
	BBox   geometry.BoundingBox
	Mask   geometry.Mask
	Center geometry.Point
	Class  Class
}

func NewInstance(class Class, bbox geometry.BoundingBox, mask geometry.Mask) Instance {
	return Instance{BBox: bbox, Mask: mask, Center: bbox.Center(), Class: class}
}

//Line fits a line through the instance mask. Instances without a usable mask fall back to the bbox diagonal.
func (i Instance) Line() geometry.Line {
	if l, err := geometry.FitLine(i.Mask); err == nil {
		return l
	}
	return geometry.Line{A: i.BBox.Min, B: i.BBox.Max}
}

//merge fuses o into i: union box, OR mask. The result owns a new mask.
func (i Instance) merge(o Instance) Instance {
	return NewInstance(i.Class, i.BBox.Union(o.BBox), i.Mask.Or(o.Mask))
}

func (i Instance) clone() Instance {
	c := i
	c.Mask = i.Mask.Clone()
	return c
}

func (i Instance) same(o Instance) bool {
	return i.Class == o.Class && i.BBox == o.BBox && i.Mask.Equal(o.Mask)
}

//FromDetections converts the output of the field detector. Masks are cloned, so dets keeps ownership of its own.
func FromDetections(dets inference.Instances) []Instance {
	out := make([]Instance, 0, len(dets))
	for _, d := range dets {
		out = append(out, NewInstance(Class(d.Class), d.Box, d.Mask.Clone()))
	}
	return out
}

//Data holds the landmarks of one frame after merging
type Data struct {
	Field         *Instance
	BlueCircle    *Instance
	RedCenterLine *Instance
	RedCircles    []Instance
	BlueLines     []Instance
	GoalLines     []Instance
	GoalZones     []Instance
}

//Construct folds instances into a Data:
//Field, BlueCircle and RedCenterLine keep one instance each and fuse duplicates,
//RedCircle, BlueLine and GoalLine are collected, GoalZone instances with intersecting boxes are fused.
//Goal instances are ignored. The Field mask is dilated once the fold is complete.
//instances keep ownership of their masks; the returned Data owns its own and must be closed.
func Construct(instances []Instance) (Data, error) {
	var (
		d     Data
		zones []Instance
	)
	for _, inst := range instances {
		switch inst.Class {
		case Field:
			d.Field = fuse(d.Field, inst)
		case BlueCircle:
			d.BlueCircle = fuse(d.BlueCircle, inst)
		case RedCenterLine:
			d.RedCenterLine = fuse(d.RedCenterLine, inst)
		case RedCircle:
			d.RedCircles = appendUnique(d.RedCircles, inst)
		case BlueLine:
			d.BlueLines = appendUnique(d.BlueLines, inst)
		case GoalLine:
			d.GoalLines = appendUnique(d.GoalLines, inst)
		case GoalZone:
			zones = appendUnique(zones, inst)
		case Goal:
		default:
			d.Close()
			closeAll(zones)
			return Data{}, fmt.Errorf("field: unknown class %d", inst.Class)
		}
	}

	if d.Field == nil {
		d.Close()
		closeAll(zones)
		return Data{}, apperr.ErrFieldNotDetected
	}

	dilated := d.Field.Mask.Dilate(geometry.DefaultDilationKernel)
	d.Field.Mask.Close()
	d.Field.Mask = dilated

	d.GoalZones = mergeIntersecting(zones)
	for _, list := range [][]Instance{d.RedCircles, d.BlueLines, d.GoalLines, d.GoalZones} {
		sortInstances(list)
	}
	return d, nil
}

func fuse(acc *Instance, inst Instance) *Instance {
	if acc == nil {
		c := inst.clone()
		return &c
	}
	merged := acc.merge(inst)
	acc.Mask.Close()
	return &merged
}

func appendUnique(list []Instance, inst Instance) []Instance {
	for _, l := range list {
		if l.same(inst) {
			return list
		}
	}
	return append(list, inst.clone())
}

//mergeIntersecting fuses every group of instances connected through intersecting boxes
func mergeIntersecting(list []Instance) []Instance {
	parent := make([]int, len(list))
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(i int) int {
		if parent[i] != i {
			parent[i] = find(parent[i])
		}
		return parent[i]
	}
	for i := range list {
		for j := i + 1; j < len(list); j++ {
			if list[i].BBox.Intersects(list[j].BBox) {
				parent[find(j)] = find(i)
			}
		}
	}

	groups := make(map[int][]Instance)
	var roots []int
	for i := range list {
		r := find(i)
		if _, ok := groups[r]; !ok {
			roots = append(roots, r)
		}
		groups[r] = append(groups[r], list[i])
	}

	out := make([]Instance, 0, len(roots))
	for _, r := range roots {
		g := groups[r]
		if len(g) == 1 {
			out = append(out, g[0])
			continue
		}
		bbox := g[0].BBox
		masks := make([]geometry.Mask, 0, len(g)-1)
		for _, o := range g[1:] {
			bbox = bbox.Union(o.BBox)
			masks = append(masks, o.Mask)
		}
		out = append(out, NewInstance(g[0].Class, bbox, g[0].Mask.Or(masks...)))
		closeAll(g)
	}
	return out
}

//sortInstances orders instances by box so the result does not depend on detection order
func sortInstances(list []Instance) {
	sort.SliceStable(list, func(i, j int) bool {
		a, b := list[i].BBox, list[j].BBox
		switch {
		case a.Min.X != b.Min.X:
			return a.Min.X < b.Min.X
		case a.Min.Y != b.Min.Y:
			return a.Min.Y < b.Min.Y
		case a.Max.X != b.Max.X:
			return a.Max.X < b.Max.X
		default:
			return a.Max.Y < b.Max.Y
		}
	})
}

func closeAll(list []Instance) {
	for _, i := range list {
		i.Mask.Close()
	}
}

//Resolution is the frame size the landmarks were detected on
func (d Data) Resolution() geometry.Resolution {
	if d.Field == nil {
		return geometry.Resolution{}
	}
	return d.Field.Mask.Resolution()
}

func (d Data) Close() {
	for _, i := range []*Instance{d.Field, d.BlueCircle, d.RedCenterLine} {
		if i != nil {
			i.Mask.Close()
		}
	}
	for _, list := range [][]Instance{d.RedCircles, d.BlueLines, d.GoalLines, d.GoalZones} {
		closeAll(list)
	}
}
