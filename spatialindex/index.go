// Package spatialindex implements a bulk-rebuildable octree over 3-D points, used by the
// correspondence manager to answer radius queries against the local map for each feature kind.
package spatialindex

import (
	"sort"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
)

// nodeType mirrors the three states a basic octree node can be in: it either links to eight
// children, holds exactly one point, or holds none.
type nodeType uint8

const (
	internalNode nodeType = iota
	leafEmpty
	leafFilled
)

// Neighbor is one result of a radius search: the matched point, its associated payload, and its
// distance from the query.
type Neighbor struct {
	Point    r3.Vector
	Data     int
	Distance float64
}

type node struct {
	kind     nodeType
	children []*Index
	point    r3.Vector
	data     int
}

// Index is a basic octree: it recursively partitions a cube of space into eight octants,
// splitting a leaf into children only when a second point lands inside it. It is always rebuilt
// from scratch once per sweep rather than incrementally balanced, which is why Rebuild — not
// incremental insertion — is the primary entry point.
type Index struct {
	root       *node
	center     r3.Vector
	sideLength float64
	size       int
}

// New creates an empty octree spanning a cube of the given side length centered at center.
func New(center r3.Vector, sideLength float64) (*Index, error) {
	if sideLength <= 0 {
		return nil, errors.Errorf("invalid side length (%.3f) for spatial index", sideLength)
	}
	return &Index{
		root:       &node{kind: leafEmpty},
		center:     center,
		sideLength: sideLength,
	}, nil
}

// Rebuild constructs a new Index from scratch containing exactly the given points, auto-sizing
// the bounding cube to comfortably contain them. This mirrors the correspondence manager's
// buildTrees behavior of rebuilding the spatial index on any non-empty set every sweep.
func Rebuild(points []r3.Vector, data []int) (*Index, error) {
	if len(points) == 0 {
		return New(r3.Vector{}, 1)
	}
	center, side := boundingCube(points)
	idx, err := New(center, side)
	if err != nil {
		return nil, err
	}
	for i, p := range points {
		d := 0
		if data != nil {
			d = data[i]
		}
		if err := idx.insert(p, d); err != nil {
			return nil, err
		}
	}
	return idx, nil
}

func boundingCube(points []r3.Vector) (r3.Vector, float64) {
	min, max := points[0], points[0]
	for _, p := range points[1:] {
		min = r3.Vector{X: minF(min.X, p.X), Y: minF(min.Y, p.Y), Z: minF(min.Z, p.Z)}
		max = r3.Vector{X: maxF(max.X, p.X), Y: maxF(max.Y, p.Y), Z: maxF(max.Z, p.Z)}
	}
	center := min.Add(max).Mul(0.5)
	extent := maxF(maxF(max.X-min.X, max.Y-min.Y), max.Z-min.Z)
	if extent <= 0 {
		extent = 1
	}
	// Pad so points exactly on the bounding box boundary remain strictly inside the root cube.
	return center, extent*1.5 + 1e-6
}

func minF(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func maxF(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

// Size returns the number of points currently stored.
func (idx *Index) Size() int {
	return idx.size
}

func (idx *Index) checkPointPlacement(p r3.Vector) bool {
	half := idx.sideLength / 2
	return p.X >= idx.center.X-half && p.X <= idx.center.X+half &&
		p.Y >= idx.center.Y-half && p.Y <= idx.center.Y+half &&
		p.Z >= idx.center.Z-half && p.Z <= idx.center.Z+half
}

func (idx *Index) insert(p r3.Vector, data int) error {
	if !idx.checkPointPlacement(p) {
		return errors.New("point is outside the bounds of this spatial index")
	}

	switch idx.root.kind {
	case internalNode:
		for _, child := range idx.root.children {
			if child.checkPointPlacement(p) {
				if err := child.insert(p, data); err != nil {
					return err
				}
				idx.size++
				return nil
			}
		}
		return errors.New("invalid internal node: no child claims this point")

	case leafFilled:
		if idx.root.point == p {
			idx.root.data = data
			return nil
		}
		if err := idx.splitIntoOctants(); err != nil {
			return errors.Wrap(err, "splitting spatial index node")
		}
		return idx.insert(p, data)

	default: // leafEmpty
		idx.root.kind = leafFilled
		idx.root.point = p
		idx.root.data = data
		idx.size++
		return nil
	}
}

func (idx *Index) splitIntoOctants() error {
	oldPoint, oldData := idx.root.point, idx.root.data
	half := idx.sideLength / 2
	quarter := idx.sideLength / 4

	children := make([]*Index, 0, 8)
	for _, dx := range []float64{-quarter, quarter} {
		for _, dy := range []float64{-quarter, quarter} {
			for _, dz := range []float64{-quarter, quarter} {
				childCenter := idx.center.Add(r3.Vector{X: dx, Y: dy, Z: dz})
				child, err := New(childCenter, half)
				if err != nil {
					return err
				}
				children = append(children, child)
			}
		}
	}

	idx.root = &node{kind: internalNode, children: children}
	// The old point was already counted when it first landed here; re-inserting it counts it again.
	idx.size--
	return idx.insert(oldPoint, oldData)
}

// RadiusSearch returns every stored point within radius of query, sorted by ascending distance.
func (idx *Index) RadiusSearch(query r3.Vector, radius float64) []Neighbor {
	var out []Neighbor
	idx.collect(query, radius, &out)
	sort.Slice(out, func(i, j int) bool { return out[i].Distance < out[j].Distance })
	return out
}

func (idx *Index) collect(query r3.Vector, radius float64, out *[]Neighbor) {
	if !idx.cubeIntersectsSphere(query, radius) {
		return
	}
	switch idx.root.kind {
	case internalNode:
		for _, child := range idx.root.children {
			child.collect(query, radius, out)
		}
	case leafFilled:
		d := idx.root.point.Sub(query).Norm()
		if d <= radius {
			*out = append(*out, Neighbor{Point: idx.root.point, Data: idx.root.data, Distance: d})
		}
	case leafEmpty:
	}
}

func (idx *Index) cubeIntersectsSphere(query r3.Vector, radius float64) bool {
	half := idx.sideLength / 2
	closest := r3.Vector{
		X: clamp(query.X, idx.center.X-half, idx.center.X+half),
		Y: clamp(query.Y, idx.center.Y-half, idx.center.Y+half),
		Z: clamp(query.Z, idx.center.Z-half, idx.center.Z+half),
	}
	return closest.Sub(query).Norm() <= radius
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
