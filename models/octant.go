package models

import (
	"cmp"
	"slices"

	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/segmentio/encoding/json"
)

// OctantSize is the side length of an octant, in world units.
const OctantSize = 4

const halfOctant = OctantSize / 2

// Octant is the grid-aligned corner of a cube of OctantSize world units.
// Octants are values: two octants are equal when their coordinates are.
type Octant struct {
	X int
	Y int
	Z int
}

// OctantOf returns the octant that contains the given point.
func OctantOf(p mgl32.Vec3) Octant {
	return Octant{
		X: snap(p[0]),
		Y: snap(p[1]),
		Z: snap(p[2]),
	}
}

func snap(v float32) int {
	return int(math32.Floor(v/OctantSize)) * OctantSize
}

// Vec3 returns the octant origin in world space.
func (o Octant) Vec3() mgl32.Vec3 {
	return mgl32.Vec3{float32(o.X), float32(o.Y), float32(o.Z)}
}

// Center returns the center of the octant cell.
func (o Octant) Center() mgl32.Vec3 {
	return o.Vec3().Add(mgl32.Vec3{halfOctant, halfOctant, halfOctant})
}

// Corners returns the 8 corners of the cell centered on the octant center
// moved by offset.
func (o Octant) Corners(offset mgl32.Vec3) [8]mgl32.Vec3 {
	center := o.Center().Add(offset)

	var corners [8]mgl32.Vec3
	for i, d := range CornerDirections {
		corners[i] = center.Add(d.Mul(halfOctant))
	}
	return corners
}

// Neighbors returns the (2r+1)^3 octants of the cube of radius r centered on
// the octant, the octant itself included. Index order is x + y*n + z*n*n.
func (o Octant) Neighbors(radius int) []Octant {
	if radius < 0 {
		radius = 0
	}

	n := radius*2 + 1
	neighbors := make([]Octant, n*n*n)
	for x := 0; x < n; x++ {
		for y := 0; y < n; y++ {
			for z := 0; z < n; z++ {
				neighbors[x+y*n+z*n*n] = Octant{
					X: o.X + (x-radius)*OctantSize,
					Y: o.Y + (y-radius)*OctantSize,
					Z: o.Z + (z-radius)*OctantSize,
				}
			}
		}
	}
	return neighbors
}

// MarshalJSON encodes the octant as an [x, y, z] array.
func (o Octant) MarshalJSON() ([]byte, error) {
	return json.Marshal([3]int{o.X, o.Y, o.Z})
}

func (o *Octant) UnmarshalJSON(data []byte) error {
	var v [3]int
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*o = Octant{X: v[0], Y: v[1], Z: v[2]}
	return nil
}

func (o Octant) Compare(other Octant) int {
	if c := cmp.Compare(o.X, other.X); c != 0 {
		return c
	}
	if c := cmp.Compare(o.Y, other.Y); c != 0 {
		return c
	}
	return cmp.Compare(o.Z, other.Z)
}

// CornerDirections are the 8 unit-cube diagonals, all ± combinations of x, y
// and z.
var CornerDirections = [8]mgl32.Vec3{
	{1, 1, 1},
	{1, 1, -1},
	{1, -1, 1},
	{1, -1, -1},
	{-1, 1, 1},
	{-1, 1, -1},
	{-1, -1, 1},
	{-1, -1, -1},
}

// CornerKey is the quantized position of a sample point. Corners shared by
// adjacent octants map to the same key.
type CornerKey struct {
	X int
	Y int
	Z int
}

func CornerKeyOf(p mgl32.Vec3) CornerKey {
	return CornerKey{
		X: int(math32.Floor(p[0]/OctantSize + 0.5)),
		Y: int(math32.Floor(p[1]/OctantSize + 0.5)),
		Z: int(math32.Floor(p[2]/OctantSize + 0.5)),
	}
}

// OctantSet is a set of octants.
type OctantSet map[Octant]struct{}

func NewOctantSet(octants ...Octant) OctantSet {
	s := make(OctantSet, len(octants))
	for _, o := range octants {
		s[o] = struct{}{}
	}
	return s
}

func (s OctantSet) Add(o Octant) {
	s[o] = struct{}{}
}

func (s OctantSet) Contains(o Octant) bool {
	_, ok := s[o]
	return ok
}

// Sorted returns the octants of the set ordered by x, y then z.
func (s OctantSet) Sorted() []Octant {
	octants := make([]Octant, 0, len(s))
	for o := range s {
		octants = append(octants, o)
	}
	SortOctants(octants)
	return octants
}

func SortOctants(octants []Octant) {
	slices.SortFunc(octants, Octant.Compare)
}
