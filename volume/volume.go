package volume

import (
	"github.com/aukilabs/pvsbake/collision"
	"github.com/aukilabs/pvsbake/models"
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

// DefaultStickyDistance is the distance within which a sticky volume looks
// for a walkable surface.
const DefaultStickyDistance = models.OctantSize * 3

const containsEpsilon = 1e-4

// NodeGraph is the interface that describes a graph of reachable points.
type NodeGraph interface {
	// Reports whether a node is in line of sight of the octant-sized cube
	// centered on point.
	HasNode(point mgl32.Vec3) bool
}

// Volume is an oriented box that marks a region of a scene as bake
// candidates. The box spans [-Scale/2, Scale/2] around Position before
// being rotated.
type Volume struct {
	Position mgl32.Vec3
	Rotation mgl32.Quat
	Scale    mgl32.Vec3

	// Negate volumes remove octants from the candidate set instead of
	// adding them.
	Negate bool

	// ForceAdd keeps the octants the graph does not reach.
	ForceAdd bool

	// Sticky keeps only the octants close to a surface.
	Sticky         bool
	StickyDistance float32

	cached             []models.Octant
	cacheValid         bool
	lastTRS            mgl32.Mat4
	lastSticky         bool
	lastStickyDistance float32
}

// New creates an axis aligned volume.
func New(position, scale mgl32.Vec3) *Volume {
	return &Volume{
		Position:       position,
		Rotation:       mgl32.QuatIdent(),
		Scale:          scale,
		StickyDistance: DefaultStickyDistance,
	}
}

// TRS returns the local to world matrix of the volume.
func (v *Volume) TRS() mgl32.Mat4 {
	return mgl32.Translate3D(v.Position[0], v.Position[1], v.Position[2]).
		Mul4(v.rotation().Mat4()).
		Mul4(mgl32.Scale3D(v.Scale[0], v.Scale[1], v.Scale[2]))
}

// Bounds returns the world axis aligned bounding box of the volume.
func (v *Volume) Bounds() (mgl32.Vec3, mgl32.Vec3) {
	rotation := v.rotation()
	half := v.Scale.Mul(0.5)

	min := v.Position
	max := v.Position
	for _, d := range models.CornerDirections {
		local := mgl32.Vec3{d[0] * half[0], d[1] * half[1], d[2] * half[2]}
		p := v.Position.Add(rotation.Rotate(local))

		for i := 0; i < 3; i++ {
			min[i] = math32.Min(min[i], p[i])
			max[i] = math32.Max(max[i], p[i])
		}
	}
	return min, max
}

// Contains reports whether point is inside the oriented box, faces
// included.
func (v *Volume) Contains(point mgl32.Vec3) bool {
	local := v.rotation().Inverse().Rotate(point.Sub(v.Position))

	for i := 0; i < 3; i++ {
		half := math32.Abs(v.Scale[i]) / 2
		if !collision.InRangeWithEpsilon(local[i], -half, half, containsEpsilon) {
			return false
		}
	}
	return true
}

// Align snaps the position and the scale to the octant grid and resets the
// rotation.
func (v *Volume) Align() {
	v.Rotation = mgl32.QuatIdent()
	for i := 0; i < 3; i++ {
		v.Position[i] = snap(v.Position[i])
		v.Scale[i] = snap(v.Scale[i])
	}
}

// Octants returns the octants whose center is inside the volume. When graph
// is not nil and the volume is not ForceAdd, octants the graph does not
// reach are skipped. Sticky volumes also skip the octants that are not near
// a surface facing them.
//
// The result is cached until the transform or the sticky parameters change.
func (v *Volume) Octants(graph NodeGraph, raycaster collision.Raycaster) []models.Octant {
	v.ValidateCache()
	if v.cacheValid {
		return v.cached
	}

	min, max := v.Bounds()
	minOctant := models.OctantOf(min)
	maxOctant := models.OctantOf(max)

	octants := []models.Octant{}
	for x := minOctant.X; x <= maxOctant.X; x += models.OctantSize {
		for y := minOctant.Y; y <= maxOctant.Y; y += models.OctantSize {
			for z := minOctant.Z; z <= maxOctant.Z; z += models.OctantSize {
				octant := models.Octant{X: x, Y: y, Z: z}
				center := octant.Center()

				if !v.Contains(center) {
					continue
				}
				if !v.ForceAdd && graph != nil && !graph.HasNode(center) {
					continue
				}
				if v.Sticky && !v.nearSurface(center, raycaster) {
					continue
				}
				octants = append(octants, octant)
			}
		}
	}

	v.cached = octants
	v.cacheValid = true
	v.lastTRS = v.TRS()
	v.lastSticky = v.Sticky
	v.lastStickyDistance = v.StickyDistance
	return octants
}

// ValidateCache drops the cached octants when the transform or the sticky
// parameters changed since they were computed.
func (v *Volume) ValidateCache() {
	if !v.cacheValid {
		return
	}

	if v.TRS() != v.lastTRS ||
		v.Sticky != v.lastSticky ||
		v.StickyDistance != v.lastStickyDistance {
		v.Invalidate()
	}
}

func (v *Volume) Invalidate() {
	v.cached = nil
	v.cacheValid = false
}

// OctantCount returns the number of cached octants, or nil when nothing is
// cached.
func (v *Volume) OctantCount() *int {
	if !v.cacheValid {
		return nil
	}
	count := len(v.cached)
	return &count
}

func (v *Volume) nearSurface(point mgl32.Vec3, raycaster collision.Raycaster) bool {
	if raycaster == nil {
		return false
	}

	distance := v.StickyDistance
	if distance <= 0 {
		distance = DefaultStickyDistance
	}

	for _, d := range models.CornerDirections {
		dir := d.Normalize()
		hit, ok := raycaster.Raycast(point, dir, distance)
		if ok && hit.Normal.Dot(dir) < 0 {
			return true
		}
	}
	return false
}

func (v *Volume) rotation() mgl32.Quat {
	if v.Rotation.Len() == 0 {
		return mgl32.QuatIdent()
	}
	return v.Rotation.Normalize()
}

func snap(v float32) float32 {
	return math32.Floor(v/models.OctantSize) * models.OctantSize
}
