package scene

import (
	"github.com/aukilabs/pvsbake/bake"
	"github.com/aukilabs/pvsbake/models"
	"github.com/go-gl/mathgl/mgl32"
)

// Description is the JSON description of a scene.
type Description struct {
	Settings  bake.Settings     `json:"settings"`
	Occluders []OccluderDesc    `json:"occluders"`
	Static    []StaticDesc      `json:"static,omitempty"`
	Volumes   []VolumeDesc      `json:"volumes,omitempty"`
	Markers   [][]models.Octant `json:"markers,omitempty"`
	Nodes     []mgl32.Vec3      `json:"nodes,omitempty"`

	// The cell size of the collision grid.
	CellSize float32 `json:"cell_size,omitempty"`
}

// Box is an oriented box. Rotation holds euler angles in degrees, applied
// around z, x then y.
type Box struct {
	Center   mgl32.Vec3 `json:"center"`
	Size     mgl32.Vec3 `json:"size"`
	Rotation mgl32.Vec3 `json:"rotation,omitempty"`
}

func (b Box) Quat() mgl32.Quat {
	return eulerToQuat(b.Rotation)
}

type OccluderDesc struct {
	Name       string `json:"name"`
	Type       string `json:"type"`
	ID         int    `json:"id"`
	Box        Box    `json:"box"`
	Layer      uint8  `json:"layer,omitempty"`
	Collidable bool   `json:"collidable,omitempty"`
}

// StaticDesc is geometry that hides occluders without being baked.
type StaticDesc struct {
	Box        Box   `json:"box"`
	Layer      uint8 `json:"layer,omitempty"`
	Collidable bool  `json:"collidable,omitempty"`
}

type VolumeDesc struct {
	Position       mgl32.Vec3 `json:"position"`
	Rotation       mgl32.Vec3 `json:"rotation,omitempty"`
	Scale          mgl32.Vec3 `json:"scale"`
	Negate         bool       `json:"negate,omitempty"`
	ForceAdd       bool       `json:"force_add,omitempty"`
	Sticky         bool       `json:"sticky,omitempty"`
	StickyDistance float32    `json:"sticky_distance,omitempty"`
	Align          bool       `json:"align,omitempty"`
}

func eulerToQuat(degrees mgl32.Vec3) mgl32.Quat {
	x := mgl32.QuatRotate(mgl32.DegToRad(degrees[0]), mgl32.Vec3{1, 0, 0})
	y := mgl32.QuatRotate(mgl32.DegToRad(degrees[1]), mgl32.Vec3{0, 1, 0})
	z := mgl32.QuatRotate(mgl32.DegToRad(degrees[2]), mgl32.Vec3{0, 0, 1})
	return y.Mul(x).Mul(z)
}
