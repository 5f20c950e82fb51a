package render

import (
	"image"

	"github.com/go-gl/mathgl/mgl32"
)

// AllLayers is a culling mask that renders every layer.
const AllLayers = ^uint32(0)

// Pose is the position and orientation of a camera.
type Pose struct {
	Position mgl32.Vec3
	Forward  mgl32.Vec3
	Up       mgl32.Vec3
}

// Camera describes how a scene is rendered.
type Camera struct {
	Pose

	// The vertical field of view, in degrees.
	FieldOfView float32

	// The far clip distance.
	Far float32

	// Bit i set renders the meshes of layer i.
	CullingMask uint32
}

// Renderer is the interface that describes a scene renderer.
type Renderer interface {
	// Renders the scene seen by camera into target, replacing its content.
	// Pixels that show no geometry are set to models.SentinelColor.
	Render(c Camera, target *image.RGBA) error
}

// Faces of a cubemap, in render order.
var CubemapFaces = [6]string{
	"forward",
	"right",
	"backward",
	"left",
	"up",
	"down",
}

// CubemapPoses returns the poses of the six faces of a cubemap centered on
// point, in CubemapFaces order: +Z, +X, -Z, -X, +Y, -Y.
func CubemapPoses(point mgl32.Vec3) [6]Pose {
	up := mgl32.Vec3{0, 1, 0}

	return [6]Pose{
		{Position: point, Forward: mgl32.Vec3{0, 0, 1}, Up: up},
		{Position: point, Forward: mgl32.Vec3{1, 0, 0}, Up: up},
		{Position: point, Forward: mgl32.Vec3{0, 0, -1}, Up: up},
		{Position: point, Forward: mgl32.Vec3{-1, 0, 0}, Up: up},
		{Position: point, Forward: mgl32.Vec3{0, 1, 0}, Up: mgl32.Vec3{0, 0, -1}},
		{Position: point, Forward: mgl32.Vec3{0, -1, 0}, Up: mgl32.Vec3{0, 0, 1}},
	}
}
