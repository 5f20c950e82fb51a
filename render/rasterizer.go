package render

import (
	"image"
	"image/color"
	"sync"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/pvsbake/collision"
	"github.com/aukilabs/pvsbake/models"
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

// DefaultNear is the near clip distance of the rasterizer.
const DefaultNear = 0.05

// edgeTolerance is the distance, in pixels, by which triangles are grown.
const edgeTolerance = 1e-3

// Mesh is a flat colored triangle mesh.
type Mesh struct {
	Triangles []collision.Triangle

	// The layer, in [0, 31], matched against camera culling masks.
	Layer uint8

	Color color.RGBA
}

// NewBoxMesh creates the mesh of an oriented box.
func NewBoxMesh(center, size mgl32.Vec3, rotation mgl32.Quat, layer uint8, c color.RGBA) *Mesh {
	return &Mesh{
		Triangles: collision.BoxTriangles(center, size, rotation),
		Layer:     layer,
		Color:     c,
	}
}

// Rasterizer is a software Renderer. Triangles are drawn double sided with
// flat colors and a depth buffer.
type Rasterizer struct {
	Near float32

	mutex  sync.Mutex
	meshes []*Mesh
	depth  []float32
}

func NewRasterizer() *Rasterizer {
	return &Rasterizer{
		Near: DefaultNear,
	}
}

func (r *Rasterizer) AddMesh(m *Mesh) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.meshes = append(r.meshes, m)
}

func (r *Rasterizer) MeshCount() int {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	return len(r.meshes)
}

func (r *Rasterizer) Render(c Camera, target *image.RGBA) error {
	if target == nil || target.Bounds().Empty() {
		return errors.New("empty render target").WithType(ErrTypeInvalidTarget)
	}

	near := r.Near
	if near <= 0 {
		near = DefaultNear
	}
	if c.FieldOfView <= 0 || c.FieldOfView >= 180 || c.Far <= near {
		return errors.New("invalid camera projection").
			WithType(ErrTypeInvalidCamera).
			WithTag("field_of_view", c.FieldOfView).
			WithTag("far", c.Far)
	}
	if c.Forward.Len() == 0 || c.Forward.Cross(c.Up).Len() == 0 {
		return errors.New("invalid camera orientation").
			WithType(ErrTypeInvalidCamera).
			WithTag("forward", c.Forward).
			WithTag("up", c.Up)
	}

	bounds := target.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	view := mgl32.LookAtV(c.Position, c.Position.Add(c.Forward), c.Up)
	projection := mgl32.Perspective(
		mgl32.DegToRad(c.FieldOfView),
		float32(width)/float32(height),
		near,
		c.Far,
	)
	viewProjection := projection.Mul4(view)

	r.mutex.Lock()
	defer r.mutex.Unlock()

	if cap(r.depth) < width*height {
		r.depth = make([]float32, width*height)
	}
	depth := r.depth[:width*height]
	for i := range depth {
		depth[i] = math32.Inf(1)
	}

	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			target.SetRGBA(x, y, models.SentinelColor)
		}
	}

	f := frame{
		target: target,
		depth:  depth,
		width:  width,
		height: height,
	}

	for _, m := range r.meshes {
		if c.CullingMask&(1<<(m.Layer&31)) == 0 {
			continue
		}

		for _, t := range m.Triangles {
			clip := [3]mgl32.Vec4{
				viewProjection.Mul4x1(t.A.Vec4(1)),
				viewProjection.Mul4x1(t.B.Vec4(1)),
				viewProjection.Mul4x1(t.C.Vec4(1)),
			}

			polygon, n := clipNear(clip)
			if n < 3 {
				continue
			}

			var screen [4]screenVertex
			for i := 0; i < n; i++ {
				screen[i] = f.toScreen(polygon[i])
			}
			for i := 1; i+1 < n; i++ {
				f.fill(screen[0], screen[i], screen[i+1], m.Color)
			}
		}
	}

	return nil
}

// clipNear clips a clip space triangle against the near plane. It returns a
// polygon of up to 4 vertices.
func clipNear(in [3]mgl32.Vec4) ([4]mgl32.Vec4, int) {
	var out [4]mgl32.Vec4
	n := 0

	for i := 0; i < 3; i++ {
		a := in[i]
		b := in[(i+1)%3]
		da := a[2] + a[3]
		db := b[2] + b[3]

		if da >= 0 {
			out[n] = a
			n++
		}
		if (da >= 0) != (db >= 0) {
			t := da / (da - db)
			out[n] = a.Add(b.Sub(a).Mul(t))
			n++
		}
	}
	return out, n
}

type screenVertex struct {
	x float32
	y float32
	z float32
}

type frame struct {
	target *image.RGBA
	depth  []float32
	width  int
	height int
}

func (f frame) toScreen(v mgl32.Vec4) screenVertex {
	w := v[3]
	return screenVertex{
		x: (v[0]/w + 1) / 2 * float32(f.width),
		y: (1 - v[1]/w) / 2 * float32(f.height),
		z: v[2] / w,
	}
}

func (f frame) fill(v0, v1, v2 screenVertex, c color.RGBA) {
	area := edge(v0, v1, v2.x, v2.y)
	if area == 0 {
		return
	}

	// double sided: flip the edge functions of clockwise triangles.
	sign := float32(1)
	if area < 0 {
		sign = -1
		area = -area
	}

	// pixels within edgeTolerance of an edge are covered so that shared
	// edges leave no gap.
	e0 := -edgeTolerance * edgeLength(v1, v2)
	e1 := -edgeTolerance * edgeLength(v2, v0)
	e2 := -edgeTolerance * edgeLength(v0, v1)

	minX := clamp(math32.Floor(math32.Min(v0.x, math32.Min(v1.x, v2.x))), f.width-1)
	maxX := clamp(math32.Ceil(math32.Max(v0.x, math32.Max(v1.x, v2.x))), f.width-1)
	minY := clamp(math32.Floor(math32.Min(v0.y, math32.Min(v1.y, v2.y))), f.height-1)
	maxY := clamp(math32.Ceil(math32.Max(v0.y, math32.Max(v1.y, v2.y))), f.height-1)

	origin := f.target.Bounds().Min

	for y := minY; y <= maxY; y++ {
		py := float32(y) + 0.5

		for x := minX; x <= maxX; x++ {
			px := float32(x) + 0.5

			w0 := edge(v1, v2, px, py) * sign
			w1 := edge(v2, v0, px, py) * sign
			w2 := edge(v0, v1, px, py) * sign
			if w0 < e0 || w1 < e1 || w2 < e2 {
				continue
			}

			z := (w0*v0.z + w1*v1.z + w2*v2.z) / area
			if z < -1 || z > 1 {
				continue
			}

			i := y*f.width + x
			if z >= f.depth[i] {
				continue
			}
			f.depth[i] = z
			f.target.SetRGBA(origin.X+x, origin.Y+y, c)
		}
	}
}

func edgeLength(a, b screenVertex) float32 {
	dx := b.x - a.x
	dy := b.y - a.y
	return math32.Sqrt(dx*dx + dy*dy)
}

func edge(a, b screenVertex, x, y float32) float32 {
	return (b.x-a.x)*(y-a.y) - (b.y-a.y)*(x-a.x)
}

// clamp converts v to a pixel coordinate in [0, max].
func clamp(v float32, max int) int {
	if v < 0 {
		return 0
	}
	if v > float32(max) {
		return max
	}
	return int(v)
}
