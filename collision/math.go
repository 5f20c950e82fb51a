package collision

import (
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

const hitEpsilon = 1e-4

func EqualWithEpsilon(a float32, b float32, epsilon float32) bool {
	return math32.Abs(a-b) <= epsilon
}

func InRangeWithEpsilon(value float32, min float32, max float32, epsilon float32) bool {
	return value+epsilon >= min && value-epsilon <= max
}

// Triangle is a collidable triangle. Its normal follows the counter clockwise
// winding of A, B and C.
type Triangle struct {
	A mgl32.Vec3
	B mgl32.Vec3
	C mgl32.Vec3

	// implicit
	Normal mgl32.Vec3
}

func NewTriangle(a, b, c mgl32.Vec3) Triangle {
	return Triangle{
		A:      a,
		B:      b,
		C:      c,
		Normal: calculateNormal(a, b, c),
	}
}

func (t Triangle) Bounds() (mgl32.Vec3, mgl32.Vec3) {
	min, max := t.A, t.A
	for _, p := range [2]mgl32.Vec3{t.B, t.C} {
		for i := 0; i < 3; i++ {
			min[i] = math32.Min(min[i], p[i])
			max[i] = math32.Max(max[i], p[i])
		}
	}
	return min, max
}

func calculateNormal(a, b, c mgl32.Vec3) mgl32.Vec3 {
	n := b.Sub(a).Cross(c.Sub(a))
	if n.Len() == 0 {
		return n
	}
	return n.Normalize()
}

// IntersectTriangle returns the distance along dir at which the ray enters
// the triangle. Both faces are hit. dir must be normalized.
func IntersectTriangle(origin, dir mgl32.Vec3, tri Triangle) (bool, float32) {
	e1 := tri.B.Sub(tri.A)
	e2 := tri.C.Sub(tri.A)

	p := dir.Cross(e2)
	det := e1.Dot(p)
	if math32.Abs(det) < 1e-8 {
		return false, -1
	}
	inv := 1 / det

	s := origin.Sub(tri.A)
	u := s.Dot(p) * inv
	if u < 0 || u > 1 {
		return false, -1
	}

	q := s.Cross(e1)
	v := dir.Dot(q) * inv
	if v < 0 || u+v > 1 {
		return false, -1
	}

	t := e2.Dot(q) * inv
	if t <= hitEpsilon {
		return false, -1
	}
	return true, t
}

// rayAABB returns the entry and exit distances of a ray through a box.
func rayAABB(origin, dir, min, max mgl32.Vec3) (bool, float32, float32) {
	tmin, tmax := math32.Inf(-1), math32.Inf(1)

	for i := 0; i < 3; i++ {
		if math32.Abs(dir[i]) < 1e-12 {
			if origin[i] < min[i] || origin[i] > max[i] {
				return false, 0, 0
			}
			continue
		}

		inv := 1 / dir[i]
		t1 := (min[i] - origin[i]) * inv
		t2 := (max[i] - origin[i]) * inv
		if t1 > t2 {
			t1, t2 = t2, t1
		}
		if t1 > tmin {
			tmin = t1
		}
		if t2 < tmax {
			tmax = t2
		}
	}

	if tmax < 0 || tmin > tmax {
		return false, 0, 0
	}
	return true, tmin, tmax
}

// BoxTriangles returns the 12 outward facing triangles of an oriented box.
func BoxTriangles(center, size mgl32.Vec3, rotation mgl32.Quat) []Triangle {
	h := size.Mul(0.5)
	x, y, z := h[0], h[1], h[2]

	faces := [6][4]mgl32.Vec3{
		{{x, -y, -z}, {x, y, -z}, {x, y, z}, {x, -y, z}},     // +x
		{{-x, -y, -z}, {-x, -y, z}, {-x, y, z}, {-x, y, -z}}, // -x
		{{-x, y, -z}, {-x, y, z}, {x, y, z}, {x, y, -z}},     // +y
		{{-x, -y, -z}, {x, -y, -z}, {x, -y, z}, {-x, -y, z}}, // -y
		{{-x, -y, z}, {x, -y, z}, {x, y, z}, {-x, y, z}},     // +z
		{{-x, -y, -z}, {-x, y, -z}, {x, y, -z}, {x, -y, -z}}, // -z
	}

	toWorld := func(p mgl32.Vec3) mgl32.Vec3 {
		return center.Add(rotation.Rotate(p))
	}

	triangles := make([]Triangle, 0, 12)
	for _, f := range faces {
		a, b, c, d := toWorld(f[0]), toWorld(f[1]), toWorld(f[2]), toWorld(f[3])
		triangles = append(triangles, NewTriangle(a, b, c), NewTriangle(a, c, d))
	}
	return triangles
}
