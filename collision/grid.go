package collision

import (
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

// Regular Grid Spatial Partition
//
// A uniformly sub-divided 3D grid holding the static collidable triangles of
// a scene. The particularities are:
//   - cells are cubes of CellSize world units. A triangle is referenced by
//     every cell its bounding box overlaps.
//   - only occupied cells are allocated. The grid bounds grow to fit every
//     inserted triangle.
//   - raycasts walk the cells crossed by the ray, closest first, and stop at
//     the first cell holding a hit.

const DefaultCellSize = 16

// Hit describes where a ray hit static geometry.
type Hit struct {
	Point    mgl32.Vec3
	Normal   mgl32.Vec3
	Distance float32
}

// Raycaster is the interface that answers raycast queries against static
// geometry.
type Raycaster interface {
	// Returns the closest hit along direction within maxDistance of origin.
	// A miss means the segment is unobstructed.
	Raycast(origin, direction mgl32.Vec3, maxDistance float32) (Hit, bool)
}

type cell [3]int

type DebugInfo struct {
	CellSize      float32
	TriangleCount int
	OccupiedCells int
	MinPoint      mgl32.Vec3
	MaxPoint      mgl32.Vec3
}

type Grid struct {
	CellSize float32

	triangles []Triangle
	cells     map[cell][]int
	minCell   cell
	maxCell   cell
}

func NewGrid(cellSize float32) *Grid {
	if cellSize <= 0 {
		cellSize = DefaultCellSize
	}

	return &Grid{
		CellSize: cellSize,
		cells:    make(map[cell][]int),
	}
}

func (g *Grid) InsertTriangle(t Triangle) {
	index := len(g.triangles)
	g.triangles = append(g.triangles, t)

	min, max := t.Bounds()
	minCell := g.cellOf(min)
	maxCell := g.cellOf(max)
	g.expandToFit(minCell, maxCell)

	for x := minCell[0]; x <= maxCell[0]; x++ {
		for y := minCell[1]; y <= maxCell[1]; y++ {
			for z := minCell[2]; z <= maxCell[2]; z++ {
				c := cell{x, y, z}
				g.cells[c] = append(g.cells[c], index)
			}
		}
	}
}

func (g *Grid) InsertTriangles(triangles ...Triangle) {
	for _, t := range triangles {
		g.InsertTriangle(t)
	}
}

// InsertBox inserts the 12 triangles of an oriented box.
func (g *Grid) InsertBox(center, size mgl32.Vec3, rotation mgl32.Quat) {
	g.InsertTriangles(BoxTriangles(center, size, rotation)...)
}

func (g *Grid) Raycast(origin, direction mgl32.Vec3, maxDistance float32) (Hit, bool) {
	if len(g.triangles) == 0 || maxDistance <= 0 || direction.Len() == 0 {
		return Hit{}, false
	}
	dir := direction.Normalize()

	minPoint, maxPoint := g.bounds()
	ok, tEnter, tExit := rayAABB(origin, dir, minPoint, maxPoint)
	if !ok {
		return Hit{}, false
	}
	tEnter = math32.Max(tEnter, 0)
	tExit = math32.Min(tExit, maxDistance)
	if tEnter > tExit {
		return Hit{}, false
	}

	// start the DDA walk at the grid entry point:
	start := origin.Add(dir.Mul(tEnter))
	current := g.clampCell(g.cellOf(start))

	var step cell
	var tMax, tDelta [3]float32
	for i := 0; i < 3; i++ {
		switch {
		case dir[i] > 0:
			step[i] = 1
			boundary := float32(current[i]+1) * g.CellSize
			tMax[i] = tEnter + (boundary-start[i])/dir[i]
			tDelta[i] = g.CellSize / dir[i]

		case dir[i] < 0:
			step[i] = -1
			boundary := float32(current[i]) * g.CellSize
			tMax[i] = tEnter + (boundary-start[i])/dir[i]
			tDelta[i] = -g.CellSize / dir[i]

		default:
			tMax[i] = math32.Inf(1)
			tDelta[i] = math32.Inf(1)
		}
	}

	tested := make(map[int]struct{})
	bestT := maxDistance
	bestIndex := -1

	for {
		for _, index := range g.cells[current] {
			if _, ok := tested[index]; ok {
				continue
			}
			tested[index] = struct{}{}

			if hit, t := IntersectTriangle(origin, dir, g.triangles[index]); hit && t <= bestT {
				bestT = t
				bestIndex = index
			}
		}

		axis := 0
		if tMax[1] < tMax[axis] {
			axis = 1
		}
		if tMax[2] < tMax[axis] {
			axis = 2
		}
		cellExit := tMax[axis]

		if bestIndex >= 0 && bestT <= cellExit {
			break
		}
		if cellExit > tExit {
			break
		}

		current[axis] += step[axis]
		tMax[axis] += tDelta[axis]
		if current[axis] < g.minCell[axis] || current[axis] > g.maxCell[axis] {
			break
		}
	}

	if bestIndex < 0 {
		return Hit{}, false
	}

	return Hit{
		Point:    origin.Add(dir.Mul(bestT)),
		Normal:   g.triangles[bestIndex].Normal,
		Distance: bestT,
	}, true
}

func (g *Grid) GetDebugInfo() DebugInfo {
	minPoint, maxPoint := g.bounds()

	return DebugInfo{
		CellSize:      g.CellSize,
		TriangleCount: len(g.triangles),
		OccupiedCells: len(g.cells),
		MinPoint:      minPoint,
		MaxPoint:      maxPoint,
	}
}

func (g *Grid) cellOf(p mgl32.Vec3) cell {
	return cell{
		int(math32.Floor(p[0] / g.CellSize)),
		int(math32.Floor(p[1] / g.CellSize)),
		int(math32.Floor(p[2] / g.CellSize)),
	}
}

func (g *Grid) clampCell(c cell) cell {
	for i := 0; i < 3; i++ {
		if c[i] < g.minCell[i] {
			c[i] = g.minCell[i]
		}
		if c[i] > g.maxCell[i] {
			c[i] = g.maxCell[i]
		}
	}
	return c
}

// NOTE: the cell limits are in the range [min..max+1[ world cells.
func (g *Grid) bounds() (mgl32.Vec3, mgl32.Vec3) {
	var minPoint, maxPoint mgl32.Vec3
	for i := 0; i < 3; i++ {
		minPoint[i] = float32(g.minCell[i]) * g.CellSize
		maxPoint[i] = float32(g.maxCell[i]+1) * g.CellSize
	}
	return minPoint, maxPoint
}

func (g *Grid) expandToFit(minCell, maxCell cell) {
	if len(g.triangles) == 1 {
		g.minCell = minCell
		g.maxCell = maxCell
		return
	}

	for i := 0; i < 3; i++ {
		if minCell[i] < g.minCell[i] {
			g.minCell[i] = minCell[i]
		}
		if maxCell[i] > g.maxCell[i] {
			g.maxCell[i] = maxCell[i]
		}
	}
}
