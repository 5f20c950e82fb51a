package graph

import (
	"slices"
	"sync"

	"github.com/aukilabs/pvsbake/collision"
	"github.com/aukilabs/pvsbake/models"
	"github.com/go-gl/mathgl/mgl32"
)

const cornerOffset = models.OctantSize / 2

// Node is a point of the visibility graph, usually a place a player can
// stand at.
type Node struct {
	ID       uint32
	Position mgl32.Vec3
}

// Graph is a set of navigation nodes used to decide which points of a scene
// are reachable. It holds no edges: line of sight to a node is computed on
// demand with raycasts against the static geometry.
type Graph struct {
	raycaster collision.Raycaster

	nodeIDs models.SequentialIDGenerator
	mutex   sync.RWMutex
	nodes   map[uint32]Node
}

// New creates a graph that checks line of sight with the given raycaster. A
// nil raycaster makes every node visible from everywhere.
func New(raycaster collision.Raycaster) *Graph {
	return &Graph{
		raycaster: raycaster,
		nodes:     make(map[uint32]Node),
	}
}

func (g *Graph) RegisterNode(position mgl32.Vec3) uint32 {
	id := g.nodeIDs.New()

	g.mutex.Lock()
	defer g.mutex.Unlock()

	g.nodes[id] = Node{
		ID:       id,
		Position: position,
	}
	return id
}

func (g *Graph) UnregisterNode(id uint32) {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	if _, ok := g.nodes[id]; !ok {
		return
	}
	delete(g.nodes, id)
	g.nodeIDs.Reuse(id)
}

// Nodes returns the registered nodes ordered by id.
func (g *Graph) Nodes() []Node {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	nodes := make([]Node, 0, len(g.nodes))
	for _, n := range g.nodes {
		nodes = append(nodes, n)
	}
	slices.SortFunc(nodes, func(a, b Node) int {
		return int(a.ID) - int(b.ID)
	})
	return nodes
}

func (g *Graph) Len() int {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	return len(g.nodes)
}

// HasNode reports whether any node is in line of sight of one of the 8
// corners of the octant-sized cube centered on point.
func (g *Graph) HasNode(point mgl32.Vec3) bool {
	nodes := g.Nodes()

	for _, d := range models.CornerDirections {
		corner := point.Add(d.Mul(cornerOffset))
		if g.seesAny(corner, nodes) {
			return true
		}
	}
	return false
}

// CanSeeAnyNode reports whether any node is in line of sight of point.
func (g *Graph) CanSeeAnyNode(point mgl32.Vec3) bool {
	return g.seesAny(point, g.Nodes())
}

func (g *Graph) seesAny(point mgl32.Vec3, nodes []Node) bool {
	for _, n := range nodes {
		if g.lineOfSight(point, n.Position) {
			return true
		}
	}
	return false
}

// lineOfSight reports whether the segment is clear when cast from both ends.
func (g *Graph) lineOfSight(from, to mgl32.Vec3) bool {
	if g.raycaster == nil {
		return true
	}

	delta := to.Sub(from)
	distance := delta.Len()
	if distance == 0 {
		return true
	}

	if _, hit := g.raycaster.Raycast(from, delta, distance); hit {
		return false
	}
	_, hit := g.raycaster.Raycast(to, delta.Mul(-1), distance)
	return !hit
}
