package volume

import (
	"github.com/aukilabs/pvsbake/collision"
	"github.com/aukilabs/pvsbake/models"
)

// Candidates gathers the octants of a scene that get baked.
type Candidates struct {
	Volumes []*Volume

	// Markers are lists of octants placed by hand.
	Markers [][]models.Octant

	// Graph filters volume octants. Leave it nil when the scene has no
	// graph.
	Graph NodeGraph

	// Raycaster answers the surface queries of sticky volumes.
	Raycaster collision.Raycaster
}

// Octants returns the union of the octants of the non negate volumes and of
// the markers, without the octants whose center is inside a negate volume.
// The result is sorted and holds no duplicates.
func (c *Candidates) Octants() []models.Octant {
	set := models.NewOctantSet()

	var negates []*Volume
	for _, v := range c.Volumes {
		if v.Negate {
			negates = append(negates, v)
			continue
		}

		for _, o := range v.Octants(c.Graph, c.Raycaster) {
			set.Add(o)
		}
	}

	for _, m := range c.Markers {
		for _, o := range m {
			set.Add(o)
		}
	}

	for o := range set {
		for _, v := range negates {
			if v.Contains(o.Center()) {
				delete(set, o)
				break
			}
		}
	}

	return set.Sorted()
}
