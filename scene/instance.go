package scene

import (
	"image/color"
	"sync"

	"github.com/aukilabs/pvsbake/models"
	"github.com/aukilabs/pvsbake/render"
)

// DefaultColor is the color of occluders outside of bake mode.
var DefaultColor = color.RGBA{R: 128, G: 128, B: 128, A: 255}

// Instance is an occluder of a scene, drawn with a box mesh.
type Instance struct {
	Name string
	Mesh *render.Mesh

	mutex       sync.Mutex
	occlusionID int
	typ         models.OccluderType
	octants     []models.Octant
	baking      bool
	color       color.RGBA
}

func NewInstance(name string, id int, t models.OccluderType, mesh *render.Mesh) *Instance {
	return &Instance{
		Name:        name,
		Mesh:        mesh,
		occlusionID: id,
		typ:         t,
	}
}

func (i *Instance) OcclusionID() int {
	i.mutex.Lock()
	defer i.mutex.Unlock()

	return i.occlusionID
}

func (i *Instance) SetOcclusionID(id int) {
	i.mutex.Lock()
	defer i.mutex.Unlock()

	i.occlusionID = id
}

func (i *Instance) OcclusionType() models.OccluderType {
	return i.typ
}

func (i *Instance) Octants() []models.Octant {
	i.mutex.Lock()
	defer i.mutex.Unlock()

	return i.octants
}

func (i *Instance) SetOctants(octants []models.Octant) {
	i.mutex.Lock()
	defer i.mutex.Unlock()

	i.octants = octants
}

// EnterBakeMode paints the mesh with idColor. The current color is restored
// by LeaveBakeMode.
func (i *Instance) EnterBakeMode(idColor color.RGBA) {
	i.mutex.Lock()
	defer i.mutex.Unlock()

	if !i.baking {
		i.color = i.Mesh.Color
		i.baking = true
	}
	i.Mesh.Color = idColor
}

func (i *Instance) LeaveBakeMode() {
	i.mutex.Lock()
	defer i.mutex.Unlock()

	if !i.baking {
		return
	}
	i.Mesh.Color = i.color
	i.baking = false
}
