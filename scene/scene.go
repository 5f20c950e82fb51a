package scene

import (
	"io"
	"os"
	"slices"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/pvsbake/bake"
	"github.com/aukilabs/pvsbake/collision"
	"github.com/aukilabs/pvsbake/featureflag"
	"github.com/aukilabs/pvsbake/graph"
	"github.com/aukilabs/pvsbake/models"
	"github.com/aukilabs/pvsbake/render"
	"github.com/aukilabs/pvsbake/volume"
	"github.com/segmentio/encoding/json"
)

// staticColor is the color of static geometry. It decodes to no occluder.
var staticColor = models.SentinelColor

// Scene is a loaded scene, ready to be baked.
type Scene struct {
	Settings   bake.Settings
	Registry   *models.OccluderRegistry
	Instances  []*Instance
	Grid       *collision.Grid
	Rasterizer *render.Rasterizer
	Candidates *volume.Candidates

	// Nil when the scene has no node.
	Graph *graph.Graph
}

// LoadFile loads the scene described in the JSON file at path.
func LoadFile(path string) (*Scene, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.New("opening scene file failed").
			WithType(ErrTypeSceneDecode).
			WithTag("path", path).
			Wrap(err)
	}
	defer f.Close()

	return Load(f)
}

// Load loads the scene described in the JSON read from r. Settings missing
// from the description keep their default value.
func Load(r io.Reader) (*Scene, error) {
	desc := Description{
		Settings: bake.DefaultSettings(),
	}

	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&desc); err != nil {
		return nil, errors.New("decoding scene failed").
			WithType(ErrTypeSceneDecode).
			Wrap(err)
	}

	return New(desc)
}

// New builds a scene from its description.
func New(desc Description) (*Scene, error) {
	if err := desc.Settings.Validate(); err != nil {
		return nil, errors.New("invalid scene settings").
			WithType(ErrTypeSceneInvalid).
			Wrap(err)
	}

	s := &Scene{
		Settings:   desc.Settings,
		Registry:   models.NewOccluderRegistry(),
		Grid:       collision.NewGrid(desc.CellSize),
		Rasterizer: render.NewRasterizer(),
	}

	names := make(map[string]struct{}, len(desc.Occluders))
	for _, o := range desc.Occluders {
		if o.Name == "" {
			s.Close()
			return nil, errors.New("occluder has no name").
				WithType(ErrTypeSceneInvalid).
				WithTag("occlusion_id", o.ID)
		}
		if _, ok := names[o.Name]; ok {
			s.Close()
			return nil, errors.New("occluder name is used more than once").
				WithType(ErrTypeSceneInvalid).
				WithTag("name", o.Name)
		}
		names[o.Name] = struct{}{}

		instance, err := newInstance(o)
		if err == nil {
			err = s.Registry.Register(instance)
		}
		if err != nil {
			s.Close()
			return nil, errors.New("invalid occluder").
				WithType(ErrTypeSceneInvalid).
				WithTag("name", o.Name).
				Wrap(err)
		}
		s.attach(instance, o)
	}

	for _, st := range desc.Static {
		s.Rasterizer.AddMesh(render.NewBoxMesh(st.Box.Center, st.Box.Size, st.Box.Quat(), st.Layer, staticColor))
		if st.Collidable {
			s.Grid.InsertBox(st.Box.Center, st.Box.Size, st.Box.Quat())
		}
	}

	candidates := &volume.Candidates{
		Markers:   desc.Markers,
		Raycaster: s.Grid,
	}

	if len(desc.Nodes) != 0 {
		s.Graph = graph.New(s.Grid)
		for _, n := range desc.Nodes {
			s.Graph.RegisterNode(n)
		}
		candidates.Graph = s.Graph
	}

	for _, vd := range desc.Volumes {
		v := volume.New(vd.Position, vd.Scale)
		v.Rotation = eulerToQuat(vd.Rotation)
		v.Negate = vd.Negate
		v.ForceAdd = vd.ForceAdd
		v.Sticky = vd.Sticky
		if vd.StickyDistance > 0 {
			v.StickyDistance = vd.StickyDistance
		}
		if vd.Align {
			v.Align()
		}
		candidates.Volumes = append(candidates.Volumes, v)
	}
	s.Candidates = candidates

	return s, nil
}

// AddOccluder adds an occluder to a loaded scene. Its occlusion id is
// changed when another occluder of the same type already uses it.
func (s *Scene) AddOccluder(o OccluderDesc) (*Instance, error) {
	if o.Name == "" {
		return nil, errors.New("occluder has no name").
			WithType(ErrTypeSceneInvalid).
			WithTag("occlusion_id", o.ID)
	}
	if _, err := s.Instance(o.Name); err == nil {
		return nil, errors.New("occluder name is used more than once").
			WithType(ErrTypeSceneInvalid).
			WithTag("name", o.Name)
	}

	instance, err := newInstance(o)
	if err != nil {
		return nil, err
	}
	if err := s.Registry.Register(instance); err != nil {
		return nil, err
	}
	if _, err := s.Registry.ResolveDuplicateID(instance); err != nil {
		s.Registry.Unregister(instance)
		return nil, err
	}

	s.attach(instance, o)
	return instance, nil
}

func newInstance(o OccluderDesc) (*Instance, error) {
	t, err := models.ParseOccluderType(o.Type)
	if err != nil {
		return nil, err
	}

	mesh := render.NewBoxMesh(o.Box.Center, o.Box.Size, o.Box.Quat(), o.Layer, DefaultColor)
	return NewInstance(o.Name, o.ID, t, mesh), nil
}

// attach adds a registered instance to the scene geometry.
func (s *Scene) attach(instance *Instance, o OccluderDesc) {
	s.Instances = append(s.Instances, instance)
	s.Rasterizer.AddMesh(instance.Mesh)
	if o.Collidable {
		s.Grid.InsertBox(o.Box.Center, o.Box.Size, o.Box.Quat())
	}
}

// Instance returns the occluder with the given name.
func (s *Scene) Instance(name string) (*Instance, error) {
	for _, i := range s.Instances {
		if i.Name == name {
			return i, nil
		}
	}
	return nil, errors.New("unknown occluder").
		WithType(ErrTypeUnknownOccluder).
		WithTag("name", name)
}

// Select returns the occluders with the given names, in scene order. No name
// selects every occluder.
func (s *Scene) Select(names ...string) ([]models.Occluder, error) {
	for _, name := range names {
		if _, err := s.Instance(name); err != nil {
			return nil, err
		}
	}

	occluders := make([]models.Occluder, 0, len(s.Instances))
	for _, i := range s.Instances {
		if len(names) == 0 || slices.Contains(names, i.Name) {
			occluders = append(occluders, i)
		}
	}
	return occluders, nil
}

// NewBaker returns a baker wired to the scene.
func (s *Scene) NewBaker(flags featureflag.FeatureFlag, progress func(bake.Progress)) *bake.Baker {
	b := &bake.Baker{
		Registry:     s.Registry,
		Renderer:     s.Rasterizer,
		NewDecoder:   render.NewBitsetDecoderFactory(),
		Settings:     s.Settings,
		FeatureFlags: flags,
		Progress:     progress,
	}
	if s.Graph != nil {
		b.Graph = s.Graph
	}
	return b
}

// Close unregisters the scene occluders.
func (s *Scene) Close() {
	s.Registry.Reset()
}
