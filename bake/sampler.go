package bake

import (
	"image"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/pvsbake/render"
	"github.com/go-gl/mathgl/mgl32"
)

// sampler finds the occluders visible from a point.
type sampler struct {
	renderer render.Renderer
	decoder  render.Decoder
	target   *image.RGBA
	camera   render.Camera

	// The sorted unique ids of the occluders being baked.
	scope []int
}

// Sample renders the six cubemap faces around point and returns the in scope
// unique ids found in them, sorted.
func (s *sampler) Sample(point mgl32.Vec3) ([]int, error) {
	if err := s.decoder.Clear(); err != nil {
		return nil, errors.New("clearing decoder failed").
			WithType(ErrTypeReadbackFailed).
			Wrap(err)
	}

	camera := s.camera
	for i, pose := range render.CubemapPoses(point) {
		face := render.CubemapFaces[i]
		camera.Pose = pose

		start := time.Now()
		if err := s.renderer.Render(camera, s.target); err != nil {
			return nil, errors.New("rendering cubemap face failed").
				WithType(ErrTypeRenderFailed).
				WithTag("face", face).
				WithTag("position", point).
				Wrap(err)
		}
		instrumentRenderLatency(face, start)

		if err := s.decoder.Scan(s.target); err != nil {
			return nil, errors.New("scanning cubemap face failed").
				WithType(ErrTypeReadbackFailed).
				WithTag("face", face).
				Wrap(err)
		}
	}

	flags, err := s.decoder.Read()
	if err != nil {
		return nil, errors.New("reading decoded ids failed").
			WithType(ErrTypeReadbackFailed).
			Wrap(err)
	}

	visible := []int{}
	for _, uid := range s.scope {
		if uid < len(flags) && flags[uid] != 0 {
			visible = append(visible, uid)
		}
	}
	return visible, nil
}
