package bake

import (
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/pvsbake/render"
	"github.com/go-gl/mathgl/mgl32"
)

const (
	MinResolution = 32
	MaxResolution = 4096

	MaxFeatherRadius = 4

	DefaultResolution     = 256
	DefaultRenderDistance = 1000
	DefaultFieldOfView    = 90
)

// Settings are the parameters of a bake.
type Settings struct {
	// The side of the square render target, a power of two in
	// [MinResolution, MaxResolution].
	Resolution int `json:"resolution"`

	// The far clip distance of the cubemap cameras.
	RenderDistance float32 `json:"render_distance"`

	// The layers rendered by the cubemap cameras.
	CullingMask uint32 `json:"culling_mask"`

	// The field of view of the cubemap cameras, in degrees.
	FieldOfView float32 `json:"field_of_view"`

	// The radius, in octants, of the neighborhood that inherits the
	// visibility found from an octant.
	FeatherRadius int `json:"feather_radius"`

	// Moves the sampled corners away from the octant centers.
	OctantOffset mgl32.Vec3 `json:"octant_offset"`
}

func DefaultSettings() Settings {
	return Settings{
		Resolution:     DefaultResolution,
		RenderDistance: DefaultRenderDistance,
		CullingMask:    render.AllLayers,
		FieldOfView:    DefaultFieldOfView,
	}
}

// ResolutionFromLevel returns the resolution of a quality level, 0 being
// MinResolution.
func ResolutionFromLevel(level int) int {
	return 1 << (level + 5)
}

func (s Settings) Validate() error {
	if s.Resolution < MinResolution ||
		s.Resolution > MaxResolution ||
		s.Resolution&(s.Resolution-1) != 0 {
		return errors.New("resolution is not a power of two between 32 and 4096").
			WithType(ErrTypeInvalidSettings).
			WithTag("resolution", s.Resolution)
	}

	if s.RenderDistance <= render.DefaultNear {
		return errors.New("render distance is too short").
			WithType(ErrTypeInvalidSettings).
			WithTag("render_distance", s.RenderDistance)
	}

	if s.FieldOfView <= 0 || s.FieldOfView > 179 {
		return errors.New("field of view is not in ]0, 179]").
			WithType(ErrTypeInvalidSettings).
			WithTag("field_of_view", s.FieldOfView)
	}

	if s.FeatherRadius < 0 || s.FeatherRadius > MaxFeatherRadius {
		return errors.New("feather radius is not in [0, 4]").
			WithType(ErrTypeInvalidSettings).
			WithTag("feather_radius", s.FeatherRadius)
	}

	return nil
}
