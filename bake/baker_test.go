package bake

import (
	"context"
	"image"
	"image/color"
	"testing"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/pvsbake/featureflag"
	"github.com/aukilabs/pvsbake/models"
	"github.com/aukilabs/pvsbake/render"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/require"
)

type testOccluder struct {
	id      int
	typ     models.OccluderType
	octants []models.Octant

	baking    bool
	bakeColor color.RGBA
	entered   int
	left      int

	mesh  *render.Mesh
	color color.RGBA
}

func (o *testOccluder) OcclusionID() int                   { return o.id }
func (o *testOccluder) SetOcclusionID(id int)              { o.id = id }
func (o *testOccluder) OcclusionType() models.OccluderType { return o.typ }
func (o *testOccluder) Octants() []models.Octant           { return o.octants }
func (o *testOccluder) SetOctants(octants []models.Octant) { o.octants = octants }

func (o *testOccluder) EnterBakeMode(c color.RGBA) {
	o.baking = true
	o.bakeColor = c
	o.entered++

	if o.mesh != nil {
		o.color = o.mesh.Color
		o.mesh.Color = c
	}
}

func (o *testOccluder) LeaveBakeMode() {
	o.baking = false
	o.left++

	if o.mesh != nil {
		o.mesh.Color = o.color
	}
}

// fakeRenderer draws one pixel per occluder visible from the camera
// position.
type fakeRenderer struct {
	visible func(position mgl32.Vec3) []*testOccluder
	failAt  int
	calls   int
}

func (r *fakeRenderer) Render(c render.Camera, target *image.RGBA) error {
	r.calls++
	if r.failAt != 0 && r.calls == r.failAt {
		return errors.New("device lost")
	}

	bounds := target.Bounds()
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			target.SetRGBA(x, y, models.SentinelColor)
		}
	}

	if r.visible == nil {
		return nil
	}
	for i, o := range r.visible(c.Position) {
		if o.baking {
			target.SetRGBA(i, 0, o.bakeColor)
		}
	}
	return nil
}

type fakeGraph struct {
	canSee func(point mgl32.Vec3) bool
	calls  int
}

func (g *fakeGraph) CanSeeAnyNode(point mgl32.Vec3) bool {
	g.calls++
	return g.canSee(point)
}

type trackedDecoder struct {
	render.Decoder
	released bool
}

func (d *trackedDecoder) Release() {
	d.released = true
	d.Decoder.Release()
}

func newTestBaker(t *testing.T, r render.Renderer, occluders ...*testOccluder) (*Baker, []models.Occluder, *[]*trackedDecoder) {
	registry := models.NewOccluderRegistry()
	t.Cleanup(registry.Reset)

	inScope := make([]models.Occluder, 0, len(occluders))
	for _, o := range occluders {
		require.NoError(t, registry.Register(o))
		inScope = append(inScope, o)
	}

	decoders := &[]*trackedDecoder{}
	newDecoder := render.NewBitsetDecoderFactory()

	settings := DefaultSettings()
	settings.Resolution = MinResolution

	return &Baker{
		Registry: registry,
		Renderer: r,
		NewDecoder: func(size int) (render.Decoder, error) {
			d, err := newDecoder(size)
			if err != nil {
				return nil, err
			}
			tracked := &trackedDecoder{Decoder: d}
			*decoders = append(*decoders, tracked)
			return tracked, nil
		},
		Settings: settings,
	}, inScope, decoders
}

func octantRow(count int) []models.Octant {
	octants := make([]models.Octant, count)
	for i := range octants {
		octants[i] = models.Octant{X: i * models.OctantSize}
	}
	return octants
}

func TestBakerBake(t *testing.T) {
	t.Run("visible occluders get every octant", func(t *testing.T) {
		a := &testOccluder{id: 1}
		b := &testOccluder{id: 2, typ: models.OccluderTypeMoby}
		renderer := &fakeRenderer{
			visible: func(mgl32.Vec3) []*testOccluder { return []*testOccluder{a} },
		}
		baker, occluders, decoders := newTestBaker(t, renderer, a, b)

		result, err := baker.Bake(context.Background(), occluders, octantRow(2))
		require.NoError(t, err)
		require.NotEmpty(t, result.BakeID)
		require.Equal(t, 2, result.Processed)
		require.Equal(t, 2, result.Total)
		require.False(t, result.Cancelled)

		require.Equal(t, octantRow(2), a.octants)
		require.NotNil(t, b.octants)
		require.Empty(t, b.octants)

		for _, o := range []*testOccluder{a, b} {
			require.False(t, o.baking)
			require.Equal(t, 1, o.entered)
			require.Equal(t, 1, o.left)
		}
		require.Equal(t, models.EncodeIDColor(1, models.OccluderTypeTie), a.bakeColor)
		require.Equal(t, models.EncodeIDColor(2, models.OccluderTypeMoby), b.bakeColor)

		require.Len(t, *decoders, 1)
		require.True(t, (*decoders)[0].released)
	})

	t.Run("shared corners are rendered once", func(t *testing.T) {
		a := &testOccluder{id: 1}
		renderer := &fakeRenderer{}
		baker, occluders, _ := newTestBaker(t, renderer, a)

		result, err := baker.Bake(context.Background(), occluders, octantRow(2))
		require.NoError(t, err)
		require.Equal(t, 12, result.SampledCorners)
		require.Equal(t, 4, result.CacheHits)
		require.Equal(t, 12*6, renderer.calls)
	})

	t.Run("only in scope occluders are assigned", func(t *testing.T) {
		a := &testOccluder{id: 1}
		b := &testOccluder{id: 2, octants: []models.Octant{{X: 40}}}
		renderer := &fakeRenderer{
			visible: func(mgl32.Vec3) []*testOccluder { return []*testOccluder{a, b} },
		}
		baker, _, _ := newTestBaker(t, renderer, a, b)

		_, err := baker.Bake(context.Background(), []models.Occluder{a}, octantRow(1))
		require.NoError(t, err)
		require.Equal(t, octantRow(1), a.octants)
		require.Equal(t, []models.Octant{{X: 40}}, b.octants)
		require.Equal(t, 1, b.entered)
		require.Equal(t, 1, b.left)
	})

	t.Run("octant offset moves the sampled corners", func(t *testing.T) {
		a := &testOccluder{id: 1}
		var positions []mgl32.Vec3
		renderer := &fakeRenderer{
			visible: func(p mgl32.Vec3) []*testOccluder {
				positions = append(positions, p)
				return nil
			},
		}
		baker, occluders, _ := newTestBaker(t, renderer, a)
		baker.Settings.OctantOffset = mgl32.Vec3{0, 1, 0}

		_, err := baker.Bake(context.Background(), occluders, octantRow(1))
		require.NoError(t, err)
		require.Contains(t, positions, mgl32.Vec3{4, 5, 4})
		require.Contains(t, positions, mgl32.Vec3{0, 1, 0})
	})
}

func TestBakerBakeFeathering(t *testing.T) {
	bakeWithRadius := func(t *testing.T, radius int) []models.Octant {
		a := &testOccluder{id: 1}
		renderer := &fakeRenderer{
			visible: func(p mgl32.Vec3) []*testOccluder {
				if p[0] < 1 {
					return []*testOccluder{a}
				}
				return nil
			},
		}
		baker, occluders, _ := newTestBaker(t, renderer, a)
		baker.Settings.FeatherRadius = radius

		_, err := baker.Bake(context.Background(), occluders, octantRow(5))
		require.NoError(t, err)
		return a.octants
	}

	r0 := bakeWithRadius(t, 0)
	r1 := bakeWithRadius(t, 1)
	r2 := bakeWithRadius(t, 2)

	require.Equal(t, octantRow(1), r0)
	require.Equal(t, octantRow(2), r1)
	require.Equal(t, octantRow(3), r2)

	t.Run("larger radius never loses octants", func(t *testing.T) {
		for _, o := range r0 {
			require.Contains(t, r1, o)
		}
		for _, o := range r1 {
			require.Contains(t, r2, o)
		}
	})
}

func TestBakerBakeSamplePruning(t *testing.T) {
	t.Run("corners seeing no node are not rendered", func(t *testing.T) {
		a := &testOccluder{id: 1}
		renderer := &fakeRenderer{
			visible: func(mgl32.Vec3) []*testOccluder { return []*testOccluder{a} },
		}
		baker, occluders, _ := newTestBaker(t, renderer, a)
		baker.Graph = &fakeGraph{canSee: func(p mgl32.Vec3) bool { return p[0] < 1 }}

		result, err := baker.Bake(context.Background(), occluders, octantRow(2))
		require.NoError(t, err)
		require.Equal(t, 4, result.SampledCorners)
		require.Equal(t, 12, result.PrunedCorners)
		require.Equal(t, 4*6, renderer.calls)
		require.Equal(t, octantRow(1), a.octants)
	})

	t.Run("pruning can be disabled", func(t *testing.T) {
		a := &testOccluder{id: 1}
		renderer := &fakeRenderer{}
		graph := &fakeGraph{canSee: func(mgl32.Vec3) bool { return false }}
		baker, occluders, _ := newTestBaker(t, renderer, a)
		baker.Graph = graph
		baker.FeatureFlags = featureflag.New([]string{string(featureflag.FlagDisableSamplePruning)})

		result, err := baker.Bake(context.Background(), occluders, octantRow(2))
		require.NoError(t, err)
		require.Zero(t, result.PrunedCorners)
		require.Zero(t, graph.calls)
		require.Equal(t, 12*6, renderer.calls)
	})
}

func TestBakerBakeCancellation(t *testing.T) {
	a := &testOccluder{id: 1}
	renderer := &fakeRenderer{
		visible: func(mgl32.Vec3) []*testOccluder { return []*testOccluder{a} },
	}
	baker, occluders, decoders := newTestBaker(t, renderer, a)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var last Progress
	baker.Progress = func(p Progress) {
		last = p
		if p.Processed == 1 {
			cancel()
		}
	}

	result, err := baker.Bake(ctx, occluders, octantRow(3))
	require.NoError(t, err)
	require.True(t, result.Cancelled)
	require.Equal(t, 1, result.Processed)
	require.Equal(t, 3, result.Total)

	require.True(t, last.Done)
	require.True(t, last.Cancelled)
	require.Equal(t, 1, last.Processed)

	require.Equal(t, octantRow(1), a.octants)
	require.False(t, a.baking)
	require.Equal(t, 1, a.left)
	require.True(t, (*decoders)[0].released)
}

func TestBakerBakeErrors(t *testing.T) {
	t.Run("render failure restores occluders without assigning octants", func(t *testing.T) {
		previous := []models.Octant{{X: 100}}
		a := &testOccluder{id: 1, octants: previous}
		renderer := &fakeRenderer{
			visible: func(mgl32.Vec3) []*testOccluder { return []*testOccluder{a} },
			failAt:  3,
		}
		baker, occluders, decoders := newTestBaker(t, renderer, a)

		var progress []Progress
		baker.Progress = func(p Progress) {
			require.True(t, a.baking || p.Done)
			progress = append(progress, p)
		}

		_, err := baker.Bake(context.Background(), occluders, octantRow(2))
		require.Error(t, err)
		require.Equal(t, ErrTypeRenderFailed, errors.Type(err))

		require.Equal(t, previous, a.octants)
		require.False(t, a.baking)
		require.Equal(t, 1, a.left)
		require.True(t, (*decoders)[0].released)

		require.Len(t, progress, 1)
		require.True(t, progress[0].Done)
		require.True(t, progress[0].Failed)
		require.False(t, progress[0].Cancelled)
		require.Equal(t, 2, progress[0].Total)
		require.NotEmpty(t, progress[0].BakeID)
	})

	t.Run("decoder allocation failure reports a failed progress", func(t *testing.T) {
		a := &testOccluder{id: 1}
		baker, occluders, _ := newTestBaker(t, &fakeRenderer{}, a)
		baker.NewDecoder = func(int) (render.Decoder, error) {
			return nil, errors.New("out of memory")
		}

		var last Progress
		baker.Progress = func(p Progress) {
			last = p
		}

		_, err := baker.Bake(context.Background(), occluders, octantRow(1))
		require.Error(t, err)
		require.True(t, last.Done)
		require.True(t, last.Failed)
	})

	t.Run("decoder allocation failure", func(t *testing.T) {
		a := &testOccluder{id: 1}
		baker, occluders, _ := newTestBaker(t, &fakeRenderer{}, a)
		baker.NewDecoder = func(int) (render.Decoder, error) {
			return nil, errors.New("out of memory")
		}

		_, err := baker.Bake(context.Background(), occluders, octantRow(1))
		require.Equal(t, ErrTypeResourceAllocation, errors.Type(err))
		require.Zero(t, a.entered)
	})

	configErrors := []struct {
		name       string
		occluders  func(a *testOccluder) []models.Occluder
		candidates []models.Octant
		setup      func(b *Baker)
		errType    string
	}{
		{
			name:       "no occluders",
			occluders:  func(*testOccluder) []models.Occluder { return nil },
			candidates: octantRow(1),
			errType:    ErrTypeNoOccluders,
		},
		{
			name:      "no candidates",
			occluders: func(a *testOccluder) []models.Occluder { return []models.Occluder{a} },
			errType:   ErrTypeNoCandidates,
		},
		{
			name:       "invalid resolution",
			occluders:  func(a *testOccluder) []models.Occluder { return []models.Occluder{a} },
			candidates: octantRow(1),
			setup:      func(b *Baker) { b.Settings.Resolution = 100 },
			errType:    ErrTypeInvalidSettings,
		},
		{
			name:       "missing renderer",
			occluders:  func(a *testOccluder) []models.Occluder { return []models.Occluder{a} },
			candidates: octantRow(1),
			setup:      func(b *Baker) { b.Renderer = nil },
			errType:    ErrTypeInvalidSettings,
		},
		{
			name: "unregistered occluder",
			occluders: func(a *testOccluder) []models.Occluder {
				return []models.Occluder{a, &testOccluder{id: 9}}
			},
			candidates: octantRow(1),
			errType:    ErrTypeOccluderNotRegistered,
		},
	}

	for _, test := range configErrors {
		t.Run(test.name, func(t *testing.T) {
			a := &testOccluder{id: 1, octants: octantRow(2)}
			renderer := &fakeRenderer{}
			baker, _, decoders := newTestBaker(t, renderer, a)
			if test.setup != nil {
				test.setup(baker)
			}

			_, err := baker.Bake(context.Background(), test.occluders(a), test.candidates)
			require.Error(t, err)
			require.Equal(t, test.errType, errors.Type(err))

			require.Zero(t, a.entered)
			require.Equal(t, octantRow(2), a.octants)
			require.Zero(t, renderer.calls)
			require.Empty(t, *decoders)
		})
	}
}

func TestBakerBakeInProgress(t *testing.T) {
	a := &testOccluder{id: 1}
	baker, occluders, _ := newTestBaker(t, &fakeRenderer{}, a)

	var bakeErr, clearErr error
	baker.Progress = func(p Progress) {
		if p.Done {
			return
		}
		_, bakeErr = baker.Bake(context.Background(), occluders, octantRow(1))
		clearErr = baker.Clear(occluders)
	}

	_, err := baker.Bake(context.Background(), occluders, octantRow(1))
	require.NoError(t, err)
	require.Equal(t, ErrTypeBakeInProgress, errors.Type(bakeErr))
	require.Equal(t, ErrTypeBakeInProgress, errors.Type(clearErr))
}

func TestBakerBakeDuplicateIDs(t *testing.T) {
	t.Run("duplicate ids are repaired before baking", func(t *testing.T) {
		a := &testOccluder{id: 5}
		b := &testOccluder{id: 5}
		renderer := &fakeRenderer{
			visible: func(mgl32.Vec3) []*testOccluder { return []*testOccluder{b} },
		}
		baker, occluders, _ := newTestBaker(t, renderer, a, b)

		_, err := baker.Bake(context.Background(), occluders, octantRow(1))
		require.NoError(t, err)
		require.Equal(t, 5, a.id)
		require.Equal(t, 6, b.id)
		require.Empty(t, a.octants)
		require.Equal(t, octantRow(1), b.octants)
	})

	t.Run("repair can be disabled", func(t *testing.T) {
		a := &testOccluder{id: 5}
		b := &testOccluder{id: 5}
		renderer := &fakeRenderer{
			visible: func(mgl32.Vec3) []*testOccluder { return []*testOccluder{b} },
		}
		baker, occluders, _ := newTestBaker(t, renderer, a, b)
		baker.FeatureFlags = featureflag.New([]string{string(featureflag.FlagDisableIDRepair)})

		_, err := baker.Bake(context.Background(), occluders, octantRow(1))
		require.NoError(t, err)
		require.Equal(t, 5, b.id)
		require.Equal(t, octantRow(1), a.octants)
		require.Equal(t, octantRow(1), b.octants)
	})
}

func TestBakerClear(t *testing.T) {
	a := &testOccluder{id: 1, octants: octantRow(3)}
	b := &testOccluder{id: 2}
	baker, occluders, _ := newTestBaker(t, &fakeRenderer{}, a, b)

	require.NoError(t, baker.Clear(occluders))
	require.NotNil(t, a.octants)
	require.Empty(t, a.octants)
	require.NotNil(t, b.octants)
	require.Empty(t, b.octants)
}
