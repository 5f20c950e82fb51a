package bake

import (
	"context"
	"image"
	"slices"
	"sync"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/aukilabs/pvsbake/featureflag"
	"github.com/aukilabs/pvsbake/models"
	"github.com/aukilabs/pvsbake/render"
	"github.com/gammazero/deque"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"
)

// SampleGraph is the interface that describes a graph of reachable points.
type SampleGraph interface {
	// Reports whether a node is in line of sight of point.
	CanSeeAnyNode(point mgl32.Vec3) bool
}

// Result summarizes a bake.
type Result struct {
	BakeID string `json:"bake_id"`

	// The number of baked octants out of Total.
	Processed int `json:"processed"`
	Total     int `json:"total"`

	// Reports whether the bake was stopped before every octant was baked.
	Cancelled bool `json:"cancelled"`

	SampledCorners int           `json:"sampled_corners"`
	PrunedCorners  int           `json:"pruned_corners"`
	CacheHits      int           `json:"cache_hits"`
	Duration       time.Duration `json:"duration"`
}

// Baker computes which octants each occluder can be seen from.
//
// Visibility is sampled at the 8 corners of every candidate octant by
// rendering the scene into a cubemap with each occluder drawn in its ID color.
type Baker struct {
	// The occluders of the scene. They are all drawn in their ID color during
	// a bake.
	Registry *models.OccluderRegistry

	// When set, corners that see no graph node are not sampled.
	Graph SampleGraph

	Renderer   render.Renderer
	NewDecoder render.DecoderFactory

	Settings     Settings
	FeatureFlags featureflag.FeatureFlag

	// Called after each baked octant and once the bake is over.
	Progress func(Progress)

	mutex sync.Mutex
}

// Bake computes the octants of the given occluders and assigns them with
// SetOctants. Only the candidate octants are baked.
//
// When ctx is cancelled, the bake stops and the octants found so far are
// assigned. When an error occurs, no octant is assigned. In both cases every
// registered occluder leaves bake mode before Bake returns, and a last
// progress with Done set is reported.
func (b *Baker) Bake(ctx context.Context, occluders []models.Occluder, candidates []models.Octant) (Result, error) {
	if !b.mutex.TryLock() {
		return Result{}, errors.New("a bake is already in progress").
			WithType(ErrTypeBakeInProgress)
	}
	defer b.mutex.Unlock()

	start := time.Now()

	result, err := b.bake(ctx, occluders, candidates)
	result.Duration = time.Since(start)

	switch {
	case err != nil:
		instrumentBakeError(err)
		instrumentBake(outcomeFailed, start)

	case result.Cancelled:
		instrumentBake(outcomeCancelled, start)

	default:
		instrumentBake(outcomeSucceeded, start)
	}

	return result, err
}

func (b *Baker) bake(ctx context.Context, occluders []models.Occluder, candidates []models.Octant) (result Result, err error) {
	if err := b.validate(occluders, candidates); err != nil {
		return Result{}, err
	}

	result = Result{
		BakeID: uuid.NewString(),
		Total:  len(candidates),
	}

	rate := newRateMeter(time.Now)
	defer func() {
		b.notify(Progress{
			BakeID:      result.BakeID,
			Processed:   result.Processed,
			Total:       result.Total,
			MsPerOctant: rate.rate,
			Done:        true,
			Cancelled:   result.Cancelled,
			Failed:      err != nil,
		})
	}()

	if b.FeatureFlags.IsSet(featureflag.FlagDisableIDRepair) {
		logs.WithTag("bake_id", result.BakeID).Debug("occlusion id repair is disabled")
	} else {
		repaired, err := b.Registry.ResolveDuplicateIDs()
		if err != nil {
			return result, err
		}
		if repaired != 0 {
			logs.WithTag("bake_id", result.BakeID).
				WithTag("count", repaired).
				Info("duplicate occlusion ids repaired")
		}
	}

	decoder, err := b.NewDecoder(models.UniqueIDCount)
	if err != nil {
		return result, errors.New("creating decoder failed").
			WithType(ErrTypeResourceAllocation).
			Wrap(err)
	}
	target := image.NewRGBA(image.Rect(0, 0, b.Settings.Resolution, b.Settings.Resolution))

	registered := b.Registry.All()
	for _, o := range registered {
		o.EnterBakeMode(models.EncodeIDColor(o.OcclusionID(), o.OcclusionType()))
	}
	defer func() {
		for _, o := range registered {
			o.LeaveBakeMode()
		}
		decoder.Release()
	}()

	logs.WithTag("bake_id", result.BakeID).
		WithTag("occluders", len(occluders)).
		WithTag("octants", len(candidates)).
		WithTag("resolution", b.Settings.Resolution).
		WithTag("feather_radius", b.Settings.FeatherRadius).
		Info("bake started")

	s := sampler{
		renderer: b.Renderer,
		decoder:  decoder,
		target:   target,
		camera: render.Camera{
			FieldOfView: b.Settings.FieldOfView,
			Far:         b.Settings.RenderDistance,
			CullingMask: b.Settings.CullingMask,
		},
		scope: scopeIDs(occluders),
	}

	visibleFrom := make(map[int]models.OctantSet, len(s.scope))
	for _, uid := range s.scope {
		visibleFrom[uid] = models.NewOctantSet()
	}

	var graph SampleGraph
	b.FeatureFlags.IfNotSet(featureflag.FlagDisableSamplePruning, func() {
		graph = b.Graph
	})

	candidateSet := models.NewOctantSet(candidates...)
	var queue deque.Deque[models.Octant]
	for _, o := range candidates {
		queue.PushBack(o)
	}

	cache := make(map[models.CornerKey][]int)

	for queue.Len() != 0 {
		if ctx.Err() != nil {
			result.Cancelled = true
			break
		}

		octant := queue.PopFront()
		corners := octant.Corners(b.Settings.OctantOffset)

		for _, corner := range corners {
			key := models.CornerKeyOf(corner)
			if _, ok := cache[key]; ok {
				result.CacheHits++
				instrumentCornerSample(sampleCached)
				continue
			}

			if graph != nil && !graph.CanSeeAnyNode(corner) {
				result.PrunedCorners++
				instrumentCornerSample(samplePruned)
				continue
			}

			visible, err := s.Sample(corner)
			if err != nil {
				logs.WithTag("bake_id", result.BakeID).
					WithTag("octant", octant).
					Error(err)
				return result, err
			}
			cache[key] = visible
			result.SampledCorners++
			instrumentCornerSample(sampleSampled)
		}

		neighbors := featherNeighbors(octant, b.Settings.FeatherRadius, candidateSet)
		for _, corner := range corners {
			for _, uid := range cache[models.CornerKeyOf(corner)] {
				set := visibleFrom[uid]
				for _, n := range neighbors {
					set.Add(n)
				}
			}
		}

		result.Processed++
		instrumentOctantProcessed()
		b.notify(Progress{
			BakeID:      result.BakeID,
			Processed:   result.Processed,
			Total:       result.Total,
			MsPerOctant: rate.Update(result.Processed),
		})
	}

	for _, o := range occluders {
		o.SetOctants(visibleFrom[models.UniqueID(o)].Sorted())
	}

	logs.WithTag("bake_id", result.BakeID).
		WithTag("processed", result.Processed).
		WithTag("total", result.Total).
		WithTag("cancelled", result.Cancelled).
		WithTag("sampled_corners", result.SampledCorners).
		WithTag("pruned_corners", result.PrunedCorners).
		WithTag("cache_hits", result.CacheHits).
		Info("bake finished")

	return result, nil
}

// Clear removes the baked octants of the given occluders.
func (b *Baker) Clear(occluders []models.Occluder) error {
	if !b.mutex.TryLock() {
		return errors.New("a bake is in progress").
			WithType(ErrTypeBakeInProgress)
	}
	defer b.mutex.Unlock()

	for _, o := range occluders {
		o.SetOctants([]models.Octant{})
	}
	return nil
}

func (b *Baker) validate(occluders []models.Occluder, candidates []models.Octant) error {
	if len(occluders) == 0 {
		return errors.New("no occluder to bake").WithType(ErrTypeNoOccluders)
	}

	if len(candidates) == 0 {
		return errors.New("no octant to bake").WithType(ErrTypeNoCandidates)
	}

	if b.Registry == nil || b.Renderer == nil || b.NewDecoder == nil {
		return errors.New("baker is missing a registry, a renderer or a decoder").
			WithType(ErrTypeInvalidSettings)
	}

	if err := b.Settings.Validate(); err != nil {
		return err
	}

	registered := b.Registry.All()
	for _, o := range occluders {
		if !slices.Contains(registered, o) {
			return errors.New("occluder is not registered").
				WithType(ErrTypeOccluderNotRegistered).
				WithTag("occlusion_id", o.OcclusionID()).
				WithTag("occlusion_type", o.OcclusionType())
		}
	}

	return nil
}

func (b *Baker) notify(p Progress) {
	if b.Progress != nil {
		b.Progress(p)
	}
}

// featherNeighbors returns the candidate octants within radius of octant.
func featherNeighbors(octant models.Octant, radius int, candidates models.OctantSet) []models.Octant {
	neighbors := octant.Neighbors(radius)

	n := 0
	for _, o := range neighbors {
		if candidates.Contains(o) {
			neighbors[n] = o
			n++
		}
	}
	return neighbors[:n]
}

// scopeIDs returns the sorted unique ids of the given occluders.
func scopeIDs(occluders []models.Occluder) []int {
	ids := make([]int, 0, len(occluders))
	for _, o := range occluders {
		ids = append(ids, models.UniqueID(o))
	}
	slices.Sort(ids)
	return slices.Compact(ids)
}
